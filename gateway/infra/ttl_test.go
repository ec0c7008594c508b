package infra

import (
	"testing"
	"time"

	"proxy-gateway/gateway/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTTL(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30 min", 30 * time.Minute},
		{"2 hours", 2 * time.Hour},
		{"1 day", 24 * time.Hour},
		{"1 week", 7 * 24 * time.Hour},
		{"45s", 45 * time.Second},
		{"90s", 90 * time.Second},
		{"1h30m", 90 * time.Minute},
		{"1.5 hours", 90 * time.Minute},
		{"  10 Minutes ", 10 * time.Minute},
		{"5m", 5 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			d, never, err := ParseTTL(tc.in, time.Hour)
			require.NoError(t, err)
			assert.False(t, never)
			assert.Equal(t, tc.want, d)
		})
	}
}

func TestParseTTLNeverAndDefault(t *testing.T) {
	_, never, err := ParseTTL("never", time.Hour)
	require.NoError(t, err)
	assert.True(t, never)

	_, never, err = ParseTTL("NEVER", time.Hour)
	require.NoError(t, err)
	assert.True(t, never)

	d, never, err := ParseTTL("", 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, never)
	assert.Equal(t, 15*time.Minute, d)
}

func TestParseTTLRejects(t *testing.T) {
	for _, in := range []string{"soon", "30", "0s", "-5m", "0 min", "3 fortnights", "min 30", "1.2.3 hours",
		"100000000000 weeks", "9999999999999999999 h", "0.0000000001 s"} {
		_, _, err := ParseTTL(in, time.Hour)
		assert.ErrorIs(t, err, domain.ErrInvalidDuration, in)
	}
}
