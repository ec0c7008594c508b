package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUIDFormat(t *testing.T) {
	for i := 0; i < 1000; i++ {
		uid := NewUID()
		assert.Len(t, uid, 17)
		assert.True(t, IsUID(uid), uid)
	}
}

func TestFormatUIDPadsWithZeros(t *testing.T) {
	assert.Equal(t, "00000-00000-00042", formatUID(42))
	assert.Equal(t, "99999-99999-99999", formatUID(uidSpace-1))
}

func TestIsUID(t *testing.T) {
	assert.True(t, IsUID("12345-67890-12345"))
	for _, seg := range []string{"", "api", "12345", "12345-67890", "1234a-67890-12345", "12345-67890-123456"} {
		assert.False(t, IsUID(seg), seg)
	}
}
