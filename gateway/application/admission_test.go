package application

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"proxy-gateway/gateway/domain"
	rlapp "proxy-gateway/middleware/ratelimit/application"
	rldomain "proxy-gateway/middleware/ratelimit/domain"
	rlinfra "proxy-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkFunc struct {
	name string
	fn   func(*domain.Request) error
}

func (c checkFunc) Name() string { return c.name }

func (c checkFunc) Check(_ context.Context, req *domain.Request) error { return c.fn(req) }

func admissionRequest(identity, ua string) *domain.Request {
	h := http.Header{}
	if ua != "" {
		h.Set("User-Agent", ua)
	}
	return &domain.Request{Method: http.MethodGet, Path: "/", Header: h, Identity: identity}
}

func TestAdmissionRateLimitPerIdentity(t *testing.T) {
	now := time.Unix(0, 0)
	store := rlinfra.NewWindowStore(3, time.Minute, rlinfra.WithClock(func() time.Time { return now }))
	a := &Admission{Limiter: rlapp.Service{Store: store}}

	for i := 0; i < 3; i++ {
		_, err := a.Admit(context.Background(), admissionRequest("a", ""))
		require.NoError(t, err)
	}
	_, err := a.Admit(context.Background(), admissionRequest("a", ""))
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	_, err = a.Admit(context.Background(), admissionRequest("b", ""))
	assert.NoError(t, err, "identities are independent")

	now = now.Add(time.Minute)
	_, err = a.Admit(context.Background(), admissionRequest("a", ""))
	assert.NoError(t, err, "new window")
}

func TestAdmissionChecksRunInOrder(t *testing.T) {
	var order []string
	pass := func(name string) AdmissionCheck {
		return checkFunc{name: name, fn: func(*domain.Request) error { order = append(order, name); return nil }}
	}
	deny := checkFunc{name: "deny", fn: func(*domain.Request) error { order = append(order, "deny"); return errors.New("nope") }}

	stats := rlinfra.NewMemoryStatsStore()
	a := &Admission{Checks: []AdmissionCheck{pass("one"), deny, pass("never")}, Stats: stats}

	_, err := a.Admit(context.Background(), admissionRequest("a", ""))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, []string{"one", "deny"}, order)
	assert.Equal(t, int64(1), stats.ByReason()["deny"])
	assert.Equal(t, int64(1), stats.Total().Denied)
}

func TestAdmissionRateLimitShortCircuitsChecks(t *testing.T) {
	called := false
	a := &Admission{
		Limiter: denyAll{},
		Checks:  []AdmissionCheck{checkFunc{name: "c", fn: func(*domain.Request) error { called = true; return nil }}},
	}
	_, err := a.Admit(context.Background(), admissionRequest("a", ""))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.False(t, called)
}

type denyAll struct{}

func (denyAll) Decide(rldomain.Key) rldomain.Decision {
	return rldomain.Decision{Allowed: false, RetryAfter: time.Second}
}

func TestAdmissionRecordsAdmitted(t *testing.T) {
	stats := rlinfra.NewMemoryStatsStore()
	a := &Admission{Stats: stats}
	_, err := a.Admit(context.Background(), admissionRequest("a", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total().Allowed)
	assert.Equal(t, int64(1), stats.ByReason()[rldomain.ReasonAdmitted])
}

func TestUserAgentCheck(t *testing.T) {
	c := NewUserAgentCheck([]string{"BadBot", " curl ", ""})

	for _, ua := range []string{"Mozilla/5.0 (compatible; badbot/2.1)", "curl/8.4.0"} {
		err := c.Check(context.Background(), admissionRequest("a", ua))
		assert.ErrorIs(t, err, domain.ErrForbidden, ua)
	}
	for _, ua := range []string{"Mozilla/5.0 (X11; Linux x86_64)", ""} {
		assert.NoError(t, c.Check(context.Background(), admissionRequest("a", ua)), ua)
	}
	assert.Equal(t, rldomain.ReasonUserAgent, c.Name())
}

func TestRouteLabel(t *testing.T) {
	label := RouteLabel(func(s string) bool { return strings.HasPrefix(s, "uid-") })

	cases := []struct{ path, want string }{
		{"", "/"},
		{"/", "/"},
		{"/uid-1/deep/path", "/{uid}"},
		{"/api/v1/users", "/api"},
		{"//api", "/api"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, label(tc.path), tc.path)
	}
}

func TestAdmissionRecordsLabelledPath(t *testing.T) {
	stats := rlinfra.NewMemoryStatsStore()
	a := &Admission{Stats: stats, Label: RouteLabel(nil)}

	req := admissionRequest("a", "")
	req.Path = "/catalog/items/42"
	_, err := a.Admit(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, rlinfra.Counters{Allowed: 1}, stats.ByRoute()["GET /catalog"])
}
