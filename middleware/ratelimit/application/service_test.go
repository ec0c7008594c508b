package application

import (
	"testing"
	"time"

	"proxy-gateway/middleware/ratelimit/domain"
)

type fakeLimiter struct {
	allow bool
}

func (f fakeLimiter) Allow() bool { return f.allow }

type fakeQuotaLimiter struct {
	fakeLimiter
	limit, remaining int
	reset            time.Time
}

func (f fakeQuotaLimiter) Limit() int         { return f.limit }
func (f fakeQuotaLimiter) Remaining() int     { return f.remaining }
func (f fakeQuotaLimiter) ResetAt() time.Time { return f.reset }

type fakeStore struct {
	lim domain.Limiter
}

func (s fakeStore) Get(domain.Key) domain.Limiter { return s.lim }

func TestService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := Service{}
	dec := svc.Decide("k")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_AllowsWhenLimiterAllows(t *testing.T) {
	svc := Service{Store: fakeStore{lim: fakeLimiter{allow: true}}, RetryAfter: 5 * time.Second}
	dec := svc.Decide("k")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
}

func TestService_Decide_BlocksWithRetryAfterDefault(t *testing.T) {
	svc := Service{Store: fakeStore{lim: fakeLimiter{allow: false}}}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != 1*time.Second {
		t.Fatalf("expected default RetryAfter=1s, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_CopiesQuotaWhenAllowed(t *testing.T) {
	reset := time.Unix(1000, 0)
	svc := Service{Store: fakeStore{lim: fakeQuotaLimiter{
		fakeLimiter: fakeLimiter{allow: true}, limit: 100, remaining: 42, reset: reset,
	}}}
	dec := svc.Decide("k")
	if !dec.Allowed || dec.Limit != 100 || dec.Remaining != 42 || !dec.ResetAt.Equal(reset) {
		t.Fatalf("unexpected decision %+v", dec)
	}
}

func TestService_Decide_RetryAfterUntilWindowReset(t *testing.T) {
	now := time.Unix(1000, 0)
	svc := Service{
		Store: fakeStore{lim: fakeQuotaLimiter{
			fakeLimiter: fakeLimiter{allow: false}, limit: 1, reset: now.Add(2500 * time.Millisecond),
		}},
		Now: func() time.Time { return now },
	}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	// 2.5s arredonda para 3s
	if dec.RetryAfter != 3*time.Second {
		t.Fatalf("expected RetryAfter=3s, got %s", dec.RetryAfter)
	}
}
