package infra

import (
	"context"
	"errors"
	"testing"

	"proxy-gateway/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_CountsByRouteReasonAndKey(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: true, Reason: domain.ReasonAdmitted, Method: "GET", Path: "/x"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: false, Reason: domain.ReasonRateLimit, Method: "GET", Path: "/x"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "b", Allowed: false, Reason: domain.ReasonUserAgent, Method: "POST", Path: "/y"})

	if got := s.Total(); got.Allowed != 1 || got.Denied != 2 {
		t.Fatalf("unexpected totals %+v", got)
	}
	if got := s.ByRoute()["GET /x"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected route counters %+v", got)
	}
	if got := s.ByReason()[domain.ReasonRateLimit]; got != 1 {
		t.Fatalf("expected 1 rate_limit denial, got %d", got)
	}
	if got := s.ByKey()["b"]; got.Denied != 1 {
		t.Fatalf("unexpected key counters %+v", got)
	}
}

func TestMemoryStatsStore_KeysNotTrackedByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "a", Allowed: true})
	if len(s.ByKey()) != 0 {
		t.Fatalf("keys should not be tracked by default")
	}
}

type failingStats struct{}

func (failingStats) Record(context.Context, domain.StatsEvent) error { return errors.New("down") }

func TestMultiStatsStore_RecordsEverywhere(t *testing.T) {
	a := NewMemoryStatsStore()
	b := NewMemoryStatsStore()
	m := MultiStatsStore{a, nil, failingStats{}, b}

	err := m.Record(context.Background(), domain.StatsEvent{Key: "k", Allowed: true, Reason: domain.ReasonAdmitted})
	if err == nil {
		t.Fatalf("expected the failing store error to surface")
	}
	if a.Total().Allowed != 1 || b.Total().Allowed != 1 {
		t.Fatalf("every healthy store must record: a=%+v b=%+v", a.Total(), b.Total())
	}
}
