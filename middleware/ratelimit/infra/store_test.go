package infra

import (
	"fmt"
	"testing"
	"time"

	"proxy-gateway/middleware/ratelimit/domain"
)

func TestStore_GetSameKeyReturnsSameLimiter(t *testing.T) {
	s := NewStore(10, 1)

	l1 := s.Get(domain.Key("k"))
	l2 := s.Get(domain.Key("k"))
	if l1 != l2 {
		t.Fatalf("expected same limiter pointer for same key")
	}
}

func TestStore_LowBurstRejectsSecondImmediateAllow(t *testing.T) {
	s := NewStore(0.02, 1)

	lim := s.Get(domain.Key("k"))
	if !lim.Allow() {
		t.Fatalf("expected first Allow to be true")
	}
	if lim.Allow() {
		t.Fatalf("expected second immediate Allow to be false (burst=1)")
	}
}

func TestStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := NewStore(10, 1, WithIdleTTL(2*time.Millisecond))

	before := s.Get(domain.Key("k"))
	time.Sleep(4 * time.Millisecond)

	s.Cleanup()

	after := s.Get(domain.Key("k"))
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}

func TestStore_MaxKeysDropsIdleBeforeGrowing(t *testing.T) {
	s := NewStore(10, 1, WithIdleTTL(time.Millisecond), WithMaxKeys(3))

	for i := 0; i < 3; i++ {
		s.GetString(fmt.Sprintf("k%d", i))
	}
	time.Sleep(3 * time.Millisecond)
	s.GetString("fresh")

	if got := s.Len(); got != 1 {
		t.Fatalf("expected idle keys dropped, got %d entries", got)
	}
}
