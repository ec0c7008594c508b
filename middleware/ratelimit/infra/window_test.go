package infra

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"proxy-gateway/middleware/ratelimit/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestWindowStore_RejectsAfterBudgetWithinWindow(t *testing.T) {
	clk := newFakeClock()
	s := NewWindowStore(3, time.Minute, WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		if res := s.Admit("1.2.3.4"); !res.Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	res := s.Admit("1.2.3.4")
	if res.Allowed {
		t.Fatalf("4th request in window should be rejected")
	}
	if res.Count != 4 {
		t.Fatalf("expected post-increment count 4, got %d", res.Count)
	}
}

func TestWindowStore_WindowIsPeriodic(t *testing.T) {
	clk := newFakeClock()
	s := NewWindowStore(2, time.Minute, WithClock(clk.Now))

	s.Admit("k")
	s.Admit("k")
	if s.Admit("k").Allowed {
		t.Fatalf("expected rejection inside window")
	}

	clk.Advance(59 * time.Second)
	if s.Admit("k").Allowed {
		t.Fatalf("window has not elapsed yet")
	}

	clk.Advance(time.Second)
	for i := 0; i < 2; i++ {
		if !s.Admit("k").Allowed {
			t.Fatalf("admission should resume after the window, request %d", i+1)
		}
	}
	if s.Admit("k").Allowed {
		t.Fatalf("budget applies again in the new window")
	}
}

func TestWindowStore_KeysAreIndependent(t *testing.T) {
	s := NewWindowStore(1, time.Minute)

	if !s.Admit("a").Allowed || !s.Admit("b").Allowed {
		t.Fatalf("each identity has its own budget")
	}
	if s.Admit("a").Allowed {
		t.Fatalf("a should be limited")
	}
}

func TestWindowStore_SweepRemovesOnlyElapsedWindows(t *testing.T) {
	clk := newFakeClock()
	s := NewWindowStore(10, time.Minute, WithClock(clk.Now))

	s.Admit("old")
	clk.Advance(30 * time.Second)
	s.Admit("new")
	clk.Advance(30 * time.Second)

	if removed := s.Sweep(); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 tracked identity, got %d", s.Len())
	}
}

func TestWindowStore_HighWaterTriggersSweep(t *testing.T) {
	clk := newFakeClock()
	s := NewWindowStore(10, time.Second, WithClock(clk.Now), WithHighWater(100))

	for i := 0; i < 100; i++ {
		s.Admit(fmt.Sprintf("spoofed-%d", i))
	}
	clk.Advance(2 * time.Second)
	// a 101ª chave cruza o high-water mark; as anteriores já venceram
	s.Admit("fresh")

	if got := s.Len(); got != 1 {
		t.Fatalf("expected sweep to leave only the fresh key, got %d", got)
	}
}

func TestWindowStore_ConcurrentAdmitsNeverExceedBudget(t *testing.T) {
	s := NewWindowStore(50, time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Admit("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("expected exactly 50 admitted, got %d", allowed)
	}
}

func TestWindowStore_LimiterExposesQuota(t *testing.T) {
	clk := newFakeClock()
	s := NewWindowStore(5, time.Minute, WithClock(clk.Now))

	lim := s.Get(domain.Key("k"))
	if !lim.Allow() {
		t.Fatalf("expected allow")
	}
	q, ok := lim.(domain.Quota)
	if !ok {
		t.Fatalf("window limiter should implement domain.Quota")
	}
	if q.Limit() != 5 || q.Remaining() != 4 {
		t.Fatalf("unexpected quota limit=%d remaining=%d", q.Limit(), q.Remaining())
	}
	if !q.ResetAt().Equal(clk.Now().Add(time.Minute)) {
		t.Fatalf("unexpected reset %s", q.ResetAt())
	}
}
