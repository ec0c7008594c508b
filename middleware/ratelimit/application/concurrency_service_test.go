package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"proxy-gateway/middleware/ratelimit/domain"
)

// fullPool nunca libera vaga; devolve o erro do ctx.
type fullPool struct{}

func (fullPool) Acquire(ctx context.Context) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (fullPool) InUse() int { return 1 }
func (fullPool) Cap() int   { return 1 }

type countingPool struct {
	inUse int
}

func (p *countingPool) Acquire(context.Context) (func(), error) {
	p.inUse++
	return func() { p.inUse-- }, nil
}

func (p *countingPool) InUse() int { return p.inUse }
func (p *countingPool) Cap() int   { return 4 }

func TestConcurrencyService_NoPoolAlwaysAdmits(t *testing.T) {
	svc := ConcurrencyService{}
	slot, err := svc.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	slot.Release()
	if in, capacity := svc.Usage(); in != 0 || capacity != 0 {
		t.Fatalf("expected zero usage without pool, got %d/%d", in, capacity)
	}
}

func TestConcurrencyService_TimeoutIsNoSlot(t *testing.T) {
	svc := ConcurrencyService{Pool: fullPool{}, AcquireTimeout: 10 * time.Millisecond}

	slot, err := svc.Acquire(context.Background())
	if !errors.Is(err, domain.ErrNoSlot) {
		t.Fatalf("expected ErrNoSlot, got %v", err)
	}
	if slot.Waited < 10*time.Millisecond {
		t.Fatalf("expected wait of at least the timeout, got %s", slot.Waited)
	}
}

func TestConcurrencyService_CallerCancelIsNotNoSlot(t *testing.T) {
	svc := ConcurrencyService{Pool: fullPool{}, AcquireTimeout: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConcurrencyService_ReleaseFreesSlot(t *testing.T) {
	pool := &countingPool{}
	svc := ConcurrencyService{Pool: pool}

	slot, err := svc.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in, capacity := svc.Usage(); in != 1 || capacity != 4 {
		t.Fatalf("expected 1/4, got %d/%d", in, capacity)
	}
	slot.Release()
	if in, _ := svc.Usage(); in != 0 {
		t.Fatalf("expected slot released, got %d", in)
	}
}
