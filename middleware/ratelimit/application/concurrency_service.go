package application

import (
	"context"
	"time"

	"proxy-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService aplica o prazo de espera por vaga e separa estouro do
// limite (domain.ErrNoSlot) de cliente que desistiu (erro do próprio ctx).
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	Now            func() time.Time
}

// Acquire espera por uma vaga. AcquireTimeout <= 0 espera enquanto o ctx viver.
func (s ConcurrencyService) Acquire(ctx context.Context) (domain.Slot, error) {
	if s.Pool == nil {
		return domain.Slot{Release: func() {}}, nil
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	start := now()

	waitCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, err := s.Pool.Acquire(waitCtx)
	slot := domain.Slot{Release: release, Waited: now().Sub(start)}
	if err == nil {
		return slot, nil
	}
	if ctx.Err() != nil {
		return slot, ctx.Err()
	}
	return slot, domain.ErrNoSlot
}

// Usage devolve vagas ocupadas e capacidade (zeros sem pool).
func (s ConcurrencyService) Usage() (inUse, capacity int) {
	if s.Pool == nil {
		return 0, 0
	}
	return s.Pool.InUse(), s.Pool.Cap()
}
