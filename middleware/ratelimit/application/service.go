package application

import (
	"time"

	"proxy-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store domain.LimiterStore
	// RetryAfter é usado quando o limiter não expõe o fim da janela.
	RetryAfter time.Duration
	// Now permite fixar o relógio nos testes.
	Now func() time.Time
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}

	dec := domain.Decision{Allowed: lim.Allow()}
	q, ok := lim.(domain.Quota)
	if ok {
		dec.Limit = q.Limit()
		dec.Remaining = q.Remaining()
		dec.ResetAt = q.ResetAt()
	}
	if dec.Allowed {
		return dec
	}

	dec.RetryAfter = s.RetryAfter
	if ok && !dec.ResetAt.IsZero() {
		now := time.Now()
		if s.Now != nil {
			now = s.Now()
		}
		// arredonda para cima: Retry-After é em segundos inteiros
		if wait := dec.ResetAt.Sub(now); wait > 0 {
			dec.RetryAfter = wait.Truncate(time.Second)
			if dec.RetryAfter < wait {
				dec.RetryAfter += time.Second
			}
		}
	}
	return dec
}
