package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"proxy-gateway/middleware/ratelimit/application"
	"proxy-gateway/middleware/ratelimit/domain"
	"proxy-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max int
	// Pool substitui o semáforo criado a partir de Max (ex.: para expor uso).
	Pool           domain.SlotPool
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter > 0 vira header Retry-After na rejeição.
	RetryAfter time.Duration
	OnReject   func(r *http.Request, waited time.Duration)
}

// ConcurrencyMiddleware segura cada requisição numa vaga do pool até o handler
// retornar. Sem vaga dentro de AcquireTimeout responde RejectStatus; se o
// cliente desistir antes, nada é escrito.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	pool := opts.Pool
	if pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		pool = infra.NewChanPool(opts.Max)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slot, err := svc.Acquire(r.Context())
			if err != nil {
				if !errors.Is(err, domain.ErrNoSlot) {
					return
				}
				if opts.OnReject != nil {
					opts.OnReject(r, slot.Waited)
				}
				if opts.RetryAfter > 0 {
					setSeconds(w.Header(), "Retry-After", opts.RetryAfter)
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer slot.Release()

			next.ServeHTTP(w, r)
		})
	}
}
