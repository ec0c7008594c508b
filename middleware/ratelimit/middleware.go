package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"proxy-gateway/middleware/ratelimit/application"
	"proxy-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store               domain.LimiterStore
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	ClientIPHeader      string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// DefaultKeyFunc extrai a identidade do cliente, nesta ordem:
//
//  1. keyHeader (ex: X-Api-Key), se presente
//  2. clientIPHeader (ex: CF-Connecting-IP), cabeçalho confiável posto pela borda
//  3. primeiro IP do X-Forwarded-For, se trustXFF
//  4. host de RemoteAddr
func DefaultKeyFunc(keyHeader, clientIPHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}
		if ip := ClientIP(r, clientIPHeader, trustXFF); ip != "" {
			return ip
		}
		return "unknown"
	}
}

// ClientIP retorna o endereço do cliente observado pelo gateway, ou "" quando
// nenhum está disponível.
func ClientIP(r *http.Request, clientIPHeader string, trustXFF bool) string {
	if clientIPHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(clientIPHeader)); v != "" {
			return v
		}
	}

	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	return RemoteHost(r.RemoteAddr)
}

// RemoteHost remove a porta de um RemoteAddr ("10.0.0.1:1234" -> "10.0.0.1").
func RemoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}
	return remoteAddr
}

// WriteHeaders escreve X-RateLimit-* (quando a decisão tem cota) e Retry-After
// (quando bloqueada).
func WriteHeaders(h http.Header, dec domain.Decision, withQuota bool) {
	if withQuota && dec.Limit > 0 {
		setInt(h, "X-RateLimit-Limit", int64(dec.Limit))
		setInt(h, "X-RateLimit-Remaining", int64(dec.Remaining))
		if !dec.ResetAt.IsZero() {
			setInt(h, "X-RateLimit-Reset", dec.ResetAt.Unix())
		}
	}
	if !dec.Allowed {
		setSeconds(h, "Retry-After", dec.RetryAfter)
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.ClientIPHeader, opts.TrustXForwardedFor)
	}

	svc := application.Service{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if ri, ok := opts.Store.(rateInfo); ok {
					setFloat(w.Header(), "X-RateLimit-RPS", ri.RPS())
					setInt(w.Header(), "X-RateLimit-Burst", int64(ri.Burst()))
				}
			}

			dec := svc.Decide(domain.Key(key))
			if opts.Stats != nil {
				reason := domain.ReasonAdmitted
				if !dec.Allowed {
					reason = domain.ReasonRateLimit
				}
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Allowed: dec.Allowed,
					Reason:  reason,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}
			WriteHeaders(w.Header(), dec, opts.AddRateLimitHeaders)
			if !dec.Allowed {
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
