package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"proxy-gateway/gateway/domain"
	rldomain "proxy-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// Decider é o serviço de rate limit (ratelimit/application.Service).
type Decider interface {
	Decide(key rldomain.Key) rldomain.Decision
}

// Admission aplica o rate limit e depois as verificações extras, em ordem.
// Nenhuma etapa é reexecutada no failover.
type Admission struct {
	Limiter  Decider
	Checks   []AdmissionCheck
	Stats    rldomain.StatsStore
	Observer Observer
	Log      *zap.Logger
	Now      func() time.Time
	// Label reduz o path gravado nas estatísticas; nil grava o path bruto.
	Label func(path string) string
}

// Admit devolve a decisão de rate limit (para os headers) e um erro quando
// a requisição é negada: domain.ErrRateLimited ou domain.ErrForbidden.
func (a *Admission) Admit(ctx context.Context, req *domain.Request) (rldomain.Decision, error) {
	dec := rldomain.Decision{Allowed: true}
	if a.Limiter != nil {
		dec = a.Limiter.Decide(rldomain.Key(req.Identity))
	}
	if !dec.Allowed {
		a.record(ctx, req, false, rldomain.ReasonRateLimit)
		return dec, domain.ErrRateLimited
	}

	for _, check := range a.Checks {
		err := check.Check(ctx, req)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return dec, ctx.Err()
		}
		if !errors.Is(err, domain.ErrForbidden) {
			err = fmt.Errorf("%w: %s: %v", domain.ErrForbidden, check.Name(), err)
		}
		a.record(ctx, req, false, check.Name())
		return dec, err
	}

	a.record(ctx, req, true, rldomain.ReasonAdmitted)
	return dec, nil
}

func (a *Admission) record(ctx context.Context, req *domain.Request, allowed bool, reason string) {
	if a.Observer != nil {
		a.Observer.Admission(reason)
	}
	if !allowed && a.Log != nil {
		a.Log.Warn("request denied",
			zap.String("request_id", req.ID),
			zap.String("identity", req.Identity),
			zap.String("reason", reason))
	}
	if a.Stats == nil {
		return
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	path := req.Path
	if a.Label != nil {
		path = a.Label(path)
	}
	err := a.Stats.Record(ctx, rldomain.StatsEvent{
		Key:     rldomain.Key(req.Identity),
		Allowed: allowed,
		Reason:  reason,
		Method:  req.Method,
		Path:    path,
		At:      now(),
	})
	if err != nil && a.Log != nil {
		a.Log.Debug("stats record failed", zap.Error(err))
	}
}

// RouteLabel agrupa paths pelo primeiro segmento; segmentos que são uid de
// rota dinâmica viram "/{uid}" para não criar uma entrada por rota.
func RouteLabel(isUID func(string) bool) func(string) string {
	return func(path string) string {
		first, _, _ := strings.Cut(strings.TrimLeft(path, "/"), "/")
		switch {
		case first == "":
			return "/"
		case isUID != nil && isUID(first):
			return "/{uid}"
		default:
			return "/" + first
		}
	}
}

// UserAgentCheck nega User-Agents que contêm algum dos padrões (sem
// diferenciar maiúsculas).
type UserAgentCheck struct {
	patterns []string
}

func NewUserAgentCheck(patterns []string) *UserAgentCheck {
	c := &UserAgentCheck{}
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.patterns = append(c.patterns, p)
		}
	}
	return c
}

func (c *UserAgentCheck) Name() string { return rldomain.ReasonUserAgent }

func (c *UserAgentCheck) Check(_ context.Context, req *domain.Request) error {
	ua := strings.ToLower(req.Header.Get("User-Agent"))
	for _, p := range c.patterns {
		if strings.Contains(ua, p) {
			return fmt.Errorf("%w: user agent not allowed", domain.ErrForbidden)
		}
	}
	return nil
}
