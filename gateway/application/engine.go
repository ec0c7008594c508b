package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"proxy-gateway/gateway/domain"
	"proxy-gateway/middleware/ratelimit"

	"go.uber.org/zap"
)

// Resultados do encaminhamento reportados ao Observer.
const (
	OutcomeOK         = "ok"
	OutcomeFallbackOK = "fallback_ok"
	OutcomeFailed     = "failed"
	OutcomeExpired    = "expired"
	OutcomeRejected   = "rejected"
	OutcomeInvalid    = "invalid"
	OutcomeCanceled   = "canceled"
)

// Tentativas, para a latência do upstream.
const (
	AttemptPrimary  = "primary"
	AttemptFallback = "fallback"
)

// DefaultRetryStatuses disparam o failover quando vêm do alvo padrão.
var DefaultRetryStatuses = []int{http.StatusBadGateway, http.StatusServiceUnavailable}

type EngineConfig struct {
	Admission *Admission
	Resolver  Resolver
	Rewriter  HeaderRewriter
	Upstream  Upstream
	// Fallback recebe uma única nova tentativa quando o alvo padrão falha.
	Fallback *domain.Target
	// RetryStatuses nil usa DefaultRetryStatuses.
	RetryStatuses []int
	// MaxBodyBytes limita o corpo guardado para reenvio; 0 = sem limite.
	MaxBodyBytes int64
	// RateLimitHeaders inclui X-RateLimit-* nas respostas.
	RateLimitHeaders bool
	Observer         Observer
	Logger           *zap.Logger
}

// Engine é o motor de encaminhamento:
//
//	START -> ADMITTED|REJECTED -> RESOLVED|EXPIRED -> SENT -> OK|RETRY_FALLBACK|FAILED
//
// O failover acontece no máximo uma vez e só para o alvo padrão; a admissão
// não é refeita. Com o cliente desconectado nada é reenviado.
type Engine struct {
	admission    *Admission
	resolver     Resolver
	rewriter     HeaderRewriter
	upstream     Upstream
	fallback     *domain.Target
	retry        map[int]bool
	maxBody      int64
	quotaHeaders bool
	observer     Observer
	log          *zap.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		admission:    cfg.Admission,
		resolver:     cfg.Resolver,
		rewriter:     cfg.Rewriter,
		upstream:     cfg.Upstream,
		fallback:     cfg.Fallback,
		retry:        make(map[int]bool),
		maxBody:      cfg.MaxBodyBytes,
		quotaHeaders: cfg.RateLimitHeaders,
		observer:     cfg.Observer,
		log:          cfg.Logger,
	}
	if e.admission == nil {
		e.admission = &Admission{}
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	statuses := cfg.RetryStatuses
	if statuses == nil {
		statuses = DefaultRetryStatuses
	}
	for _, s := range statuses {
		e.retry[s] = true
	}
	return e
}

// Forward processa a requisição e sempre devolve uma resposta.
func (e *Engine) Forward(ctx context.Context, req *domain.Request) *domain.Response {
	log := e.log.With(
		zap.String("request_id", req.ID),
		zap.String("method", req.Method),
		zap.String("path", req.Path))

	dec, err := e.admission.Admit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("client gone during admission", zap.Error(err))
			return e.fail(OutcomeCanceled, fmt.Errorf("%w: %v", domain.ErrUpstream, ctx.Err()))
		}
		resp := e.fail(OutcomeRejected, err)
		ratelimit.WriteHeaders(resp.Header, dec, e.quotaHeaders)
		return resp
	}

	res, err := e.resolver.Resolve(req.Path)
	if err != nil {
		log.Debug("route resolution failed", zap.Error(err))
		if errors.Is(err, domain.ErrRouteExpired) {
			return e.fail(OutcomeExpired, err)
		}
		return e.fail(OutcomeFailed, err)
	}

	body, err := e.readBody(req)
	if err != nil {
		return e.fail(OutcomeInvalid, err)
	}

	outcome := OutcomeOK
	resp, err := e.send(ctx, AttemptPrimary, res.Target, res.Path, req, body)
	if e.failed(res, resp, err) {
		e.logFailure(log, AttemptPrimary, res.Target, resp, err)
		resp.Close()

		switch {
		case ctx.Err() != nil:
			return e.fail(OutcomeCanceled, fmt.Errorf("%w: %v", domain.ErrUpstream, ctx.Err()))
		case res.Kind != KindDefault || e.fallback == nil:
			return e.fail(OutcomeFailed, domain.ErrUpstream)
		}

		resp, err = e.send(ctx, AttemptFallback, *e.fallback, res.Path, req, body)
		if e.failed(res, resp, err) {
			e.logFailure(log, AttemptFallback, *e.fallback, resp, err)
			resp.Close()
			return e.fail(OutcomeFailed, domain.ErrUpstream)
		}
		outcome = OutcomeFallbackOK
	}

	final, err := e.rewriter.Response(resp)
	if err != nil {
		log.Warn("upstream body rejected", zap.Error(err))
		resp.Close()
		return e.fail(OutcomeFailed, fmt.Errorf("%w: %v", domain.ErrUpstream, err))
	}
	ratelimit.WriteHeaders(final.Header, dec, e.quotaHeaders)

	e.observer.Forward(outcome)
	log.Debug("forwarded",
		zap.String("route", res.Kind.String()),
		zap.String("outcome", outcome),
		zap.Int("status", final.StatusCode))
	return final
}

func (e *Engine) send(ctx context.Context, attempt string, target domain.Target, path string, req *domain.Request, body []byte) (*domain.Response, error) {
	out := domain.Outbound{
		Method: req.Method,
		URL:    target.Join(path, req.RawQuery),
		Header: e.rewriter.Request(req, target),
		Body:   body,
	}
	start := time.Now()
	resp, err := e.upstream.Do(ctx, out)
	e.observer.UpstreamLatency(attempt, time.Since(start))
	return resp, err
}

// failed informa se a tentativa falhou: erro de rede antes do status, ou
// status do conjunto de retry vindo do alvo padrão. Rotas dinâmicas
// repassam qualquer status.
func (e *Engine) failed(res Resolution, resp *domain.Response, err error) bool {
	if err != nil || resp == nil {
		return true
	}
	return res.Kind == KindDefault && e.retry[resp.StatusCode]
}

func (e *Engine) logFailure(log *zap.Logger, attempt string, target domain.Target, resp *domain.Response, err error) {
	fields := []zap.Field{zap.String("attempt", attempt), zap.String("target", target.Origin())}
	if err != nil {
		fields = append(fields, zap.Error(err))
	} else {
		fields = append(fields, zap.Int("status", resp.StatusCode))
	}
	log.Warn("upstream attempt failed", fields...)
}

// readBody guarda o corpo em memória para poder reenviá-lo. GET e HEAD
// nunca levam corpo.
func (e *Engine) readBody(req *domain.Request) ([]byte, error) {
	if req.Body == nil || req.Method == http.MethodGet || req.Method == http.MethodHead {
		return nil, nil
	}
	if e.maxBody <= 0 {
		return io.ReadAll(req.Body)
	}

	b, err := io.ReadAll(io.LimitReader(req.Body, e.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > e.maxBody {
		return nil, fmt.Errorf("%w: limit is %d bytes", domain.ErrBodyTooLarge, e.maxBody)
	}
	return b, nil
}

func (e *Engine) fail(outcome string, err error) *domain.Response {
	e.observer.Forward(outcome)
	resp := domain.ErrorResponse(err)
	e.rewriter.Decorate(resp.Header)
	return resp
}
