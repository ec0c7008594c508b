package application

import (
	"context"
	"net/http"
	"time"

	"proxy-gateway/gateway/domain"
)

// RouteLookup resolve um UID de rota dinâmica.
type RouteLookup interface {
	Resolve(uid string) (domain.Route, error)
}

// Upstream executa uma tentativa de envio.
type Upstream interface {
	Do(ctx context.Context, out domain.Outbound) (*domain.Response, error)
}

// HeaderRewriter aplica o contrato de headers nos dois sentidos.
type HeaderRewriter interface {
	Request(req *domain.Request, target domain.Target) http.Header
	Response(resp *domain.Response) (*domain.Response, error)
	Decorate(h http.Header)
}

// AdmissionCheck é uma verificação extra depois do rate limit. Check devolve
// nil para admitir; qualquer erro nega com 403.
type AdmissionCheck interface {
	Name() string
	Check(ctx context.Context, req *domain.Request) error
}

// Observer recebe os eventos do motor (métricas).
type Observer interface {
	Admission(reason string)
	Forward(outcome string)
	UpstreamLatency(attempt string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) Admission(string) {}
func (nopObserver) Forward(string) {}
func (nopObserver) UpstreamLatency(string, time.Duration) {}
