package domain

import (
	"context"
	"time"
)

// Motivos de decisão registrados em StatsEvent.Reason.
const (
	ReasonAdmitted  = "admitted"
	ReasonRateLimit = "rate_limit"
	ReasonUserAgent = "user_agent"
	ReasonVerify    = "verify"
)

// StatsEvent representa uma decisão de admissão do gateway.
//
// Method/Path são strings genéricas; cuidado com cardinalidade ao persistir
// Key/Path (ex.: Redis/Prometheus), o Path aqui é o path bruto do cliente.
type StatsEvent struct {
	Key     Key
	Allowed bool
	Reason  string

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// O gateway trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
