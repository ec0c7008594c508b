package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Observação: a implementação pode ser token-bucket, janela fixa, etc.
// A camada de infra usa golang.org/x/time/rate (token bucket) e um contador
// de janela fixa próprio (WindowStore).
type Limiter interface {
	Allow() bool
}

// Quota é implementado por limiters que conhecem o estado da janela atual.
// Usado para preencher X-RateLimit-* e calcular Retry-After real.
type Quota interface {
	Limit() int
	Remaining() int
	ResetAt() time.Time
}

// LimiterStore obtém um limiter por chave (ex: IP, API key, usuário).
// A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	// Preenchidos apenas quando o limiter implementa Quota.
	Limit     int
	Remaining int
	ResetAt   time.Time
}
