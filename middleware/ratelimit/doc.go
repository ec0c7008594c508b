// Package ratelimit fornece adapters HTTP (net/http) para admissão de clientes:
// rate limit por identidade e limite de concorrência.
//
// Camadas:
//
//   - domain: contratos e tipos (sem net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout)
//   - infra: janela fixa, token bucket, semáforo, estatísticas em memória/Redis
//   - ratelimit (este pacote): middlewares HTTP, extração de identidade e tradução para status/headers
//
// O gateway usa DefaultKeyFunc/WriteHeaders diretamente no motor de encaminhamento
// (janela fixa) e Middleware no endpoint de criação de rotas (token bucket).
package ratelimit
