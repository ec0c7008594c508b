// Package domain define contratos e tipos de domínio para admissão de clientes:
// rate limit por identidade, limite de concorrência e estatísticas de decisão.
//
// Não depende de net/http nem de implementações concretas; o gateway e os
// middlewares traduzem decisões daqui para status/headers.
package domain
