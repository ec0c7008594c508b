// Package application orquestra o encaminhamento: admissão, resolução do
// alvo, envio ao upstream com failover e montagem da resposta.
//
// Não conhece chi nem o servidor HTTP; recebe domain.Request e devolve
// domain.Response. As dependências concretas (registry, cliente HTTP,
// rewriter) entram pelas interfaces de ports.go.
package application
