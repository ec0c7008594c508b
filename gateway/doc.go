// Package gateway é o adaptador HTTP do proxy: roteamento chi, criação de
// rotas dinâmicas em GET /proxy, preflight CORS, restrição de métodos e a
// tradução entre net/http e os descritores de gateway/domain.
//
// Todo o resto (admissão, resolução, failover) acontece em gateway/application.
package gateway
