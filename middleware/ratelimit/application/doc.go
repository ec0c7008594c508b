// Package application contém os casos de uso de admissão: decisão de rate limit
// por identidade e aquisição de vagas de concorrência.
//
// Depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(key) retorna uma Decision (allow/deny, retry-after e cota restante).
package application
