package domain

import "time"

// Route mapeia um UID gerado para um alvo escolhido por quem registrou.
// Imutável depois de criada.
type Route struct {
	UID       string
	Target    Target
	CreatedAt time.Time
	// ExpiresAt nil significa rota sem expiração.
	ExpiresAt *time.Time
}

// Expired é verdadeiro a partir do instante ExpiresAt (inclusive).
func (r Route) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Registration é o resultado de um registro de rota.
type Registration struct {
	UID       string
	ExpiresAt *time.Time
}
