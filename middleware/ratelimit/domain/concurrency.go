package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNoSlot indica que nenhuma vaga de requisição em voo abriu dentro do prazo.
var ErrNoSlot = errors.New("no in-flight slot available")

// SlotPool limita quantas requisições o gateway atende ao mesmo tempo.
type SlotPool interface {
	// Acquire devolve um release idempotente ou o erro do ctx.
	Acquire(ctx context.Context) (release func(), err error)
	InUse() int
	Cap() int
}

// Slot é uma vaga obtida; Waited mede a espera na fila.
type Slot struct {
	Release func()
	Waited  time.Duration
}
