package infra

import "time"

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}

// RunJanitor chama fn a cada `every` numa goroutine até ctx encerrar.
// every <= 0 desliga o janitor.
func RunJanitor(ctx DoneContext, every time.Duration, fn func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn()
			}
		}
	}()
}
