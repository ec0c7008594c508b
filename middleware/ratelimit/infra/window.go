package infra

import (
	"sync"
	"sync/atomic"
	"time"

	"proxy-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

const windowShards = 64

// WindowStore é um contador de janela fixa por chave (RateRecord por identidade).
//
// A cada requisição: se a janela da chave já passou, zera contador e início;
// depois incrementa e nega quando o contador passaria de limit.
// Aproximado: na borda entre duas janelas podem passar até ~2x limit.
//
// A memória é limitada por varredura: quando o número de chaves cruza o
// high-water mark, chaves com janela vencida são removidas. Sweep também pode
// ser chamado diretamente ou por um janitor.
type WindowStore struct {
	limit     int
	window    time.Duration
	highWater int64
	now       func() time.Time

	shards [windowShards]windowShard

	size      atomic.Int64
	nextSweep atomic.Int64
	sweeping  atomic.Bool
}

type windowShard struct {
	mu      sync.Mutex
	records map[string]*rateRecord
}

type rateRecord struct {
	windowStart time.Time
	count       int
}

// WindowResult é o estado da chave logo após uma admissão.
type WindowResult struct {
	Allowed     bool
	Count       int
	WindowStart time.Time
}

type WindowOption func(*WindowStore)

// WithHighWater define a quantidade de chaves que dispara a varredura oportunista.
func WithHighWater(n int) WindowOption {
	return func(s *WindowStore) { s.highWater = int64(n) }
}

// WithClock substitui time.Now (testes).
func WithClock(now func() time.Time) WindowOption {
	return func(s *WindowStore) { s.now = now }
}

func NewWindowStore(limit int, window time.Duration, opts ...WindowOption) *WindowStore {
	s := &WindowStore{
		limit:     limit,
		window:    window,
		highWater: 10000,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*rateRecord)
	}
	s.nextSweep.Store(s.highWater)
	return s
}

func (s *WindowStore) Limit() int { return s.limit }

func (s *WindowStore) Window() time.Duration { return s.window }

// Len retorna quantas identidades estão sendo rastreadas.
func (s *WindowStore) Len() int { return int(s.size.Load()) }

func (s *WindowStore) shard(key string) *windowShard {
	return &s.shards[xxhash.Sum64String(key)%windowShards]
}

// Get implementa domain.LimiterStore. O limiter retornado é de uso único:
// cada Allow consome uma unidade da janela da chave.
func (s *WindowStore) Get(key domain.Key) domain.Limiter {
	return &windowLimiter{store: s, key: string(key)}
}

// Admit conta uma requisição para key. Incremento e comparação acontecem sob
// o lock do shard da chave.
func (s *WindowStore) Admit(key string) WindowResult {
	now := s.now()
	sh := s.shard(key)

	sh.mu.Lock()
	rec, ok := sh.records[key]
	if !ok {
		rec = &rateRecord{windowStart: now}
		sh.records[key] = rec
	} else if now.Sub(rec.windowStart) >= s.window {
		rec.count = 0
		rec.windowStart = now
	}
	allowed := rec.count < s.limit
	if allowed {
		rec.count++
	}
	res := WindowResult{Allowed: allowed, Count: rec.count, WindowStart: rec.windowStart}
	if !allowed {
		// count fica preso em limit; o valor "pós-incremento" é limit+1
		res.Count = rec.count + 1
	}
	sh.mu.Unlock()

	if !ok && s.size.Add(1) > s.nextSweep.Load() {
		s.maybeSweep()
	}
	return res
}

func (s *WindowStore) maybeSweep() {
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer s.sweeping.Store(false)

	s.Sweep()
	// evita varrer a cada inserção quando todas as chaves estão ativas
	next := s.size.Load() * 2
	if next < s.highWater {
		next = s.highWater
	}
	s.nextSweep.Store(next)
}

// Sweep remove as chaves cuja janela já terminou e retorna quantas removeu.
func (s *WindowStore) Sweep() int {
	now := s.now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, rec := range sh.records {
			if now.Sub(rec.windowStart) >= s.window {
				delete(sh.records, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	s.size.Add(int64(-removed))
	return removed
}

// StartJanitor varre periodicamente. Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx DoneContext, every time.Duration) {
	RunJanitor(ctx, every, func() { s.Sweep() })
}

type windowLimiter struct {
	store *WindowStore
	key   string
	res   WindowResult
}

func (l *windowLimiter) Allow() bool {
	l.res = l.store.Admit(l.key)
	return l.res.Allowed
}

func (l *windowLimiter) Limit() int { return l.store.limit }

func (l *windowLimiter) Remaining() int {
	if r := l.store.limit - l.res.Count; r > 0 {
		return r
	}
	return 0
}

func (l *windowLimiter) ResetAt() time.Time {
	if l.res.WindowStart.IsZero() {
		return time.Time{}
	}
	return l.res.WindowStart.Add(l.store.window)
}
