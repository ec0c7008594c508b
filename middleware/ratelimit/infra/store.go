package infra

import (
	"sync"
	"time"

	"proxy-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Store é um token bucket por chave (x/time/rate) com limpeza de chaves ociosas.
//
// No gateway ele protege o endpoint de criação de rotas, onde rajadas curtas
// são aceitáveis mas uma taxa sustentada não é.
type Store struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	maxKeys int
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

// WithMaxKeys limita o número de buckets; ao atingir o limite os ociosos são
// removidos antes de criar um novo.
func WithMaxKeys(n int) StoreOption {
	return func(s *Store) { s.maxKeys = n }
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]*storeEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		maxKeys: 10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RPS() float64 { return float64(s.rps) }

func (s *Store) Burst() int { return s.burst }

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get implementa domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return s.GetString(string(key))
}

func (s *Store) GetString(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	if s.maxKeys > 0 && len(s.entries) >= s.maxKeys {
		s.cleanupLocked(now)
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(time.Now())
}

func (s *Store) cleanupLocked(now time.Time) {
	cutoff := now.Add(-s.idleTTL)
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext, every time.Duration) {
	RunJanitor(ctx, every, s.Cleanup)
}
