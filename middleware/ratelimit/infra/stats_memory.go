package infra

import (
	"context"
	"sync"

	"proxy-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore guarda as estatísticas de admissão em memória.
// Sem expiração: byKey só é preenchido com WithTrackKeys(true).
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byRoute  map[string]Counters
	byKey    map[string]Counters
	byReason map[string]int64

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:  make(map[string]Counters),
		byKey:    make(map[string]Counters),
		byReason: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)

	c := s.byRoute[route]
	c.add(ev.Allowed)
	s.byRoute[route] = c

	if ev.Reason != "" {
		s.byReason[ev.Reason]++
	}

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(ev.Allowed)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.byKey)
}

func (s *MemoryStatsStore) ByReason() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.byReason)
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
