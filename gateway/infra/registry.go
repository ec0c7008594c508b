package infra

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"proxy-gateway/gateway/domain"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const routeShards = 32

// maxUIDAttempts limita as tentativas de gerar um UID livre.
const maxUIDAttempts = 8

var errUIDSpaceExhausted = errors.New("registry: could not allocate a unique uid")

// Registry guarda as rotas dinâmicas UID -> alvo em memória, particionadas em
// shards. Registro (checagem de unicidade + inserção) e lookup de um mesmo
// UID acontecem sob o lock do seu shard.
//
// Expiração é preguiçosa: uma rota vencida não resolve e é removida no
// lookup. Sweep remove todas as vencidas; é chamado quando o tamanho cruza o
// high-water mark, um shard por vez a cada Register e pelo janitor.
// Rota removida por vencimento deixa uma lápide por graveTTL: o UID continua
// respondendo ErrRouteExpired em vez de cair no alvo padrão.
type Registry struct {
	shards [routeShards]routeShard

	defaultTTL time.Duration
	maxTTL     time.Duration
	graveTTL   time.Duration
	highWater  int64
	now        func() time.Time
	newUID     func() string
	log        *zap.Logger

	size      atomic.Int64
	tombs     atomic.Int64
	nextSweep atomic.Int64
	sweeping  atomic.Bool
	cursor    atomic.Uint32
}

type routeShard struct {
	mu     sync.Mutex
	routes map[string]domain.Route
	// gone: UID vencido -> fim da lápide.
	gone map[string]time.Time
}

type RegistryOption func(*Registry)

func WithDefaultTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.defaultTTL = d }
}

// WithMaxTTL limita TTLs finitos e recusa "never". 0 desliga o limite.
func WithMaxTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.maxTTL = d }
}

// WithTombstoneTTL define por quanto tempo após o vencimento um UID ainda
// responde ErrRouteExpired. 0 desliga as lápides.
func WithTombstoneTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.graveTTL = d }
}

func WithRouteHighWater(n int) RegistryOption {
	return func(r *Registry) { r.highWater = int64(n) }
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func WithUIDGenerator(gen func() string) RegistryOption {
	return func(r *Registry) { r.newUID = gen }
}

func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		defaultTTL: time.Hour,
		graveTTL:   time.Hour,
		highWater:  10000,
		now:        time.Now,
		newUID:     NewUID,
		log:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i].routes = make(map[string]domain.Route)
		r.shards[i].gone = make(map[string]time.Time)
	}
	r.nextSweep.Store(r.highWater)
	return r
}

func (r *Registry) shard(uid string) *routeShard {
	return &r.shards[xxhash.Sum64String(uid)%routeShards]
}

// Len retorna quantas rotas estão armazenadas (inclui vencidas ainda não varridas).
func (r *Registry) Len() int { return int(r.size.Load()) }

// Tombstones retorna quantos UIDs vencidos ainda respondem ErrRouteExpired.
func (r *Registry) Tombstones() int { return int(r.tombs.Load()) }

// Register valida alvo e TTL e cria uma rota com UID inédito entre as rotas vivas.
func (r *Registry) Register(rawTarget, ttl string) (domain.Route, error) {
	target, err := domain.ParseTarget(rawTarget)
	if err != nil {
		return domain.Route{}, err
	}
	d, never, err := ParseTTL(ttl, r.defaultTTL)
	if err != nil {
		return domain.Route{}, err
	}
	if r.maxTTL > 0 {
		if never {
			return domain.Route{}, fmt.Errorf("%w: routes must expire within %s", domain.ErrInvalidDuration, r.maxTTL)
		}
		if d > r.maxTTL {
			d = r.maxTTL
		}
	}

	now := r.now()
	route := domain.Route{Target: target, CreatedAt: now}
	if !never {
		exp := now.Add(d)
		route.ExpiresAt = &exp
	}

	inserted := false
	for attempt := 0; attempt < maxUIDAttempts && !inserted; attempt++ {
		route.UID = r.newUID()
		inserted = r.insert(route, now)
	}
	if !inserted {
		return domain.Route{}, errUIDSpaceExhausted
	}

	if r.size.Load()+r.tombs.Load() > r.nextSweep.Load() {
		r.maybeSweep()
	} else {
		r.sweepShard(int(r.cursor.Add(1)%routeShards), now)
	}

	r.log.Debug("route registered",
		zap.String("uid", route.UID),
		zap.String("target", target.String()),
		zap.Timep("expires_at", route.ExpiresAt))
	return route, nil
}

// insert grava a rota se o UID não pertence a uma rota viva.
func (r *Registry) insert(route domain.Route, now time.Time) bool {
	sh := r.shard(route.UID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	existing, ok := sh.routes[route.UID]
	if ok && !existing.Expired(now) {
		return false
	}
	sh.routes[route.UID] = route
	if !ok {
		r.size.Add(1)
	}
	if _, buried := sh.gone[route.UID]; buried {
		delete(sh.gone, route.UID)
		r.tombs.Add(-1)
	}
	return true
}

// bury troca a rota vencida por uma lápide. Chamado com o lock do shard.
func (r *Registry) bury(sh *routeShard, uid string, route domain.Route, now time.Time) {
	delete(sh.routes, uid)
	r.size.Add(-1)
	if r.graveTTL <= 0 || route.ExpiresAt == nil {
		return
	}
	until := route.ExpiresAt.Add(r.graveTTL)
	if !until.After(now) {
		return
	}
	if _, ok := sh.gone[uid]; !ok {
		r.tombs.Add(1)
	}
	sh.gone[uid] = until
}

// Resolve devolve a rota viva do UID. Uma rota vencida é removida e
// reportada como ErrRouteExpired; depois disso o UID é desconhecido.
func (r *Registry) Resolve(uid string) (domain.Route, error) {
	now := r.now()
	sh := r.shard(uid)

	sh.mu.Lock()
	route, ok := sh.routes[uid]
	if ok && route.Expired(now) {
		r.bury(sh, uid, route, now)
		sh.mu.Unlock()
		return domain.Route{}, fmt.Errorf("%w: %s", domain.ErrRouteExpired, uid)
	}
	if !ok {
		until, buried := sh.gone[uid]
		if buried && !now.Before(until) {
			delete(sh.gone, uid)
			r.tombs.Add(-1)
			buried = false
		}
		sh.mu.Unlock()
		if buried {
			return domain.Route{}, fmt.Errorf("%w: %s", domain.ErrRouteExpired, uid)
		}
		return domain.Route{}, domain.ErrRouteNotFound
	}
	sh.mu.Unlock()
	return route, nil
}

// Evict remove a rota imediatamente.
func (r *Registry) Evict(uid string) bool {
	sh := r.shard(uid)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.routes[uid]; !ok {
		return false
	}
	delete(sh.routes, uid)
	r.size.Add(-1)
	return true
}

// Sweep remove todas as rotas vencidas (e lápides passadas) e retorna
// quantas rotas removeu.
func (r *Registry) Sweep() int {
	now := r.now()
	removed := 0
	for i := range r.shards {
		removed += r.sweepShard(i, now)
	}
	return removed
}

func (r *Registry) sweepShard(i int, now time.Time) int {
	sh := &r.shards[i]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	removed := 0
	for uid, route := range sh.routes {
		if route.Expired(now) {
			r.bury(sh, uid, route, now)
			removed++
		}
	}
	for uid, until := range sh.gone {
		if !now.Before(until) {
			delete(sh.gone, uid)
			r.tombs.Add(-1)
		}
	}
	return removed
}

func (r *Registry) maybeSweep() {
	if !r.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer r.sweeping.Store(false)

	removed := r.Sweep()
	next := (r.size.Load() + r.tombs.Load()) * 2
	if next < r.highWater {
		next = r.highWater
	}
	r.nextSweep.Store(next)
	r.log.Info("route registry swept",
		zap.Int("removed", removed),
		zap.Int64("size", r.size.Load()),
		zap.Int64("tombstones", r.tombs.Load()))
}
