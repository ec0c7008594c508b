package infra

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"proxy-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// Granularidades aceitas para a série temporal.
var statsBucketLayouts = map[string]string{
	"minute": "200601021504",
	"hour":   "2006010215",
	"none":   "",
}

// ValidStatsBucket informa se bucket é uma granularidade conhecida.
func ValidStatsBucket(bucket string) bool {
	_, ok := statsBucketLayouts[strings.ToLower(strings.TrimSpace(bucket))]
	return ok
}

// RedisStatsStore grava as decisões de admissão em hashes do Redis:
//
//	<prefix>:total              allowed/denied cumulativos
//	<prefix>:<bucket>:<stamp>   série por minuto ou hora (expira em ttl)
//	<prefix>:reason             contagem por motivo de decisão
//	<prefix>:route              "<METHOD> <path>:<allowed|denied>"
//	<prefix>:key:<key>          por identidade (opcional, expira em ttl)
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl vale só para as chaves de série e por identidade.
	ttl time.Duration

	bucket string
	layout string

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket aceita "minute", "hour" ou "none"; valores desconhecidos são ignorados.
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		b := strings.ToLower(strings.TrimSpace(bucket))
		if layout, ok := statsBucketLayouts[b]; ok {
			s.bucket, s.layout = b, layout
		}
	}
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "gateway:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
		layout: statsBucketLayouts["minute"],
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := outcomeField(ev.Allowed)

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.key("total"), field, 1)

		if s.layout != "" {
			series := s.key(s.bucket, at.UTC().Format(s.layout))
			pipe.HIncrBy(ctx, series, field, 1)
			s.expire(ctx, pipe, series)
		}
		if ev.Reason != "" {
			pipe.HIncrBy(ctx, s.key("reason"), ev.Reason, 1)
		}
		if route := routeLabel(ev.Method, ev.Path); route != "" {
			pipe.HIncrBy(ctx, s.key("route"), route+":"+field, 1)
		}
		if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
			perKey := s.key("key", k)
			pipe.HIncrBy(ctx, perKey, field, 1)
			s.expire(ctx, pipe, perKey)
		}
		return nil
	})
	return err
}

// StatsSnapshot é o agregado persistido, lido de volta pelo CLI.
type StatsSnapshot struct {
	Total    Counters
	ByReason map[string]int64
	// Series traz os últimos buckets em ordem cronológica.
	Series []SeriesPoint
}

type SeriesPoint struct {
	Stamp string
	Counters
}

// Snapshot lê totais, motivos e até `points` buckets da série terminando em now.
func (s *RedisStatsStore) Snapshot(ctx context.Context, now time.Time, points int) (StatsSnapshot, error) {
	out := StatsSnapshot{ByReason: map[string]int64{}}
	if s == nil || s.rdb == nil {
		return out, errors.New("redis stats store not configured")
	}

	total, err := s.rdb.HGetAll(ctx, s.key("total")).Result()
	if err != nil {
		return out, fmt.Errorf("read totals: %w", err)
	}
	out.Total = parseCounters(total)

	reasons, err := s.rdb.HGetAll(ctx, s.key("reason")).Result()
	if err != nil {
		return out, fmt.Errorf("read reasons: %w", err)
	}
	for reason, raw := range reasons {
		n, _ := strconv.ParseInt(raw, 10, 64)
		out.ByReason[reason] = n
	}

	if s.layout == "" || points <= 0 {
		return out, nil
	}
	step := time.Minute
	if s.bucket == "hour" {
		step = time.Hour
	}
	cmds := make([]*redis.MapStringStringCmd, points)
	stamps := make([]string, points)
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := 0; i < points; i++ {
			stamps[i] = now.Add(-time.Duration(points-1-i) * step).UTC().Format(s.layout)
			cmds[i] = pipe.HGetAll(ctx, s.key(s.bucket, stamps[i]))
		}
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("read series: %w", err)
	}
	for i, cmd := range cmds {
		out.Series = append(out.Series, SeriesPoint{Stamp: stamps[i], Counters: parseCounters(cmd.Val())})
	}
	return out, nil
}

// Reasons devolve os motivos ordenados por contagem decrescente.
func (s StatsSnapshot) Reasons() []string {
	keys := make([]string, 0, len(s.ByReason))
	for k := range s.ByReason {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if s.ByReason[keys[i]] != s.ByReason[keys[j]] {
			return s.ByReason[keys[i]] > s.ByReason[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *RedisStatsStore) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func outcomeField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func routeLabel(method, path string) string {
	return strings.TrimSpace(strings.TrimSpace(method) + " " + strings.TrimSpace(path))
}

func parseCounters(h map[string]string) Counters {
	var c Counters
	c.Allowed, _ = strconv.ParseInt(h["allowed"], 10, 64)
	c.Denied, _ = strconv.ParseInt(h["denied"], 10, 64)
	return c
}
