package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"proxy-gateway/gateway/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// VerdictCache guarda o resultado da verificação externa por identidade.
type VerdictCache interface {
	Get(ctx context.Context, identity string) (allow, found bool, err error)
	Set(ctx context.Context, identity string, allow bool, ttl time.Duration) error
}

// Verifier consulta um serviço externo antes de admitir clientes sem o
// cookie de verificação. Falhas de rede liberam a requisição.
type Verifier struct {
	url      string
	cookie   string
	cacheTTL time.Duration
	client   *http.Client
	cache    VerdictCache
	log      *zap.Logger
}

type verifyRequest struct {
	Identity  string `json:"identity"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	UserAgent string `json:"user_agent"`
}

type verifyResponse struct {
	Allow  *bool  `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// NewVerifier cria o verificador. cache nil desliga o cache de veredictos.
func NewVerifier(url, cookie string, timeout, cacheTTL time.Duration, cache VerdictCache, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Verifier{
		url:      url,
		cookie:   cookie,
		cacheTTL: cacheTTL,
		client:   &http.Client{Timeout: timeout},
		cache:    cache,
		log:      logger,
	}
}

func (v *Verifier) Name() string { return "verify" }

// Check devolve nil para admitir ou um erro com domain.ErrForbidden.
func (v *Verifier) Check(ctx context.Context, req *domain.Request) error {
	if v.hasCookie(req.Header) {
		return nil
	}

	if v.cache != nil {
		allow, found, err := v.cache.Get(ctx, req.Identity)
		if err != nil {
			v.log.Warn("verdict cache read failed", zap.Error(err))
		} else if found {
			return verdict(allow)
		}
	}

	allow, ttl, err := v.ask(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v.log.Warn("verification unavailable, admitting",
			zap.String("identity", req.Identity), zap.Error(err))
		return nil
	}

	if v.cache != nil && ttl > 0 {
		if err := v.cache.Set(ctx, req.Identity, allow, ttl); err != nil {
			v.log.Warn("verdict cache write failed", zap.Error(err))
		}
	}
	return verdict(allow)
}

func verdict(allow bool) error {
	if allow {
		return nil
	}
	return fmt.Errorf("%w: verification failed", domain.ErrForbidden)
}

func (v *Verifier) hasCookie(h http.Header) bool {
	if v.cookie == "" {
		return false
	}
	c, err := (&http.Request{Header: h}).Cookie(v.cookie)
	return err == nil && c.Value != ""
}

// ask faz a chamada externa. 2xx sem corpo ou com allow=true admite; outro
// status 4xx nega; 5xx e erros de rede viram err.
func (v *Verifier) ask(ctx context.Context, req *domain.Request) (bool, time.Duration, error) {
	payload, err := json.Marshal(verifyRequest{
		Identity:  req.Identity,
		Method:    req.Method,
		Path:      req.Path,
		UserAgent: req.Header.Get("User-Agent"),
	})
	if err != nil {
		return false, 0, err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(payload))
	if err != nil {
		return false, 0, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(hreq)
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return false, 0, fmt.Errorf("verifier returned %d", resp.StatusCode)
	}
	ttl := cacheTTL(resp.Header, v.cacheTTL)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, ttl, nil
	}

	var body verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return false, 0, fmt.Errorf("decode verifier response: %w", err)
	}
	if body.Allow == nil {
		return true, ttl, nil
	}
	return *body.Allow, ttl, nil
}

// cacheTTL respeita Cache-Control no-store/max-age da resposta do verificador.
func cacheTTL(h http.Header, def time.Duration) time.Duration {
	cc := strings.ToLower(h.Get("Cache-Control"))
	if cc == "" {
		return def
	}
	for _, directive := range strings.Split(cc, ",") {
		directive = strings.TrimSpace(directive)
		switch {
		case directive == "no-store", directive == "no-cache":
			return 0
		case strings.HasPrefix(directive, "max-age="):
			if sec, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil && sec >= 0 {
				return time.Duration(sec) * time.Second
			}
		}
	}
	return def
}

// RedisVerdictCache compartilha veredictos entre instâncias.
type RedisVerdictCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisVerdictCache(client redis.Cmdable, prefix string) *RedisVerdictCache {
	if prefix == "" {
		prefix = "gateway:verdict"
	}
	return &RedisVerdictCache{client: client, prefix: prefix}
}

func (c *RedisVerdictCache) key(identity string) string {
	return c.prefix + ":" + identity
}

func (c *RedisVerdictCache) Get(ctx context.Context, identity string) (bool, bool, error) {
	v, err := c.client.Get(ctx, c.key(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == "1", true, nil
}

func (c *RedisVerdictCache) Set(ctx context.Context, identity string, allow bool, ttl time.Duration) error {
	v := "0"
	if allow {
		v = "1"
	}
	return c.client.Set(ctx, c.key(identity), v, ttl).Err()
}

// MemoryVerdictCache é o cache local, limitado a maxEntries.
type MemoryVerdictCache struct {
	mu         sync.Mutex
	entries    map[string]cachedVerdict
	maxEntries int
	now        func() time.Time
}

type cachedVerdict struct {
	allow     bool
	expiresAt time.Time
}

func NewMemoryVerdictCache(maxEntries int) *MemoryVerdictCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryVerdictCache{
		entries:    make(map[string]cachedVerdict),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryVerdictCache) Get(_ context.Context, identity string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[identity]
	if !ok {
		return false, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, identity)
		return false, false, nil
	}
	return e.allow, true, nil
}

func (c *MemoryVerdictCache) Set(_ context.Context, identity string, allow bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[identity]; !exists && len(c.entries) >= c.maxEntries {
		for k, e := range c.entries {
			if !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxEntries {
			clear(c.entries)
		}
	}
	c.entries[identity] = cachedVerdict{allow: allow, expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemoryVerdictCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
