package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"proxy-gateway/gateway/domain"
	rlinfra "proxy-gateway/middleware/ratelimit/infra"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type config struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	UpstreamURL     string        `mapstructure:"upstream_url"`
	FallbackURL     string        `mapstructure:"fallback_url"`
	RetryStatuses   []int         `mapstructure:"retry_statuses"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	AllowedMethods  []string      `mapstructure:"allowed_methods"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`

	RewriteOrigin    bool   `mapstructure:"rewrite_origin"`
	CORSAllowMethods string `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders string `mapstructure:"cors_allow_headers"`

	RateEnabled         bool          `mapstructure:"rate_enabled"`
	RateLimit           int           `mapstructure:"rate_limit"`
	RateWindow          time.Duration `mapstructure:"rate_window"`
	RateHighWater       int           `mapstructure:"rate_high_water"`
	RateKeyHeader       string        `mapstructure:"rate_key_header"`
	TrustXFF            bool          `mapstructure:"trust_xff"`
	ClientIPHeader      string        `mapstructure:"client_ip_header"`
	AddRateLimitHeaders bool          `mapstructure:"add_ratelimit_headers"`

	ConcurrencyMax     int           `mapstructure:"concurrency_max"`
	ConcurrencyTimeout time.Duration `mapstructure:"concurrency_timeout"`

	RoutesEnabled     bool          `mapstructure:"routes_enabled"`
	RouteDefaultTTL   time.Duration `mapstructure:"route_default_ttl"`
	RouteMaxTTL       time.Duration `mapstructure:"route_max_ttl"`
	RouteTombstoneTTL time.Duration `mapstructure:"route_tombstone_ttl"`
	RouteHighWater    int           `mapstructure:"route_high_water"`
	SweepEvery        time.Duration `mapstructure:"sweep_every"`
	RegisterRPS       float64       `mapstructure:"register_rps"`
	RegisterBurst     int           `mapstructure:"register_burst"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	RateStatsEnabled   bool          `mapstructure:"rate_stats_enabled"`
	RateStatsPrefix    string        `mapstructure:"rate_stats_prefix"`
	RateStatsTTL       time.Duration `mapstructure:"rate_stats_ttl"`
	RateStatsBucket    string        `mapstructure:"rate_stats_bucket"`
	RateStatsTrackKeys bool          `mapstructure:"rate_stats_track_keys"`

	VerifyURL       string        `mapstructure:"verify_url"`
	VerifyCookie    string        `mapstructure:"verify_cookie"`
	VerifyTimeout   time.Duration `mapstructure:"verify_timeout"`
	VerifyCacheTTL  time.Duration `mapstructure:"verify_cache_ttl"`
	BlockUserAgents []string      `mapstructure:"block_user_agents"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsPath    string `mapstructure:"metrics_path"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"listen_addr":      ":8080",
	"upstream_url":     "",
	"fallback_url":     "",
	"retry_statuses":   []int{502, 503},
	"upstream_timeout": 30 * time.Second,
	"max_body_bytes":   int64(10 << 20),
	"allowed_methods":  []string{},
	"public_base_url":  "",

	"rewrite_origin":     false,
	"cors_allow_methods": "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	"cors_allow_headers": "*",

	"rate_enabled":          true,
	"rate_limit":            100,
	"rate_window":           time.Minute,
	"rate_high_water":       10000,
	"rate_key_header":       "",
	"trust_xff":             false,
	"client_ip_header":      "",
	"add_ratelimit_headers": false,

	"concurrency_max":     100,
	"concurrency_timeout": time.Duration(0),

	"routes_enabled":      true,
	"route_default_ttl":   time.Hour,
	"route_max_ttl":       time.Duration(0),
	"route_tombstone_ttl": time.Hour,
	"route_high_water":    10000,
	"sweep_every":         time.Minute,
	"register_rps":        1.0,
	// 0 = automático: 20, ou 1 quando register_rps < 1
	"register_burst": 0,

	"redis_addr":     "",
	"redis_password": "",
	"redis_db":       0,

	"rate_stats_enabled":    false,
	"rate_stats_prefix":     "gateway:stats",
	"rate_stats_ttl":        24 * time.Hour,
	"rate_stats_bucket":     "minute",
	"rate_stats_track_keys": false,

	"verify_url":        "",
	"verify_cookie":     "",
	"verify_timeout":    2 * time.Second,
	"verify_cache_ttl":  10 * time.Minute,
	"block_user_agents": []string{},

	"metrics_enabled": true,
	"metrics_path":    "/metrics",
	"log_level":       "info",
	"log_format":      "json",
}

// newViper registra defaults e liga cada chave à variável de ambiente de
// mesmo nome em maiúsculas (listen_addr <-> LISTEN_ADDR).
func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()
	return v
}

// loadConfig lê o arquivo opcional, decodifica e valida.
func loadConfig(v *viper.Viper, file string) (config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) normalize() {
	c.AllowedMethods = trimAll(c.AllowedMethods)
	c.BlockUserAgents = trimAll(c.BlockUserAgents)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	// IMPORTANTE: o "burst" permite uma rajada inicial de registros.
	// Com RPS muito baixo (ex: 0.02), um burst de 20 daria a impressão de que
	// o limite não funciona, porque os primeiros ~20 passam.
	if c.RegisterBurst == 0 {
		c.RegisterBurst = 20
		if c.RegisterRPS > 0 && c.RegisterRPS < 1 {
			c.RegisterBurst = 1
		}
	}
}

func (c config) validate() error {
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if _, err := domain.ParseTarget(c.UpstreamURL); err != nil {
		return fmt.Errorf("UPSTREAM_URL: %w", err)
	}
	if c.FallbackURL != "" {
		if _, err := domain.ParseTarget(c.FallbackURL); err != nil {
			return fmt.Errorf("FALLBACK_URL: %w", err)
		}
	}
	if c.PublicBaseURL != "" {
		if _, err := domain.ParseTarget(c.PublicBaseURL); err != nil {
			return fmt.Errorf("PUBLIC_BASE_URL: %w", err)
		}
	}
	for _, s := range c.RetryStatuses {
		if s < 100 || s > 599 {
			return fmt.Errorf("RETRY_STATUSES: %d is not an HTTP status", s)
		}
	}
	if c.UpstreamTimeout < 0 {
		return errors.New("UPSTREAM_TIMEOUT must be >= 0")
	}
	if c.MaxBodyBytes < 0 {
		return errors.New("MAX_BODY_BYTES must be >= 0")
	}
	if c.RateEnabled {
		if c.RateLimit <= 0 {
			return errors.New("RATE_LIMIT must be > 0")
		}
		if c.RateWindow <= 0 {
			return errors.New("RATE_WINDOW must be > 0")
		}
	}
	if c.RegisterRPS <= 0 {
		return errors.New("REGISTER_RPS must be > 0")
	}
	if c.RegisterBurst < 0 {
		return errors.New("REGISTER_BURST must be >= 0")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.RouteDefaultTTL <= 0 {
		return errors.New("ROUTE_DEFAULT_TTL must be > 0")
	}
	if c.RouteMaxTTL < 0 {
		return errors.New("ROUTE_MAX_TTL must be >= 0")
	}
	if c.RouteTombstoneTTL < 0 {
		return errors.New("ROUTE_TOMBSTONE_TTL must be >= 0")
	}
	if c.RateStatsEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if !rlinfra.ValidStatsBucket(c.RateStatsBucket) {
		return errors.New("RATE_STATS_BUCKET must be minute, hour or none")
	}
	if c.VerifyURL != "" {
		u, err := url.Parse(c.VerifyURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("VERIFY_URL must be an absolute http(s) url")
		}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return errors.New("LOG_FORMAT must be json or console")
	}
	if c.MetricsEnabled && !strings.HasPrefix(c.MetricsPath, "/") {
		return errors.New("METRICS_PATH must start with /")
	}
	return nil
}

func trimAll(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
