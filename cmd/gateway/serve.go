package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"proxy-gateway/gateway"
	"proxy-gateway/gateway/application"
	"proxy-gateway/gateway/domain"
	"proxy-gateway/gateway/infra"
	"proxy-gateway/middleware/metrics"
	rlapp "proxy-gateway/middleware/ratelimit/application"
	rldomain "proxy-gateway/middleware/ratelimit/domain"
	rlinfra "proxy-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// components reúne o que serve precisa para montar o servidor; separado para
// os testes montarem o mesmo grafo sem abrir porta.
type components struct {
	server    *gateway.Server
	registry  *infra.Registry
	window    *rlinfra.WindowStore
	register  *rlinfra.Store
	redis     *redis.Client
	collector *metrics.Collector
}

func serve(ctx context.Context, cfg config, logger *zap.Logger) error {
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if c.redis != nil {
		defer func() { _ = c.redis.Close() }()
	}
	c.startJanitors(ctx, cfg.SweepEvery)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           c.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout cobre também as duas tentativas ao upstream
		WriteTimeout: 2*cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:  90 * time.Second,
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("upstream", cfg.UpstreamURL),
		zap.String("fallback", cfg.FallbackURL))
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.RateEnabled),
		zap.Int("limit", cfg.RateLimit),
		zap.Duration("window", cfg.RateWindow),
		zap.String("key_header", cfg.RateKeyHeader),
		zap.Bool("trust_xff", cfg.TrustXFF))
	logger.Info("dynamic routes",
		zap.Bool("enabled", cfg.RoutesEnabled),
		zap.Duration("default_ttl", cfg.RouteDefaultTTL),
		zap.Duration("max_ttl", cfg.RouteMaxTTL),
		zap.Duration("tombstone_ttl", cfg.RouteTombstoneTTL),
		zap.Float64("register_rps", cfg.RegisterRPS),
		zap.Int("register_burst", cfg.RegisterBurst))
	logger.Info("rate stats",
		zap.Bool("redis", cfg.RateStatsEnabled),
		zap.String("bucket", cfg.RateStatsBucket),
		zap.Duration("ttl", cfg.RateStatsTTL))
	logger.Info("concurrency",
		zap.Int("max", cfg.ConcurrencyMax),
		zap.Duration("acquire_timeout", cfg.ConcurrencyTimeout))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}

func build(ctx context.Context, cfg config, logger *zap.Logger) (*components, error) {
	collector := metrics.NewCollector()
	c := &components{collector: collector}

	if cfg.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := c.redis.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			_ = c.redis.Close()
			return nil, fmt.Errorf("redis ping error: %w", err)
		}
	}

	memStats := rlinfra.NewMemoryStatsStore(rlinfra.WithTrackKeys(cfg.RateStatsTrackKeys))
	var stats rldomain.StatsStore = memStats
	if cfg.RateStatsEnabled {
		stats = rlinfra.MultiStatsStore{memStats, rlinfra.NewRedisStatsStore(
			c.redis,
			rlinfra.WithStatsPrefix(cfg.RateStatsPrefix),
			rlinfra.WithStatsTTL(cfg.RateStatsTTL),
			rlinfra.WithStatsBucket(cfg.RateStatsBucket),
			rlinfra.WithStatsTrackKeys(cfg.RateStatsTrackKeys),
		)}
	}

	admission := &application.Admission{
		Checks:   admissionChecks(cfg, c.redis, logger),
		Stats:    stats,
		Observer: collector,
		Log:      logger.Named("admission"),
		Label:    application.RouteLabel(infra.IsUID),
	}
	c.window = rlinfra.NewWindowStore(cfg.RateLimit, cfg.RateWindow, rlinfra.WithHighWater(cfg.RateHighWater))
	if cfg.RateEnabled {
		admission.Limiter = rlapp.Service{Store: c.window}
	}

	c.registry = infra.NewRegistry(logger.Named("registry"),
		infra.WithDefaultTTL(cfg.RouteDefaultTTL),
		infra.WithMaxTTL(cfg.RouteMaxTTL),
		infra.WithTombstoneTTL(cfg.RouteTombstoneTTL),
		infra.WithRouteHighWater(cfg.RouteHighWater))

	resolver := application.Resolver{
		Default: domain.MustTarget(cfg.UpstreamURL),
		Match:   infra.IsUID,
	}
	var routes gateway.Registrar
	if cfg.RoutesEnabled {
		resolver.Routes = c.registry
		routes = c.registry
	}

	var fallback *domain.Target
	if cfg.FallbackURL != "" {
		t := domain.MustTarget(cfg.FallbackURL)
		fallback = &t
	}

	rewriter := infra.Rewriter{
		RewriteOrigin:    cfg.RewriteOrigin,
		CORSAllowMethods: cfg.CORSAllowMethods,
		CORSAllowHeaders: cfg.CORSAllowHeaders,
		Log:              logger.Named("rewriter"),
	}

	engine := application.NewEngine(application.EngineConfig{
		Admission:        admission,
		Resolver:         resolver,
		Rewriter:         rewriter,
		Upstream:         infra.NewHTTPUpstream(cfg.UpstreamTimeout, nil),
		Fallback:         fallback,
		RetryStatuses:    cfg.RetryStatuses,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		RateLimitHeaders: cfg.AddRateLimitHeaders,
		Observer:         collector,
		Logger:           logger.Named("engine"),
	})

	c.register = rlinfra.NewStore(cfg.RegisterRPS, cfg.RegisterBurst, rlinfra.WithIdleTTL(15*time.Minute))

	metricsPath := ""
	if cfg.MetricsEnabled {
		metricsPath = cfg.MetricsPath
	}
	c.server = gateway.New(gateway.Config{
		Engine:              engine,
		Routes:              routes,
		Decorate:            rewriter.Decorate,
		Logger:              logger.Named("http"),
		Collector:           collector,
		MetricsPath:         metricsPath,
		Stats:               memStats,
		Identities:          c.window.Len,
		RegisterLimiter:     c.register,
		AddRateLimitHeaders: cfg.AddRateLimitHeaders,
		KeyHeader:           cfg.RateKeyHeader,
		ClientIPHeader:      cfg.ClientIPHeader,
		TrustXFF:            cfg.TrustXFF,
		PublicBaseURL:       cfg.PublicBaseURL,
		AllowedMethods:      cfg.AllowedMethods,
		ConcurrencyMax:      cfg.ConcurrencyMax,
		ConcurrencyTimeout:  cfg.ConcurrencyTimeout,
	})
	return c, nil
}

func admissionChecks(cfg config, rdb *redis.Client, logger *zap.Logger) []application.AdmissionCheck {
	var checks []application.AdmissionCheck
	if len(cfg.BlockUserAgents) > 0 {
		checks = append(checks, application.NewUserAgentCheck(cfg.BlockUserAgents))
	}
	if cfg.VerifyURL != "" {
		var cache infra.VerdictCache = infra.NewMemoryVerdictCache(cfg.RateHighWater)
		if rdb != nil {
			cache = infra.NewRedisVerdictCache(rdb, "")
		}
		checks = append(checks, infra.NewVerifier(
			cfg.VerifyURL, cfg.VerifyCookie, cfg.VerifyTimeout, cfg.VerifyCacheTTL, cache, logger.Named("verify")))
	}
	return checks
}

// startJanitors agenda as varreduras periódicas do registry, da janela de
// rate limit e dos buckets de registro.
func (c *components) startJanitors(ctx context.Context, every time.Duration) {
	collector := c.collector
	rlinfra.RunJanitor(ctx, every, func() {
		collector.Swept("routes", c.registry.Sweep())
		collector.SetLiveRoutes(c.registry.Len())
	})
	rlinfra.RunJanitor(ctx, every, func() {
		collector.Swept("rate", c.window.Sweep())
		collector.SetTrackedIdentities(c.window.Len())
	})
	c.register.StartJanitor(ctx, every)
}
