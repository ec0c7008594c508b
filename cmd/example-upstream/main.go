package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"proxy-gateway/middleware/ratelimit"
	"proxy-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

// Upstream de teste: ecoa a requisição recebida em JSON. Com FAIL_STATUS
// (ex.: 503) responde sempre esse status, útil para ver o failover do
// gateway. Também mostra o middleware de rate limit usado sem o proxy.
func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	name := getenvDefault("UPSTREAM_NAME", "example")
	failStatus, _ := strconv.Atoi(os.Getenv("FAIL_STATUS"))

	store := infra.NewWindowStore(60, time.Minute)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.String("x_forwarded_for", r.Header.Get("X-Forwarded-For")),
			zap.String("x_forwarded_host", r.Header.Get("X-Forwarded-Host")))

		if failStatus >= 400 {
			http.Error(w, http.StatusText(failStatus), failStatus)
			return
		}

		body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"upstream": name,
			"method":   r.Method,
			"uri":      r.RequestURI,
			"headers":  r.Header,
			"body":     string(body),
		})
	})

	h := http.Handler(mux)
	h = ratelimit.Middleware(ratelimit.Options{
		Store:               store,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)

	addr := getenvDefault("LISTEN_ADDR", ":8081")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example upstream listening", zap.String("addr", addr), zap.String("name", name), zap.Int("fail_status", failStatus))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
