package gateway

import (
	"net/http"
	"time"

	"proxy-gateway/gateway/application"
	"proxy-gateway/gateway/domain"
	"proxy-gateway/middleware/metrics"
	"proxy-gateway/middleware/ratelimit"
	rldomain "proxy-gateway/middleware/ratelimit/domain"
	rlinfra "proxy-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	RegisterPath = "/proxy"
	StatsPath    = "/_gateway/stats"
)

// Registrar cria rotas dinâmicas (gateway/infra.Registry).
type Registrar interface {
	Register(target, ttl string) (domain.Route, error)
	Len() int
}

// StatsSource são as estatísticas de admissão em memória.
type StatsSource interface {
	Total() rlinfra.Counters
	ByReason() map[string]int64
	ByRoute() map[string]rlinfra.Counters
}

type Config struct {
	Engine *application.Engine
	// Routes nil desliga GET /proxy (o path passa a ir para o upstream padrão).
	Routes Registrar
	// Decorate adiciona os headers CORS às respostas geradas aqui.
	Decorate func(http.Header)
	Logger   *zap.Logger

	Collector   *metrics.Collector
	MetricsPath string
	Stats       StatsSource
	// Identities informa quantas identidades o rate limiter acompanha.
	Identities func() int

	// RegisterLimiter limita a criação de rotas por cliente (token bucket).
	RegisterLimiter     rldomain.LimiterStore
	AddRateLimitHeaders bool

	KeyHeader      string
	ClientIPHeader string
	TrustXFF       bool
	PublicBaseURL  string
	AllowedMethods []string

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration
}

// Server monta o roteador do gateway.
type Server struct {
	router *chi.Mux
	cfg    Config
	log    *zap.Logger
	keyFn  ratelimit.KeyFunc
	// slots é nil sem limite de concorrência.
	slots *rlinfra.ChanPool
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Decorate == nil {
		cfg.Decorate = func(h http.Header) { h.Set("Access-Control-Allow-Origin", "*") }
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		log:    cfg.Logger,
		keyFn:  ratelimit.DefaultKeyFunc(cfg.KeyHeader, cfg.ClientIPHeader, cfg.TrustXFF),
	}

	s.router.Use(RequestID)
	s.router.Use(s.decorated)
	s.router.Use(Recovery(s.log, cfg.Decorate))
	if cfg.Collector != nil {
		s.router.Use(metrics.Middleware(cfg.Collector))
	}
	if cfg.ConcurrencyMax > 0 {
		s.slots = rlinfra.NewChanPool(cfg.ConcurrencyMax)
		s.router.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Pool:           s.slots,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.ConcurrencyTimeout,
			RetryAfter:     time.Second,
			OnReject:       s.onConcurrencyReject,
		}))
	}
	s.router.Use(CORS(cfg.Decorate))
	s.router.Use(MethodGate(cfg.AllowedMethods, cfg.Decorate))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	proxy := http.HandlerFunc(s.handleProxy)

	if s.cfg.Routes != nil {
		register := http.Handler(http.HandlerFunc(s.handleRegister))
		if s.cfg.RegisterLimiter != nil {
			register = ratelimit.Middleware(ratelimit.Options{
				Store:               s.cfg.RegisterLimiter,
				KeyFn:               s.keyFn,
				RejectStatus:        http.StatusTooManyRequests,
				AddRateLimitHeaders: s.cfg.AddRateLimitHeaders,
			})(register)
		}
		s.router.Method(http.MethodGet, RegisterPath, register)
	}
	s.router.Get(StatsPath, s.handleStats)
	if s.cfg.Collector != nil && s.cfg.MetricsPath != "" {
		s.router.Method(http.MethodGet, s.cfg.MetricsPath, metrics.Handler())
	}

	s.router.Handle("/*", proxy)
	s.router.NotFound(proxy)
	s.router.MethodNotAllowed(proxy)
}

// Handler expõe o roteador (servidor e testes).
func (s *Server) Handler() http.Handler { return s.router }

// decorated põe os headers CORS antes de qualquer middleware poder responder
// (ex.: 503 do limite de concorrência, 429 do registro).
func (s *Server) decorated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.cfg.Decorate(w.Header())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onConcurrencyReject(r *http.Request, waited time.Duration) {
	if s.cfg.Collector != nil {
		s.cfg.Collector.Admission("concurrency")
	}
	s.log.Warn("concurrency limit reached",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("in_flight", s.slots.InUse()),
		zap.Duration("waited", waited))
}
