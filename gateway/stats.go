package gateway

import (
	"net/http"
	"time"

	rlinfra "proxy-gateway/middleware/ratelimit/infra"
)

type statsResponse struct {
	UptimeSeconds int64                       `json:"uptime_seconds,omitempty"`
	LiveRoutes    *int                        `json:"live_routes,omitempty"`
	Identities    *int                        `json:"tracked_identities,omitempty"`
	InFlight      *int                        `json:"in_flight,omitempty"`
	MaxInFlight   int                         `json:"max_in_flight,omitempty"`
	Total         *rlinfra.Counters           `json:"total,omitempty"`
	ByReason      map[string]int64            `json:"by_reason,omitempty"`
	ByRoute       map[string]rlinfra.Counters `json:"by_route,omitempty"`
}

// handleStats expõe o estado em memória do gateway em JSON.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var out statsResponse
	if s.cfg.Collector != nil {
		out.UptimeSeconds = int64(s.cfg.Collector.Uptime() / time.Second)
	}
	if s.cfg.Routes != nil {
		n := s.cfg.Routes.Len()
		out.LiveRoutes = &n
	}
	if s.cfg.Identities != nil {
		n := s.cfg.Identities()
		out.Identities = &n
	}
	if s.slots != nil {
		n := s.slots.InUse()
		out.InFlight = &n
		out.MaxInFlight = s.slots.Cap()
	}
	if s.cfg.Stats != nil {
		total := s.cfg.Stats.Total()
		out.Total = &total
		out.ByReason = s.cfg.Stats.ByReason()
		out.ByRoute = s.cfg.Stats.ByRoute()
	}
	writeJSON(w, http.StatusOK, out)
}
