package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"proxy-gateway/gateway/domain"

	"go.uber.org/zap"
)

type registerResponse struct {
	ProxyURL    string     `json:"proxy_url"`
	OriginalURL string     `json:"original_url"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// handleRegister atende GET /proxy?url=<alvo>&expires=<duração|never>.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	route, err := s.cfg.Routes.Register(q.Get("url"), q.Get("expires"))
	if err != nil {
		s.log.Debug("route registration rejected",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		resp := domain.ErrorResponse(err)
		s.cfg.Decorate(resp.Header)
		writeResponse(w, r, resp)
		return
	}

	if s.cfg.Collector != nil {
		s.cfg.Collector.RouteRegistered()
		s.cfg.Collector.SetLiveRoutes(s.cfg.Routes.Len())
	}
	s.log.Info("route created",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("uid", route.UID),
		zap.String("target", route.Target.String()))

	writeJSON(w, http.StatusOK, registerResponse{
		ProxyURL:    s.baseURL(r) + "/" + route.UID,
		OriginalURL: route.Target.String(),
		ExpiresAt:   utc(route.ExpiresAt),
	})
}

// baseURL é public_base_url ou, sem ele, scheme://Host da requisição.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/")
	}
	return s.scheme(r) + "://" + r.Host
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
