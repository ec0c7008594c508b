package gateway

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"syscall"

	"proxy-gateway/gateway/domain"
	"proxy-gateway/middleware/ratelimit"

	"go.uber.org/zap"
)

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	resp := s.cfg.Engine.Forward(r.Context(), s.toDomain(r))
	writeResponse(w, r, resp)
}

// toDomain traduz a requisição de entrada. O path vai como o cliente mandou
// (EscapedPath) para não alterar o encoding ao repassar.
func (s *Server) toDomain(r *http.Request) *domain.Request {
	return &domain.Request{
		ID:         GetRequestID(r.Context()),
		Method:     r.Method,
		Path:       r.URL.EscapedPath(),
		RawQuery:   r.URL.RawQuery,
		Header:     r.Header,
		Body:       r.Body,
		ClientAddr: s.clientAddr(r),
		Host:       r.Host,
		Scheme:     s.scheme(r),
		Identity:   s.keyFn(r),
	}
}

// clientAddr é o endereço acrescentado ao X-Forwarded-For: o header de IP
// confiável quando configurado, senão o par TCP.
func (s *Server) clientAddr(r *http.Request) string {
	if s.cfg.ClientIPHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(s.cfg.ClientIPHeader)); v != "" {
			return v
		}
	}
	return ratelimit.RemoteHost(r.RemoteAddr)
}

func (s *Server) scheme(r *http.Request) string {
	if s.cfg.TrustXFF {
		if p := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))); p == "http" || p == "https" {
			return p
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// writeResponse transmite a resposta sem alterar status, headers ou corpo.
func writeResponse(w http.ResponseWriter, r *http.Request, resp *domain.Response) {
	defer resp.Close()

	h := w.Header()
	for k, vv := range resp.Header {
		h[k] = vv
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body == nil || r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(flushWriter{w}, resp.Body); err != nil && !isClientGone(err) {
		zap.L().Debug("response copy interrupted", zap.Error(err))
	}
}

// flushWriter repassa cada bloco imediatamente (SSE, respostas longas).
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err == nil {
		_ = http.NewResponseController(f.w).Flush()
	}
	return n, err
}

func isClientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
