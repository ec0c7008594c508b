package gateway

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"proxy-gateway/gateway/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID reaproveita o X-Request-ID do cliente ou gera um UUID novo.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Recovery transforma panics em 500 genérico. Detalhes só vão para o log.
func Recovery(logger *zap.Logger, decorate func(http.Header)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("panic", fmt.Sprint(rec)),
					zap.ByteString("stack", debug.Stack()))
				writeResponse(w, r, withHeaders(domain.ErrorResponse(fmt.Errorf("panic: %v", rec)), decorate))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS responde localmente o preflight (OPTIONS com
// Access-Control-Request-Method) com 204.
func CORS(decorate func(http.Header)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				decorate(w.Header())
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MethodGate recusa com 405 + Allow os métodos fora de allowed.
// Lista vazia aceita qualquer método.
func MethodGate(allowed []string, decorate func(http.Header)) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	set := make(map[string]bool, len(allowed))
	names := make([]string, 0, len(allowed))
	for _, m := range allowed {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" || set[m] {
			continue
		}
		set[m] = true
		names = append(names, m)
	}
	allow := strings.Join(names, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !set[r.Method] {
				resp := withHeaders(domain.ErrorResponse(fmt.Errorf("%w: %s", domain.ErrMethodNotAllowed, r.Method)), decorate)
				resp.Header.Set("Allow", allow)
				writeResponse(w, r, resp)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withHeaders(resp *domain.Response, decorate func(http.Header)) *domain.Response {
	if decorate != nil {
		decorate(resp.Header)
	}
	return resp
}
