package domain

import (
	"errors"
	"net/http"
)

var (
	// erros de entrada do cliente (4xx)
	ErrInvalidTarget    = errors.New("invalid target url")
	ErrInvalidDuration  = errors.New("invalid duration")
	ErrRouteNotFound    = errors.New("route not found")
	ErrRouteExpired     = errors.New("route expired")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrBodyTooLarge     = errors.New("request body too large")

	// admissão negada (nunca reenviada)
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrForbidden   = errors.New("forbidden")

	// falha do upstream depois do fallback
	ErrUpstream = errors.New("upstream failure")
)

// StatusError carrega um status explícito para erros fora da taxonomia
// (ex.: 503 do limite de concorrência).
type StatusError struct {
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// StatusOf traduz um erro da taxonomia para o status HTTP. Qualquer outro erro
// é falha interna (500).
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) && se.Status != 0 {
		return se.Status
	}
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidTarget), errors.Is(err, ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, ErrRouteNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRouteExpired):
		return http.StatusGone
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage é o corpo enviado ao cliente. Erros 4xx são descritivos;
// 5xx nunca expõem detalhes internos.
func PublicMessage(err error) string {
	status := StatusOf(err)
	if status >= 500 {
		return http.StatusText(status)
	}
	return err.Error()
}

// ErrorResponse monta a resposta text/plain para err.
func ErrorResponse(err error) *Response {
	return TextResponse(StatusOf(err), PublicMessage(err))
}
