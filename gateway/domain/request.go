package domain

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request é o que o transporte entrega ao motor de encaminhamento.
type Request struct {
	// ID correlaciona logs (X-Request-ID).
	ID       string
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	// Body pode ser nil (GET/HEAD ou sem corpo).
	Body io.ReadCloser

	// ClientAddr é o endereço do cliente observado; "" quando indisponível.
	ClientAddr string
	// Host e Scheme são os da requisição de entrada (X-Forwarded-Host, proxy_url).
	Host   string
	Scheme string
	// Identity é a chave usada na admissão (IP, API key...).
	Identity string
}

// Outbound é uma tentativa de envio a um upstream. Body já está em memória
// para poder ser reenviado ao fallback.
type Outbound struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// Response é devolvida ao transporte, que a transmite sem alterações.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser
}

// TextResponse monta uma resposta text/plain gerada pelo próprio gateway.
func TextResponse(status int, msg string) *Response {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	return &Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(msg + "\n")),
	}
}

// Close libera o corpo, se houver.
func (r *Response) Close() {
	if r != nil && r.Body != nil {
		_ = r.Body.Close()
	}
}
