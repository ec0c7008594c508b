package infra

import (
	"net/http"
	"strings"

	"proxy-gateway/gateway/domain"

	"go.uber.org/zap"
)

// hopHeaders não atravessam o proxy em nenhum sentido.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Rewriter aplica o contrato de headers do encaminhamento.
type Rewriter struct {
	// RewriteOrigin troca o Origin do cliente pela origem do alvo.
	RewriteOrigin bool
	// CORSAllowMethods/CORSAllowHeaders acompanham o Allow-Origin quando não vazios.
	CORSAllowMethods string
	CORSAllowHeaders string

	Log *zap.Logger
}

// Request monta os headers de saída a partir dos headers do cliente.
// O header de entrada não é modificado.
func (rw Rewriter) Request(req *domain.Request, target domain.Target) http.Header {
	out := req.Header.Clone()
	if out == nil {
		out = make(http.Header)
	}
	removeHopHeaders(out)
	out.Del("Host")

	prior := strings.Join(out.Values("X-Forwarded-For"), ", ")
	switch {
	case req.ClientAddr != "" && prior != "":
		out.Set("X-Forwarded-For", prior+", "+req.ClientAddr)
	case req.ClientAddr != "":
		out.Set("X-Forwarded-For", req.ClientAddr)
	case prior != "":
		out.Set("X-Forwarded-For", prior)
	}

	if req.Host != "" {
		out.Set("X-Forwarded-Host", req.Host)
	}
	if req.Scheme != "" {
		out.Set("X-Forwarded-Proto", req.Scheme)
	}

	if rw.RewriteOrigin && out.Get("Origin") != "" {
		out.Set("Origin", target.Origin())
	}

	if ae := out.Get("Accept-Encoding"); ae != "" {
		if kept := acceptable(ae); kept != "" {
			out.Set("Accept-Encoding", kept)
		} else {
			out.Del("Accept-Encoding")
		}
	}
	return out
}

// Response prepara a resposta do upstream para o cliente: decodifica o corpo
// e remove os headers de framing, que o transporte recalcula.
//
// Um corpo em codificação desconhecida segue intacto com seu Content-Encoding.
func (rw Rewriter) Response(resp *domain.Response) (*domain.Response, error) {
	h := resp.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	removeHopHeaders(h)
	h.Del("Content-Length")

	body := resp.Body
	if enc := h.Get("Content-Encoding"); enc != "" {
		if CanDecode(enc) && body != nil {
			decoded, err := DecodeBody(enc, body)
			if err != nil {
				return nil, err
			}
			body = decoded
			h.Del("Content-Encoding")
		} else if rw.Log != nil {
			rw.Log.Debug("passing through undecodable body", zap.String("content_encoding", enc))
		}
	}

	rw.Decorate(h)
	return &domain.Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     h,
		Body:       body,
	}, nil
}

// Decorate adiciona os headers CORS presentes em toda resposta.
func (rw Rewriter) Decorate(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	if rw.CORSAllowMethods != "" {
		h.Set("Access-Control-Allow-Methods", rw.CORSAllowMethods)
	}
	if rw.CORSAllowHeaders != "" {
		h.Set("Access-Control-Allow-Headers", rw.CORSAllowHeaders)
	}
}

func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// acceptable filtra Accept-Encoding para as codificações que DecodeBody entende.
func acceptable(ae string) string {
	var kept []string
	for _, part := range strings.Split(ae, ",") {
		part = strings.TrimSpace(part)
		name := strings.ToLower(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]))
		switch name {
		case "gzip", "deflate", "zstd", "identity":
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ", ")
}
