package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// Target é um upstream: scheme+host+porta e um path base opcional.
type Target struct {
	URL *url.URL
}

// ParseTarget aceita apenas URLs absolutas http/https com host.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("%w: scheme must be http or https", ErrInvalidTarget)
	}
	if u.Host == "" || u.Opaque != "" {
		return Target{}, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	if u.User != nil {
		return Target{}, fmt.Errorf("%w: credentials are not allowed", ErrInvalidTarget)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return Target{URL: u}, nil
}

// MustTarget é ParseTarget para valores fixos (testes, defaults).
func MustTarget(raw string) Target {
	t, err := ParseTarget(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Target) String() string {
	if t.URL == nil {
		return ""
	}
	return t.URL.String()
}

// Origin retorna scheme://host[:porta].
func (t Target) Origin() string {
	if t.URL == nil {
		return ""
	}
	return t.URL.Scheme + "://" + t.URL.Host
}

// Join monta a URL de saída: path base do alvo + escapedPath, com uma única
// barra na junção. escapedPath chega na forma escapada do cliente e sai igual
// (%2F continua %2F). A query do cliente vem depois da query fixa do alvo.
func (t Target) Join(escapedPath, rawQuery string) *url.URL {
	out := *t.URL
	raw := joinPath(t.URL.EscapedPath(), escapedPath)
	if p, err := url.PathUnescape(raw); err == nil {
		out.Path, out.RawPath = p, raw
	} else {
		out.Path, out.RawPath = raw, ""
	}

	switch {
	case t.URL.RawQuery == "":
		out.RawQuery = rawQuery
	case rawQuery != "":
		out.RawQuery = t.URL.RawQuery + "&" + rawQuery
	}
	return &out
}

func joinPath(base, p string) string {
	base = strings.TrimRight(base, "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	return base + "/" + p
}
