package application

import (
	"errors"
	"strings"

	"proxy-gateway/gateway/domain"
)

type Kind int

const (
	KindDefault Kind = iota
	KindDynamic
)

func (k Kind) String() string {
	if k == KindDynamic {
		return "dynamic"
	}
	return "default"
}

// Resolution é o alvo escolhido para uma requisição e o path a enviar a ele.
type Resolution struct {
	Kind   Kind
	Target domain.Target
	Path   string
	// UID da rota quando Kind == KindDynamic.
	UID string
}

// Resolver decide o upstream pelo primeiro segmento do path.
type Resolver struct {
	Routes  RouteLookup
	Default domain.Target
	// Match filtra os segmentos que podem ser UID; nil consulta sempre.
	Match func(seg string) bool
}

// Resolve devolve a rota dinâmica cujo UID é o primeiro segmento, com o
// restante do path, ou o alvo padrão com o path original.
// Uma rota vencida resulta em domain.ErrRouteExpired.
func (r Resolver) Resolve(path string) (Resolution, error) {
	def := Resolution{Kind: KindDefault, Target: r.Default, Path: path}
	if r.Routes == nil {
		return def, nil
	}

	first, rest, _ := strings.Cut(strings.TrimLeft(path, "/"), "/")
	if first == "" || (r.Match != nil && !r.Match(first)) {
		return def, nil
	}

	route, err := r.Routes.Resolve(first)
	switch {
	case err == nil:
		return Resolution{Kind: KindDynamic, Target: route.Target, Path: squashSlashes(rest), UID: first}, nil
	case errors.Is(err, domain.ErrRouteNotFound):
		return def, nil
	default:
		return Resolution{}, err
	}
}

// squashSlashes reduz cada sequência de barras a uma só.
func squashSlashes(p string) string {
	if !strings.Contains(p, "//") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == '/' && i > 0 && p[i-1] == '/' {
			continue
		}
		b.WriteByte(p[i])
	}
	return b.String()
}
