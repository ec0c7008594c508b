package application

import (
	"testing"
	"time"

	"proxy-gateway/gateway/domain"
	"proxy-gateway/gateway/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lookupFunc adapta uma função a RouteLookup.
type lookupFunc func(uid string) (domain.Route, error)

func (f lookupFunc) Resolve(uid string) (domain.Route, error) { return f(uid) }

func TestResolverDefault(t *testing.T) {
	def := domain.MustTarget("https://default.test")
	r := Resolver{Routes: infra.NewRegistry(nil), Default: def, Match: infra.IsUID}

	for _, path := range []string{"/", "", "/api/v1", "/12345-67890-12345/x"} {
		res, err := r.Resolve(path)
		require.NoError(t, err, path)
		assert.Equal(t, KindDefault, res.Kind)
		assert.Equal(t, path, res.Path, "original path kept")
		assert.Equal(t, def, res.Target)
	}
}

func TestResolverDynamic(t *testing.T) {
	reg := infra.NewRegistry(nil)
	route, err := reg.Register("https://dyn.test/base", "never")
	require.NoError(t, err)
	r := Resolver{Routes: reg, Default: domain.MustTarget("https://default.test"), Match: infra.IsUID}

	cases := map[string]string{
		"/" + route.UID:                "",
		"/" + route.UID + "/":          "",
		"/" + route.UID + "/a/b":       "a/b",
		"/" + route.UID + "/a/b/":      "a/b/",
		"//" + route.UID + "//deep/er": "/deep/er",
		"/" + route.UID + "/a//b//c":   "a/b/c",
		"/" + route.UID + "/a%2F/b":    "a%2F/b",
	}
	for path, rest := range cases {
		res, err := r.Resolve(path)
		require.NoError(t, err, path)
		assert.Equal(t, KindDynamic, res.Kind, path)
		assert.Equal(t, route.UID, res.UID)
		assert.Equal(t, rest, res.Path, path)
		assert.Equal(t, "https://dyn.test/base/deep/er", res.Target.Join("//deep/er", "").String())
	}
}

func TestResolverExpired(t *testing.T) {
	now := time.Unix(0, 0)
	reg := infra.NewRegistry(nil, infra.WithRegistryClock(func() time.Time { return now }))
	route, err := reg.Register("https://dyn.test", "1 min")
	require.NoError(t, err)
	r := Resolver{Routes: reg, Default: domain.MustTarget("https://default.test")}

	now = now.Add(time.Hour)
	_, err = r.Resolve("/" + route.UID + "/x")
	assert.ErrorIs(t, err, domain.ErrRouteExpired)
}

func TestResolverMatchSkipsLookup(t *testing.T) {
	calls := 0
	r := Resolver{
		Routes: lookupFunc(func(string) (domain.Route, error) {
			calls++
			return domain.Route{}, domain.ErrRouteNotFound
		}),
		Default: domain.MustTarget("https://default.test"),
		Match:   infra.IsUID,
	}

	_, err := r.Resolve("/static/app.js")
	require.NoError(t, err)
	assert.Zero(t, calls)

	r.Match = nil
	_, err = r.Resolve("/static/app.js")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestResolverWithoutRegistry(t *testing.T) {
	r := Resolver{Default: domain.MustTarget("https://default.test")}
	res, err := r.Resolve("/12345-67890-12345")
	require.NoError(t, err)
	assert.Equal(t, KindDefault, res.Kind)
}
