package infra

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"proxy-gateway/gateway/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPUpstreamSendsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Path", r.URL.RequestURI())
		w.Header().Set("X-Seen-Forwarded", r.Header.Get("X-Forwarded-For"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL + "/items?id=1")
	h := http.Header{}
	h.Set("X-Forwarded-For", "1.2.3.4")

	resp, err := NewHTTPUpstream(5*time.Second, nil).Do(context.Background(), domain.Outbound{
		Method: http.MethodPost, URL: u, Header: h, Body: []byte("payload"),
	})
	require.NoError(t, err)
	defer resp.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Created", resp.Status)
	assert.Equal(t, "POST", resp.Header.Get("X-Method"))
	assert.Equal(t, "/items?id=1", resp.Header.Get("X-Path"))
	assert.Equal(t, "1.2.3.4", resp.Header.Get("X-Seen-Forwarded"))
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "payload", string(b))
}

func TestHTTPUpstreamDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL + "/start")
	resp, err := NewHTTPUpstream(5*time.Second, nil).Do(context.Background(), domain.Outbound{Method: http.MethodGet, URL: u})
	require.NoError(t, err)
	defer resp.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/elsewhere", resp.Header.Get("Location"))
}

func TestHTTPUpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	u, _ := url.Parse(srv.URL)
	_, err := NewHTTPUpstream(50*time.Millisecond, nil).Do(context.Background(), domain.Outbound{Method: http.MethodGet, URL: u})
	assert.Error(t, err)
}

func TestHTTPUpstreamConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	u, _ := url.Parse(addr)
	_, err := NewHTTPUpstream(time.Second, nil).Do(context.Background(), domain.Outbound{Method: http.MethodGet, URL: u})
	assert.Error(t, err)
}
