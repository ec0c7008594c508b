package infra

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"proxy-gateway/gateway/domain"
)

// HTTPUpstream envia as tentativas do motor. Redirecionamentos nunca são
// seguidos: o 3xx volta ao cliente como veio.
type HTTPUpstream struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPUpstream cria o cliente; timeout vale por tentativa e cobre a
// leitura do corpo. transport nil usa um clone de http.DefaultTransport.
func NewHTTPUpstream(timeout time.Duration, transport http.RoundTripper) *HTTPUpstream {
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
		t.MaxIdleConnsPerHost = 32
		t.ResponseHeaderTimeout = timeout
		transport = t
	}
	return &HTTPUpstream{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
	}
}

func (u *HTTPUpstream) Do(ctx context.Context, out domain.Outbound) (*domain.Response, error) {
	cancel := context.CancelFunc(func() {})
	if u.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
	}

	var body io.Reader
	if len(out.Body) > 0 {
		body = bytes.NewReader(out.Body)
	}
	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL.String(), body)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header = out.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if _, ok := req.Header["User-Agent"]; !ok {
		// evita o User-Agent padrão do Go quando o cliente não mandou nenhum
		req.Header.Set("User-Agent", "")
	}

	resp, err := u.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	return &domain.Response{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Header:     resp.Header,
		Body:       &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
