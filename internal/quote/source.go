package quote

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// ErrNoQuote means the source answered but has no usable price for the
// symbol. It is a per-symbol condition and does not count against the
// source's circuit breaker.
var ErrNoQuote = errors.New("no quote available")

// Source returns current prices for symbols.
type Source interface {
	Quote(ctx context.Context, symbol string) (float64, error)
	Name() string
}

// newHTTPClient builds a client with optional proxy support.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
