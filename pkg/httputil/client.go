package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a single index listing request.
const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client that sends userAgent on every request.
// timeout bounds each request including the body read; zero leaves requests
// bounded only by their context, which file transfers need.
func NewClient(timeout time.Duration, userAgent string) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	base := http.DefaultTransport
	if t, ok := base.(*http.Transport); ok {
		base = t.Clone()
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: base, userAgent: userAgent},
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}
