// Package network provides a pre-configured, optimized HTTP client for concurrent backend communication.
package network

import (
	"net/http"
	"time"

	"github.com/oriontv-cli/oriontv/constant"
)

// Client is the singleton HTTP client shared across the application for efficient resource utilization.
// It is configured with increased concurrency limits and reasonable timeouts tailored for catalog and probe workflows.
var Client = &http.Client{
	Timeout:   time.Minute,
	Transport: &headerSettingTransport{inner: newTransport()},
}

// newTransport initializes a tuned http.Transport with optimized pool and timeout parameters.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 100
	t.MaxConnsPerHost = 200
	t.IdleConnTimeout = 30 * time.Second
	t.ResponseHeaderTimeout = 30 * time.Second
	t.ExpectContinueTimeout = 30 * time.Second
	return t
}

// headerSettingTransport injects default request headers before delegating to the
// underlying transport, so individual callers never have to repeat them.
type headerSettingTransport struct {
	inner http.RoundTripper
}

func (h *headerSettingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", constant.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	return h.inner.RoundTrip(req)
}
