// Package httpx builds the shared *http.Client and per-request *http.Request
// values used by the load-generation engine.
package httpx

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/http2"

	"github.com/bpowers/rsb-bench/internal/config"
)

const maxIdleConnsPerHost = 500

// NewClient builds the shared HTTP client: applies headers, timeout, TLS
// identity and verification settings, and follows no redirects, per the
// workload configuration.
func NewClient(w *config.Workload) (*http.Client, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: w.Insecure,
	}

	if w.Cert != "" && w.Key != "" {
		cert, err := tls.LoadX509KeyPair(w.Cert, w.Key)
		if err != nil {
			return nil, fmt.Errorf("tls.LoadX509KeyPair(%s, %s): %w", w.Cert, w.Key, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		DisableKeepAlives:   w.DisableKeepAlive,
	}

	if w.H2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("http2.ConfigureTransport: %w", err)
		}
	} else {
		transport.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
	}

	return &http.Client{
		Transport: &headerTransport{
			base:    transport,
			headers: w.Headers,
			close:   w.DisableKeepAlive,
		},
		Timeout: w.Timeout,
		// the tool measures HTTP semantics as delivered; it never
		// reshapes them by chasing a Location header itself.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// headerTransport applies the operator's default headers (and, if
// configured, Connection: close) to every outgoing request before
// delegating to base.
type headerTransport struct {
	base    http.RoundTripper
	headers []string
	close   bool
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for _, raw := range h.headers {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			continue
		}
		req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if h.close {
		req.Header.Set("Connection", "Close")
		req.Close = true
	}
	return h.base.RoundTrip(req)
}
