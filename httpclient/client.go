package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
)

// New builds an *http.Client from cfg.
func New(cfg Config) (*http.Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	transport.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed sidecars
	}

	return &http.Client{
		Transport: &headerTransport{base: transport, cfg: cfg},
		Timeout:   cfg.Timeout,
	}, nil
}

// headerTransport sets default headers and auth without overriding headers
// the caller already set.
type headerTransport struct {
	base http.RoundTripper
	cfg  Config
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}
	for k, v := range t.cfg.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if t.cfg.Auth != nil {
		t.cfg.Auth(req)
	}
	return t.base.RoundTrip(req)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnection reports whether err happened before any response was read:
// DNS failure, refused or reset connection, TLS handshake failure.
func IsConnection(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || IsTimeout(err) {
		return false
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	return errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.Is(err, net.ErrClosed)
}
