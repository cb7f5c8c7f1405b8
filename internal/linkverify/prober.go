package linkverify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Probe defaults.
const (
	DefaultProbeTimeout = 10 * time.Second
	DefaultMaxRedirects = 5
	DefaultUserAgent    = "LinkScan/1.0"
)

// ProbeResponse is the final HTTP status after redirects.
type ProbeResponse struct {
	StatusCode int
	Status     string
}

// Prober checks an external URL over the network. A returned error means
// no HTTP response was obtained.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (ProbeResponse, error)
}

// ProberOptions configures an HTTPProber.
type ProberOptions struct {
	Timeout         time.Duration
	MaxRedirects    int
	UserAgent       string
	HeadFallbackGET bool
	// Transport overrides the HTTP transport; nil clones the default one.
	Transport http.RoundTripper
}

// HTTPProber issues HEAD requests with a per-request timeout and a
// bounded redirect chain.
type HTTPProber struct {
	client    *http.Client
	userAgent string
	fallback  bool
}

// NewHTTPProber builds a prober. Zero options take the package defaults.
func NewHTTPProber(opts ProberOptions) *HTTPProber {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProbeTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	transport := opts.Transport
	if transport == nil {
		// Respects HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	maxRedirects := opts.MaxRedirects
	return &HTTPProber{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		fallback:  opts.HeadFallbackGET,
	}
}

// Probe sends HEAD and, when enabled, retries with GET if the server
// rejects the method.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string) (ProbeResponse, error) {
	resp, err := p.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return ProbeResponse{}, err
	}
	if p.fallback && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		return p.do(ctx, http.MethodGet, rawURL)
	}
	return resp, nil
}

func (p *HTTPProber) do(ctx context.Context, method, rawURL string) (ProbeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return ProbeResponse{}, err
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResponse{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	// Bounded drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return ProbeResponse{StatusCode: resp.StatusCode, Status: resp.Status}, nil
}
