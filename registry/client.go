// Package registry implements the registry client (spec §4.B): fetching
// package metadata and tarball bytes from a configured list of registries,
// with scope-based selection, bearer/basic auth, a concurrency cap, and
// bounded retry with user-visible warnings on transient failure.
//
// Grounded on npm/download/download.go's fetchMetadata/downloadTarball
// (semaphore channel, *http.Client with a generous timeout, slog logging on
// every step) and npm/push/push.go's bearer-header pattern, redirected from
// outbound push auth to outbound fetch auth.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultRegistryURL = "https://registry.npmjs.org"

// Client fetches package metadata and tarballs from the configured
// registries.
type Client struct {
	log        *slog.Logger
	httpClient *http.Client
	semaphore  chan struct{}
	registries []Registry
	retries    int
	defaultURL string
	getenv     func(string) string
}

// Option configures a Client.
type Option func(*Client)

// WithRegistries sets the configured registry list used for scope-based
// selection.
func WithRegistries(registries []Registry) Option {
	return func(c *Client) { c.registries = registries }
}

// WithConcurrency caps simultaneous HTTP requests (spec default ~100).
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			n = 100
		}
		c.semaphore = make(chan struct{}, n)
	}
}

// WithRetries overrides the default retry budget (spec default 3).
func WithRetries(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			n = 1
		}
		c.retries = n
	}
}

// WithDefaultRegistryURL overrides the public-registry fallback.
func WithDefaultRegistryURL(url string) Option {
	return func(c *Client) { c.defaultURL = url }
}

// WithHTTPClient overrides the client's underlying *http.Client (tests use
// this to point at an httptest.Server with a self-signed certificate).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client.
func New(log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		log:        log,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		semaphore:  make(chan struct{}, 100),
		retries:    3,
		defaultURL: defaultRegistryURL,
		getenv:     os.Getenv,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchMetadata fetches a package's full metadata document, retrying
// transient failures up to the configured budget.
func (c *Client) FetchMetadata(ctx context.Context, name string) (*RegistryResponse, error) {
	reg := SelectRegistry(c.registries, name, c.defaultURL)
	url := strings.TrimSuffix(reg.URL, "/") + "/" + pathEscapePackageName(name)

	body, err := c.doWithRetry(ctx, http.MethodGet, url, reg, nil, "")
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", name, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading metadata body for %s: %w", name, err)
	}

	resp, err := DecodeRegistryResponse(data)
	if err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", name, err)
	}
	resp.Name = name
	return resp, nil
}

// FetchTarball streams a tarball's bytes. The caller is responsible for
// closing the returned ReadCloser.
func (c *Client) FetchTarball(ctx context.Context, url string) (io.ReadCloser, error) {
	// The tarball URL may point at a different host than any configured
	// registry (e.g. a CDN); auth is taken from the first configured
	// registry whose URL is a prefix of the tarball URL, whatever that
	// registry's scope. Tarball fetches that match no configured registry
	// carry no registry auth.
	var reg Registry
	for _, r := range c.registries {
		if strings.HasPrefix(url, strings.TrimSuffix(r.URL, "/")) {
			reg = r
			break
		}
	}
	return c.doWithRetry(ctx, http.MethodGet, url, reg, nil, "")
}

func (c *Client) doWithRetry(ctx context.Context, method, url string, reg Registry, body io.Reader, contentType string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		select {
		case c.semaphore <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		rc, err := c.doOnce(ctx, method, url, reg, body, contentType)
		<-c.semaphore

		if err == nil {
			return rc, nil
		}
		lastErr = err
		if attempt < c.retries {
			c.log.Warn("registry request failed, retrying",
				slog.String("url", url), slog.Int("attempt", attempt), slog.String("error", err.Error()))
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.retries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, url string, reg Registry, body io.Reader, contentType string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.applyAuth(req, reg)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return resp.Body, nil
}

func (c *Client) applyAuth(req *http.Request, reg Registry) {
	if reg.Auth == nil {
		return
	}
	if reg.Auth.Bearer != nil {
		req.Header.Set("Authorization", "Bearer "+reg.Auth.Bearer.Secret.Resolve(c.getenv))
		return
	}
	if reg.Auth.Basic != nil {
		pwd := ""
		if reg.Auth.Basic.Password != nil {
			pwd = reg.Auth.Basic.Password.Resolve(c.getenv)
		}
		req.SetBasicAuth(reg.Auth.Basic.Username, pwd)
	}
}

func pathEscapePackageName(name string) string {
	// Scoped packages ("@scope/name") must have their "/" percent-encoded
	// per the npm registry's own URL scheme, but everything else passes
	// through unescaped to keep registry logs readable.
	return strings.ReplaceAll(name, "/", "%2f")
}
