package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	probeAttempts = 3
	userAgent     = "modelfetch/1.0"
)

// ClientConfig configures access to the remote content store.
type ClientConfig struct {
	BaseURL     string
	Token       string // optional bearer token for gated repositories
	Timeout     time.Duration
	BackoffBase time.Duration
}

// Client talks to the remote content store over HTTP(S).
type Client struct {
	http        *http.Client
	baseURL     string
	tokens      oauth2.TokenSource
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client whose transport applies the connect and
// response-header timeouts. Bodies are not bounded by a total deadline.
func NewClient(cfg ClientConfig) *Client {
	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	c := &Client{
		http:        &http.Client{Transport: otelhttp.NewTransport(transport)},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		backoffBase: cfg.BackoffBase,
		sleep:       sleepContext,
	}

	if cfg.Token != "" {
		c.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	}

	return c
}

// URL resolves a remote path against the base URL. Absolute URLs are
// returned unchanged.
func (c *Client) URL(remotePath string) string {
	if u, err := url.Parse(remotePath); err == nil && u.IsAbs() {
		return remotePath
	}

	return c.baseURL + "/" + strings.TrimLeft(remotePath, "/")
}

// ProbeSize asks the store for the size of the resource at rawURL. It never
// fails the caller: after exhausting its attempts it reports the size as
// unknown.
func (c *Client) ProbeSize(ctx context.Context, rawURL string) (int64, bool) {
	logger := logctx.LoggerFromContext(ctx)

	for attempt := 0; attempt < probeAttempts; attempt++ {
		size, known, err := c.head(ctx, rawURL)
		if err == nil {
			return size, known
		}

		if ctx.Err() != nil {
			return 0, false
		}

		logger.Warn("size probe failed", "url", rawURL, "attempt", attempt+1, "err", err)

		if attempt < probeAttempts-1 {
			if err := c.sleep(ctx, c.backoffBase*time.Duration(1<<attempt)); err != nil {
				return 0, false
			}
		}
	}

	logger.Warn("could not determine remote size, continuing without it", "url", rawURL)

	return 0, false
}

func (c *Client) head(ctx context.Context, rawURL string) (int64, bool, error) {
	req, err := c.newRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return 0, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, false, &artifact.NetworkError{Operation: "probe", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, false, &artifact.NetworkError{Operation: "probe", StatusCode: resp.StatusCode, Message: resp.Status}
	}

	if resp.ContentLength < 0 {
		return 0, false, nil
	}

	return resp.ContentLength, true, nil
}

// Get issues a GET for rawURL, asking for bytes from offset onward when
// offset is positive.
func (c *Client) Get(ctx context.Context, rawURL string, offset int64) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &artifact.NetworkError{Operation: "transfer", Message: err.Error(), Err: err}
	}

	return resp, nil
}

// Reachable issues a single HEAD to rawURL and fails only on transport errors.
func (c *Client) Reachable(ctx context.Context, rawURL string) error {
	req, err := c.newRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &artifact.NetworkError{Operation: "reachability", Message: err.Error(), Err: err}
	}

	return resp.Body.Close()
}

// newRequest sets the bearer token on the request itself so redirects to
// another host drop it.
func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}

	req.Header.Set("User-Agent", userAgent)

	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}

		tok.SetAuthHeader(req)
	}

	return req, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
