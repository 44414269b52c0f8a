package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dsa-judge/dsactl/pkg/logging"
	"github.com/dsa-judge/dsactl/pkg/metrics"
	"github.com/dsa-judge/dsactl/pkg/retry"
)

// Credentials carries the bearer token of one call. The zero value means
// the call is made anonymously.
type Credentials struct {
	Token     string
	TokenType string
}

// IsZero reports whether no token is present
func (c Credentials) IsZero() bool {
	return c.Token == ""
}

// Header returns the Authorization header value
func (c Credentials) Header() string {
	typ := c.TokenType
	if typ == "" || strings.EqualFold(typ, "bearer") {
		typ = "Bearer"
	}
	return typ + " " + c.Token
}

// Client talks to the DSA REST API
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	jar         *recordingJar
	retryConfig retry.Config
	logger      *logging.Logger
	metrics     *metrics.APIMetrics
}

// NewClient creates a client for the API rooted at baseURL
// (including the versioned prefix, e.g. http://host:8000/api/v1)
func NewClient(baseURL string) (*Client, error) {
	return NewClientWithTransport(baseURL, nil)
}

// NewClientWithTransport creates a client using the given transport
// (tls, rate limiting and tracing wrappers are composed by the caller)
func NewClientWithTransport(baseURL string, transport http.RoundTripper) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", baseURL)
	}

	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	jar := newRecordingJar(inner)

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
			Jar:       jar,
		},
		jar:         jar,
		retryConfig: retry.DefaultConfig(),
		logger:      logging.Nop(),
	}, nil
}

// SetLogger sets the logger used for request diagnostics
func (c *Client) SetLogger(logger *logging.Logger) {
	if logger != nil {
		c.logger = logger.WithField("component", "api")
	}
}

// SetRetryConfig sets the transport retry policy for idempotent requests
func (c *Client) SetRetryConfig(cfg retry.Config) {
	c.retryConfig = cfg
}

// SetMetrics enables request metrics
func (c *Client) SetMetrics(m *metrics.APIMetrics) {
	c.metrics = m
}

// BaseURL returns the API root
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Cookies returns every live cookie set by the API with its path and expiry,
// including cookies scoped below the base URL such as the refresh cookie
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.recorded()
}

// SetCookies restores previously saved cookies for the API origin.
// Each cookie keeps its own path; an empty path defaults to the base URL's.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	if len(cookies) > 0 {
		c.jar.SetCookies(c.baseURL, cookies)
	}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// request describes one API call
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	creds       Credentials
	// noRetry sends the request exactly once even when it is a GET
	noRetry bool
}

type noRetryKey struct{}

// WithoutRetry returns a context under which every request is sent exactly
// once, with no transport-level retries
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

func retryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey{}).(bool)
	return v
}

// do sends req and returns the successful response. The caller closes the body.
// Non-2xx responses are turned into *APIError.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	target := c.endpoint(req.path)
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	cfg := c.retryConfig
	if req.method != http.MethodGet || req.noRetry || retryDisabled(ctx) {
		cfg = retry.NoRetry()
	}

	var resp *http.Response
	start := time.Now()
	err := retry.Do(ctx, cfg, retry.IsRetryable, func() error {
		var body io.Reader
		if req.body != nil {
			body = bytes.NewReader(req.body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if req.contentType != "" {
			httpReq.Header.Set("Content-Type", req.contentType)
		}
		httpReq.Header.Set("Accept", "application/json")
		if !req.creds.IsZero() {
			httpReq.Header.Set("Authorization", req.creds.Header())
		}

		r, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		c.metrics.Observe(req.method, req.path, 0, time.Since(start))
		c.logger.Debug("request failed", map[string]interface{}{
			"method": req.method,
			"path":   req.path,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("failed to connect to API: %w", err)
	}

	c.metrics.Observe(req.method, req.path, resp.StatusCode, time.Since(start))
	c.logger.Debug("request completed", map[string]interface{}{
		"method": req.method,
		"path":   req.path,
		"status": resp.StatusCode,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, newAPIError(resp.StatusCode, body)
	}
	return resp, nil
}

// doJSON performs req and decodes a JSON response into out (if non-nil)
func (c *Client) doJSON(ctx context.Context, req request, out interface{}) error {
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func jsonBody(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return data, nil
}
