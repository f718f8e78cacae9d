package weibo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"weiboharvest/pkg/config"
	errs "weiboharvest/pkg/errors"
	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/metrics"
	"weiboharvest/pkg/ratelimit"
	"weiboharvest/pkg/retry"
)

// Options configures a Client
type Options struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	UserAgent   string

	// Limiter paces requests; nil means unpaced
	Limiter ratelimit.Limiter

	NotFoundRetries    int
	NotFoundDelay      time.Duration
	ServerErrorRetries int
	ServerErrorDelay   time.Duration
}

// OptionsFromConfig maps the loaded configuration onto client options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:            cfg.Weibo.BaseURL,
		AccessToken:        cfg.Weibo.AccessToken,
		Timeout:            cfg.Weibo.Timeout,
		UserAgent:          cfg.Weibo.UserAgent,
		Limiter:            ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Burst),
		NotFoundRetries:    cfg.Retry.NotFoundRetries,
		NotFoundDelay:      cfg.Retry.NotFoundDelay,
		ServerErrorRetries: cfg.Retry.ServerErrorRetries,
		ServerErrorDelay:   cfg.Retry.ServerErrorDelay,
	}
}

// Client is the transport for the Weibo REST API. It attaches the access
// token to every call, classifies failures into typed errors and performs
// the bounded transport-level retries. Rate limits are returned to the
// caller untouched.
//
// A Client serves one logical stream; it is safe for concurrent use but
// harvests of independent keys should each get their own instance.
type Client struct {
	mu         sync.Mutex
	httpClient *http.Client
	headers    map[string]string
	opts       Options
	logger     logger.Logger
}

// NewClient creates a client. The access token is required.
func NewClient(opts Options, log logger.Logger) (*Client, error) {
	if opts.AccessToken == "" {
		return nil, errs.New(errs.ErrorTypeAuth, 0, "access token is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited()
	}
	log = logger.OrNop(log)

	c := &Client{
		headers: map[string]string{
			"Authorization": "OAuth2 " + opts.AccessToken,
			"Accept":        "application/json",
		},
		opts:   opts,
		logger: log.WithField("component", "weibo"),
	}
	if opts.UserAgent != "" {
		c.headers["User-Agent"] = opts.UserAgent
	}
	c.httpClient = c.newHTTPClient()

	c.logger.DebugWithFields("client created", map[string]interface{}{
		"base_url": opts.BaseURL,
		"token":    logger.MaskToken(opts.AccessToken),
	})
	return c, nil
}

func (c *Client) newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{Timeout: c.opts.Timeout, Transport: transport}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient = hc
}

func (c *Client) currentHTTP() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpClient
}

// reconnect drops pooled connections and starts a fresh session. A custom
// RoundTripper on an injected client is kept as is.
func (c *Client) reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.httpClient.CloseIdleConnections()
	switch t := c.httpClient.Transport.(type) {
	case nil:
		c.httpClient = c.newHTTPClient()
	case *http.Transport:
		fresh := *c.httpClient
		fresh.Transport = t.Clone()
		c.httpClient = &fresh
	}
	c.logger.Info("reconnected HTTP session")
}

// Invoke calls endpoint with params and returns the raw JSON body.
//
// Connection failures get exactly one reconnect and retry. 404 responses are
// retried after a fixed delay and 5xx responses after a delay growing with
// each consecutive failure, both bounded. Rate limits (HTTP 429 or vendor
// codes 10022-10024) and every other error are returned immediately.
func (c *Client) Invoke(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	budget := &retry.TypedBudget{
		Limits: map[errs.ErrorType]int{
			errs.ErrorTypeNetwork:     1,
			errs.ErrorTypeNotFound:    c.opts.NotFoundRetries,
			errs.ErrorTypeServerError: c.opts.ServerErrorRetries,
		},
		Backoffs: map[errs.ErrorType]retry.BackoffStrategy{
			errs.ErrorTypeNotFound: &retry.ConstantBackoff{Delay: c.opts.NotFoundDelay},
			errs.ErrorTypeServerError: &retry.LinearBackoff{
				BaseDelay: c.opts.ServerErrorDelay,
				Increment: c.opts.ServerErrorDelay,
			},
		},
	}

	return retry.DoWithResult(func() (json.RawMessage, error) {
		return c.invokeOnce(ctx, endpoint, params)
	}, &retry.Config{
		Context:  ctx,
		RetryIf:  budget.RetryIf,
		DelayFor: budget.DelayFor,
		Logger:   c.logger,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			t := errs.TypeOf(err)
			metrics.IncRetry(endpoint, string(t))
			if t == errs.ErrorTypeNetwork {
				c.reconnect()
			}
		},
	})
}

// invokeOnce performs a single request with no retries
func (c *Client) invokeOnce(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if err := c.opts.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for request slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL(c.opts.BaseURL, endpoint, params), nil)
	if err != nil {
		return nil, &errs.Error{Type: errs.ErrorTypeUnknown, Endpoint: endpoint, Message: fmt.Sprintf("failed to create request: %v", err), Err: err}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.currentHTTP().Do(req)
	if err != nil {
		metrics.ObserveRequest(endpoint, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WithError(err).WarnWithFields("HTTP request failed", map[string]interface{}{
			"endpoint": endpoint,
		})
		return nil, &errs.Error{Type: errs.ErrorTypeNetwork, Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	metrics.ObserveRequest(endpoint, resp.StatusCode, duration)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &errs.Error{Type: errs.ErrorTypeNetwork, Code: resp.StatusCode, Endpoint: endpoint, Message: fmt.Sprintf("failed to read response body: %v", err), Err: err}
	}

	logger.LogRequest(c.logger, http.MethodGet, endpoint, resp.StatusCode, duration)

	if err := classify(endpoint, resp.StatusCode, body); err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// classify maps a response onto a typed error, or nil for a usable body.
// The error body is checked before the status so that a vendor rate-limit
// code wins over whatever HTTP status carried it.
func classify(endpoint string, status int, body []byte) error {
	apiErr := parseAPIError(body)

	if status == http.StatusTooManyRequests || (apiErr != nil && errs.IsRateLimitCode(apiErr.Code)) {
		e := &errs.Error{Type: errs.ErrorTypeRateLimit, Code: status, Endpoint: endpoint, Message: "rate limit exceeded"}
		if apiErr != nil {
			e.Code, e.Message = apiErr.Code, apiErr.Message
		}
		return e
	}

	switch {
	case status == http.StatusOK:
		if apiErr != nil {
			return &errs.Error{Type: apiErrorType(apiErr.Code), Code: apiErr.Code, Endpoint: endpoint, Message: apiErr.Message}
		}
		if !json.Valid(body) {
			return &errs.Error{Type: errs.ErrorTypeParsing, Code: status, Endpoint: endpoint, Message: "response is not valid JSON: " + preview(body)}
		}
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &errs.Error{Type: errs.ErrorTypeAuth, Code: status, Endpoint: endpoint, Message: messageOr(apiErr, "authentication failed")}
	case status == http.StatusNotFound:
		return &errs.Error{Type: errs.ErrorTypeNotFound, Code: status, Endpoint: endpoint, Message: messageOr(apiErr, "resource not found")}
	case status >= 500:
		return &errs.Error{Type: errs.ErrorTypeServerError, Code: status, Endpoint: endpoint, Message: messageOr(apiErr, "server error")}
	case status >= 400:
		code := status
		if apiErr != nil {
			code = apiErr.Code
		}
		return &errs.Error{Type: errs.ErrorTypeAPI, Code: code, Endpoint: endpoint, Message: messageOr(apiErr, fmt.Sprintf("unexpected status code: %d", status))}
	default:
		return nil
	}
}

// Token errors are in the 21xxx range (21301 auth failed, 21327 expired...)
func apiErrorType(code int) errs.ErrorType {
	if code >= 21300 && code < 21400 {
		return errs.ErrorTypeAuth
	}
	return errs.ErrorTypeAPI
}

func parseAPIError(body []byte) *APIError {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var apiErr APIError
	if err := json.Unmarshal(trimmed, &apiErr); err != nil {
		return nil
	}
	if apiErr.Code == 0 && apiErr.Message == "" {
		return nil
	}
	return &apiErr
}

func messageOr(apiErr *APIError, fallback string) string {
	if apiErr != nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func preview(body []byte) string {
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}

// decode unmarshals a response body into target as a parsing error
func decode(endpoint string, body json.RawMessage, target interface{}) error {
	if err := json.Unmarshal(body, target); err != nil {
		return &errs.Error{Type: errs.ErrorTypeParsing, Endpoint: endpoint, Message: fmt.Sprintf("failed to parse JSON: %v", err), Err: err}
	}
	return nil
}

// IsContextError reports whether err came from a cancelled or expired context
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
