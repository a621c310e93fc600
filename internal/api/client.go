// Package api provides an HTTP client for the pre-ordering backend.
//
// Every request carries the session's bearer token when one exists. A 401 on
// a request that has not been retried yet triggers a single-flight token
// refresh; the request is then resubmitted once with the new token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/preorder/preorder-cli/internal/config"
	"github.com/preorder/preorder-cli/internal/observability"
	"github.com/preorder/preorder-cli/internal/output"
	"github.com/preorder/preorder-cli/internal/version"
)

const (
	// DefaultRefreshTimeout bounds a refresh cycle independently of any caller.
	DefaultRefreshTimeout = 15 * time.Second

	defaultRetryInterval = 500 * time.Millisecond
	maxErrorBodyMessage  = 200

	// RefreshPath is the backend endpoint that exchanges a refresh token.
	RefreshPath = "/public/refresh-token"
)

// SessionStore is the client's view of the current session.
// Implementations must be safe for concurrent use. UpdateTokens keeps the
// stored refresh token when refresh is empty.
type SessionStore interface {
	AccessToken() string
	RefreshToken() string
	UpdateTokens(access, refresh string) error
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Public requests carry no bearer token and never enter the refresh
	// protocol: a 401 from them is a credential error, not an expired session.
	Public bool

	retried bool
	payload []byte
}

// Response wraps an API response.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Headers    http.Header
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	if len(r.Data) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Data, v)
}

// Client is an HTTP client for the backend API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	session        SessionStore
	refresher      *refresher
	logout         *LogoutNotifier
	limiter        *rate.Limiter
	maxRetries     int
	retryInterval  time.Duration
	refreshTimeout time.Duration
	hooks          observability.Hooks
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHooks sets observability hooks.
func WithHooks(h observability.Hooks) Option {
	return func(c *Client) {
		if h != nil {
			c.hooks = h
		}
	}
}

// WithRetryInterval sets the initial backoff interval for transient retries.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

// WithRefreshTimeout bounds each refresh cycle.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

// WithLogoutNotifier shares a logout notifier with other components.
func WithLogoutNotifier(n *LogoutNotifier) Option {
	return func(c *Client) { c.logout = n }
}

// NewClient creates a new API client.
func NewClient(cfg *config.Config, session SessionStore, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:        config.NormalizeBaseURL(cfg.BaseURL),
		session:        session,
		logout:         NewLogoutNotifier(),
		maxRetries:     cfg.MaxRetries,
		retryInterval:  defaultRetryInterval,
		refreshTimeout: DefaultRefreshTimeout,
		hooks:          observability.NoopHooks{},
		logger:         slog.New(slog.DiscardHandler),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.refresher = newRefresher(c)
	return c
}

// SetLogger sets the debug logger.
func (c *Client) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

// SetHooks replaces the observability hooks.
func (c *Client) SetHooks(h observability.Hooks) {
	if h != nil {
		c.hooks = h
	}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OnLogout subscribes fn to the logout signal. The returned func unsubscribes.
func (c *Client) OnLogout(fn func()) func() {
	return c.logout.Subscribe(fn)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodGet, Path: path})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// Send dispatches req, running the refresh protocol on an unauthorized response.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.payload == nil && req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		req.payload = payload
	}

	resp, usedToken, err := c.dispatch(ctx, req)
	if err == nil {
		return resp, nil
	}
	if req.Public || !isUnauthorized(err) {
		return nil, err
	}
	if req.retried {
		c.logger.Debug("unauthorized after refresh, giving up", "path", req.Path)
		return nil, err
	}

	if rerr := c.refresher.await(ctx, usedToken, false); rerr != nil {
		if errors.Is(rerr, errNoRefreshToken) {
			return nil, err
		}
		return nil, rerr
	}

	retry := *req
	retry.retried = true
	return c.Send(ctx, &retry)
}

// Refresh forces a refresh cycle through the single-flight path.
func (c *Client) Refresh(ctx context.Context) error {
	err := c.refresher.await(ctx, c.session.AccessToken(), true)
	if errors.Is(err, errNoRefreshToken) {
		return output.ErrAuth("No refresh token stored")
	}
	return err
}

// dispatch sends req, retrying transient failures of idempotent methods.
// It returns the access token carried by the final attempt.
func (c *Client) dispatch(ctx context.Context, req *Request) (*Response, string, error) {
	requestID := uuid.NewString()
	attempt := 0
	var usedToken string

	operation := func() (*Response, error) {
		attempt++
		token := ""
		if !req.Public {
			token = c.session.AccessToken()
		}
		usedToken = token

		resp, err := c.do(ctx, req, token, requestID, attempt)
		if err == nil {
			return resp, nil
		}
		var e *output.Error
		if errors.As(err, &e) && e.Retryable && retryable(req.Method) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	if c.maxRetries <= 0 || !retryable(req.Method) {
		resp, err := operation()
		return resp, usedToken, unwrapPermanent(err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryInterval
	expBackoff.MaxInterval = 20 * c.retryInterval

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(c.maxRetries+1)), //nolint:gosec // G115: maxRetries is validated non-negative
		backoff.WithNotify(func(err error, d time.Duration) {
			info := observability.RequestInfo{Method: req.Method, URL: c.buildURL(req), Attempt: attempt + 1, RequestID: requestID}
			c.hooks.OnRetry(ctx, info, attempt+1, err)
			c.logger.Debug("retrying request", "method", req.Method, "path", req.Path, "attempt", attempt+1, "delay", d, "error", err)
		}),
	)
	return resp, usedToken, err
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// do performs one HTTP round trip.
func (c *Client) do(ctx context.Context, req *Request, token, requestID string, attempt int) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	fullURL := c.buildURL(req)
	var bodyReader io.Reader
	if req.payload != nil {
		bodyReader = bytes.NewReader(req.payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set("User-Agent", version.UserAgent())
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if req.payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	info := observability.RequestInfo{Method: req.Method, URL: fullURL, Attempt: attempt, RequestID: requestID}
	ctx = c.hooks.OnRequestStart(ctx, info)
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{Duration: time.Since(start), Error: ctxErr})
			return nil, ctxErr
		}
		netErr := output.ErrNetwork(err)
		c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{Duration: time.Since(start), Error: netErr, Retryable: true})
		return nil, netErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		netErr := output.ErrNetwork(fmt.Errorf("reading response: %w", err))
		c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{StatusCode: resp.StatusCode, Duration: duration, Error: netErr})
		return nil, netErr
	}

	c.logger.Debug("api response", "method", req.Method, "path", req.Path, "status", resp.StatusCode, "duration", duration)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{StatusCode: resp.StatusCode, Duration: duration})
		return &Response{Data: body, StatusCode: resp.StatusCode, Headers: resp.Header}, nil
	}

	apiErr := output.ErrHTTP(resp.StatusCode, errorMessage(body), body)
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs := parseRetryAfter(resp.Header.Get("Retry-After")); secs > 0 {
			apiErr.Hint = fmt.Sprintf("Try again in %d seconds", secs)
		}
	}
	c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{StatusCode: resp.StatusCode, Duration: duration, Retryable: apiErr.Retryable})
	return nil, apiErr
}

func (c *Client) buildURL(req *Request) string {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// errorMessage extracts the backend-provided message from an error body.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		for _, field := range []string{"message", "error", "detail"} {
			if v := gjson.GetBytes(body, field); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
		if v := gjson.ParseBytes(body); v.Type == gjson.String {
			return v.String()
		}
		return ""
	}
	msg := strings.TrimSpace(string(body))
	if strings.HasPrefix(msg, "<") || len(msg) > maxErrorBodyMessage {
		return ""
	}
	return msg
}

func isUnauthorized(err error) bool {
	var e *output.Error
	return errors.As(err, &e) && e.HTTPStatus == http.StatusUnauthorized
}

// retryable reports whether method may be resent after a transient failure.
func retryable(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// parseRetryAfter parses the Retry-After header value.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return seconds
	}
	return 0
}
