package shopify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/kitchenartsandletters/shopify-reports/internal/metrics"
)

const (
	// RequestsPerSecond caps outbound GraphQL calls. Shopify's Admin API
	// throttles bursts well above this, but staying at 2/s keeps the
	// cost bucket from ever draining during a full catalog walk.
	RequestsPerSecond = 2

	maxRetries = 3
	retryDelay = time.Second

	httpRequestTimeout = 60 * time.Second
)

var ErrQueryFailed = errors.New("graphql query failed after retries")

// Breaker gates outbound requests per endpoint key.
type Breaker interface {
	Allow(key string) error
	RecordSuccess(key string)
	RecordFailure(key string)
}

// Metrics receives per-request instrumentation.
type Metrics interface {
	ShopifyRequestCompleted(statusClass string, duration time.Duration)
}

type noopBreaker struct{}

func (noopBreaker) Allow(string) error   { return nil }
func (noopBreaker) RecordSuccess(string) {}
func (noopBreaker) RecordFailure(string) {}

type noopMetrics struct{}

func (noopMetrics) ShopifyRequestCompleted(string, time.Duration) {}

// Client talks to the Shopify Admin GraphQL API.
type Client struct {
	endpoint    string
	accessToken string

	limiter *rate.Limiter
	breaker Breaker
	metrics Metrics

	httpClient *http.Client
	retryDelay time.Duration
	clock      func() time.Time
}

type Option func(*Client)

// WithEndpoint overrides the computed GraphQL endpoint URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

func WithBreaker(b Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// New creates a client for the given shop. shopURL is the bare shop host
// (e.g. "example.myshopify.com"), apiVersion the Admin API version.
func New(shopURL, accessToken, apiVersion string, opts ...Option) *Client {
	c := &Client{
		endpoint:    fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shopURL, apiVersion),
		accessToken: accessToken,
		limiter:     rate.NewLimiter(rate.Limit(RequestsPerSecond), 1),
		breaker:     noopBreaker{},
		metrics:     noopMetrics{},
		httpClient:  &http.Client{Timeout: httpRequestTimeout},
		retryDelay:  retryDelay,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the GraphQL endpoint URL the client targets.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// Run executes a GraphQL query with retries and returns the "data" object.
// Non-2xx responses and GraphQL-level errors both count as failed attempts.
func (c *Client) Run(ctx context.Context, query string, variables map[string]any) (gjson.Result, error) {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return gjson.Result{}, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, err
		}

		if err := c.breaker.Allow(c.endpoint); err != nil {
			return gjson.Result{}, err
		}

		data, err := c.runOnce(ctx, query, variables)
		if err == nil {
			c.breaker.RecordSuccess(c.endpoint)
			return data, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return gjson.Result{}, err
		}

		c.breaker.RecordFailure(c.endpoint)
		log.Printf("shopify: attempt %d/%d failed: %v", attempt, maxRetries, err)
		lastErr = err
	}

	return gjson.Result{}, fmt.Errorf("%w: %v", ErrQueryFailed, lastErr)
}

func (c *Client) runOnce(ctx context.Context, query string, variables map[string]any) (gjson.Result, error) {
	start := c.clock()

	var body string
	var statusCode int
	err := requests.
		URL(c.endpoint).
		Client(c.httpClient).
		Header("X-Shopify-Access-Token", c.accessToken).
		BodyJSON(graphqlRequest{Query: query, Variables: variables}).
		AddValidator(func(resp *http.Response) error {
			statusCode = resp.StatusCode
			return nil
		}).
		ToString(&body).
		Fetch(ctx)

	duration := c.clock().Sub(start)

	if err != nil {
		c.metrics.ShopifyRequestCompleted(metrics.ClassifyStatus(0, err), duration)
		return gjson.Result{}, err
	}

	c.metrics.ShopifyRequestCompleted(metrics.ClassifyStatus(statusCode, nil), duration)

	if statusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("status %d: %s", statusCode, truncate(body, 200))
	}
	if !gjson.Valid(body) {
		return gjson.Result{}, errors.New("invalid json response")
	}
	parsed := gjson.Parse(body)
	if errs := parsed.Get("errors"); errs.Exists() {
		return gjson.Result{}, fmt.Errorf("graphql errors: %s", truncate(errs.Raw, 200))
	}
	return parsed.Get("data"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
