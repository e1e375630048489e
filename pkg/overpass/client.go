package overpass

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/geosint/overpassmcp/pkg/geom"
	"github.com/geosint/overpassmcp/pkg/monitoring"
	"github.com/geosint/overpassmcp/pkg/tracing"
)

const (
	// DefaultUserAgent is sent on every request
	DefaultUserAgent = "overpassmcp/0.1.0"

	// DefaultMaxConcurrent bounds in-flight queries per client
	DefaultMaxConcurrent = 5
)

// Client talks to an Overpass API endpoint. It owns its transport,
// permit pool and rate limiter; construct one and pass it by reference
// to all callers.
type Client struct {
	http       *http.Client
	sem        *semaphore.Weighted
	limiter    *rate.Limiter
	statusMemo *expirable.LRU[string, bool]
	decoder    *geom.Decoder
	logger     *slog.Logger

	userAgent         string
	maxConcurrent     int64
	slotPollInterval  time.Duration
	slotMaxWait       time.Duration
	probeTimeout      time.Duration
	statusMemoTTL     time.Duration
	defaultMaxRetries int
	defaultRetryDelay time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying transport, typically with a
// test double.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the client's logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithUserAgent sets the User-Agent string
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxConcurrent sets the permit pool size for concurrent queries
func WithMaxConcurrent(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithRateLimit sets the request pacing toward the Overpass host
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithSlotPolicy sets the status-poll interval and the maximum time to
// wait for a free slot.
func WithSlotPolicy(pollInterval, maxWait time.Duration) Option {
	return func(c *Client) {
		if pollInterval > 0 {
			c.slotPollInterval = pollInterval
		}
		if maxWait > 0 {
			c.slotMaxWait = maxWait
		}
	}
}

// WithStatusMemoTTL sets how long a status-probe outcome is reused
// across concurrent queries. Zero disables the memo.
func WithStatusMemoTTL(ttl time.Duration) Option {
	return func(c *Client) { c.statusMemoTTL = ttl }
}

// WithRetryPolicy sets the attempt budget and the fixed delay between
// attempts for specs that do not carry their own.
func WithRetryPolicy(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		if maxRetries > 0 {
			c.defaultMaxRetries = maxRetries
		}
		if delay > 0 {
			c.defaultRetryDelay = delay
		}
	}
}

// NewClient creates a Client with connection pooling and the default
// admission policy.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 180 * time.Second,
		},
		limiter:           rate.NewLimiter(rate.Limit(1), 1),
		logger:            slog.Default(),
		userAgent:         DefaultUserAgent,
		maxConcurrent:     DefaultMaxConcurrent,
		slotPollInterval:  DefaultSlotPollInterval,
		slotMaxWait:       DefaultSlotMaxWait,
		probeTimeout:      DefaultProbeTimeout,
		statusMemoTTL:     DefaultStatusMemoTTL,
		defaultMaxRetries: DefaultMaxRetries,
		defaultRetryDelay: DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.sem = semaphore.NewWeighted(c.maxConcurrent)
	if c.statusMemoTTL > 0 {
		c.statusMemo = expirable.NewLRU[string, bool](8, nil, c.statusMemoTTL)
	}
	c.decoder = geom.NewDecoder(c.logger)

	return c
}

// Run executes a single query. Configuration errors are returned
// directly; transport-level failures end up in the result.
func (c *Client) Run(ctx context.Context, spec QuerySpec) (QueryResult, error) {
	results, err := c.RunAll(ctx, []QuerySpec{spec})
	if err != nil {
		return QueryResult{}, err
	}
	return results[0], nil
}

// RunAll executes every spec with bounded concurrency and returns one
// result per spec, in input order. Every spec is validated and rendered
// up front, so a configuration error fails the batch before any network
// traffic. Once dispatched, a single query's failure never aborts its
// siblings.
func (c *Client) RunAll(ctx context.Context, specs []QuerySpec) ([]QueryResult, error) {
	type prepared struct {
		spec  QuerySpec
		query string
	}

	queries := make([]prepared, len(specs))
	for i, spec := range specs {
		if spec.MaxRetries <= 0 {
			spec.MaxRetries = c.defaultMaxRetries
		}
		if spec.RetryDelay <= 0 {
			spec.RetryDelay = c.defaultRetryDelay
		}
		spec = spec.withDefaults()
		query, err := spec.Build()
		if err != nil {
			return nil, err
		}
		queries[i] = prepared{spec: spec, query: query}
	}

	results := make([]QueryResult, len(specs))
	var wg sync.WaitGroup
	for i := range queries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.runQuery(ctx, queries[i].spec, queries[i].query)
		}(i)
	}
	wg.Wait()

	return results, nil
}

// runQuery takes a permit, waits for a slot and executes. The permit is
// released on every exit path.
func (c *Client) runQuery(ctx context.Context, spec QuerySpec, query string) QueryResult {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return failedResult(err)
	}
	defer c.sem.Release(1)

	if err := c.WaitForSlot(ctx, spec.Server); err != nil {
		return failedResult(err)
	}

	return c.execute(ctx, spec, query)
}

// execute performs up to MaxRetries sequential attempts. Retryable
// statuses (429, 500, 503) and transport errors sleep a fixed
// RetryDelay before the next attempt; any other non-200 status is
// terminal and leaves the retry budget untouched. The fixed delay is
// deliberate: the Overpass load signal is the slot gate, not backoff.
func (c *Client) execute(ctx context.Context, spec QuerySpec, query string) QueryResult {
	ctx, span := tracing.StartSpan(ctx, "overpass.query",
		trace.WithAttributes(
			attribute.String(tracing.AttrServerURL, spec.Server),
			attribute.String(tracing.AttrQueryOutput, string(spec.Output)),
			attribute.Int(tracing.AttrRetryMaxAttempts, spec.MaxRetries),
		),
	)
	defer span.End()

	logger := c.logger.With("server", spec.Server, "output", spec.Output)
	var lastErr error

	for attempt := 0; attempt < spec.MaxRetries; attempt++ {
		if attempt > 0 {
			tracing.AddEvent(ctx, "retry_attempt",
				trace.WithAttributes(
					attribute.Int("attempt", attempt+1),
					attribute.String("error", fmt.Sprintf("%v", lastErr)),
				),
			)
			logger.Info("retrying query",
				"attempt", attempt+1,
				"max_attempts", spec.MaxRetries,
				"delay", spec.RetryDelay,
				"last_error", lastErr,
			)
			monitoring.RecordRetry()

			select {
			case <-time.After(spec.RetryDelay):
			case <-ctx.Done():
				span.SetStatus(codes.Error, "query cancelled")
				return failedResult(ctx.Err())
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return failedResult(err)
		}

		start := time.Now()
		resp, err := c.get(ctx, spec.Server, query)
		if err != nil {
			lastErr = NewError(ErrNetworkError, err.Error())
			logger.Warn("query request failed", "error", err, "attempt", attempt+1)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", "error", closeErr)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				lastErr = NewError(ErrNetworkError, "reading response body: "+readErr.Error())
				logger.Warn("query response truncated", "error", readErr, "attempt", attempt+1)
				continue
			}
			span.SetAttributes(
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int(tracing.AttrRetryAttempts, attempt+1),
			)
			span.SetStatus(codes.Ok, "")
			monitoring.RecordQuery(string(spec.Output), true, time.Since(start))
			logger.Debug("query successful", "attempts", attempt+1, "bytes", len(body))
			result := c.assemble(spec, body)
			if result.Kind == KindRecords {
				span.SetAttributes(attribute.Int(tracing.AttrQueryElements, len(result.Records)))
			}
			return result

		case retryableStatus(resp.StatusCode):
			lastErr = ServiceError(resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
			logger.Warn("retryable status from Overpass", "status", resp.StatusCode, "attempt", attempt+1)

		default:
			// Terminal response: fail now, consume no retry budget.
			termErr := ServiceError(resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode)).WithQuery(query)
			span.RecordError(termErr)
			span.SetStatus(codes.Error, "terminal response")
			monitoring.RecordQuery(string(spec.Output), false, time.Since(start))
			logger.Error("query failed", "status", resp.StatusCode, "attempt", attempt+1)
			return failedResult(termErr)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "retry budget exhausted")
	monitoring.RecordQuery(string(spec.Output), false, 0)
	logger.Error("query retries exhausted", "max_attempts", spec.MaxRetries, "last_error", lastErr)

	if overpassErr, ok := lastErr.(*Error); ok {
		return failedResult(overpassErr.WithGuidance("Retry budget exhausted. " + overpassErr.Guidance))
	}
	return failedResult(NewError(ErrServiceUnavailable, "retry budget exhausted").
		WithGuidance("The query failed after all attempts. Please try again later."))
}

// get issues one GET with the query text as the data parameter
func (c *Client) get(ctx context.Context, server, query string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server, nil)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("data", query)
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	return c.http.Do(req)
}
