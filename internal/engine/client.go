// Package engine is the client for the Engine API: it drives the job
// lifecycle (create, upload, close) and reads results back page by page.
//
// A typical session:
//
//	client, err := engine.NewClient("http://localhost:8080/engine/v2")
//	id, err := client.CreateJob(ctx, job.FarequoteConfiguration())
//	summary, err := client.UploadData(ctx, id, file, false)
//	err = client.CloseJob(ctx, id)
//	all, err := client.Buckets(id).Take(100).Walk(ctx)
//
// Every operation returns its failure explicitly. LastError additionally
// mirrors the most recent API-level failure; it is a single slot shared by
// all jobs of a client, so callers driving several jobs concurrently should
// rely on returned errors instead.
package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/moolen/engine-client/internal/codec"
	"github.com/moolen/engine-client/internal/logging"
	"github.com/moolen/engine-client/internal/results"
	"github.com/moolen/engine-client/internal/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBaseURL is where a locally installed service listens.
	DefaultBaseURL = "http://localhost:8080/engine/v2"

	defaultRequestTimeout   = 60 * time.Second
	defaultFetchConcurrency = 4
)

// Client talks to one Engine API endpoint.
type Client struct {
	baseURL          string
	base             *url.URL
	transport        transport.Transport
	codec            codec.Codec
	metrics          *Metrics
	logger           *logging.Logger
	tracer           trace.Tracer
	cache            *bucketCache
	fetchConcurrency int
	requestTimeout   time.Duration

	mu        sync.Mutex
	lastError *results.APIError
	closed    map[string]struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the default HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithCodec replaces the JSON codec.
func WithCodec(cd codec.Codec) Option {
	return func(c *Client) {
		c.codec = cd
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithBucketCache caches single-bucket lookups. size <= 0 disables the cache.
func WithBucketCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		if size <= 0 {
			c.cache = nil
			return
		}
		c.cache = newBucketCache(size, ttl)
	}
}

// WithFetchConcurrency bounds the parallel lookups of FetchBuckets.
func WithFetchConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.fetchConcurrency = n
		}
	}
}

// WithTracer sets the tracer for per-operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithRequestTimeout bounds each exchange except uploads, which stream for
// as long as the caller's context allows. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// NewClient creates a client for the service at baseURL, e.g.
// "http://localhost:8080/engine/v2".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: must be an absolute http(s) URL", baseURL)
	}

	c := &Client{
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		base:             u,
		codec:            codec.NewJSON(),
		logger:           logging.GetLogger("engine.client"),
		fetchConcurrency: defaultFetchConcurrency,
		requestTimeout:   defaultRequestTimeout,
		closed:           make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.GetTracerProvider().Tracer("engine-client")
	}
	if c.transport == nil {
		c.transport = transport.NewHTTP(transport.WithTracer(c.tracer))
	}

	return c, nil
}

// BaseURL returns the service root all endpoints are relative to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LastError returns the most recent API-level failure, or nil if the last
// operation did not produce one. Each operation clears it on entry.
func (c *Client) LastError() *results.APIError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Client) resetLastError() {
	c.mu.Lock()
	c.lastError = nil
	c.mu.Unlock()
}

func (c *Client) setLastError(e *results.APIError) {
	c.mu.Lock()
	c.lastError = e
	c.mu.Unlock()
}

func (c *Client) markClosed(jobID string) {
	c.mu.Lock()
	c.closed[jobID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) forget(jobID string) {
	c.mu.Lock()
	delete(c.closed, jobID)
	c.mu.Unlock()
}

func (c *Client) isClosed(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.closed[jobID]
	return ok
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(query url.Values, segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	return b.String()
}

// resolve turns a continuation token into an absolute URL. Absolute and
// path-absolute tokens resolve against the host the way a browser would;
// bare relative tokens ("results/x/buckets?skip=4") are taken relative to
// the API root.
func (c *Client) resolve(token string) (string, error) {
	u, err := url.Parse(token)
	if err != nil {
		return "", fmt.Errorf("invalid nextPage %q: %w", token, err)
	}
	if u.IsAbs() || strings.HasPrefix(u.Path, "/") || u.Host != "" {
		return c.base.ResolveReference(u).String(), nil
	}
	return c.baseURL + "/" + token, nil
}

// exchange performs one request bounded by the request timeout.
func (c *Client) exchange(ctx context.Context, op, method, rawURL string, header http.Header, body io.Reader) (*transport.Response, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	return c.stream(ctx, op, method, rawURL, header, body)
}

// stream performs one request and records metrics. Only transport failures
// are returned as errors; status codes are left to the caller.
func (c *Client) stream(ctx context.Context, op, method, rawURL string, header http.Header, body io.Reader) (*transport.Response, error) {
	start := time.Now()
	resp, err := c.transport.Do(ctx, &transport.Request{
		Method: method,
		URL:    rawURL,
		Header: header,
		Body:   body,
	})
	if err != nil {
		c.metrics.observeRequest(op, 0, time.Since(start))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.metrics.observeRequest(op, resp.StatusCode, time.Since(start))
	return resp, nil
}

// requestError builds the RequestError for a rejected request and mirrors
// its APIError into LastError. Bodies that are not an APIError are wrapped
// into one carrying the raw text.
func (c *Client) requestError(op string, resp *transport.Response) *RequestError {
	apiErr := &results.APIError{}
	if err := c.codec.Decode(resp.Body, apiErr); err != nil || apiErr.Message == "" {
		msg := strings.TrimSpace(string(resp.Body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		apiErr = &results.APIError{Message: msg}
	}
	c.setLastError(apiErr)
	c.logger.WarnWithFields(op+" rejected",
		logging.Field("status", resp.StatusCode),
		logging.Field("request_id", resp.RequestID),
		logging.Field("error", apiErr.JSON()),
	)
	return &RequestError{Op: op, StatusCode: resp.StatusCode, API: apiErr}
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
