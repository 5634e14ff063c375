package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/moolen/engine-client/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries a per-request identifier for correlating client
// and service logs.
const RequestIDHeader = "X-Request-ID"

// HTTP is the net/http backed Transport.
type HTTP struct {
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *logging.Logger
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the pooled client, e.g. with an httptest client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.httpClient = c
	}
}

// WithTracer sets the tracer used for per-request spans.
func WithTracer(t trace.Tracer) HTTPOption {
	return func(h *HTTP) {
		h.tracer = t
	}
}

// NewHTTP creates an HTTP transport with tuned connection pooling. The
// client sets no overall timeout; exchanges are bounded by their context.
func NewHTTP(opts ...HTTPOption) *HTTP {
	pooled := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxConnsPerHost:     20,
		MaxIdleConnsPerHost: 10, // default of 2 churns connections during paging
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	h := &HTTP{
		httpClient: &http.Client{Transport: pooled},
		tracer: otel.GetTracerProvider().Tracer("engine-client/transport"),
		logger: logging.GetLogger("engine.transport"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Do implements Transport.
func (h *HTTP) Do(ctx context.Context, r *Request) (*Response, error) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx, span := h.tracer.Start(ctx, "engine.http "+r.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL),
			attribute.String("http.request_id", requestID),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, r.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, values := range r.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		h.logger.WithContext(ctx).Debug("%s %s failed after %s: %v", r.Method, r.URL, time.Since(start), err)
		return nil, &TransportError{Method: r.Method, URL: r.URL, Err: err}
	}
	defer resp.Body.Close()

	// Read to completion so the connection can be reused.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response body")
		return nil, &TransportError{Method: r.Method, URL: r.URL, Err: fmt.Errorf("read response body: %w", err)}
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int("http.response_size", len(body)),
	)
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, resp.Status)
	}

	h.logger.WithContext(ctx).DebugWithFields(fmt.Sprintf("%s %s", r.Method, r.URL),
		logging.Field("status", resp.StatusCode),
		logging.Field("duration", time.Since(start)),
		logging.Field("request_id", requestID),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		RequestID:  requestID,
	}, nil
}
