// Package transport performs the HTTP exchanges of the Engine API client.
//
// A Transport sends one request and hands back the status, headers and the
// fully read response body. It knows nothing about jobs or results; status
// codes are interpreted by the caller. Connectivity failures are reported as
// *TransportError.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Request is one HTTP exchange to perform.
type Request struct {
	Method string
	// URL is absolute.
	URL    string
	Header http.Header
	// Body is streamed as-is and may be nil. The transport never closes a
	// Body it did not create.
	Body io.Reader
}

// Response is a completed exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// RequestID is the X-Request-ID sent with the request.
	RequestID string
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs HTTP exchanges.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportError means the service could not be reached or the exchange did
// not complete (refused connection, DNS failure, timeout, cancellation).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
