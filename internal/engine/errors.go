package engine

import (
	"errors"
	"fmt"

	"github.com/moolen/engine-client/internal/job"
	"github.com/moolen/engine-client/internal/results"
	"github.com/moolen/engine-client/internal/transport"
)

// ErrJobNotOpen is returned when data is uploaded to a job this client has
// closed, or last saw as closed through GetJob. No request is sent.
var ErrJobNotOpen = job.NewConfigurationError("jobId", "job is not open")

// ErrStalledPage is returned by a walk when a page holds no documents yet
// points at a next page; following it would never terminate.
var ErrStalledPage = errors.New("page has no documents but a nextPage")

// RequestError means the service was reached and rejected the request.
type RequestError struct {
	// Op is the client operation, e.g. "create job".
	Op         string
	StatusCode int
	API        *results.APIError
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: service returned %d: %s", e.Op, e.StatusCode, e.API.Error())
}

// Unwrap exposes the APIError to errors.As.
func (e *RequestError) Unwrap() error {
	return e.API
}

// AsRequestError returns the *RequestError in err's chain, if any.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// DecodeError means a response body did not decode or broke a result
// invariant.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsTransportError reports whether the service could not be reached.
func IsTransportError(err error) bool {
	return transport.IsTransportError(err)
}
