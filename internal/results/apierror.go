package results

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// APIError is the structured error body the service returns when it rejects
// a request.
type APIError struct {
	ErrorCode int64  `json:"errorCode,omitempty"`
	Message   string `json:"message"`
	Cause     string `json:"cause,omitempty"`
}

// Error returns the error message
func (e *APIError) Error() string {
	switch {
	case e.ErrorCode != 0 && e.Cause != "":
		return fmt.Sprintf("%s (code %d): %s", e.Message, e.ErrorCode, e.Cause)
	case e.ErrorCode != 0:
		return fmt.Sprintf("%s (code %d)", e.Message, e.ErrorCode)
	case e.Cause != "":
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	default:
		return e.Message
	}
}

// JSON renders the error for diagnostics.
func (e *APIError) JSON() string {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Message)
	}
	return string(data)
}
