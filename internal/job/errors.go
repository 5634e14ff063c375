package job

import (
	"errors"
	"fmt"
)

// ConfigurationError is a client-side validation failure. It is always
// returned before anything is sent to the service.
type ConfigurationError struct {
	// Field is the JSON path of the offending value, e.g.
	// "analysisConfig.detectors[0].fieldName". Empty for whole-object errors.
	Field   string
	Message string
}

// NewConfigurationError creates a ConfigurationError for field.
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Error returns the error message
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid job configuration: " + e.Message
	}
	return fmt.Sprintf("invalid job configuration: %s: %s", e.Field, e.Message)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// AsConfigurationError unwraps err into a ConfigurationError.
func AsConfigurationError(err error) (*ConfigurationError, bool) {
	var cfgErr *ConfigurationError
	ok := errors.As(err, &cfgErr)
	return cfgErr, ok
}
