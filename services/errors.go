package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeMissingUserAgent ErrorType = "missing_user_agent"
	ErrorTypeRemoteFetch      ErrorType = "remote_fetch"
	ErrorTypeDeserialization  ErrorType = "deserialization"
	ErrorTypeUnsupportedHost  ErrorType = "unsupported_host"
	ErrorTypeConfiguration    ErrorType = "configuration"
)

// FilterError represents a structured error with additional context
type FilterError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *FilterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *FilterError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *FilterError) Is(target error) bool {
	t, ok := target.(*FilterError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *FilterError) WithDetail(key string, value interface{}) *FilterError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewFilterError creates a new filter error
func NewFilterError(errType ErrorType, message string, err error) *FilterError {
	return &FilterError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Filter error variables

var (
	// Precondition errors
	ErrMissingUserAgent = NewFilterError(ErrorTypeMissingUserAgent, "request carries no User-Agent header", nil)

	// Remote fetch errors
	ErrRulesetFetchFailed       = NewFilterError(ErrorTypeRemoteFetch, "ruleset fetch failed", nil)
	ErrAuthorizationFetchFailed = NewFilterError(ErrorTypeRemoteFetch, "authorization call failed", nil)
	ErrAccessLogDeliveryFailed  = NewFilterError(ErrorTypeRemoteFetch, "access log delivery failed", nil)
	ErrVAIFetchFailed           = NewFilterError(ErrorTypeRemoteFetch, "verification artifact fetch failed", nil)

	// Deserialization errors
	ErrMalformedRuleset     = NewFilterError(ErrorTypeDeserialization, "ruleset payload cannot be decoded", nil)
	ErrMalformedRulePattern = NewFilterError(ErrorTypeDeserialization, "rule pattern cannot be decoded", nil)

	// Initialization errors
	ErrUnsupportedHost      = NewFilterError(ErrorTypeUnsupportedHost, "unrecognized host runtime", nil)
	ErrInvalidConfiguration = NewFilterError(ErrorTypeConfiguration, "invalid configuration", nil)
)

// Error type checking helper functions

// IsMissingUserAgentError checks if an error is a missing user-agent error
func IsMissingUserAgentError(err error) bool {
	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return filterErr.Type == ErrorTypeMissingUserAgent
	}
	return false
}

// IsRemoteFetchError checks if an error is a remote fetch error
func IsRemoteFetchError(err error) bool {
	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return filterErr.Type == ErrorTypeRemoteFetch
	}
	return false
}

// IsDeserializationError checks if an error is a deserialization error
func IsDeserializationError(err error) bool {
	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return filterErr.Type == ErrorTypeDeserialization
	}
	return false
}

// IsUnsupportedHostError checks if an error is an unsupported host error
func IsUnsupportedHostError(err error) bool {
	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return filterErr.Type == ErrorTypeUnsupportedHost
	}
	return false
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return filterErr.Type == ErrorTypeConfiguration
	}
	return false
}

// GetErrorType returns the ErrorType of a filter error, or empty string if not a filter error
func GetErrorType(err error) ErrorType {
	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return filterErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a filter error, or nil if not a filter error
func GetErrorDetails(err error) map[string]interface{} {
	var filterErr *FilterError
	if errors.As(err, &filterErr) {
		return filterErr.Details
	}
	return nil
}

// WrapRemoteFetch wraps an error as a remote fetch error
func WrapRemoteFetch(message string, err error) error {
	return NewFilterError(ErrorTypeRemoteFetch, message, err)
}

// WrapDeserialization wraps an error as a deserialization error
func WrapDeserialization(message string, err error) error {
	return NewFilterError(ErrorTypeDeserialization, message, err)
}
