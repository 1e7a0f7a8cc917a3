package errors

import (
	"net/http"
)

// NewError creates a new BotError with the given parameters.
// It is a general-purpose constructor that allows full control over
// the error's fields. For most cases, you should use one of the
// specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "completion backend unreachable", 500, "req_123", nil, upstreamErr)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *BotError {
	return &BotError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError creates a validation error with appropriate defaults.
// Use this for any request validation failures, such as:
//   - Invalid input formats
//   - Missing required fields
//   - Value constraint violations
//
// Example:
//
//	err := NewValidationError("req_123", "Invalid payload", map[string]interface{}{
//	    "field": "userRequest",
//	    "error": "must be an object",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *BotError {
	return &BotError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewRateLimitError creates a rate limit error with appropriate defaults.
// Use this when a client has exceeded their quota or rate limits.
//
// Example:
//
//	err := NewRateLimitError("req_123", 30)
func NewRateLimitError(requestID string, retryAfter int) *BotError {
	return &BotError{
		Type:      RateLimitError,
		Message:   "Rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details: map[string]interface{}{
			"retry_after": retryAfter,
		},
	}
}

// NewProviderError creates a provider error with appropriate defaults.
// Use this when the completion provider encounters an error, such as:
//   - Provider API errors
//   - Model unavailability
//   - Upstream timeouts
//
// Example:
//
//	err := NewProviderError("req_123", "Completion timed out", upstreamErr)
func NewProviderError(requestID string, message string, err error) *BotError {
	return &BotError{
		Type:      ProviderError,
		Message:   message,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewConfigError creates a configuration error with appropriate defaults.
// Use this when the server is misconfigured, such as a missing API credential.
func NewConfigError(requestID string, message string, err error) *BotError {
	return &BotError{
		Type:      ConfigError,
		Message:   message,
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

// NewInternalError creates an internal server error with appropriate defaults.
// Use this for unexpected errors that are not covered by other error types:
//   - Panics
//   - Unexpected system failures
//
// Example:
//
//	err := NewInternalError("req_123", panicErr)
func NewInternalError(requestID string, err error) *BotError {
	return &BotError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}
