// Package errors provides the error handling system for the dearbot skill server.
// It includes structured error types, JSON response formatting, request ID tracking,
// and integrated logging with Uber's zap logger.
//
// Errors written through this package are for operational surfaces (health,
// metrics, malformed transport use). The skill endpoint itself never writes these:
// the chat platform requires a well-formed 200 envelope on every path, so the
// respond handler converts every failure into a platform envelope instead.
//
// Basic usage:
//
//	// Simple error response
//	errors.Error(w, "Something went wrong", http.StatusBadRequest)
//
//	// Type-specific error with context
//	errors.ErrorWithType(w, "Invalid input", errors.ValidationError, http.StatusBadRequest)
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger allows setting a custom zap logger instance.
// If nil is provided, the function will do nothing to prevent
// accidentally disabling logging.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType represents different categories of errors that can occur
// in the dearbot system. Each type corresponds to a specific kind of
// error scenario and carries appropriate HTTP status codes and handling logic.
type ErrorType string

const (
	// ValidationError represents input validation failures
	ValidationError ErrorType = "validation_error"

	// InternalError represents unexpected internal server errors
	InternalError ErrorType = "internal_error"

	// ConfigError represents configuration-related errors
	ConfigError ErrorType = "config_error"

	// ProviderError represents errors from the completion provider
	ProviderError ErrorType = "provider_error"

	// RateLimitError represents rate limiting errors
	RateLimitError ErrorType = "rate_limit_error"

	// NotFoundError represents resource not found errors
	NotFoundError ErrorType = "not_found"
)

// BotError is our custom error type that implements the error interface
// and provides additional context about the error. It is designed to be
// serialized to JSON for API responses while maintaining internal error
// context for logging and debugging.
type BotError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	// err is the underlying error (not exposed in JSON)
	err error
}

// Error implements the error interface. It returns a string that
// combines the error type, message, and underlying error (if any).
func (e *BotError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, implementing the unwrap
// interface for error chains.
func (e *BotError) Unwrap() error {
	return e.err
}

// Is implements error matching for errors.Is, allowing type-based
// error matching while ignoring other fields.
func (e *BotError) Is(target error) bool {
	t, ok := target.(*BotError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WriteError formats and writes a BotError to an http.ResponseWriter.
// It sets the appropriate content type and status code, then writes
// the error as a JSON response.
func WriteError(w http.ResponseWriter, err *BotError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	if encErr := json.NewEncoder(w).Encode(err); encErr != nil {
		DefaultLogger.Error("failed to encode error response", zap.Error(encErr))
	}
}

// Error is a drop-in replacement for http.Error that creates and writes
// a BotError with the InternalError type. It automatically includes
// the request ID from the response headers if available.
func Error(w http.ResponseWriter, message string, code int) {
	requestID := w.Header().Get("X-Request-ID")
	err := &BotError{
		Type:      InternalError,
		Message:   message,
		Code:      code,
		RequestID: requestID,
	}
	WriteError(w, err)
}

// ErrorWithType is like Error but allows specifying the error type.
// This is useful when you want to indicate specific error categories
// to the client while maintaining the simple interface of http.Error.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	requestID := w.Header().Get("X-Request-ID")
	err := &BotError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
	}
	WriteError(w, err)
}
