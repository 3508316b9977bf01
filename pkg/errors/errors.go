// Package errors provides the error taxonomy shared by the engines, the data
// providers and the HTTP layer.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// Base Error Types
// =============================================================================

// Error is the base error type for all SDK errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "analyzer.Analyze")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindNetwork
	KindAnalysis
	KindTimeout
	KindRateLimit
	KindConfiguration
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindNetwork:
		return "network"
	case KindAnalysis:
		return "analysis"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindConfiguration:
		return "configuration"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			if e.Message == "" {
				return fmt.Sprintf("%s: %v", e.Op, e.Err)
			}
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		if e.Message == "" {
			return e.Op
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// =============================================================================
// Plugin Error
// =============================================================================

// PluginError records which registered plugin failed.
// Index is the zero-based registration index.
type PluginError struct {
	Index  int
	Plugin string
	Err    error
}

// Error implements the error interface.
func (e *PluginError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("plugin %d (%s) failed", e.Index, e.Plugin)
	}
	return e.Err.Error()
}

// Unwrap returns the plugin's own error.
func (e *PluginError) Unwrap() error {
	return e.Err
}

// Analysis builds a KindAnalysis error for a failed scanner.
// The message reads "Vulnerability scanner <index> failed: <cause>".
func Analysis(op string, index int, plugin string, err error) error {
	return &Error{
		Kind:    KindAnalysis,
		Op:      op,
		Message: fmt.Sprintf("Vulnerability scanner %d failed", index),
		Err:     &PluginError{Index: index, Plugin: plugin, Err: err},
	}
}

// PluginIndex returns the registration index of the plugin that caused err.
func PluginIndex(err error) (int, bool) {
	var pe *PluginError
	if errors.As(err, &pe) {
		return pe.Index, true
	}
	return 0, false
}

// =============================================================================
// Constructors
// =============================================================================

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op or Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with additional context.
// The kind of the wrapped error is preserved.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: GetKind(err), Op: op, Err: err}
}

// WrapWithMessage wraps an error with a message.
func WrapWithMessage(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: GetKind(err), Message: message, Err: err}
}

// FromContext converts a context error into a KindTimeout error when the
// deadline passed and a KindInternal error when the context was cancelled.
// It returns nil when err is nil.
func FromContext(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Op: op, Message: "Operation timed out", Err: err}
	default:
		return &Error{Kind: KindInternal, Op: op, Message: "operation cancelled", Err: err}
	}
}

// Is, As and Unwrap re-export the standard library helpers so callers only
// need one errors import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// =============================================================================
// Error Checkers
// =============================================================================

// GetKind returns the Kind of the outermost *Error with a known kind,
// or KindUnknown.
func GetKind(err error) Kind {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return KindUnknown
}

// IsNotFoundError checks if the error is a not found error.
func IsNotFoundError(err error) bool {
	return GetKind(err) == KindNotFound
}

// IsNetworkError checks if the error is a network error.
func IsNetworkError(err error) bool {
	return GetKind(err) == KindNetwork
}

// IsTimeoutError checks if the error is a timeout error.
func IsTimeoutError(err error) bool {
	return GetKind(err) == KindTimeout
}

// IsRateLimitError checks if the error is a rate limit error.
func IsRateLimitError(err error) bool {
	return GetKind(err) == KindRateLimit
}

// IsValidationError checks if the error is a validation error.
func IsValidationError(err error) bool {
	return GetKind(err) == KindValidation
}

// IsAnalysisError checks if the error is a plugin failure.
func IsAnalysisError(err error) bool {
	return GetKind(err) == KindAnalysis
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	return IsRateLimitError(err) || IsNetworkError(err) || IsTimeoutError(err)
}

// HTTPStatus maps an error to the HTTP status the API layer responds with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch GetKind(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNetwork:
		return http.StatusBadGateway
	case KindAnalysis:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// Common Errors
// =============================================================================

var (
	// ErrContractNotFound is returned when an address holds no contract code.
	ErrContractNotFound = &Error{Kind: KindNotFound, Message: "contract not found"}

	// ErrTransactionNotFound is returned when a transaction hash is unknown.
	ErrTransactionNotFound = &Error{Kind: KindNotFound, Message: "transaction not found"}

	// ErrNotConnected is returned when the chain client is not connected.
	ErrNotConnected = &Error{Kind: KindNetwork, Message: "not connected"}

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = &Error{Kind: KindTimeout, Message: "operation timed out"}

	// ErrRateLimited is returned when rate limited.
	ErrRateLimited = &Error{Kind: KindRateLimit, Message: "rate limited"}

	// ErrInvalidConfig is returned for invalid configuration.
	ErrInvalidConfig = &Error{Kind: KindConfiguration, Message: "invalid configuration"}
)
