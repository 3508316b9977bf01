package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindUnknown, "unknown"},
		{KindValidation, "validation"},
		{KindNotFound, "not_found"},
		{KindNetwork, "network"},
		{KindAnalysis, "analysis"},
		{KindTimeout, "timeout"},
		{KindRateLimit, "rate_limit"},
		{KindConfiguration, "configuration"},
		{KindInternal, "internal"},
		{Kind(99), "unknown"}, // Invalid kind
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("Kind.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "op and message and err",
			err:      &Error{Op: "provider.GetContract", Message: "rpc failed", Err: fmt.Errorf("connection refused")},
			expected: "provider.GetContract: rpc failed: connection refused",
		},
		{
			name:     "op and err",
			err:      &Error{Op: "provider.GetContract", Err: fmt.Errorf("connection refused")},
			expected: "provider.GetContract: connection refused",
		},
		{
			name:     "op and message",
			err:      &Error{Op: "provider.GetContract", Message: "rpc failed"},
			expected: "provider.GetContract: rpc failed",
		},
		{
			name:     "message and err",
			err:      &Error{Message: "rpc failed", Err: fmt.Errorf("connection refused")},
			expected: "rpc failed: connection refused",
		},
		{
			name:     "message only",
			err:      &Error{Message: "rpc failed"},
			expected: "rpc failed",
		},
		{
			name:     "empty error",
			err:      &Error{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err1 := &Error{Kind: KindNotFound, Message: "contract missing"}
	err2 := &Error{Kind: KindNotFound, Message: "different message"}
	err3 := &Error{Kind: KindNetwork, Message: "contract missing"}

	if !err1.Is(err2) {
		t.Error("Errors with same Kind should match")
	}
	if err1.Is(err3) {
		t.Error("Errors with different Kind should not match")
	}
	if err1.Is(fmt.Errorf("some error")) {
		t.Error("Should not match non-Error type")
	}

	wrapped := fmt.Errorf("lookup: %w", err1)
	if !errors.Is(wrapped, ErrContractNotFound) {
		t.Error("errors.Is should match sentinel by kind through wrapping")
	}
}

func TestE_Constructor(t *testing.T) {
	underlying := fmt.Errorf("underlying")
	err := E(KindNetwork, "provider.GetBalance", "rpc failed", underlying)

	e, ok := err.(*Error)
	if !ok {
		t.Fatal("E() should return *Error")
	}
	if e.Kind != KindNetwork {
		t.Errorf("Kind = %v, want %v", e.Kind, KindNetwork)
	}
	if e.Op != "provider.GetBalance" {
		t.Errorf("Op = %q, want provider.GetBalance", e.Op)
	}
	if e.Message != "rpc failed" {
		t.Errorf("Message = %q, want rpc failed", e.Message)
	}
	if e.Err != underlying {
		t.Error("E(error) should set Err")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "op") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if WrapWithMessage(nil, "msg") != nil {
		t.Error("WrapWithMessage(nil) should return nil")
	}

	err := Wrap(ErrContractNotFound, "provider.IsContract")
	if GetKind(err) != KindNotFound {
		t.Errorf("Wrap should preserve kind, got %v", GetKind(err))
	}
	if !strings.HasPrefix(err.Error(), "provider.IsContract: ") {
		t.Errorf("Wrap error = %q", err.Error())
	}

	err = WrapWithMessage(fmt.Errorf("plain"), "context")
	if GetKind(err) != KindUnknown {
		t.Errorf("plain errors wrap to KindUnknown, got %v", GetKind(err))
	}
}

func TestGetKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", fmt.Errorf("x"), KindUnknown},
		{"direct", &Error{Kind: KindTimeout}, KindTimeout},
		{"fmt wrapped", fmt.Errorf("ctx: %w", &Error{Kind: KindRateLimit}), KindRateLimit},
		{"unknown outer, known inner", &Error{Op: "op", Err: &Error{Kind: KindNetwork}}, KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetKind(tt.err); got != tt.want {
				t.Errorf("GetKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalysis(t *testing.T) {
	cause := fmt.Errorf("rpc down")
	err := Analysis("analyzer.Analyze", 1, "reentrancy", cause)

	if !IsAnalysisError(err) {
		t.Errorf("GetKind() = %v, want analysis", GetKind(err))
	}
	if !strings.Contains(err.Error(), "Vulnerability scanner 1 failed: rpc down") {
		t.Errorf("Error() = %q", err.Error())
	}

	idx, ok := PluginIndex(err)
	if !ok || idx != 1 {
		t.Errorf("PluginIndex() = %d, %v, want 1, true", idx, ok)
	}
	if !errors.Is(err, cause) {
		t.Error("Analysis error should unwrap to the plugin's error")
	}

	var pe *PluginError
	if !errors.As(err, &pe) || pe.Plugin != "reentrancy" {
		t.Errorf("PluginError = %+v", pe)
	}

	if _, ok := PluginIndex(fmt.Errorf("other")); ok {
		t.Error("PluginIndex should be false for unrelated errors")
	}
}

func TestFromContext(t *testing.T) {
	if FromContext("op", nil) != nil {
		t.Error("FromContext(nil) should be nil")
	}

	err := FromContext("analyzer.Analyze", context.DeadlineExceeded)
	if !IsTimeoutError(err) {
		t.Errorf("deadline should map to timeout, got %v", GetKind(err))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("FromContext should keep the context error in the chain")
	}

	err = FromContext("analyzer.Analyze", context.Canceled)
	if GetKind(err) != KindInternal {
		t.Errorf("cancellation should map to internal, got %v", GetKind(err))
	}
}

func TestCheckers(t *testing.T) {
	if !IsNotFoundError(ErrTransactionNotFound) {
		t.Error("ErrTransactionNotFound should be not found")
	}
	if !IsNetworkError(ErrNotConnected) {
		t.Error("ErrNotConnected should be a network error")
	}
	if !IsTimeoutError(ErrTimeout) {
		t.Error("ErrTimeout should be a timeout error")
	}
	if !IsValidationError(E(KindValidation, "bad")) {
		t.Error("validation kind should be detected")
	}

	retryable := []error{ErrNotConnected, ErrTimeout, ErrRateLimited}
	for _, err := range retryable {
		if !IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = false, want true", err)
		}
	}
	notRetryable := []error{ErrContractNotFound, ErrInvalidConfig, fmt.Errorf("plain")}
	for _, err := range notRetryable {
		if IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = true, want false", err)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{E(KindValidation), http.StatusBadRequest},
		{ErrContractNotFound, http.StatusNotFound},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrTimeout, http.StatusGatewayTimeout},
		{ErrNotConnected, http.StatusBadGateway},
		{Analysis("op", 0, "", fmt.Errorf("x")), http.StatusUnprocessableEntity},
		{E(KindInternal), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
