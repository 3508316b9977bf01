package core

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/scrutinychain/sdk/pkg/errors"
)

// ValidationError represents a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// HasErrors returns true if there are any errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Add adds a validation error.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// Validator provides validation methods for configurations.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Required validates that a field is not empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors.Add(field, "is required")
	}
	return v
}

// URL validates that a field is a valid URL. When schemes are given the URL
// scheme must be one of them.
func (v *Validator) URL(field, value string, schemes ...string) *Validator {
	if value == "" {
		return v
	}
	u, err := url.Parse(value)
	if err != nil {
		v.errors.Add(field, fmt.Sprintf("invalid URL: %v", err))
		return v
	}
	if u.Scheme == "" || u.Host == "" {
		v.errors.Add(field, "must be a valid URL with scheme and host")
		return v
	}
	if len(schemes) > 0 && !slices.Contains(schemes, u.Scheme) {
		v.errors.Add(field, fmt.Sprintf("scheme must be one of: %s", strings.Join(schemes, ", ")))
	}
	return v
}

// MinDuration validates that a duration is at least the minimum.
func (v *Validator) MinDuration(field string, value, min time.Duration) *Validator {
	if value < min {
		v.errors.Add(field, fmt.Sprintf("must be at least %v", min))
	}
	return v
}

// MaxDuration validates that a duration is at most the maximum.
func (v *Validator) MaxDuration(field string, value, max time.Duration) *Validator {
	if value > max {
		v.errors.Add(field, fmt.Sprintf("must be at most %v", max))
	}
	return v
}

// Min validates that an integer is at least the minimum.
func (v *Validator) Min(field string, value, min int) *Validator {
	if value < min {
		v.errors.Add(field, fmt.Sprintf("must be at least %d", min))
	}
	return v
}

// Max validates that an integer is at most the maximum.
func (v *Validator) Max(field string, value, max int) *Validator {
	if value > max {
		v.errors.Add(field, fmt.Sprintf("must be at most %d", max))
	}
	return v
}

// OneOf validates that a value is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.errors.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// Custom adds a custom validation check.
func (v *Validator) Custom(field string, check func() bool, message string) *Validator {
	if !check() {
		v.errors.Add(field, message)
	}
	return v
}

// Errors returns all validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// Validate returns a KindConfiguration error wrapping every collected
// validation error, or nil.
func (v *Validator) Validate() error {
	if v.errors.HasErrors() {
		return errors.E(errors.KindConfiguration, "config.Validate", v.errors)
	}
	return nil
}
