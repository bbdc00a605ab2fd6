package pattern

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPattern  = errors.New("invalid_pattern")
	ErrInvalidContext  = errors.New("invalid_context")
	ErrMissingVariable = errors.New("missing_variable")
)

// ValidationResult collects every problem found, not just the first.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func NewValidationResult() ValidationResult {
	return ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}
}

func (r *ValidationResult) AddError(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) Merge(other ValidationResult) {
	if !other.Valid {
		r.Valid = false
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Err converts an invalid result into a *ValidationError of the given kind.
func (r ValidationResult) Err(kind error) error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Kind: kind, Result: r}
}

// ValidationError carries the full result so callers can render every message.
type ValidationError struct {
	Kind   error
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.Result.Errors, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}
