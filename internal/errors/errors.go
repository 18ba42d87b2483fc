package errors

import (
	"errors"
	"fmt"
)

// RecidxError is the structured error type for recidx.
// It carries enough context for logging, CLI presentation and for the
// routing layer to pick a response shape.
type RecidxError struct {
	// Code is the unique error code (e.g., "ERR_202_SNAPSHOT_STALE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RecidxError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RecidxError) Unwrap() error {
	return e.Cause
}

// Is matches another RecidxError by code, so sentinel values built with
// New can be used with errors.Is.
func (e *RecidxError) Is(target error) bool {
	if t, ok := target.(*RecidxError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RecidxError) WithDetail(key, value string) *RecidxError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *RecidxError) WithSuggestion(suggestion string) *RecidxError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RecidxError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *RecidxError {
	return &RecidxError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a RecidxError from an existing error.
// The error's message becomes the RecidxError message.
func Wrap(code string, err error) *RecidxError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RecidxError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RecidxError {
	return New(ErrCodeInvalidInput, message, cause)
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code string) bool {
	var re *RecidxError
	for err != nil {
		if errors.As(err, &re) {
			if re.Code == code {
				return true
			}
			err = re.Cause
			continue
		}
		return false
	}
	return false
}

// GetCode extracts the error code from the first RecidxError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var re *RecidxError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from the first RecidxError in the chain.
func GetCategory(err error) Category {
	var re *RecidxError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}
