package errors

import (
	stderrors "errors"
	"fmt"
)

// HuntError is the structured error type for notehunt.
//
// The code decides everything else about an error: its category, how severe
// it is and whether the next crawl or indexing run can clear it. Path names
// the note, directory or store file the error is about, when there is one.
type HuntError struct {
	// Code is the unique error code (e.g., "ERR_203_STATE_UNAVAILABLE").
	Code    string
	Message string
	Path    string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	Cause      error
	Suggestion string
}

// Error implements the error interface.
func (e *HuntError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *HuntError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a HuntError with the same code, so a
// package-level sentinel such as events.ErrBridgeTimeout matches any
// instance of its code.
func (e *HuntError) Is(target error) bool {
	t, ok := target.(*HuntError)
	return ok && e.Code == t.Code
}

// Category is derived from the code's hundreds digit.
func (e *HuntError) Category() Category { return categoryFromCode(e.Code) }

// Severity is derived from the code.
func (e *HuntError) Severity() Severity { return severityFromCode(e.Code) }

// Retryable reports whether the failure may clear up on the next run.
func (e *HuntError) Retryable() bool { return isRetryableCode(e.Code) }

// WithPath records the file or directory the error is about.
func (e *HuntError) WithPath(path string) *HuntError {
	e.Path = path
	return e
}

// WithDetail adds a key-value detail to the error.
func (e *HuntError) WithDetail(key, value string) *HuntError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *HuntError) WithSuggestion(suggestion string) *HuntError {
	e.Suggestion = suggestion
	return e
}

// New creates a HuntError.
func New(code string, message string, cause error) *HuntError {
	return &HuntError{Code: code, Message: message, Cause: cause}
}

// Wrap creates a HuntError whose message is err's. It returns nil for a nil
// err.
func Wrap(code string, err error) *HuntError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// FileError reports that one note could not be read. It is retryable: the
// note stays tracked and is observed again on the next crawl.
func FileError(path string, cause error) *HuntError {
	return New(ErrCodeFileUnreadable, fmt.Sprintf("cannot read %s: %v", path, cause), cause).
		WithPath(path)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *HuntError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an invalid-input error.
func ValidationError(message string, cause error) *HuntError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *HuntError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first HuntError in err's chain.
func As(err error) (*HuntError, bool) {
	var he *HuntError
	if stderrors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	he, ok := As(err)
	return ok && he.Retryable()
}

// IsFatal reports whether err carries a fatal code. Fatal errors stop the
// process.
func IsFatal(err error) bool {
	he, ok := As(err)
	return ok && he.Severity() == SeverityFatal
}

// GetCode returns the code of the first HuntError in err's chain, or "".
func GetCode(err error) string {
	if he, ok := As(err); ok {
		return he.Code
	}
	return ""
}
