package errors

import (
	stderrors "errors"
	"fmt"
)

// WatchError is the structured error type for treewatch.
// It provides rich context for error handling, logging, and user presentation.
type WatchError struct {
	// Code is the unique error code (e.g., "ERR_201_ROOT_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Watcher, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates the condition is recoverable by the session.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *WatchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *WatchError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() against the sentinels below.
func (e *WatchError) Is(target error) bool {
	if t, ok := target.(*WatchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *WatchError) WithDetail(key, value string) *WatchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *WatchError) WithSuggestion(suggestion string) *WatchError {
	e.Suggestion = suggestion
	return e
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrInvalidPattern   = &WatchError{Code: ErrCodeInvalidPattern}
	ErrRootNotFound     = &WatchError{Code: ErrCodeRootNotFound}
	ErrPermission       = &WatchError{Code: ErrCodePermission}
	ErrRootNotDirectory = &WatchError{Code: ErrCodeRootNotDirectory}
	ErrRootRemoved      = &WatchError{Code: ErrCodeRootRemoved}
	ErrWatcherOverflow  = &WatchError{Code: ErrCodeWatcherOverflow}
	ErrWatcherFailed    = &WatchError{Code: ErrCodeWatcherFailed}
	ErrReactFailed      = &WatchError{Code: ErrCodeReactFailed}
	ErrNoRoots          = &WatchError{Code: ErrCodeNoRoots}
	ErrLockHeld         = &WatchError{Code: ErrCodeLockHeld}
)

// New creates a new WatchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *WatchError {
	return &WatchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a WatchError from an existing error.
// The error's message becomes the WatchError message.
func Wrap(code string, err error) *WatchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *WatchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *WatchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *WatchError {
	return New(ErrCodeInternal, message, cause)
}

// InvalidPattern reports a glob pattern that failed to compile.
func InvalidPattern(pattern string, cause error) *WatchError {
	return New(ErrCodeInvalidPattern, fmt.Sprintf("invalid glob pattern %q", pattern), cause).
		WithDetail("pattern", pattern).
		WithSuggestion("Check for unbalanced '[' or '{' and escape literal metacharacters with '\\'")
}

// RootNotFound reports a watch root that does not exist.
func RootNotFound(root string, cause error) *WatchError {
	return New(ErrCodeRootNotFound, fmt.Sprintf("watch root does not exist: %s", root), cause).
		WithDetail("root", root)
}

// PermissionDenied reports a watch root the process cannot read.
func PermissionDenied(root string, cause error) *WatchError {
	return New(ErrCodePermission, fmt.Sprintf("no read access to watch root: %s", root), cause).
		WithDetail("root", root)
}

// RootNotDirectory reports a watch root that is a regular file.
func RootNotDirectory(root string) *WatchError {
	return New(ErrCodeRootNotDirectory, fmt.Sprintf("watch root is not a directory: %s", root), nil).
		WithDetail("root", root)
}

// RootRemoved reports a watch root that disappeared while being watched.
func RootRemoved(root string) *WatchError {
	return New(ErrCodeRootRemoved, fmt.Sprintf("watch root was removed: %s", root), nil).
		WithDetail("root", root)
}

// Overflow reports lost events; the session recovers by rescanning.
func Overflow(cause error) *WatchError {
	return New(ErrCodeWatcherOverflow, "watcher dropped events", cause).
		WithSuggestion("Raise fs.inotify.max_user_watches / max_queued_events or ignore large generated directories")
}

// WatcherFailed reports an unrecoverable failure of the event source.
func WatcherFailed(message string, cause error) *WatchError {
	return New(ErrCodeWatcherFailed, message, cause)
}

// ReactFailed reports an error or panic from the reaction callback.
func ReactFailed(path string, cause error) *WatchError {
	return New(ErrCodeReactFailed, fmt.Sprintf("reaction to %s failed", path), cause).
		WithDetail("path", path)
}

// IsRetryable checks if an error is recoverable.
// Returns true if the chain holds a WatchError with Retryable flag set.
func IsRetryable(err error) bool {
	var we *WatchError
	if stderrors.As(err, &we) {
		return we.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors end the watch session.
func IsFatal(err error) bool {
	var we *WatchError
	if stderrors.As(err, &we) {
		return we.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a WatchError.
// Returns empty string if the chain holds no WatchError.
func GetCode(err error) string {
	var we *WatchError
	if stderrors.As(err, &we) {
		return we.Code
	}
	return ""
}

// GetCategory extracts the category from a WatchError.
// Returns empty string if the chain holds no WatchError.
func GetCategory(err error) Category {
	var we *WatchError
	if stderrors.As(err, &we) {
		return we.Category
	}
	return ""
}
