// Package errors provides structured error handling for treewatch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (watch roots, filesystem)
//   - 3XX: Watcher runtime errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates filesystem errors on watch roots.
	CategoryIO Category = "IO"
	// CategoryWatcher indicates errors raised by the running watcher.
	CategoryWatcher Category = "WATCHER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeRootNotFound     = "ERR_201_ROOT_NOT_FOUND"
	ErrCodePermission       = "ERR_202_PERMISSION_DENIED"
	ErrCodeRootNotDirectory = "ERR_203_ROOT_NOT_DIRECTORY"
	ErrCodeRootRemoved      = "ERR_204_ROOT_REMOVED"

	// Watcher errors (300-399)
	ErrCodeWatcherOverflow = "ERR_301_WATCHER_OVERFLOW"
	ErrCodeWatcherFailed   = "ERR_302_WATCHER_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidPattern = "ERR_402_INVALID_PATTERN"
	ErrCodeNoRoots        = "ERR_403_NO_ROOTS"

	// Internal errors (500-599)
	ErrCodeInternal    = "ERR_501_INTERNAL"
	ErrCodeReactFailed = "ERR_502_REACT_FAILED"
	ErrCodeLockHeld    = "ERR_503_LOCK_HELD"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_ROOT_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryWatcher
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeRootRemoved, ErrCodeWatcherFailed:
		return SeverityFatal
	}

	// Recoverable watcher conditions only degrade the session
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a recoverable error.
// An overflow is recovered by rescanning the watch roots.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeWatcherOverflow:
		return true
	default:
		return false
	}
}
