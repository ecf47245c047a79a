package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// asWatchError returns the first WatchError in the chain, or wraps err as internal.
func asWatchError(err error) *WatchError {
	var we *WatchError
	if stderrors.As(err, &we) {
		return we
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForUser returns a user-friendly error message.
// If debug is true, includes the underlying cause.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	var we *WatchError
	if !stderrors.As(err, &we) {
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(we.Message)
	sb.WriteString("\n")

	if debug && we.Cause != nil {
		sb.WriteString("Cause: ")
		sb.WriteString(we.Cause.Error())
		sb.WriteString("\n")
	}

	if we.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(we.Suggestion)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", we.Code))

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	we := asWatchError(err)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", we.Message))
	if we.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", we.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", we.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	we := asWatchError(err)

	je := jsonError{
		Code:       we.Code,
		Message:    we.Message,
		Category:   string(we.Category),
		Severity:   string(we.Severity),
		Details:    we.Details,
		Suggestion: we.Suggestion,
		Retryable:  we.Retryable,
	}
	if we.Cause != nil {
		je.Cause = we.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs formats an error as slog key-value pairs.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var we *WatchError
	if !stderrors.As(err, &we) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", we.Code,
		"error", we.Message,
		"severity", string(we.Severity),
	}
	if we.Cause != nil {
		attrs = append(attrs, "cause", we.Cause.Error())
	}
	for k, v := range we.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
