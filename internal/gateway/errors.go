package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory is the typed failure classification for one model call.
// Retry policy keys off the category, not the message text.
type ErrorCategory string

const (
	// CategoryConfig marks a misconfigured engine (missing key or model).
	// Fatal, never retried.
	CategoryConfig ErrorCategory = "config"
	// CategoryRate marks HTTP 429 responses.
	CategoryRate ErrorCategory = "rate"
	// CategoryTransient marks timeouts, connection failures and 5xx.
	CategoryTransient ErrorCategory = "transient"
	// CategoryContext marks requests too large for the engine.
	CategoryContext ErrorCategory = "context"
	// CategoryPermanent marks every other failure (4xx, malformed output).
	CategoryPermanent ErrorCategory = "permanent"
)

// CallError carries the category alongside the underlying cause.
type CallError struct {
	Category ErrorCategory
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func newCallError(cat ErrorCategory, format string, args ...any) *CallError {
	return &CallError{Category: cat, Err: fmt.Errorf(format, args...)}
}

// Classify returns the typed category for err, falling back to keyword
// matching for errors that did not originate in this package.
func Classify(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Category
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "429"), strings.Contains(e, "rate"):
		return CategoryRate
	case strings.Contains(e, "context"), strings.Contains(e, "too long"), strings.Contains(e, "too large"):
		return CategoryContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "connection"),
		strings.Contains(e, "reset"), strings.Contains(e, "temporarily"),
		strings.Contains(e, "unavailable"):
		return CategoryTransient
	default:
		return CategoryPermanent
	}
}

// Retriable reports whether a failure with this error may succeed on a
// later attempt.
func Retriable(err error) bool {
	switch Classify(err) {
	case CategoryRate, CategoryTransient:
		return true
	default:
		return false
	}
}
