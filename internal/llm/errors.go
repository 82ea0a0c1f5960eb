package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/joseph-ayodele/shift-reports/internal/common"
)

// ServiceError reports a failed call to the extraction service (or the
// file fetch that precedes it). errors.Is(err, common.ErrExtractionService) holds.
type ServiceError struct {
	Provider   string
	Op         string // fetch | convert | request | decode
	StatusCode int    // 0 when no HTTP response was received
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("extraction service error (%s %s)", e.Provider, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + truncate(e.Body, 300)
	}
	return msg
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{common.ErrExtractionService}
	}
	return []error{common.ErrExtractionService, e.Err}
}

// Retryable is true for transport failures, timeouts, throttling and 5xx.
// A missing object is never retried.
func (e *ServiceError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, common.ErrNotFound) {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return e.Op != "decode" && e.Op != "convert"
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable *ServiceError.
func IsRetryable(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Retryable()
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
