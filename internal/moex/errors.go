package moex

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error kinds surfaced by the adapter. Callers branch with errors.Is.
var (
	ErrNotFound    = errors.New("instrument not found")
	ErrRateLimited = errors.New("rate limited by upstream")
	ErrTransient   = errors.New("transient upstream error")
	ErrPermission  = errors.New("permission denied by upstream")
)

// Retryable reports whether the adapter policy allows another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

func errorFromStatus(status int, body string) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermission, body)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, status, body)
	default:
		return fmt.Errorf("unexpected upstream status %d: %s", status, body)
	}
}
