package alert

import (
	"errors"
	"fmt"
	"time"
)

// ThrottleError — провайдер попросил подождать (HTTP 429 + Retry-After)
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// PermanentError — отказ, который повтор не исправит (4xx кроме 429, SMTP 5xx)
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Cause)
}

func (e *PermanentError) Unwrap() error { return e.Cause }

// IsRetryable: все, кроме PermanentError
func IsRetryable(err error) bool {
	var pErr *PermanentError
	return !errors.As(err, &pErr)
}
