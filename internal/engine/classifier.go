package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// Category is the typed classification of one delivery attempt.
type Category string

const (
	CategorySuccess        Category = "success"
	CategoryTransient      Category = "transient"
	CategoryClientRejected Category = "client_rejected"
	CategoryUnknown        Category = "unknown"
)

// Retryable reports whether a failed attempt in this category may be
// scheduled again. Unknown failures retry too, bounded by the attempt budget.
func (c Category) Retryable() bool {
	return c == CategoryTransient || c == CategoryUnknown
}

// Result is the terminal state of one transport call: a status code when a
// response arrived, or the error that prevented one.
type Result struct {
	StatusCode int
	Err        error
}

// Classify maps a transport result to exactly one category. It performs no
// I/O and never fails; inputs it cannot recognize land in CategoryUnknown.
//
//   - 2xx is success.
//   - Timeouts, connection trouble and 5xx are transient (retryable).
//   - 408 and 429 are pressure signals from the target, not payload
//     rejection, so they stay transient.
//   - Remaining 4xx and unusable destination URLs are client rejections
//     (never retried).
func Classify(res Result) Category {
	if res.Err != nil {
		return classifyErr(res.Err)
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return CategorySuccess
	case res.StatusCode == http.StatusRequestTimeout,
		res.StatusCode == http.StatusTooManyRequests:
		return CategoryTransient
	case res.StatusCode >= 400 && res.StatusCode < 500:
		return CategoryClientRejected
	case res.StatusCode >= 500 && res.StatusCode < 600:
		return CategoryTransient
	default:
		return CategoryUnknown
	}
}

func classifyErr(err error) Category {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return CategoryTransient
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		// The destination URL itself is unusable; retrying cannot help.
		return CategoryClientRejected
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}

	return CategoryUnknown
}
