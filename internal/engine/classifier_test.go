package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"syscall"
	"testing"
)

// timeoutError satisfies net.Error the way transport-level timeouts do.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       Category
	}{
		{"200 ok", 200, CategorySuccess},
		{"201 created", 201, CategorySuccess},
		{"204 no content", 204, CategorySuccess},
		{"400 bad request", 400, CategoryClientRejected},
		{"404 not found", 404, CategoryClientRejected},
		{"408 request timeout", 408, CategoryTransient},
		{"422 unprocessable", 422, CategoryClientRejected},
		{"429 too many requests", 429, CategoryTransient},
		{"500 internal error", 500, CategoryTransient},
		{"502 bad gateway", 502, CategoryTransient},
		{"503 unavailable", 503, CategoryTransient},
		{"301 redirect", 301, CategoryUnknown},
		{"100 continue", 100, CategoryUnknown},
		{"zero without error", 0, CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Result{StatusCode: tt.statusCode})
			if got != tt.want {
				t.Errorf("Classify(%d) = %q, want %q", tt.statusCode, got, tt.want)
			}
		})
	}
}

func TestClassify_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{
			name: "context deadline exceeded",
			err:  context.DeadlineExceeded,
			want: CategoryTransient,
		},
		{
			name: "deadline wrapped by http client",
			err:  &url.Error{Op: "Post", URL: "https://hooks.example.com", Err: context.DeadlineExceeded},
			want: CategoryTransient,
		},
		{
			name: "connection refused",
			err:  fmt.Errorf("dialing target: %w", syscall.ECONNREFUSED),
			want: CategoryTransient,
		},
		{
			name: "connection reset",
			err:  syscall.ECONNRESET,
			want: CategoryTransient,
		},
		{
			name: "net timeout",
			err:  &url.Error{Op: "Post", URL: "https://hooks.example.com", Err: timeoutError{}},
			want: CategoryTransient,
		},
		{
			name: "unparseable destination",
			err:  &url.Error{Op: "parse", URL: "://nope", Err: errors.New("missing protocol scheme")},
			want: CategoryClientRejected,
		},
		{
			name: "unexpected error",
			err:  errors.New("boom"),
			want: CategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Result{Err: tt.err})
			if got != tt.want {
				t.Errorf("Classify(err=%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestCategory_Retryable(t *testing.T) {
	if !CategoryTransient.Retryable() {
		t.Error("transient failures must be retryable")
	}
	if !CategoryUnknown.Retryable() {
		t.Error("unknown failures must be retryable (bounded by the budget)")
	}
	if CategoryClientRejected.Retryable() {
		t.Error("client rejections must never retry")
	}
	if CategorySuccess.Retryable() {
		t.Error("success is not a failure")
	}
}
