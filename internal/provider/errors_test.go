package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestHTTPError_IsUnauthorized(t *testing.T) {
	err := fmt.Errorf("check missions: %w", &HTTPError{Op: "GET /missions", StatusCode: 401, Status: "401 Unauthorized"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatal("401 should match ErrUnauthorized")
	}
	other := &HTTPError{Op: "GET /missions", StatusCode: 403, Status: "403 Forbidden"}
	if errors.Is(other, ErrUnauthorized) {
		t.Fatal("403 should not match ErrUnauthorized")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"network", &NetworkError{Op: "x", Err: context.DeadlineExceeded}, true},
		{"5xx", &HTTPError{StatusCode: 502}, true},
		{"4xx", &HTTPError{StatusCode: 400}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "POST /bandwidth/share", Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("should unwrap to cause")
	}
}
