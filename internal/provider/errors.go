package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized 上游返回 401，token 无效或已过期。
var ErrUnauthorized = errors.New("unauthorized")

type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status %s: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: status %s", e.Op, e.Status)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// NetworkError 连接、代理、超时等传输层失败。
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable 网络错误和 5xx 可重试。
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return false
}
