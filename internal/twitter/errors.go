package twitter

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrRateLimited 表示平台返回 429。
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnauthorized 表示凭据被拒绝（401/403）。
	ErrUnauthorized = errors.New("credentials rejected")
)

// StatusError 描述非 2xx 响应。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("twitter 返回错误状态 %d: %s", e.StatusCode, e.Body)
}

// Unwrap 将 401/403 映射到 ErrUnauthorized。
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// checkResponse 在状态码 >= 400 时读取部分响应体并返回错误。
func checkResponse(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, statusErr.Error())
	}
	return statusErr
}

// StreamError 表示流中收到的错误帧。
type StreamError struct {
	Problems []APIProblem
}

func (e *StreamError) Error() string {
	if len(e.Problems) == 0 {
		return "stream error"
	}
	p := e.Problems[0]
	if p.Detail != "" {
		return fmt.Sprintf("stream error: %s: %s", p.Title, p.Detail)
	}
	return "stream error: " + p.Title
}
