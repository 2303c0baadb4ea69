package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.twitter.com"
	defaultTimeout = 30 * time.Second
)

// Option 定义客户端的可选配置。
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL 覆盖 API 根地址，主要用于测试。
func WithBaseURL(base string) Option {
	return func(o *options) {
		if base = strings.TrimSpace(base); base != "" {
			o.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient 指定底层 HTTP 客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{baseURL: defaultBaseURL}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.httpClient == nil {
		// 流式连接不设整体超时，普通请求由调用方的 ctx 控制时限。
		o.httpClient = &http.Client{}
	}
	return o
}

// doJSON 发送 JSON 请求并将 2xx 响应解码到 out。
func doJSON(ctx context.Context, client *http.Client, method, url string, auth func(*http.Request), in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if auth != nil {
		auth(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("请求 twitter 失败: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析 twitter 响应失败: %w", err)
	}
	return nil
}
