package twitter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const maxFrameSize = 1 << 20

// AppClient 使用应用级 Bearer Token 管理过滤规则并打开过滤流。
type AppClient struct {
	bearer string
	opts   options
}

// NewAppClient 创建应用级客户端。
func NewAppClient(bearerToken string, opts ...Option) (*AppClient, error) {
	bearerToken = strings.TrimSpace(bearerToken)
	if bearerToken == "" {
		return nil, errors.New("未提供 Bearer Token")
	}
	return &AppClient{bearer: bearerToken, opts: buildOptions(opts)}, nil
}

func (c *AppClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.bearer)
}

func (c *AppClient) rulesURL() string {
	return c.opts.baseURL + "/2/tweets/search/stream/rules"
}

// ListRules 返回当前生效的全部过滤规则。
func (c *AppClient) ListRules(ctx context.Context) ([]Rule, error) {
	var resp struct {
		Data []Rule `json:"data"`
	}
	if err := doJSON(ctx, c.opts.httpClient, http.MethodGet, c.rulesURL(), c.authorize, nil, &resp); err != nil {
		return nil, fmt.Errorf("查询过滤规则失败: %w", err)
	}
	return resp.Data, nil
}

type rulesSummary struct {
	Meta struct {
		Summary struct {
			Created    int `json:"created"`
			NotCreated int `json:"not_created"`
			Deleted    int `json:"deleted"`
			NotDeleted int `json:"not_deleted"`
		} `json:"summary"`
	} `json:"meta"`
	Errors []APIProblem `json:"errors"`
}

func (s rulesSummary) problem() string {
	if len(s.Errors) == 0 {
		return "unknown"
	}
	if s.Errors[0].Detail != "" {
		return s.Errors[0].Detail
	}
	return s.Errors[0].Title
}

// ReplaceRules 先批量删除 deleteIDs，再批量添加 addValues，任一批次被拒绝即返回错误。
func (c *AppClient) ReplaceRules(ctx context.Context, deleteIDs, addValues []string) error {
	if len(deleteIDs) > 0 {
		body := map[string]any{"delete": map[string][]string{"ids": deleteIDs}}
		var resp rulesSummary
		if err := doJSON(ctx, c.opts.httpClient, http.MethodPost, c.rulesURL(), c.authorize, body, &resp); err != nil {
			return fmt.Errorf("删除过滤规则失败: %w", err)
		}
		if resp.Meta.Summary.NotDeleted > 0 {
			return fmt.Errorf("删除过滤规则失败: %s", resp.problem())
		}
	}
	if len(addValues) > 0 {
		add := make([]Rule, 0, len(addValues))
		for _, v := range addValues {
			add = append(add, Rule{Value: v})
		}
		var resp rulesSummary
		if err := doJSON(ctx, c.opts.httpClient, http.MethodPost, c.rulesURL(), c.authorize, map[string]any{"add": add}, &resp); err != nil {
			return fmt.Errorf("添加过滤规则失败: %w", err)
		}
		if resp.Meta.Summary.NotCreated > 0 {
			return fmt.Errorf("添加过滤规则失败: %s", resp.problem())
		}
	}
	return nil
}

// OpenStream 打开过滤流长连接。返回的 Stream 在 ctx 取消或 Close 后结束。
func (c *AppClient) OpenStream(ctx context.Context, fields, expansions []string) (Stream, error) {
	query := url.Values{}
	if len(fields) > 0 {
		query.Set("tweet.fields", strings.Join(fields, ","))
	}
	if len(expansions) > 0 {
		query.Set("expansions", strings.Join(expansions, ","))
	}
	endpoint := c.opts.baseURL + "/2/tweets/search/stream"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建流请求失败: %w", err)
	}
	c.authorize(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("连接过滤流失败: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("连接过滤流失败: %w", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &lineStream{body: resp.Body, scanner: scanner}, nil
}

// lineStream 按行解析以换行分隔的 JSON 帧，空行为保活信号。
type lineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	once    sync.Once
}

func (s *lineStream) Recv() (*StreamEvent, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event StreamEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("解析流数据失败: %w", err)
		}
		if event.Data == nil && len(event.Errors) > 0 {
			return nil, &StreamError{Problems: event.Errors}
		}
		return &event, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取过滤流失败: %w", err)
	}
	return nil, io.EOF
}

func (s *lineStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}
