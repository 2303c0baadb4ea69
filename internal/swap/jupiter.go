package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultJupiterURL 是 Jupiter v6 接口地址。
	DefaultJupiterURL = "https://quote-api.jup.ag/v6"
	defaultTimeout    = 30 * time.Second
	maxAccounts       = 20
)

// QuoteRequest 描述一次报价请求，Amount 为最小单位的整数数量。
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// Quote 是 Jupiter 返回的原始报价，原样回传给 /swap。
type Quote json.RawMessage

// JupiterClient 调用 Jupiter 的报价与交易构建接口。
type JupiterClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewJupiterClient 创建 Jupiter 客户端，baseURL 为空时使用默认地址。
func NewJupiterClient(baseURL string, timeout time.Duration) *JupiterClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &JupiterClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// Quote 请求仅直连路由、最多 20 个账户的报价。
func (c *JupiterClient) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	query := url.Values{}
	query.Set("inputMint", req.InputMint)
	query.Set("outputMint", req.OutputMint)
	query.Set("amount", strconv.FormatUint(req.Amount, 10))
	query.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	query.Set("onlyDirectRoutes", "true")
	query.Set("maxAccounts", strconv.Itoa(maxAccounts))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("构建报价请求失败: %w", err)
	}
	var raw json.RawMessage
	if err := c.do(httpReq, &raw); err != nil {
		return nil, err
	}
	var head struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("解析报价失败: %w", err)
	}
	if head.Error != "" {
		return nil, errors.New(head.Error)
	}
	return Quote(raw), nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports string          `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	Error           string `json:"error"`
}

// BuildSwap 请求 Jupiter 为 user 构建交易，返回未签名的序列化交易。
func (c *JupiterClient) BuildSwap(ctx context.Context, quote Quote, user string) ([]byte, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:             json.RawMessage(quote),
		UserPublicKey:             user,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("序列化 swap 请求失败: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 swap 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var decoded swapResponse
	if err := c.do(httpReq, &decoded); err != nil {
		return nil, err
	}
	if decoded.Error != "" {
		return nil, errors.New(decoded.Error)
	}
	if decoded.SwapTransaction == "" {
		return nil, errors.New("Jupiter 响应缺少 swapTransaction")
	}
	raw, err := base64.StdEncoding.DecodeString(decoded.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("解码 swapTransaction 失败: %w", err)
	}
	return raw, nil
}

func (c *JupiterClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求 Jupiter 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("Jupiter 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析 Jupiter 响应失败: %w", err)
	}
	return nil
}
