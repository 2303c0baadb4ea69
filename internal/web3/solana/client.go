package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"AgentKit/internal/web3"
)

// DefaultCommitment 是预检与查询使用的确认级别。
const DefaultCommitment = "confirmed"

// Config describes how to construct a Solana JSON-RPC client.
type Config struct {
	Name       string
	RPCURL     string
	Commitment string
}

// Client implements web3.Client over the Solana JSON-RPC API.
type Client struct {
	name       string
	commitment string
	rpc        *gethrpc.Client
	mu         sync.Mutex
}

var _ web3.Client = (*Client)(nil)

// NewClient dials the configured RPC endpoint.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 Solana RPC 地址")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接 Solana 节点失败: %w", err)
	}
	commitment := strings.TrimSpace(cfg.Commitment)
	if commitment == "" {
		commitment = DefaultCommitment
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	return &Client{name: name, commitment: commitment, rpc: rpcClient}, nil
}

// Name returns the cluster name.
func (c *Client) Name() string { return c.name }

type tokenSupply struct {
	Value struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"value"`
}

// TokenDecimals queries getTokenSupply for the mint's decimals. Native SOL
// is answered locally.
func (c *Client) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	mint = strings.TrimSpace(mint)
	if mint == "" {
		return 0, errors.New("mint 地址不能为空")
	}
	if mint == web3.NativeMint {
		return web3.NativeDecimals, nil
	}
	client, err := c.client()
	if err != nil {
		return 0, err
	}
	var supply tokenSupply
	if err := client.CallContext(ctx, &supply, "getTokenSupply", mint, map[string]string{"commitment": c.commitment}); err != nil {
		return 0, fmt.Errorf("查询代币精度失败: %w", err)
	}
	return supply.Value.Decimals, nil
}

// SendTransaction base64-encodes raw and submits it with sendTransaction.
func (c *Client) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("交易内容为空")
	}
	client, err := c.client()
	if err != nil {
		return "", err
	}
	opts := map[string]string{
		"encoding":            "base64",
		"preflightCommitment": c.commitment,
	}
	var signature string
	if err := client.CallContext(ctx, &signature, "sendTransaction", base64.StdEncoding.EncodeToString(raw), opts); err != nil {
		return "", fmt.Errorf("发送交易失败: %w", err)
	}
	return signature, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
}

func (c *Client) client() (*gethrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc == nil {
		return nil, errors.New("Solana 客户端已关闭")
	}
	return c.rpc, nil
}
