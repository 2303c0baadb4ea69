package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"AgentKit/internal/observability/metrics"
	"AgentKit/internal/web3"
	"AgentKit/pkg/logger"
)

// USDCMint 是默认的输入代币。
const USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// DefaultSlippageBps 是默认滑点（3%）。
const DefaultSlippageBps = 300

// Request 描述一次 swap。InputAmount 以代币的显示单位计，按精度换算成最小单位。
type Request struct {
	OutputMint  string
	InputAmount float64
	InputMint   string
	SlippageBps int
}

// Trader 使用代理钱包完成 swap。
type Trader struct {
	jupiter  *JupiterClient
	chain    web3.Client
	key      solana.PrivateKey
	slippage int
	log      *slog.Logger
}

// Option 定义 Trader 的可选配置。
type Option func(*Trader)

// WithDefaultSlippage 覆盖请求未指定时的滑点。
func WithDefaultSlippage(bps int) Option {
	return func(t *Trader) {
		if bps > 0 {
			t.slippage = bps
		}
	}
}

// NewTrader 解析 base58 私钥并创建 Trader。
func NewTrader(jupiter *JupiterClient, chain web3.Client, privateKey string, opts ...Option) (*Trader, error) {
	if jupiter == nil || chain == nil {
		return nil, errors.New("Jupiter 与链客户端均不能为空")
	}
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(privateKey))
	if err != nil {
		return nil, fmt.Errorf("解析 Solana 私钥失败: %w", err)
	}
	t := &Trader{
		jupiter:  jupiter,
		chain:    chain,
		key:      key,
		slippage: DefaultSlippageBps,
		log:      logger.Named("swap"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Wallet 返回代理钱包地址。
func (t *Trader) Wallet() string { return t.key.PublicKey().String() }

// Trade 报价、构建、签名并提交 swap，返回交易签名。失败不重试。
func (t *Trader) Trade(ctx context.Context, req Request) (string, error) {
	signature, err := t.trade(ctx, req)
	result := "success"
	if err != nil {
		result = "failed"
	}
	metrics.SwapFinished(result)
	logger.Audit().Info("swap 结束",
		slog.String("input_mint", req.InputMint),
		slog.String("output_mint", req.OutputMint),
		slog.Float64("amount", req.InputAmount),
		slog.String("result", result),
		slog.String("signature", signature))
	if err != nil {
		t.log.Warn("swap 失败", slog.Any("error", err))
	}
	return signature, err
}

func (t *Trader) trade(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.OutputMint) == "" {
		return "", fail("validate", errors.New("output mint 不能为空"))
	}
	if req.InputAmount <= 0 || math.IsNaN(req.InputAmount) || math.IsInf(req.InputAmount, 0) {
		return "", fail("validate", fmt.Errorf("无效的数量 %v", req.InputAmount))
	}
	if req.InputMint == "" {
		req.InputMint = USDCMint
	}
	if req.SlippageBps <= 0 {
		req.SlippageBps = t.slippage
	}

	decimals, err := t.chain.TokenDecimals(ctx, req.InputMint)
	if err != nil {
		return "", fail("decimals", err)
	}
	amount := math.Round(req.InputAmount * math.Pow10(int(decimals)))
	if amount < 1 || amount >= math.MaxUint64 {
		return "", fail("validate", fmt.Errorf("数量 %v 超出可表示范围", req.InputAmount))
	}

	quote, err := t.jupiter.Quote(ctx, QuoteRequest{
		InputMint:   req.InputMint,
		OutputMint:  req.OutputMint,
		Amount:      uint64(amount),
		SlippageBps: req.SlippageBps,
	})
	if err != nil {
		return "", fail("quote", err)
	}

	unsigned, err := t.jupiter.BuildSwap(ctx, quote, t.Wallet())
	if err != nil {
		return "", fail("build", err)
	}
	signed, err := t.sign(unsigned)
	if err != nil {
		return "", fail("sign", err)
	}

	signature, err := t.chain.SendTransaction(ctx, signed)
	if err != nil {
		return "", fail("send", err)
	}
	return signature, nil
}

// sign 解码交易（含 v0 版本），用代理私钥重新生成签名后序列化。
func (t *Trader) sign(raw []byte) ([]byte, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("解码交易失败: %w", err)
	}
	// 聚合器返回的交易带有占位签名。
	tx.Signatures = nil
	wallet := t.key.PublicKey()
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(wallet) {
			return &t.key
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("序列化交易失败: %w", err)
	}
	return out, nil
}
