package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"AgentKit/internal/config"
	"AgentKit/internal/swap"
	"AgentKit/internal/web3/provider"
	"AgentKit/pkg/logger"
)

var (
	swapOutputMint  string
	swapInputMint   string
	swapAmount      float64
	swapSlippageBps int
	swapChain       string
)

// swapCmd 通过 Jupiter 执行一次 swap。
var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap tokens through Jupiter",
	Long: `Quotes a direct route on Jupiter, signs the returned transaction with
SOLANA_PRIVATE_KEY and submits it to the configured cluster. The input
defaults to USDC; the amount is given in display units of the input token.`,
	Args: cobra.NoArgs,
	RunE: runSwap,
}

func init() {
	swapCmd.Flags().StringVar(&swapOutputMint, "output-mint", "", "Mint address of the token to receive (required)")
	swapCmd.Flags().Float64Var(&swapAmount, "amount", 0, "Amount of the input token to swap (required)")
	swapCmd.Flags().StringVar(&swapInputMint, "input-mint", swap.USDCMint, "Mint address of the token to spend")
	swapCmd.Flags().IntVar(&swapSlippageBps, "slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
	swapCmd.Flags().StringVar(&swapChain, "chain", "", "Cluster name from chains.yaml (default cluster if empty)")
	_ = swapCmd.MarkFlagRequired("output-mint")
	_ = swapCmd.MarkFlagRequired("amount")
}

func runSwap(cmd *cobra.Command, _ []string) (err error) {
	a, err := loadApp(config.ModeSwap)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	ctx := cmd.Context()
	registry, err := provider.NewRegistry(ctx, a.cfg.Solana)
	if err != nil {
		return err
	}
	defer registry.Close()

	chain, err := registry.DefaultClient()
	if err != nil {
		return err
	}
	if swapChain != "" {
		named, ok := registry.Client(swapChain)
		if !ok {
			return fmt.Errorf("链 %s 未在配置中找到，可选: %v", swapChain, registry.Chains())
		}
		chain = named
	}

	jupiter := swap.NewJupiterClient(a.cfg.Swap.JupiterURL, time.Duration(a.cfg.Swap.TimeoutSeconds)*time.Second)
	trader, err := swap.NewTrader(jupiter, chain, a.cfg.Solana.PrivateKey, swap.WithDefaultSlippage(a.cfg.Swap.DefaultSlippageBps))
	if err != nil {
		return err
	}
	logger.L().Info("开始 swap",
		slog.String("chain", chain.Name()),
		slog.String("wallet", trader.Wallet()),
		slog.String("input_mint", swapInputMint),
		slog.String("output_mint", swapOutputMint))

	signature, err := trader.Trade(ctx, swap.Request{
		OutputMint:  swapOutputMint,
		InputAmount: swapAmount,
		InputMint:   swapInputMint,
		SlippageBps: swapSlippageBps,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), signature)
	return err
}
