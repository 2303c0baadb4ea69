package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"AgentKit/internal/config"
)

var configPath string

// rootCmd 是 agentkitd 的根命令。
var rootCmd = &cobra.Command{
	Use:   "agentkitd",
	Short: "Mention reply bot and Solana swap agent",
	Long: `agentkitd listens for mentions of the bot account, answers each one
with a model-generated reply and can execute token swaps through Jupiter.

Commands:
  run      - keep the mention stream open and answer mentions
  reply    - answer a single tweet once
  swap     - execute one token swap
  replies  - print recent reply outcomes`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the YAML configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(swapCmd)
	rootCmd.AddCommand(repliesCmd)
}

// main 是 agentkitd 的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
