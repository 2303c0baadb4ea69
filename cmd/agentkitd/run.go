package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"AgentKit/internal/api"
	"AgentKit/internal/config"
	"AgentKit/internal/observability/metrics"
	"AgentKit/pkg/logger"
)

// runCmd 启动完整的提及回复机器人与状态接口。
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Listen for mentions and reply until interrupted",
	Long: `Synchronizes the "@handle" tracking rule, keeps one filtered stream
open and answers every mention exactly once. A failed stream is retried
after the configured backoff. The status API serves /healthz,
/api/v1/replies and /metrics on server.address.`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

func runBot(cmd *cobra.Command, _ []string) (err error) {
	a, err := loadApp(config.ModeBot)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()

	ctx := cmd.Context()
	b, err := a.buildBot(ctx, true)
	if err != nil {
		return err
	}
	server := api.NewServer(a.cfg.Server.Address, b, api.WithAuthToken(a.cfg.Server.AuthToken))

	logger.L().Info("agentkitd 已启动",
		slog.String("addr", a.cfg.Server.Address),
		slog.String("llm", a.cfg.LLM.Provider),
		slog.Any("credentials", a.cfg.Twitter.Credentials))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if addr := a.cfg.Server.MetricsAddress; addr != "" {
		g.Go(func() error {
			if err := metrics.StartServer(gctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.L().Info("agentkitd 已退出")
	return nil
}
