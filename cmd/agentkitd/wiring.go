package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"AgentKit/internal/bot"
	"AgentKit/internal/config"
	"AgentKit/internal/knowledge"
	"AgentKit/internal/llm"
	"AgentKit/internal/llm/gemini"
	"AgentKit/internal/llm/openai"
	"AgentKit/internal/observability/alerting"
	"AgentKit/internal/queue"
	"AgentKit/internal/storage/mysql"
	"AgentKit/internal/storage/redis"
	"AgentKit/internal/twitter"
	"AgentKit/pkg/logger"
)

// app 持有一次命令执行期间创建的资源，按创建的逆序释放。
type app struct {
	cfg     *config.Config
	closers []io.Closer
}

// loadApp 读取 .env 与配置文件，校验 mode 所需字段并初始化日志。
func loadApp(mode config.Mode) (*app, error) {
	config.LoadDotEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if mode != "" {
		if err := cfg.Validate(mode); err != nil {
			return nil, err
		}
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return &app{cfg: cfg}, nil
}

func (a *app) track(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Close 释放全部资源并刷新日志。
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := logger.Sync(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// claimOptions 按配置启用提及去重；驱动为 none 时不返回任何选项。
func (a *app) claimOptions() ([]bot.Option, error) {
	claimer, err := redis.New(a.cfg.Storage.Claims)
	if err != nil {
		return nil, err
	}
	if claimer == nil {
		return nil, nil
	}
	a.track(claimer)
	logger.L().Info("已启用提及去重", slog.String("driver", a.cfg.Storage.Claims.Driver))
	return []bot.Option{bot.WithClaimer(claimer)}, nil
}

// queueOptions 在 queue.driver 不为 none 时改用队列派发提及。
func (a *app) queueOptions() ([]bot.Option, error) {
	cfg := a.cfg.Queue
	if cfg.Driver == "none" {
		return nil, nil
	}
	q, err := queue.New(cfg)
	if err != nil {
		return nil, err
	}
	a.track(q)
	logger.L().Info("提及经消息队列派发", slog.String("driver", cfg.Driver))
	return []bot.Option{bot.WithQueue(q, a.cfg.Bot.Workers)}, nil
}

func (a *app) model(ctx context.Context) (llm.Completer, error) {
	switch a.cfg.LLM.Provider {
	case "openai":
		client, err := openai.NewClient(openai.Config{
			APIKey:  a.cfg.LLM.OpenAI.APIKey,
			BaseURL: a.cfg.LLM.OpenAI.BaseURL,
			Model:   a.cfg.LLM.OpenAI.Model,
			Timeout: a.cfg.LLM.OpenAI.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "gemini":
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey: a.cfg.LLM.Gemini.APIKey,
			Model:  a.cfg.LLM.Gemini.Model,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", a.cfg.LLM.Provider)
	}
}

func (a *app) replyStore(ctx context.Context) (mysql.ReplyRepository, error) {
	if err := os.MkdirAll(a.cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	store, err := mysql.New(ctx, a.cfg.Storage.Replies, a.cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	a.track(store)
	return store, nil
}

func (a *app) alerts() alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if a.cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(a.cfg.Alerting.WebhookURL))
	}
	return alerting.NewFanout(notifiers...)
}

// buildBot 根据配置组装机器人。withQueue 为 false 时不创建派发队列，用于一次性回复。
func (a *app) buildBot(ctx context.Context, withQueue bool) (*bot.Bot, error) {
	cfg := a.cfg
	model, err := a.model(ctx)
	if err != nil {
		return nil, err
	}

	creds := cfg.Twitter.Credentials
	users, err := twitter.NewUserClient(twitter.UserCredentials{
		ConsumerKey:    creds.APIKey,
		ConsumerSecret: creds.APISecret,
		AccessToken:    creds.AccessToken,
		AccessSecret:   creds.AccessTokenSecret,
	}, twitter.WithBaseURL(cfg.Twitter.BaseURL))
	if err != nil {
		return nil, err
	}
	streams, err := twitter.NewAppClient(creds.BearerToken, twitter.WithBaseURL(cfg.Twitter.BaseURL))
	if err != nil {
		return nil, err
	}

	store, err := a.replyStore(ctx)
	if err != nil {
		return nil, err
	}
	claimOpts, err := a.claimOptions()
	if err != nil {
		return nil, err
	}

	posterOpts := []bot.PosterOption{bot.WithPostRate(cfg.Bot.PostsPerMinute)}
	if cb := cfg.Bot.CircuitBreaker; cb.Enabled {
		posterOpts = append(posterOpts, bot.WithPostCircuitBreaker(cb.FailureThreshold, time.Duration(cb.DelaySeconds)*time.Second))
	}

	opts := []bot.Option{
		bot.WithBackoff(cfg.Bot.Backoff()),
		bot.WithModelTimeout(time.Duration(cfg.Bot.ModelTimeoutSeconds) * time.Second),
		bot.WithPostTimeout(time.Duration(cfg.Bot.PostTimeoutSeconds) * time.Second),
		bot.WithMaxReplyChars(cfg.Bot.MaxReplyChars),
		bot.WithPosterOptions(posterOpts...),
		bot.WithReplyStore(store),
		bot.WithAlerts(a.alerts()),
	}
	opts = append(opts, claimOpts...)

	if cfg.Knowledge.Source != "" {
		kb, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bot.WithKnowledge(kb))
	}

	if withQueue {
		queueOpts, err := a.queueOptions()
		if err != nil {
			return nil, err
		}
		opts = append(opts, queueOpts...)
	}

	return bot.New(bot.Dependencies{Model: model, Users: users, Streams: streams}, opts...)
}
