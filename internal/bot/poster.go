package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"golang.org/x/time/rate"

	xerrors "AgentKit/internal/errors"
	"AgentKit/pkg/logger"
)

// MaxReplyChars 是平台单条推文的字符上限。
const MaxReplyChars = 280

// Truncate 按字符（rune）数截断文本，不做分词或 token 感知。
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}

// ReplyPoster 截断文本后以回复形式发布，失败不重试。
type ReplyPoster struct {
	client   Poster
	maxChars int
	timeout  time.Duration
	limiter  *rate.Limiter
	breaker  circuitbreaker.CircuitBreaker[string]
}

// PosterOption 定义发帖器的可选配置。
type PosterOption func(*ReplyPoster)

// WithPostRate 限制每分钟发帖数，perMinute 小于等于 0 表示不限速。
func WithPostRate(perMinute float64) PosterOption {
	return func(p *ReplyPoster) {
		if perMinute > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perMinute/60), 1)
		}
	}
}

// WithPostCircuitBreaker 在连续 failures 次发帖失败后熔断 delay 时长，期间直接返回失败。
func WithPostCircuitBreaker(failures uint, delay time.Duration) PosterOption {
	return func(p *ReplyPoster) {
		if failures == 0 {
			return
		}
		log := logger.Named("poster")
		p.breaker = circuitbreaker.NewBuilder[string]().
			WithFailureThreshold(failures).
			WithDelay(delay).
			OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
				log.Warn("发帖熔断器状态变化",
					slog.String("from", event.OldState.String()),
					slog.String("to", event.NewState.String()))
			}).
			Build()
	}
}

// NewReplyPoster 创建发帖器。
func NewReplyPoster(client Poster, maxChars int, timeout time.Duration, opts ...PosterOption) *ReplyPoster {
	if maxChars <= 0 {
		maxChars = MaxReplyChars
	}
	p := &ReplyPoster{client: client, maxChars: maxChars, timeout: timeout}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// PostReply 发布对 tweetID 的回复并返回新推文 id。超长文本截断而非报错。
func (p *ReplyPoster) PostReply(ctx context.Context, tweetID, text string) (string, error) {
	if p == nil || p.client == nil {
		return "", xerrors.New(CodePost, "未配置发帖客户端")
	}
	text = Truncate(text, p.maxChars)

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", xerrors.Wrap(CodePost, err, "等待发帖配额失败")
		}
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	post := func() (string, error) {
		tweet, err := p.client.Reply(ctx, text, tweetID)
		if err != nil {
			return "", err
		}
		return tweet.ID, nil
	}

	var (
		id  string
		err error
	)
	if p.breaker != nil {
		id, err = failsafe.With(p.breaker).WithContext(ctx).Get(post)
	} else {
		id, err = post()
	}
	if err != nil {
		switch {
		case errors.Is(err, circuitbreaker.ErrOpen):
			err = xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "发帖熔断中")
		case errors.Is(err, context.DeadlineExceeded):
			err = xerrors.Wrap(xerrors.CodeTimeout, err, "发帖超时")
		}
		return "", xerrors.Wrap(CodePost, err, "发布回复失败")
	}
	return id, nil
}
