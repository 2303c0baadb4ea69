package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	xerrors "AgentKit/internal/errors"
	"AgentKit/internal/observability/metrics"
	"AgentKit/internal/storage/mysql"
	"AgentKit/pkg/logger"
)

// ReplyStore 保存回复结果供状态接口查询。
type ReplyStore interface {
	Save(ctx context.Context, record *mysql.ReplyRecord) error
	ListLatest(ctx context.Context, limit int) ([]mysql.ReplyRecord, error)
}

// Pipeline 串联去重、分析、撰写、发帖与记录，是单条提及的处理边界。
type Pipeline struct {
	generator *ResponseGenerator
	poster    *ReplyPoster
	claimer   Claimer
	store     ReplyStore
	log       *slog.Logger
	now       func() time.Time
}

// NewPipeline 创建回复流水线。claimer 与 store 可以为 nil。
func NewPipeline(generator *ResponseGenerator, poster *ReplyPoster, claimer Claimer, store ReplyStore) *Pipeline {
	return &Pipeline{
		generator: generator,
		poster:    poster,
		claimer:   claimer,
		store:     store,
		log:       logger.Named("pipeline"),
		now:       time.Now,
	}
}

// Respond 对一条提及做且只做一次回复尝试。所有失败都转换为失败的 ReplyOutcome，不返回错误。
func (p *Pipeline) Respond(ctx context.Context, mention MentionEvent) ReplyOutcome {
	outcome := ReplyOutcome{MentionID: mention.ID}
	log := p.log.With(slog.String("mention_id", mention.ID))

	if strings.TrimSpace(mention.Text) == "" {
		outcome.NoOp = true
		outcome.Message = MessageNoText
		outcome.CreatedAt = p.now().Unix()
		return outcome
	}

	if p.claimer != nil && mention.ID != "" {
		claimed, err := p.claimer.Claim(ctx, mention.ID)
		switch {
		case err != nil:
			log.Warn("写入去重标记失败，继续处理", slog.Any("error", err))
		case !claimed:
			outcome.NoOp = true
			outcome.Message = MessageDuplicate
			outcome.CreatedAt = p.now().Unix()
			metrics.ReplyFinished("duplicate")
			log.Info("提及已处理过，跳过")
			return outcome
		}
	}

	text, err := p.generate(ctx, mention.Text)
	switch {
	case err != nil:
		p.fail(&outcome, err)
	case strings.TrimSpace(text) == "":
		outcome.NoOp = true
		outcome.Message = MessageEmpty
	default:
		id, postErr := p.poster.PostReply(ctx, mention.ID, text)
		if postErr != nil {
			p.fail(&outcome, postErr)
			break
		}
		outcome.Success = true
		outcome.Message = MessageReplied
		outcome.TweetID = id
	}
	outcome.CreatedAt = p.now().Unix()
	p.record(ctx, outcome, text)
	return outcome
}

func (p *Pipeline) generate(ctx context.Context, text string) (string, error) {
	analysis, err := p.generator.Analyze(ctx, text)
	if err != nil {
		return "", err
	}
	return p.generator.Compose(ctx, analysis)
}

func (p *Pipeline) fail(outcome *ReplyOutcome, err error) {
	outcome.Success = false
	outcome.Message = MessageFailed
	outcome.Error = xerrors.RootMessage(err)
	p.log.Warn("提及回复失败",
		slog.String("mention_id", outcome.MentionID),
		slog.String("error_code", string(xerrors.CodeOf(err))),
		slog.String("error_scope", string(xerrors.ScopeOf(err))),
		slog.Any("error_context", xerrors.MetadataOf(err)),
		slog.Any("error", err))
}

func (p *Pipeline) record(ctx context.Context, outcome ReplyOutcome, text string) {
	result := "failed"
	switch {
	case outcome.Success:
		result = "success"
	case outcome.NoOp:
		result = "noop"
	}
	metrics.ReplyFinished(result)

	logger.Audit().Info("提及回复结束",
		slog.String("mention_id", outcome.MentionID),
		slog.String("result", result),
		slog.String("tweet_id", outcome.TweetID),
		slog.String("error", outcome.Error))

	if p.store == nil {
		return
	}
	record := &mysql.ReplyRecord{
		MentionID: outcome.MentionID,
		Success:   outcome.Success,
		NoOp:      outcome.NoOp,
		Message:   outcome.Message,
		TweetID:   outcome.TweetID,
		Error:     outcome.Error,
		CreatedAt: outcome.CreatedAt,
	}
	if outcome.Success {
		record.Text = text
	}
	// 记录失败不影响已经完成的回复尝试。
	if err := p.store.Save(context.WithoutCancel(ctx), record); err != nil {
		p.log.Error("保存回复记录失败", slog.String("mention_id", outcome.MentionID), slog.Any("error", err))
	}
}
