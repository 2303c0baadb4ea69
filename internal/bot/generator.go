package bot

import (
	"context"
	"errors"
	"time"

	xerrors "AgentKit/internal/errors"
	"AgentKit/internal/knowledge"
	"AgentKit/internal/llm"
	"AgentKit/internal/observability/metrics"
)

const (
	analyzeSystemPrompt = "You are an AI assistant analyzing tweets to generate appropriate responses. Focus on blockchain and Solana-related content."
	composeSystemPrompt = "Generate a concise, friendly tweet response (max 280 characters) based on the analysis provided."
	analyzeUserPrefix   = "Analyze this tweet and suggest a response: "
)

// ResponseGenerator 通过"分析 → 撰写"两次模型调用生成回复文本。
type ResponseGenerator struct {
	model     llm.Completer
	timeout   time.Duration
	maxChars  int
	knowledge knowledge.Provider
}

// NewResponseGenerator 创建回复生成器。timeout 小于等于 0 时不设单次调用时限。
func NewResponseGenerator(model llm.Completer, timeout time.Duration, maxChars int, kb knowledge.Provider) *ResponseGenerator {
	if maxChars <= 0 {
		maxChars = MaxReplyChars
	}
	return &ResponseGenerator{model: model, timeout: timeout, maxChars: maxChars, knowledge: kb}
}

// Analyze 请求模型分析提及并给出回复思路。
func (g *ResponseGenerator) Analyze(ctx context.Context, text string) (string, error) {
	prompt := analyzeUserPrefix + text
	if g.knowledge != nil {
		if notes := knowledge.Render(g.knowledge.Lookup(text)); notes != "" {
			prompt += "\n\n" + notes
		}
	}
	return g.complete(ctx, "analyze", analyzeSystemPrompt, prompt)
}

// Compose 根据分析结果撰写最终回复，结果按字符数截断到上限。
func (g *ResponseGenerator) Compose(ctx context.Context, analysis string) (string, error) {
	reply, err := g.complete(ctx, "compose", composeSystemPrompt, analysis)
	if err != nil {
		return "", err
	}
	return Truncate(reply, g.maxChars), nil
}

func (g *ResponseGenerator) complete(ctx context.Context, step, system, user string) (string, error) {
	if g == nil || g.model == nil {
		return "", xerrors.New(CodeGeneration, "未配置大模型客户端")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	started := time.Now()
	out, err := g.model.Complete(ctx, system, user)
	metrics.ObserveModelCall(step, time.Since(started))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = xerrors.Wrap(xerrors.CodeTimeout, err, "模型调用超时")
		}
		return "", xerrors.Wrap(CodeGeneration, err, step+" 调用失败", xerrors.WithMetadata("step", step))
	}
	return out, nil
}
