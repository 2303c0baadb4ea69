package llm

import "context"

// Completer 定义了调用大模型的统一接口：给定系统提示词与用户输入，返回补全文本。
// 模型返回空内容时结果为空字符串，而不是错误。
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CompleterFunc 允许使用普通函数实现 Completer。
type CompleterFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Complete 实现 Completer 接口。
func (f CompleterFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
