package bot

import (
	"context"
	"log/slog"
	"strings"

	xerrors "AgentKit/internal/errors"
	"AgentKit/pkg/logger"
)

// RuleManager 负责把过滤规则同步为唯一一条 "@handle"。
type RuleManager struct {
	api StreamAPI
}

// NewRuleManager 创建规则管理器。
func NewRuleManager(api StreamAPI) *RuleManager {
	return &RuleManager{api: api}
}

// MentionRule 返回跟踪指定账号提及的规则表达式。
func MentionRule(handle string) string {
	return "@" + strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// Synchronize 删除全部现有规则后添加一条 "@ownHandle"，可重复调用。
// 任何被拒绝的调用都以 RULE_SYNC_FAILED 返回，不在内部重试。
func (m *RuleManager) Synchronize(ctx context.Context, ownHandle string) error {
	if strings.TrimSpace(strings.TrimPrefix(ownHandle, "@")) == "" {
		return xerrors.New(CodeRuleSync, "账号 handle 不能为空")
	}
	rules, err := m.api.ListRules(ctx)
	if err != nil {
		return xerrors.Wrap(CodeRuleSync, err, "查询现有规则失败")
	}

	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	want := MentionRule(ownHandle)
	if err := m.api.ReplaceRules(ctx, ids, []string{want}); err != nil {
		return xerrors.Wrap(CodeRuleSync, err, "替换过滤规则失败")
	}
	logger.Named("rules").Info("过滤规则已同步",
		slog.String("rule", want),
		slog.Int("deleted", len(ids)))
	return nil
}
