package bot

import (
	stdErrors "errors"

	xerrors "AgentKit/internal/errors"
)

// 提及回复链路使用的错误码。
const (
	CodeRuleSync   xerrors.Code = "RULE_SYNC_FAILED"
	CodeStream     xerrors.Code = "STREAM_FAILED"
	CodeGeneration xerrors.Code = "GENERATION_FAILED"
	CodePost       xerrors.Code = "POST_FAILED"
)

func init() {
	xerrors.Register(CodeRuleSync, xerrors.Attributes{
		Message:  "tracking rule synchronization failed",
		Severity: xerrors.SeverityWarning,
		Scope:    xerrors.ScopeSession,
		Alert:    true,
	})
	xerrors.Register(CodeStream, xerrors.Attributes{
		Message:  "mention stream terminated",
		Severity: xerrors.SeverityWarning,
		Scope:    xerrors.ScopeSession,
		Alert:    true,
	})
	xerrors.Register(CodeGeneration, xerrors.Attributes{
		Message:  "reply generation failed",
		Severity: xerrors.SeverityWarning,
		Scope:    xerrors.ScopeMention,
	})
	xerrors.Register(CodePost, xerrors.Attributes{
		Message:  "reply post failed",
		Severity: xerrors.SeverityWarning,
		Scope:    xerrors.ScopeMention,
	})
}

func hasCode(err error, code xerrors.Code) bool {
	return err != nil && stdErrors.Is(err, xerrors.New(code, ""))
}

// IsRuleSyncError 判断错误是否来自规则同步。
func IsRuleSyncError(err error) bool { return hasCode(err, CodeRuleSync) }

// IsStreamError 判断错误是否来自流传输或解码。
func IsStreamError(err error) bool { return hasCode(err, CodeStream) }

// IsGenerationError 判断错误是否来自模型调用。
func IsGenerationError(err error) bool { return hasCode(err, CodeGeneration) }

// IsPostError 判断错误是否来自发帖。
func IsPostError(err error) bool { return hasCode(err, CodePost) }
