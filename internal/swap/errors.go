package swap

import (
	xerrors "AgentKit/internal/errors"
)

// CodeSwap 标记 swap 流程中的任何失败。
const CodeSwap xerrors.Code = "SWAP_FAILED"

func init() {
	xerrors.Register(CodeSwap, xerrors.Attributes{
		Message:  "swap failed",
		Severity: xerrors.SeverityWarning,
	})
}

// SwapError 包装 swap 任意阶段的失败，Error() 形如 "swap failed: <原因>"。
type SwapError struct {
	Stage string
	Err   error
}

func (e *SwapError) Error() string {
	return "swap failed: " + xerrors.RootMessage(e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

func fail(stage string, err error) error {
	return &SwapError{Stage: stage, Err: xerrors.Wrap(CodeSwap, err, stage, xerrors.WithMetadata("stage", stage))}
}
