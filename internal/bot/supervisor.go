package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	xerrors "AgentKit/internal/errors"
	"AgentKit/internal/observability/alerting"
	"AgentKit/internal/observability/metrics"
	"AgentKit/pkg/logger"
)

// State 是 Supervisor 的状态。
type State string

const (
	StateIdle         State = "IDLE"
	StateSyncingRules State = "SYNCING_RULES"
	StateStreaming    State = "STREAMING"
	StateFailed       State = "FAILED"
)

var allStates = []string{string(StateIdle), string(StateSyncingRules), string(StateStreaming), string(StateFailed)}

// DefaultBackoff 是会话失败后重新同步规则前的固定等待时间。
const DefaultBackoff = 30 * time.Second

// Status 是 Supervisor 的状态快照。
type Status struct {
	State               State     `json:"state"`
	SessionID           string    `json:"session_id,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Since               time.Time `json:"since"`
}

// Supervisor 保持唯一一条过滤流连接：同步规则、打开流，失败后固定退避并无限重试。
type Supervisor struct {
	identity Identity
	rules    *RuleManager
	stream   *MentionStream
	backoff  time.Duration
	alerts   alerting.Dispatcher
	log      *slog.Logger

	mu       sync.Mutex
	status   Status
	observer func(State)
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSupervisor 创建 Supervisor。backoff 小于等于 0 时使用 DefaultBackoff。
func NewSupervisor(identity Identity, rules *RuleManager, stream *MentionStream, backoff time.Duration, alerts alerting.Dispatcher) *Supervisor {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	s := &Supervisor{
		identity: identity,
		rules:    rules,
		stream:   stream,
		backoff:  backoff,
		alerts:   alerts,
		log:      logger.Named("supervisor"),
	}
	s.status = Status{State: StateIdle, Since: time.Now()}
	return s
}

// State 返回当前状态。
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.State
}

// Status 返回状态快照。
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) setState(state State, mutate func(*Status)) {
	s.mu.Lock()
	s.status.State = state
	s.status.Since = time.Now()
	if mutate != nil {
		mutate(&s.status)
	}
	observer := s.observer
	s.mu.Unlock()

	metrics.SetSupervisorState(string(state), allStates)
	if observer != nil {
		observer(state)
	}
}

// Run 阻塞运行重连循环，直到 ctx 结束后回到 IDLE 并返回 nil。
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		s.setState(StateSyncingRules, nil)
		stage, err := s.runSession(ctx)
		if ctx.Err() != nil {
			s.setState(StateIdle, func(st *Status) { st.SessionID = "" })
			return nil
		}
		s.fail(ctx, stage, err)

		timer := time.NewTimer(s.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateIdle, nil)
			return nil
		case <-timer.C:
		}
	}
}

// runSession 完成一次 SYNCING_RULES → STREAMING，并在会话结束时返回原因。
func (s *Supervisor) runSession(ctx context.Context) (string, error) {
	me, err := s.identity.Me(ctx)
	if err != nil {
		return "rule_sync", xerrors.Wrap(CodeRuleSync, err, "查询自身账号失败")
	}
	if err := s.rules.Synchronize(ctx, me.Username); err != nil {
		return "rule_sync", err
	}

	session, err := s.stream.Open(ctx)
	if err != nil {
		return "stream", err
	}
	s.setState(StateStreaming, func(st *Status) {
		st.SessionID = session.ID
		st.ConsecutiveFailures = 0
		st.LastError = ""
	})
	s.log.Info("过滤流已连接", slog.String("session_id", session.ID), slog.String("handle", me.Username))

	select {
	case <-ctx.Done():
		_ = session.Close()
		return "stream", ctx.Err()
	case <-session.Done():
		return "stream", session.Err()
	}
}

func (s *Supervisor) fail(ctx context.Context, stage string, err error) {
	var failures int
	var sessionID string
	s.setState(StateFailed, func(st *Status) {
		st.ConsecutiveFailures++
		st.LastError = xerrors.RootMessage(err)
		failures = st.ConsecutiveFailures
		sessionID = st.SessionID
		st.SessionID = ""
	})
	metrics.SessionFailed(stage)
	s.log.Warn("会话失败，等待重连",
		slog.String("stage", stage),
		slog.String("session_id", sessionID),
		slog.Int("consecutive_failures", failures),
		slog.Duration("backoff", s.backoff),
		slog.Any("error", err))

	if s.alerts == nil || !xerrors.ShouldAlert(err) {
		return
	}
	code := xerrors.CodeOf(err)
	event := alerting.Event{
		Code:       code,
		Message:    xerrors.RootMessage(err),
		Severity:   xerrors.SeverityOf(err),
		SessionID:  sessionID,
		Stage:      stage,
		Failures:   failures,
		Metadata:   xerrors.MetadataOf(err),
		OccurredAt: time.Now(),
	}
	if err := s.alerts.Notify(ctx, event); err != nil {
		s.log.Error("告警通知失败", slog.Any("error", err))
	}
}

// Start 在后台运行 Run。重复调用无效。
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
}

// Stop 关闭当前连接与退避定时器，并等待循环退出。
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
