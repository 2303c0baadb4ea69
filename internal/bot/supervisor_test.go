package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"AgentKit/internal/observability/alerting"
)

type transition struct {
	state State
	at    time.Time
}

type recordingAlerts struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingAlerts) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAlerts) snapshot() []alerting.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerting.Event(nil), r.events...)
}

func newTestSupervisor(users *fakeUsers, api *fakeStreams, backoff time.Duration, alerts alerting.Dispatcher) (*Supervisor, chan transition) {
	sup := NewSupervisor(users, NewRuleManager(api), NewMentionStream(api, newCollectingDispatcher()), backoff, alerts)
	transitions := make(chan transition, 64)
	sup.observer = func(s State) { transitions <- transition{state: s, at: time.Now()} }
	return sup, transitions
}

func expectState(t *testing.T, ch <-chan transition, want State) transition {
	t.Helper()
	select {
	case tr := <-ch:
		if tr.state != want {
			t.Fatalf("got state %s, want %s", tr.state, want)
		}
		return tr
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
	return transition{}
}

func TestSupervisorReconnectsAfterBackoff(t *testing.T) {
	defer goleak.VerifyNone(t)

	const backoff = 50 * time.Millisecond
	api := newFakeStreams()
	alerts := &recordingAlerts{}
	sup, transitions := newTestSupervisor(&fakeUsers{handle: "agentkit"}, api, backoff, alerts)

	sup.Start(context.Background())
	expectState(t, transitions, StateSyncingRules)
	expectState(t, transitions, StateStreaming)
	first := sup.Status().SessionID
	if first == "" {
		t.Fatalf("streaming status should carry a session id")
	}

	(<-api.streams).terminate(errors.New("connection reset by peer"))
	failed := expectState(t, transitions, StateFailed)
	if st := sup.Status(); st.ConsecutiveFailures != 1 || st.LastError != "connection reset by peer" {
		t.Fatalf("unexpected failure status: %+v", st)
	}
	resync := expectState(t, transitions, StateSyncingRules)
	if gap := resync.at.Sub(failed.at); gap < backoff {
		t.Fatalf("reconnected after %s, before the %s backoff", gap, backoff)
	}
	expectState(t, transitions, StateStreaming)
	if api.openCount() != 2 {
		t.Fatalf("expected a second stream, got %d opens", api.openCount())
	}
	if st := sup.Status(); st.ConsecutiveFailures != 0 || st.SessionID == first {
		t.Fatalf("a new session should reset the failure count: %+v", st)
	}
	if len(api.rules) != 1 || api.rules[0].Value != "@agentkit" {
		t.Fatalf("rules not resynchronized: %+v", api.rules)
	}

	events := alerts.snapshot()
	if len(events) != 1 || events[0].Code != CodeStream || events[0].Stage != "stream" || events[0].Failures != 1 {
		t.Fatalf("unexpected alerts: %+v", events)
	}

	sup.Stop()
	expectState(t, transitions, StateIdle)
	if sup.State() != StateIdle {
		t.Fatalf("supervisor should be idle after stop, got %s", sup.State())
	}
}

func TestSupervisorRuleSyncFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := newFakeStreams()
	api.replaceErr = errors.New("403 Forbidden")
	sup, transitions := newTestSupervisor(&fakeUsers{handle: "agentkit"}, api, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	expectState(t, transitions, StateSyncingRules)
	expectState(t, transitions, StateFailed)
	if api.openCount() != 0 {
		t.Fatalf("stream must not open when rule sync fails")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run should return nil on shutdown, got %v", err)
	}
	expectState(t, transitions, StateIdle)
	if st := sup.Status(); st.ConsecutiveFailures != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSupervisorIdentityFailureCountsAsRuleSync(t *testing.T) {
	defer goleak.VerifyNone(t)

	alerts := &recordingAlerts{}
	sup, transitions := newTestSupervisor(&fakeUsers{meErr: errors.New("401 Unauthorized")}, newFakeStreams(), time.Hour, alerts)
	sup.Start(context.Background())

	expectState(t, transitions, StateSyncingRules)
	expectState(t, transitions, StateFailed)
	sup.Stop()
	expectState(t, transitions, StateIdle)

	events := alerts.snapshot()
	if len(events) != 1 || events[0].Code != CodeRuleSync || events[0].Stage != "rule_sync" {
		t.Fatalf("unexpected alerts: %+v", events)
	}
}

func TestSupervisorStopWhileStreaming(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := newFakeStreams()
	sup, transitions := newTestSupervisor(&fakeUsers{handle: "agentkit"}, api, time.Hour, nil)
	sup.Start(context.Background())
	expectState(t, transitions, StateSyncingRules)
	expectState(t, transitions, StateStreaming)

	sup.Stop()
	expectState(t, transitions, StateIdle)
	if st := sup.Status(); st.SessionID != "" || st.ConsecutiveFailures != 0 {
		t.Fatalf("unexpected status after stop: %+v", st)
	}
	sup.Stop()
}
