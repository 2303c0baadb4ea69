package bot

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"AgentKit/internal/queue"
)

type recordingResponder struct {
	mu      sync.Mutex
	seen    []string
	release chan struct{}
}

func (r *recordingResponder) Respond(_ context.Context, m MentionEvent) ReplyOutcome {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, m.ID)
	return ReplyOutcome{MentionID: m.ID, Success: true}
}

func (r *recordingResponder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestAsyncDispatcherDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	responder := &recordingResponder{release: make(chan struct{})}
	d := NewAsyncDispatcher(responder)
	for _, id := range []string{"t1", "t2", "t3"} {
		if err := d.Dispatch(context.Background(), MentionEvent{ID: id, Text: "x"}); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
	}
	if responder.count() != 0 {
		t.Fatalf("dispatch must return before the reply finishes")
	}

	close(responder.release)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if responder.count() != 3 {
		t.Fatalf("expected all mentions handled, got %d", responder.count())
	}
	if err := d.Dispatch(context.Background(), MentionEvent{ID: "t4"}); err == nil {
		t.Fatalf("dispatch after shutdown should fail")
	}
}

func TestQueueDispatcherRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := queue.NewMemoryQueue(8)
	defer q.Close()
	responder := &recordingResponder{}

	if err := NewQueueDispatcher(q).Dispatch(context.Background(), MentionEvent{ID: "t1", Text: "hello"}); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if err := q.Publish(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	payload, _ := json.Marshal(mentionEnvelope{ID: "env-2", Mention: MentionEvent{ID: "t2", Text: "again"}})
	if err := q.Publish(context.Background(), payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewProcessor(responder, q, 2).Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for responder.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if responder.count() != 2 {
		t.Fatalf("expected both valid mentions processed, got %v", responder.seen)
	}
	if q.Len() != 0 {
		t.Fatalf("malformed message should be dropped, %d left", q.Len())
	}
}
