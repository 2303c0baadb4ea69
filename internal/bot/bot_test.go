package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"AgentKit/internal/queue"
	"AgentKit/internal/twitter"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Dependencies{Model: &fakeModel{}}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func runBot(t *testing.T, opts ...Option) (*fakeStreams, *fakeUsers, *recordingStore, func()) {
	t.Helper()
	api := newFakeStreams()
	users := &fakeUsers{handle: "agentkit", postErrs: map[string]error{
		"t1": fmt.Errorf("%w: twitter 返回错误状态 429", twitter.ErrRateLimited),
	}}
	store := &recordingStore{}
	opts = append(opts, WithReplyStore(store), WithBackoff(20*time.Millisecond))
	b, err := New(Dependencies{
		Model:   &fakeModel{analysis: "analysis", reply: "gm from AgentKit"},
		Users:   users,
		Streams: api,
	}, opts...)
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	waitFor(t, func() bool { return b.Status().State == StateStreaming })

	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("run returned %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("bot did not stop")
		}
		if b.Status().State != StateIdle {
			t.Fatalf("expected IDLE after shutdown, got %s", b.Status().State)
		}
	}
	return api, users, store, stop
}

func assertOutcomes(t *testing.T, users *fakeUsers, store *recordingStore) {
	t.Helper()
	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.records) == 3
	})
	if got := users.postedTo(); len(got) != 3 {
		t.Fatalf("expected one reply attempt per mention, got %v", got)
	}
	records, _ := store.ListLatest(context.Background(), 0)
	for _, rec := range records {
		switch rec.MentionID {
		case "t1":
			if rec.Success || !strings.HasPrefix(rec.Error, "rate limit") {
				t.Fatalf("t1 should fail with rate limit: %+v", rec)
			}
		default:
			if !rec.Success || rec.TweetID == "" || rec.Text != "gm from AgentKit" {
				t.Fatalf("%s should succeed: %+v", rec.MentionID, rec)
			}
		}
	}
}

func TestBotRepliesToStreamedMentions(t *testing.T) {
	api, users, store, stop := runBot(t)
	stream := <-api.streams
	stream.push("t1", "@agentkit swap?")
	stream.push("t2", "@agentkit hi")
	stream.push("t3", "@agentkit gm")

	assertOutcomes(t, users, store)
	stop()
}

func TestBotQueueMode(t *testing.T) {
	q := queue.NewMemoryQueue(16)
	defer q.Close()
	api, users, store, stop := runBot(t, WithQueue(q, 2))
	stream := <-api.streams
	stream.push("t1", "@agentkit swap?")
	stream.push("t2", "@agentkit hi")
	stream.push("t3", "@agentkit gm")

	assertOutcomes(t, users, store)
	stop()
}

func TestBotRespondAndReplies(t *testing.T) {
	store := &recordingStore{}
	b, err := New(Dependencies{
		Model:   &fakeModel{analysis: "a", reply: "pong"},
		Users:   &fakeUsers{handle: "agentkit"},
		Streams: newFakeStreams(),
	}, WithReplyStore(store))
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}

	outcome := b.Respond(context.Background(), "t9", "ping")
	if !outcome.Success || outcome.TweetID != "reply-1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	replies, err := b.Replies(context.Background(), 10)
	if err != nil || len(replies) != 1 || replies[0].MentionID != "t9" {
		t.Fatalf("unexpected replies %+v (%v)", replies, err)
	}
	if b.Status().State != StateIdle {
		t.Fatalf("bot that never ran should be idle")
	}
}
