package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"AgentKit/internal/twitter"
)

func receive(t *testing.T, ch <-chan MentionEvent) MentionEvent {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dispatch")
	}
	return MentionEvent{}
}

func TestSessionDispatchesNonEmptyMentions(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := newFakeStreams()
	dispatcher := newCollectingDispatcher()
	dispatcher.failOn = "t2"
	session, err := NewMentionStream(api, dispatcher).Open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	stream := <-api.streams

	stream.push("t1", "hello @agentkit")
	stream.events <- &twitter.StreamEvent{}
	stream.push("t-empty", "   ")
	stream.push("t2", "dispatch will fail")
	stream.push("t3", "still streaming")

	for _, want := range []string{"t1", "t2", "t3"} {
		if got := receive(t, dispatcher.got); got.ID != want {
			t.Fatalf("got mention %s, want %s", got.ID, want)
		}
	}
	select {
	case <-session.Done():
		t.Fatalf("a failed dispatch must not end the session")
	default:
	}

	if err := session.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if session.Err() != nil {
		t.Fatalf("owner close should not report an error: %v", session.Err())
	}
	if len(dispatcher.mentions) != 3 {
		t.Fatalf("expected exactly three dispatches, got %d", len(dispatcher.mentions))
	}
	if m := dispatcher.mentions[0]; m.AuthorID != "u-t1" || m.ConversationID != "c-t1" {
		t.Fatalf("mention fields not mapped: %+v", m)
	}
}

func TestSessionSurfacesTermination(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := newFakeStreams()
	session, err := NewMentionStream(api, newCollectingDispatcher()).Open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	stream := <-api.streams
	stream.terminate(errors.New("connection reset by peer"))

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not terminate")
	}
	if !IsStreamError(session.Err()) {
		t.Fatalf("expected stream error, got %v", session.Err())
	}
}

func TestOpenFailureIsStreamError(t *testing.T) {
	api := newFakeStreams()
	api.openErr = twitter.ErrRateLimited
	_, err := NewMentionStream(api, newCollectingDispatcher()).Open(context.Background())
	if !IsStreamError(err) || !errors.Is(err, twitter.ErrRateLimited) {
		t.Fatalf("expected stream error, got %v", err)
	}
}
