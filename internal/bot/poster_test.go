package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	xerrors "AgentKit/internal/errors"
	"AgentKit/internal/twitter"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{name: "short", in: "gm", want: 2},
		{name: "exact", in: strings.Repeat("a", 280), want: 280},
		{name: "long", in: strings.Repeat("a", 281), want: 280},
		{name: "multibyte", in: strings.Repeat("火", 300), want: 280},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Truncate(tc.in, MaxReplyChars)
			if utf8.RuneCountInString(got) != tc.want {
				t.Fatalf("got %d runes, want %d", utf8.RuneCountInString(got), tc.want)
			}
			if !strings.HasPrefix(tc.in, got) {
				t.Fatalf("truncation must keep a prefix of the input")
			}
		})
	}
}

func TestPostReplyTruncatesToLimit(t *testing.T) {
	users := &fakeUsers{}
	p := NewReplyPoster(users, 0, time.Second)

	id, err := p.PostReply(context.Background(), "t1", strings.Repeat("b", 500))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected tweet id")
	}
	if got := len(users.posts[0].text); got != 280 {
		t.Fatalf("expected exactly 280 chars, got %d", got)
	}

	if _, err := p.PostReply(context.Background(), "t2", "short reply"); err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if users.posts[1].text != "short reply" || users.posts[1].inReplyTo != "t2" {
		t.Fatalf("text within limit must be posted unmodified: %+v", users.posts[1])
	}
}

func TestPostReplyRateLimited(t *testing.T) {
	users := &fakeUsers{postErrs: map[string]error{
		"t1": fmt.Errorf("%w: twitter 返回错误状态 429", twitter.ErrRateLimited),
	}}
	p := NewReplyPoster(users, 0, time.Second)

	_, err := p.PostReply(context.Background(), "t1", "hello")
	if !IsPostError(err) {
		t.Fatalf("expected post error, got %v", err)
	}
	if !errors.Is(err, twitter.ErrRateLimited) {
		t.Fatalf("rate limit cause lost: %v", err)
	}
	if !strings.HasPrefix(xerrors.RootMessage(err), "rate limit") {
		t.Fatalf("unexpected root message %q", xerrors.RootMessage(err))
	}
}

func TestPostReplyCircuitBreakerOpens(t *testing.T) {
	users := &fakeUsers{postErrs: map[string]error{"t1": errors.New("503")}}
	p := NewReplyPoster(users, 0, time.Second, WithPostCircuitBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := p.PostReply(context.Background(), "t1", "x"); err == nil {
			t.Fatalf("expected failure")
		}
	}
	_, err := p.PostReply(context.Background(), "t2", "x")
	if !IsPostError(err) {
		t.Fatalf("expected post error while open, got %v", err)
	}
	if len(users.posts) != 2 {
		t.Fatalf("open breaker must not reach the client, got %d calls", len(users.posts))
	}
}

func TestPostReplyRateLimiterHonoursContext(t *testing.T) {
	users := &fakeUsers{}
	p := NewReplyPoster(users, 0, time.Second, WithPostRate(1))

	if _, err := p.PostReply(context.Background(), "t1", "first"); err != nil {
		t.Fatalf("first post should use the burst: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.PostReply(ctx, "t2", "second"); !IsPostError(err) {
		t.Fatalf("expected post error while waiting for quota, got %v", err)
	}
	if len(users.posts) != 1 {
		t.Fatalf("second post must not be sent")
	}
}
