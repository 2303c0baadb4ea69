package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"AgentKit/internal/storage/mysql"
	"AgentKit/internal/twitter"
)

// fakeModel 按系统提示词区分分析与撰写两步。
type fakeModel struct {
	mu       sync.Mutex
	calls    []string
	analysis string
	reply    string
	err      error
	block    bool
}

func (m *fakeModel) Complete(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, system+"|"+user)
	analysis, reply, err, block := m.analysis, m.reply, m.err, m.block
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	if system == analyzeSystemPrompt {
		return analysis, nil
	}
	return reply, nil
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type postCall struct {
	text      string
	inReplyTo string
}

// fakeUsers 模拟用户上下文能力。
type fakeUsers struct {
	mu       sync.Mutex
	handle   string
	meErr    error
	posts    []postCall
	postErrs map[string]error
	seq      atomic.Int32
}

func (u *fakeUsers) Me(context.Context) (twitter.User, error) {
	if u.meErr != nil {
		return twitter.User{}, u.meErr
	}
	return twitter.User{ID: "42", Username: u.handle}, nil
}

func (u *fakeUsers) Reply(_ context.Context, text, inReplyTo string) (twitter.Tweet, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.posts = append(u.posts, postCall{text: text, inReplyTo: inReplyTo})
	if err := u.postErrs[inReplyTo]; err != nil {
		return twitter.Tweet{}, err
	}
	return twitter.Tweet{ID: fmt.Sprintf("reply-%d", u.seq.Add(1)), Text: text}, nil
}

func (u *fakeUsers) postedTo() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	ids := make([]string, 0, len(u.posts))
	for _, p := range u.posts {
		ids = append(ids, p.inReplyTo)
	}
	return ids
}

// fakeStreams 模拟规则存储与过滤流。
type fakeStreams struct {
	mu         sync.Mutex
	rules      []twitter.Rule
	nextID     int
	replaceErr error
	openErr    error
	streams    chan *fakeStream
	opened     int
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{streams: make(chan *fakeStream, 16)}
}

func (f *fakeStreams) ListRules(context.Context) ([]twitter.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]twitter.Rule(nil), f.rules...), nil
}

func (f *fakeStreams) ReplaceRules(_ context.Context, deleteIDs, addValues []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	keep := f.rules[:0]
	for _, r := range f.rules {
		deleted := false
		for _, id := range deleteIDs {
			if r.ID == id {
				deleted = true
			}
		}
		if !deleted {
			keep = append(keep, r)
		}
	}
	f.rules = keep
	for _, v := range addValues {
		f.nextID++
		f.rules = append(f.rules, twitter.Rule{ID: fmt.Sprint(f.nextID), Value: v})
	}
	return nil
}

func (f *fakeStreams) OpenStream(_ context.Context, fields, expansions []string) (twitter.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	if strings.Join(fields, ",") != "author_id,conversation_id,created_at,text" || strings.Join(expansions, ",") != "author_id" {
		return nil, errors.New("unexpected stream parameters")
	}
	f.opened++
	s := newFakeStream()
	f.streams <- s
	return s, nil
}

func (f *fakeStreams) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// fakeStream 是可由测试推送事件或中断的流。
type fakeStream struct {
	events    chan *twitter.StreamEvent
	closed    chan struct{}
	closeOnce sync.Once
	termErr   atomic.Value
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan *twitter.StreamEvent, 16), closed: make(chan struct{})}
}

func (s *fakeStream) push(id, text string) {
	s.events <- &twitter.StreamEvent{Data: &twitter.Tweet{ID: id, AuthorID: "u-" + id, ConversationID: "c-" + id, Text: text}}
}

func (s *fakeStream) terminate(err error) {
	s.termErr.Store(err)
	s.Close()
}

func (s *fakeStream) Recv() (*twitter.StreamEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		if err, ok := s.termErr.Load().(error); ok {
			return nil, err
		}
		return nil, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// recordingStore 收集回复记录。
type recordingStore struct {
	mu      sync.Mutex
	records []mysql.ReplyRecord
}

func (r *recordingStore) Save(_ context.Context, rec *mysql.ReplyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *recordingStore) ListLatest(_ context.Context, limit int) ([]mysql.ReplyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]mysql.ReplyRecord(nil), r.records...)
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// collectingDispatcher 同步收集派发的提及。
type collectingDispatcher struct {
	mu       sync.Mutex
	mentions []MentionEvent
	failOn   string
	got      chan MentionEvent
}

func newCollectingDispatcher() *collectingDispatcher {
	return &collectingDispatcher{got: make(chan MentionEvent, 16)}
}

func (d *collectingDispatcher) Dispatch(_ context.Context, m MentionEvent) error {
	d.mu.Lock()
	d.mentions = append(d.mentions, m)
	d.mu.Unlock()
	d.got <- m
	if m.ID == d.failOn {
		return errors.New("dispatch failed")
	}
	return nil
}
