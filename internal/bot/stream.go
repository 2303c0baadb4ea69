package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	xerrors "AgentKit/internal/errors"
	"AgentKit/internal/observability/metrics"
	"AgentKit/internal/twitter"
	"AgentKit/pkg/logger"
)

var (
	streamFields     = []string{"author_id", "conversation_id", "created_at", "text"}
	streamExpansions = []string{"author_id"}
)

// MentionStream 打开过滤流并把提及交给派发器。
type MentionStream struct {
	api        StreamAPI
	dispatcher Dispatcher
	log        *slog.Logger
}

// NewMentionStream 创建提及流。
func NewMentionStream(api StreamAPI, dispatcher Dispatcher) *MentionStream {
	return &MentionStream{api: api, dispatcher: dispatcher, log: logger.Named("stream")}
}

// Open 建立一条新的长连接。返回的 Session 不可重启，结束后需再次调用 Open。
func (s *MentionStream) Open(ctx context.Context) (*Session, error) {
	stream, err := s.api.OpenStream(ctx, streamFields, streamExpansions)
	if err != nil {
		return nil, xerrors.Wrap(CodeStream, err, "打开过滤流失败")
	}
	session := &Session{
		ID:     uuid.NewString(),
		stream: stream,
		done:   make(chan struct{}),
	}
	go s.pump(ctx, session)
	return session, nil
}

func (s *MentionStream) pump(ctx context.Context, session *Session) {
	log := s.log.With(slog.String("session_id", session.ID))
	for {
		event, err := session.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("stream closed by remote")
			}
			session.finish(xerrors.Wrap(CodeStream, err, "过滤流已中断"))
			return
		}
		mention, ok := toMention(event)
		if !ok {
			log.Debug("跳过空提及")
			continue
		}
		metrics.MentionReceived()
		if err := s.dispatch(ctx, mention); err != nil {
			log.Warn("提及派发失败",
				slog.String("mention_id", mention.ID),
				slog.Any("error", err))
		}
	}
}

// dispatch 隔离单条提及的失败，包括 panic。
func (s *MentionStream) dispatch(ctx context.Context, mention MentionEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("派发 panic: %v", r)
		}
	}()
	return s.dispatcher.Dispatch(ctx, mention)
}

func toMention(event *twitter.StreamEvent) (MentionEvent, bool) {
	if event == nil || event.Data == nil || strings.TrimSpace(event.Data.Text) == "" {
		return MentionEvent{}, false
	}
	d := event.Data
	return MentionEvent{
		ID:             d.ID,
		AuthorID:       d.AuthorID,
		ConversationID: d.ConversationID,
		CreatedAt:      d.CreatedAt,
		Text:           d.Text,
	}, true
}

// Session 是一条打开的过滤流连接，只存在于内存中。
type Session struct {
	ID     string
	stream twitter.Stream

	once   sync.Once
	done   chan struct{}
	err    error
	closed bool
	mu     sync.Mutex
}

// Done 在会话结束时关闭。
func (s *Session) Done() <-chan struct{} { return s.done }

// Err 返回会话结束的原因；会话仍在运行或由 Close 主动关闭时返回 nil。
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.err
}

// Close 主动关闭连接并等待读取协程退出。
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	err := s.stream.Close()
	<-s.done
	return err
}

func (s *Session) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		_ = s.stream.Close()
		close(s.done)
	})
}
