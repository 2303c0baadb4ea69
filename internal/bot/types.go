package bot

import (
	"context"
	"time"

	"AgentKit/internal/twitter"
)

// MentionEvent 是流中推送的一条提及，只读且只被消费一次。
type MentionEvent struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	Text           string    `json:"text"`
}

// ReplyOutcome 是一次回复尝试的最终结果，不会被自动重试。
type ReplyOutcome struct {
	MentionID string `json:"mention_id"`
	Success   bool   `json:"success"`
	NoOp      bool   `json:"no_op,omitempty"`
	Message   string `json:"message"`
	TweetID   string `json:"tweet_id,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// 回复结果的说明文字。
const (
	MessageReplied   = "Successfully replied to tweet"
	MessageFailed    = "Failed to respond to mention"
	MessageEmpty     = "Generated reply was empty; nothing posted"
	MessageDuplicate = "Mention already handled"
	MessageNoText    = "Mention has no text"
)

// Poster 以用户身份发布回复。
type Poster interface {
	Reply(ctx context.Context, text, inReplyTo string) (twitter.Tweet, error)
}

// Identity 查询机器人自身账号。
type Identity interface {
	Me(ctx context.Context) (twitter.User, error)
}

// UserAPI 是需要用户上下文凭据的能力集合。
type UserAPI interface {
	Poster
	Identity
}

// StreamAPI 是需要应用凭据的规则管理与过滤流能力。
type StreamAPI interface {
	ListRules(ctx context.Context) ([]twitter.Rule, error)
	ReplaceRules(ctx context.Context, deleteIDs, addValues []string) error
	OpenStream(ctx context.Context, fields, expansions []string) (twitter.Stream, error)
}

// Responder 把一条提及变成一次回复尝试。
type Responder interface {
	Respond(ctx context.Context, mention MentionEvent) ReplyOutcome
}

// Dispatcher 接收流中的提及并安排处理，不得阻塞流的读取。
type Dispatcher interface {
	Dispatch(ctx context.Context, mention MentionEvent) error
}

// Claimer 为提及加锁，配置后重连时重复推送的提及只回复一次。
type Claimer interface {
	Claim(ctx context.Context, mentionID string) (bool, error)
}
