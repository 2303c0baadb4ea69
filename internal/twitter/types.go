package twitter

import (
	"encoding/json"
	"time"
)

// Rule 是过滤流上的一条匹配规则。
type Rule struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// User 是 v2 接口返回的用户信息。
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Tweet 是流中推送或发帖接口返回的推文。
type Tweet struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"-"`
	Text           string    `json:"text"`
}

// UnmarshalJSON 宽松解析 created_at，格式不合法时保留零值。
func (t *Tweet) UnmarshalJSON(data []byte) error {
	type plain Tweet
	aux := struct {
		*plain
		CreatedAt string `json:"created_at"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, aux.CreatedAt); err == nil {
			t.CreatedAt = ts
		}
	}
	return nil
}

// StreamEvent 是过滤流中的一帧数据。
type StreamEvent struct {
	Data     *Tweet `json:"data"`
	Includes struct {
		Users []User `json:"users"`
	} `json:"includes"`
	MatchingRules []Rule       `json:"matching_rules"`
	Errors        []APIProblem `json:"errors"`
}

// Author 返回 expansions 中与推文作者对应的用户。
func (e *StreamEvent) Author() (User, bool) {
	if e == nil || e.Data == nil {
		return User{}, false
	}
	for _, u := range e.Includes.Users {
		if u.ID == e.Data.AuthorID {
			return u, true
		}
	}
	return User{}, false
}

// APIProblem 是 v2 接口返回的错误条目。
type APIProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

// Stream 是一次打开的过滤流连接，不可重用。
type Stream interface {
	// Recv 阻塞直到收到下一帧；连接结束时返回 io.EOF。
	Recv() (*StreamEvent, error)
	Close() error
}
