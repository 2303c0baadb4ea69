package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dghubble/oauth1"
)

// UserCredentials 是 OAuth 1.0a 用户上下文凭据。
type UserCredentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// UserClient 以用户身份发帖并查询自身信息。
type UserClient struct {
	baseURL string
	http    *http.Client
}

// NewUserClient 创建 OAuth 1.0a 签名的客户端。
func NewUserClient(creds UserCredentials, opts ...Option) (*UserClient, error) {
	if creds.ConsumerKey == "" || creds.ConsumerSecret == "" || creds.AccessToken == "" || creds.AccessSecret == "" {
		return nil, errors.New("用户上下文凭据不完整")
	}
	o := buildOptions(opts)
	// oauth1 通过 context 取得底层传输，签名在其之上完成。
	base := context.WithValue(context.Background(), oauth1.HTTPClient, o.httpClient)
	cfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	signed := cfg.Client(base, oauth1.NewToken(creds.AccessToken, creds.AccessSecret))
	return &UserClient{baseURL: o.baseURL, http: signed}, nil
}

// Me 返回凭据对应的账号。
func (c *UserClient) Me(ctx context.Context) (User, error) {
	var resp struct {
		Data User `json:"data"`
	}
	if err := doJSON(ctx, c.http, http.MethodGet, c.baseURL+"/2/users/me", nil, nil, &resp); err != nil {
		return User{}, fmt.Errorf("查询账号信息失败: %w", err)
	}
	if resp.Data.Username == "" {
		return User{}, errors.New("账号信息缺少 username")
	}
	return resp.Data, nil
}

type replyRequest struct {
	Text  string `json:"text"`
	Reply struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply"`
}

// Reply 发布一条回复，返回新推文。
func (c *UserClient) Reply(ctx context.Context, text, inReplyTo string) (Tweet, error) {
	req := replyRequest{Text: text}
	req.Reply.InReplyToTweetID = inReplyTo

	var resp struct {
		Data Tweet `json:"data"`
	}
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/2/tweets", nil, req, &resp); err != nil {
		return Tweet{}, err
	}
	if resp.Data.ID == "" {
		return Tweet{}, errors.New("发帖响应缺少推文 id")
	}
	return resp.Data, nil
}
