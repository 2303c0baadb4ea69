package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"AgentKit/internal/config"
)

// Claimer 为提及加锁，首次声明返回 true。
type Claimer interface {
	Claim(ctx context.Context, mentionID string) (bool, error)
	Close() error
}

// New 根据配置选择去重实现。驱动为 none 时返回 nil，调用方不启用去重。
func New(cfg config.ClaimStoreConfig) (Claimer, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryClaimer(ttl), nil
	case "redis":
		return NewRedisClaimer(cfg.Redis, cfg.Prefix, ttl)
	default:
		return nil, fmt.Errorf("不支持的去重存储驱动: %s", cfg.Driver)
	}
}

// RedisClaimer 使用 SETNX 在多实例间共享去重状态。
type RedisClaimer struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisClaimer 连接 Redis 并返回去重器。
func NewRedisClaimer(cfg config.RedisConfig, prefix string, ttl time.Duration) (*RedisClaimer, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisClaimerFromClient(client, prefix, ttl), nil
}

// NewRedisClaimerFromClient 复用已有连接创建去重器，prefix 为空时使用默认前缀。
// 键形如 <prefix>:<mention id>，prefix 末尾多余的冒号会被去掉。
func NewRedisClaimerFromClient(client goredis.UniversalClient, prefix string, ttl time.Duration) *RedisClaimer {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "agentkit:claims"
	}
	return &RedisClaimer{client: client, prefix: prefix, ttl: ttl}
}

// Claim 以 SETNX 写入标记，已存在时返回 false。
func (c *RedisClaimer) Claim(ctx context.Context, mentionID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(mentionID), time.Now().Unix(), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("写入去重标记失败: %w", err)
	}
	return ok, nil
}

func (c *RedisClaimer) key(mentionID string) string {
	return c.prefix + ":" + mentionID
}

// Close 关闭 Redis 连接。
func (c *RedisClaimer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// MemoryClaimer 在进程内记录已处理的提及，过期条目在声明时顺带清理。
type MemoryClaimer struct {
	mu      sync.Mutex
	ttl     time.Duration
	claimed map[string]time.Time
	now     func() time.Time
}

// NewMemoryClaimer 创建内存去重器，ttl 小于等于 0 表示永不过期。
func NewMemoryClaimer(ttl time.Duration) *MemoryClaimer {
	return &MemoryClaimer{ttl: ttl, claimed: make(map[string]time.Time), now: time.Now}
}

// Claim 首次声明某个提及时返回 true。
func (c *MemoryClaimer) Claim(_ context.Context, mentionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.ttl > 0 {
		for id, at := range c.claimed {
			if now.Sub(at) >= c.ttl {
				delete(c.claimed, id)
			}
		}
	}
	if _, ok := c.claimed[mentionID]; ok {
		return false, nil
	}
	c.claimed[mentionID] = now
	return true, nil
}

// Close 无需释放资源。
func (c *MemoryClaimer) Close() error { return nil }
