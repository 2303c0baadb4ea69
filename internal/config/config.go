package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"AgentKit/pkg/logger"
)

// Config 描述了 AgentKit 在启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       logger.Config   `yaml:"log"`
	Twitter   TwitterConfig   `yaml:"twitter"`
	LLM       LLMConfig       `yaml:"llm"`
	Bot       BotConfig       `yaml:"bot"`
	Queue     QueueConfig     `yaml:"queue"`
	Storage   StorageConfig   `yaml:"storage"`
	Solana    SolanaConfig    `yaml:"solana"`
	Swap      SwapConfig      `yaml:"swap"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
}

// ServerConfig 控制状态接口与指标的监听地址。
type ServerConfig struct {
	Address string `yaml:"address"`
	// AuthToken 非空时 /api/v1/ 下的接口需要携带 Bearer Token。
	AuthToken string `yaml:"auth_token"`
	// MetricsAddress 非空时额外在该地址单独暴露 /metrics。
	MetricsAddress string `yaml:"metrics_address"`
}

// Credentials 保存平台凭据。发帖与身份查询使用用户上下文凭据（OAuth 1.0a），
// 规则管理与流式监听使用应用凭据（Bearer Token）。
type Credentials struct {
	APIKey            string `yaml:"api_key"`
	APISecret         string `yaml:"api_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
	BearerToken       string `yaml:"bearer_token"`
}

// LogValue 保证凭据不会以明文出现在日志中。
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Bool("access_token_set", c.AccessToken != ""),
		slog.Bool("bearer_token_set", c.BearerToken != ""),
	)
}

// String 与 LogValue 保持一致，避免 fmt 打印泄露凭据。
func (c Credentials) String() string {
	return "Credentials{redacted}"
}

// UserContextReady 判断发帖所需的用户上下文凭据是否齐全。
func (c Credentials) UserContextReady() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// TwitterConfig 描述平台接入参数。
type TwitterConfig struct {
	BaseURL     string      `yaml:"base_url"`
	Credentials Credentials `yaml:"credentials"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string       `yaml:"provider"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Gemini   GeminiConfig `yaml:"gemini"`
}

// OpenAIConfig 描述 Chat Completions 接口的接入信息。
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout 返回 HTTP 客户端超时时间。
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GeminiConfig 描述 Gemini 接口的接入信息。
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// BotConfig 控制提及监听与回复流程。
type BotConfig struct {
	BackoffSeconds      int                  `yaml:"backoff_seconds"`
	ModelTimeoutSeconds int                  `yaml:"model_timeout_seconds"`
	PostTimeoutSeconds  int                  `yaml:"post_timeout_seconds"`
	MaxReplyChars       int                  `yaml:"max_reply_chars"`
	PostsPerMinute      float64              `yaml:"posts_per_minute"`
	CircuitBreaker      CircuitBreakerConfig `yaml:"circuit_breaker"`
	Workers             int                  `yaml:"workers"`
}

// Backoff 返回会话失败后的固定等待时间。
func (c BotConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// ModelTimeout 返回单次模型调用的超时时间。
func (c BotConfig) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

// PostTimeout 返回单次发帖调用的超时时间。
func (c BotConfig) PostTimeout() time.Duration {
	return time.Duration(c.PostTimeoutSeconds) * time.Second
}

// CircuitBreakerConfig 控制发帖熔断器。
type CircuitBreakerConfig struct {
	Enabled          bool `yaml:"enabled"`
	FailureThreshold uint `yaml:"failure_threshold"`
	DelaySeconds     int  `yaml:"delay_seconds"`
}

// QueueConfig 描述提及派发队列。Driver 为 none 时提及在进程内异步处理，
// memory 使用有界内存队列与固定数量的 worker。
type QueueConfig struct {
	Driver   string         `yaml:"driver"`
	Size     int            `yaml:"size"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 的连接参数。
type RedisConfig struct {
	Address          string `yaml:"address"`
	Password         string `yaml:"password"`
	DB               int    `yaml:"db"`
	Queue            string `yaml:"queue"`
	BlockWaitSeconds int    `yaml:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 的连接参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Prefetch   int    `yaml:"prefetch"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// StorageConfig 统一描述回复记录与去重标记的存储后端。
type StorageConfig struct {
	Replies ReplyStoreConfig `yaml:"replies"`
	Claims  ClaimStoreConfig `yaml:"claims"`
	DataDir string           `yaml:"data_dir"`
}

// ReplyStoreConfig 描述回复结果的落库方式。
type ReplyStoreConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
}

// ClaimStoreConfig 描述提及去重标记的存储。Driver 为 none 时不做去重，
// 同一提及被重复投递时每次都会尝试回复。
type ClaimStoreConfig struct {
	Driver     string      `yaml:"driver"`
	TTLSeconds int         `yaml:"ttl_seconds"`
	Prefix     string      `yaml:"prefix"`
	Redis      RedisConfig `yaml:"redis"`
}

// SolanaConfig 描述链上访问参数。
type SolanaConfig struct {
	RPCURL       string `yaml:"rpc_url"`
	ChainConfig  string `yaml:"chain_config"`
	DefaultChain string `yaml:"default_chain"`
	PrivateKey   string `yaml:"private_key"`
}

// SwapConfig 描述聚合器的接入参数。
type SwapConfig struct {
	JupiterURL         string `yaml:"jupiter_url"`
	DefaultSlippageBps int    `yaml:"default_slippage_bps"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

// AlertingConfig 描述告警渠道。
type AlertingConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// KnowledgeConfig 描述可选的静态知识库。
type KnowledgeConfig struct {
	Source     string `yaml:"source"`
	MaxResults int    `yaml:"max_results"`
}

// Mode 决定 Validate 检查哪些必填项。
type Mode string

const (
	ModeBot  Mode = "bot"
	ModeSwap Mode = "swap"
)

// DefaultPath 返回默认配置文件路径，可通过 AGENTKIT_CONFIG 覆盖。
func DefaultPath() string {
	if path := strings.TrimSpace(os.Getenv("AGENTKIT_CONFIG")); path != "" {
		return path
	}
	return filepath.Join("configs", "agentkit.yaml")
}

// LoadDotEnv 加载工作目录下的 .env 文件，已存在的环境变量不会被覆盖。
func LoadDotEnv(files ...string) []string {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			logger.L().Warn("加载环境变量文件失败", slog.String("file", file), slog.Any("error", err))
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

// Load 解析指定路径的 YAML 配置文件；文件不存在时仅使用环境变量与默认值。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return nil, fmt.Errorf("解析配置失败: %w", err)
			}
			baseDir = filepath.Dir(path)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults(baseDir)
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖敏感字段，沿用原有的变量命名。
func (c *Config) applyEnv() {
	creds := &c.Twitter.Credentials
	overrideFromEnv(&creds.APIKey, "TWITTER_API_KEY")
	overrideFromEnv(&creds.APISecret, "TWITTER_API_SECRET")
	overrideFromEnv(&creds.AccessToken, "TWITTER_ACCESS_TOKEN")
	overrideFromEnv(&creds.AccessTokenSecret, "TWITTER_ACCESS_TOKEN_SECRET")
	overrideFromEnv(&creds.BearerToken, "TWITTER_BEARER_TOKEN")
	overrideFromEnv(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideFromEnv(&c.LLM.Gemini.APIKey, "GEMINI_API_KEY")
	overrideFromEnv(&c.Solana.PrivateKey, "SOLANA_PRIVATE_KEY")
	overrideFromEnv(&c.Solana.RPCURL, "RPC_URL")
	overrideFromEnv(&c.Server.AuthToken, "AGENTKIT_API_TOKEN")
}

func overrideFromEnv(target *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Twitter.BaseURL == "" {
		c.Twitter.BaseURL = "https://api.twitter.com"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4"
	}
	if c.LLM.OpenAI.TimeoutSeconds <= 0 {
		c.LLM.OpenAI.TimeoutSeconds = 60
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-2.0-flash"
	}

	if c.Bot.BackoffSeconds <= 0 {
		c.Bot.BackoffSeconds = 30
	}
	if c.Bot.ModelTimeoutSeconds <= 0 {
		c.Bot.ModelTimeoutSeconds = 60
	}
	if c.Bot.PostTimeoutSeconds <= 0 {
		c.Bot.PostTimeoutSeconds = 30
	}
	if c.Bot.MaxReplyChars <= 0 {
		c.Bot.MaxReplyChars = 280
	}
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 4
	}
	if c.Bot.CircuitBreaker.FailureThreshold == 0 {
		c.Bot.CircuitBreaker.FailureThreshold = 5
	}
	if c.Bot.CircuitBreaker.DelaySeconds <= 0 {
		c.Bot.CircuitBreaker.DelaySeconds = 60
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "none"
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 1024
	}

	if c.Storage.Replies.Driver == "" {
		c.Storage.Replies.Driver = "memory"
	}
	if c.Storage.Claims.Driver == "" {
		c.Storage.Claims.Driver = "none"
	}
	if c.Storage.Claims.TTLSeconds <= 0 {
		c.Storage.Claims.TTLSeconds = 7 * 24 * 3600
	}
	c.Storage.DataDir = resolvePath(baseDir, c.Storage.DataDir, "data")

	if c.Solana.RPCURL == "" {
		c.Solana.RPCURL = "https://api.mainnet-beta.solana.com"
	}
	if c.Solana.ChainConfig != "" && !filepath.IsAbs(c.Solana.ChainConfig) {
		c.Solana.ChainConfig = filepath.Join(baseDir, c.Solana.ChainConfig)
	}

	if c.Swap.JupiterURL == "" {
		c.Swap.JupiterURL = "https://quote-api.jup.ag/v6"
	}
	if c.Swap.DefaultSlippageBps <= 0 {
		c.Swap.DefaultSlippageBps = 300
	}
	if c.Swap.TimeoutSeconds <= 0 {
		c.Swap.TimeoutSeconds = 30
	}

	if c.Knowledge.Source != "" && !filepath.IsAbs(c.Knowledge.Source) {
		c.Knowledge.Source = filepath.Join(baseDir, c.Knowledge.Source)
	}
}

func resolvePath(baseDir, value, fallback string) string {
	if value == "" {
		return filepath.Join(baseDir, fallback)
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}

// Validate 检查指定运行模式所需的必填项。
func (c *Config) Validate(mode Mode) error {
	var missing []string
	switch mode {
	case ModeBot:
		creds := c.Twitter.Credentials
		if creds.APIKey == "" {
			missing = append(missing, "TWITTER_API_KEY")
		}
		if creds.APISecret == "" {
			missing = append(missing, "TWITTER_API_SECRET")
		}
		if creds.AccessToken == "" {
			missing = append(missing, "TWITTER_ACCESS_TOKEN")
		}
		if creds.AccessTokenSecret == "" {
			missing = append(missing, "TWITTER_ACCESS_TOKEN_SECRET")
		}
		if creds.BearerToken == "" {
			missing = append(missing, "TWITTER_BEARER_TOKEN")
		}
		switch c.LLM.Provider {
		case "openai":
			if c.LLM.OpenAI.APIKey == "" {
				missing = append(missing, "OPENAI_API_KEY")
			}
		case "gemini":
			if c.LLM.Gemini.APIKey == "" {
				missing = append(missing, "GEMINI_API_KEY")
			}
		default:
			return fmt.Errorf("未知的大模型 provider: %s", c.LLM.Provider)
		}
	case ModeSwap:
		if c.Solana.PrivateKey == "" {
			missing = append(missing, "SOLANA_PRIVATE_KEY")
		}
	default:
		return fmt.Errorf("未知的运行模式: %s", mode)
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺少必需的环境变量: %s", strings.Join(missing, ", "))
	}
	return nil
}
