package bot

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	xerrors "AgentKit/internal/errors"
	"AgentKit/internal/knowledge"
	"AgentKit/internal/llm"
	"AgentKit/internal/observability/alerting"
	"AgentKit/internal/queue"
	"AgentKit/internal/storage/mysql"
)

// 单次外部调用的默认时限。
const (
	DefaultModelTimeout = 60 * time.Second
	DefaultPostTimeout  = 30 * time.Second
)

// Dependencies 是机器人的三项可替换外部能力。
type Dependencies struct {
	// Model 完成文本补全。
	Model llm.Completer
	// Users 使用用户上下文凭据发帖并查询自身账号。
	Users UserAPI
	// Streams 使用应用凭据管理过滤规则与过滤流。
	Streams StreamAPI
}

// Option 定义机器人的可选配置。
type Option func(*settings)

type settings struct {
	modelTimeout time.Duration
	postTimeout  time.Duration
	backoff      time.Duration
	maxChars     int
	postOptions  []PosterOption
	claimer      Claimer
	store        ReplyStore
	knowledge    knowledge.Provider
	alerts       alerting.Dispatcher
	queue        queue.Queue
	workers      int
	observer     func(State)
}

// WithModelTimeout 设置单次模型调用时限，小于等于 0 表示不限时。
func WithModelTimeout(d time.Duration) Option {
	return func(s *settings) { s.modelTimeout = d }
}

// WithPostTimeout 设置单次发帖时限，小于等于 0 表示不限时。
func WithPostTimeout(d time.Duration) Option {
	return func(s *settings) { s.postTimeout = d }
}

// WithBackoff 设置会话失败后的固定重连间隔。
func WithBackoff(d time.Duration) Option {
	return func(s *settings) { s.backoff = d }
}

// WithMaxReplyChars 覆盖回复字符上限。
func WithMaxReplyChars(n int) Option {
	return func(s *settings) { s.maxChars = n }
}

// WithPosterOptions 追加发帖限速与熔断配置。
func WithPosterOptions(opts ...PosterOption) Option {
	return func(s *settings) { s.postOptions = append(s.postOptions, opts...) }
}

// WithClaimer 配置提及去重。
func WithClaimer(c Claimer) Option {
	return func(s *settings) { s.claimer = c }
}

// WithReplyStore 配置回复结果存储。
func WithReplyStore(store ReplyStore) Option {
	return func(s *settings) { s.store = store }
}

// WithKnowledge 为分析提示词附加知识库检索结果。
func WithKnowledge(p knowledge.Provider) Option {
	return func(s *settings) { s.knowledge = p }
}

// WithAlerts 配置会话失败告警。
func WithAlerts(d alerting.Dispatcher) Option {
	return func(s *settings) { s.alerts = d }
}

// WithQueue 让提及经消息队列派发，并由 workers 个协程消费。
func WithQueue(q queue.Queue, workers int) Option {
	return func(s *settings) {
		s.queue = q
		s.workers = workers
	}
}

// WithStateObserver 在每次状态变化时回调。
func WithStateObserver(fn func(State)) Option {
	return func(s *settings) { s.observer = fn }
}

// Bot 组装提及回复链路的全部组件。
type Bot struct {
	pipeline   *Pipeline
	supervisor *Supervisor
	async      *AsyncDispatcher
	processor  *Processor
	store      ReplyStore
}

// New 校验依赖并组装机器人。
func New(deps Dependencies, opts ...Option) (*Bot, error) {
	if deps.Model == nil || deps.Users == nil || deps.Streams == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "模型、用户与流客户端均不能为空")
	}
	cfg := settings{
		modelTimeout: DefaultModelTimeout,
		postTimeout:  DefaultPostTimeout,
		backoff:      DefaultBackoff,
		maxChars:     MaxReplyChars,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	generator := NewResponseGenerator(deps.Model, cfg.modelTimeout, cfg.maxChars, cfg.knowledge)
	poster := NewReplyPoster(deps.Users, cfg.maxChars, cfg.postTimeout, cfg.postOptions...)
	pipeline := NewPipeline(generator, poster, cfg.claimer, cfg.store)

	b := &Bot{pipeline: pipeline, store: cfg.store}
	var dispatcher Dispatcher
	if cfg.queue != nil {
		dispatcher = NewQueueDispatcher(cfg.queue)
		b.processor = NewProcessor(pipeline, cfg.queue, cfg.workers)
	} else {
		b.async = NewAsyncDispatcher(pipeline)
		dispatcher = b.async
	}

	stream := NewMentionStream(deps.Streams, dispatcher)
	b.supervisor = NewSupervisor(deps.Users, NewRuleManager(deps.Streams), stream, cfg.backoff, cfg.alerts)
	b.supervisor.observer = cfg.observer
	return b, nil
}

// Run 运行监听循环（以及队列模式下的消费者），直到 ctx 结束。
// 返回前等待进行中的回复完成，最多等待一个发帖时限。
func (b *Bot) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.supervisor.Run(gctx) })
	if b.processor != nil {
		g.Go(func() error {
			err := b.processor.Start(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	err := g.Wait()

	if b.async != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), DefaultPostTimeout)
		defer cancel()
		_ = b.async.Shutdown(drainCtx)
	}
	return err
}

// Respond 对单条推文立即执行一次回复尝试，不经过流与派发器。
func (b *Bot) Respond(ctx context.Context, tweetID, text string) ReplyOutcome {
	return b.pipeline.Respond(ctx, MentionEvent{ID: tweetID, Text: text, CreatedAt: time.Now().UTC()})
}

// Status 返回监听循环的状态快照。
func (b *Bot) Status() Status { return b.supervisor.Status() }

// Supervisor 暴露监听循环，供需要 Start/Stop 控制的调用方使用。
func (b *Bot) Supervisor() *Supervisor { return b.supervisor }

// Replies 返回最近的回复记录。
func (b *Bot) Replies(ctx context.Context, limit int) ([]mysql.ReplyRecord, error) {
	if b.store == nil {
		return nil, nil
	}
	return b.store.ListLatest(ctx, limit)
}
