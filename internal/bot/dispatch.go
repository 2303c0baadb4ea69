package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "AgentKit/internal/errors"
	"AgentKit/internal/queue"
	"AgentKit/pkg/logger"
)

// AsyncDispatcher 为每条提及启动独立协程，处理顺序不作保证。
// 处理协程使用派发器自己的 context，流会话结束不会打断进行中的回复。
type AsyncDispatcher struct {
	responder Responder
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
}

// NewAsyncDispatcher 创建异步派发器。
func NewAsyncDispatcher(responder Responder) *AsyncDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncDispatcher{responder: responder, ctx: ctx, cancel: cancel}
}

// Dispatch 立即返回，回复在后台完成。
func (d *AsyncDispatcher) Dispatch(_ context.Context, mention MentionEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return xerrors.New(xerrors.CodeInitializationFailure, "派发器已关闭")
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.responder.Respond(d.ctx, mention)
	}()
	return nil
}

// Shutdown 拒绝新的提及并等待进行中的回复，ctx 结束时取消剩余回复。
func (d *AsyncDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-drained
		return ctx.Err()
	}
}

// mentionEnvelope 是队列中传递的提及消息。
type mentionEnvelope struct {
	ID         string       `json:"id"`
	Mention    MentionEvent `json:"mention"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// QueueDispatcher 把提及写入消息队列，由 Processor 异步消费。
type QueueDispatcher struct {
	producer queue.Producer
}

// NewQueueDispatcher 创建基于队列的派发器。
func NewQueueDispatcher(producer queue.Producer) *QueueDispatcher {
	return &QueueDispatcher{producer: producer}
}

// Dispatch 序列化提及并投递到队列。
func (d *QueueDispatcher) Dispatch(ctx context.Context, mention MentionEvent) error {
	payload, err := json.Marshal(mentionEnvelope{ID: uuid.NewString(), Mention: mention, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("序列化提及失败: %w", err)
	}
	if err := d.producer.Publish(ctx, payload); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "投递提及失败")
	}
	return nil
}

// Processor 从队列消费提及并交给 Responder，处理失败的消息不会重新入队。
type Processor struct {
	responder   Responder
	consumer    queue.Consumer
	workerCount int
	log         *slog.Logger
}

// NewProcessor 构造 Processor。
func NewProcessor(responder Responder, consumer queue.Consumer, workers int) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{responder: responder, consumer: consumer, workerCount: workers, log: logger.Named("processor")}
}

// Start 启动消费循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil || p.responder == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置提及消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, payload []byte) error {
	var env mentionEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析提及消息失败")
	}
	outcome := p.responder.Respond(ctx, env.Mention)
	p.log.Debug("队列提及处理完成",
		slog.String("envelope_id", env.ID),
		slog.String("mention_id", outcome.MentionID),
		slog.Bool("success", outcome.Success),
		slog.Duration("queued_for", time.Since(env.EnqueuedAt)))
	return nil
}
