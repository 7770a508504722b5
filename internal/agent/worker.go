package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/piper/internal/mq"
	"github.com/shaiso/piper/internal/orchestrator"
)

const defaultPrefetch = 1

// Replier отправляет ответ на запрос в очередь ReplyTo.
// Реализуется mq.Publisher.
type Replier interface {
	Reply(ctx context.Context, replyTo, correlationID string, payload any) error
}

// RunReply — ответ на запрос из очереди.
// Заполнено ровно одно поле: Response или Error.
type RunReply struct {
	Response *RunResponse `json:"response,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Worker выполняет pipeline из очереди pipelines.run.
//
// Каждое сообщение выполняется синхронно. Если у сообщения задан
// ReplyTo, результат отправляется туда с тем же CorrelationId.
// Ошибка разбора или запуска возвращается в RunReply.Error, сообщение
// при этом подтверждается. В DLQ попадают только сообщения, на которые
// не удалось ответить.
type Worker struct {
	service  *Service
	conn     *mq.Connection
	replier  Replier
	prefetch int

	consumer *mq.Consumer

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// WorkerConfig — конфигурация Worker.
type WorkerConfig struct {
	Service *Service

	// MQ
	Conn    *mq.Connection
	Replier Replier

	// Prefetch — число одновременно получаемых сообщений (default: 1).
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// NewWorker создаёт новый Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		service:  cfg.Service,
		conn:     cfg.Conn,
		replier:  cfg.Replier,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Start запускает consumer очереди pipelines.run.
func (w *Worker) Start(ctx context.Context) error {
	if w.conn == nil {
		return errors.New("worker: amqp connection is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueuePipelinesRun),
		Handler:  w.handleRunRequest,
		Prefetch: w.prefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("run consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started", "queue", mq.QueuePipelinesRun, "prefetch", w.prefetch)
	return nil
}

// Stop останавливает Worker и ждёт завершения текущего run.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handleRunRequest обрабатывает сообщение pipeline.run.
func (w *Worker) handleRunRequest(ctx context.Context, d *mq.Delivery) error {
	reply := w.execute(ctx, &d.Message)

	if d.ReplyTo() == "" {
		if reply.Error != "" {
			w.logger.Warn("run request rejected", "message_id", d.Message.ID, "error", reply.Error)
		}
		return nil
	}

	// Ответ отправляется даже при отменённом ctx: run уже завершён
	replyCtx := context.WithoutCancel(ctx)
	if err := w.replier.Reply(replyCtx, d.ReplyTo(), d.CorrelationID(), reply); err != nil {
		return fmt.Errorf("reply to %s: %w", d.ReplyTo(), err)
	}
	return nil
}

// execute выполняет запрос и формирует ответ.
func (w *Worker) execute(ctx context.Context, msg *mq.Message) *RunReply {
	if msg.Type != mq.MessageTypeRunRequest {
		return &RunReply{Error: fmt.Sprintf("unexpected message type %q", msg.Type)}
	}

	req, err := mq.ParsePayload[RunRequest](msg)
	if err != nil {
		return &RunReply{Error: err.Error()}
	}

	resp, err := w.service.Run(orchestrator.WithTrigger(ctx, "mq"), req)
	if err != nil {
		return &RunReply{Error: err.Error()}
	}
	return &RunReply{Response: resp}
}
