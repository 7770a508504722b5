package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает доставленное сообщение.
//
// Ошибка означает, что сообщение не обработано: оно отклоняется без
// возврата в очередь и попадает в DLQ. Запуск pipeline не идемпотентен,
// поэтому повторная доставка не выполняется.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение вместе с исходной AMQP доставкой.
type Delivery struct {
	Message Message
	Raw     amqp.Delivery
}

// Ack подтверждает обработку.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение. requeue=false отправляет его в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// ReplyTo возвращает очередь для ответа. Пусто — ответ не ожидается.
func (d *Delivery) ReplyTo() string {
	return d.Raw.ReplyTo
}

// CorrelationID возвращает идентификатор, который нужно вернуть в ответе.
// Если отправитель его не задал, используется ID сообщения.
func (d *Delivery) CorrelationID() string {
	if d.Raw.CorrelationId != "" {
		return d.Raw.CorrelationId
	}
	return d.Message.ID
}

// errDeliveriesClosed — брокер закрыл канал доставок.
var errDeliveriesClosed = errors.New("deliveries channel closed")

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	Queue   string
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держит consumer (default: 1).
	Prefetch int
}

// Consumer читает очередь и передаёт сообщения Handler по одному.
// После переподключения Connection подписка восстанавливается.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	cancel context.CancelFunc
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: max(cfg.Prefetch, 1),
	}
}

// Start читает очередь до отмены ctx, Stop или закрытия Connection.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	defer c.cancel()

	for {
		// Подписываемся на переподключение до попытки подписки,
		// чтобы не пропустить его.
		reconnected := c.conn.Reconnected()

		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Done():
			return ErrNoChannel
		case <-reconnected:
			c.logger.Info("reconnected, resuming consumer")
		}
	}
}

// Stop прерывает Start.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// session подписывается на очередь текущего канала и обрабатывает
// сообщения, пока канал жив.
func (c *Consumer) session(ctx context.Context) error {
	ch := c.conn.Channel()
	if ch == nil {
		return ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	// Ручной ack: сообщение подтверждается только после обработки.
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consumer started", "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.dispatch(ctx, raw)
		}
	}
}

// dispatch разбирает сообщение, вызывает Handler и подтверждает
// или отклоняет доставку.
func (c *Consumer) dispatch(ctx context.Context, raw amqp.Delivery) {
	d, err := decodeDelivery(raw)
	if err != nil {
		c.logger.Error("rejecting malformed message", "error", err, "body", string(raw.Body))
		raw.Nack(false, false)
		return
	}

	logger := c.logger.With("message_id", d.Message.ID, "type", d.Message.Type)
	logger.Debug("message received")

	if err := c.handle(ctx, d); err != nil {
		logger.Error("handler failed, message dead-lettered", "error", err)
		raw.Nack(false, false)
		return
	}
	raw.Ack(false)
}

// handle вызывает Handler, превращая панику в ошибку.
func (c *Consumer) handle(ctx context.Context, d *Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(ctx, d)
}

// decodeDelivery разбирает тело доставки в Message.
func decodeDelivery(raw amqp.Delivery) (*Delivery, error) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message %q has no type", msg.ID)
	}
	return &Delivery{Message: msg, Raw: raw}, nil
}

// ParsePayload декодирует payload сообщения в T.
// После доставки payload — это map[string]any, поэтому он
// перекодируется через JSON.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
