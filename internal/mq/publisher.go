package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunRequest MessageType = "pipeline.run"
	MessageTypeRunReply   MessageType = "pipeline.result"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(typ MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// PublishOptions — свойства AMQP для запросов и ответов.
type PublishOptions struct {
	// ReplyTo — очередь для ответа.
	ReplyTo string

	// CorrelationID связывает ответ с запросом.
	CorrelationID string

	// Transient — не сохранять сообщение на диск (ответы).
	Transient bool
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, opts PublishOptions) error {
	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := publish(ctx, ch, exchange, routingKey, msg, opts); err != nil {
			return err
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
			"correlation_id", opts.CorrelationID,
		)
		return nil
	})
}

// publish сериализует и публикует сообщение в канал ch.
func publish(ctx context.Context, ch *amqp.Channel, exchange Exchange, routingKey RoutingKey, msg *Message, opts PublishOptions) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	mode := amqp.Persistent // сообщение переживёт рестарт RabbitMQ
	if opts.Transient {
		mode = amqp.Transient
	}

	err = ch.PublishWithContext(
		ctx,
		string(exchange),   // exchange
		string(routingKey), // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  mode,
			MessageId:     msg.ID,
			Timestamp:     msg.Timestamp,
			Type:          string(msg.Type),
			ReplyTo:       opts.ReplyTo,
			CorrelationId: opts.CorrelationID,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}

// PublishRunRequest публикует запрос на выполнение pipeline.
// Потребитель: piper-agent.
func (p *Publisher) PublishRunRequest(ctx context.Context, payload any, opts PublishOptions) (*Message, error) {
	msg := NewMessage(MessageTypeRunRequest, payload)
	if opts.CorrelationID == "" {
		opts.CorrelationID = msg.ID
	}
	return msg, p.Publish(ctx, ExchangePipelines, RoutingKeyRun, msg, opts)
}

// Reply отправляет ответ в очередь replyTo через обменник по умолчанию.
func (p *Publisher) Reply(ctx context.Context, replyTo, correlationID string, payload any) error {
	msg := NewMessage(MessageTypeRunReply, payload)
	return p.Publish(ctx, "", RoutingKey(replyTo), msg, PublishOptions{
		CorrelationID: correlationID,
		Transient:     true,
	})
}
