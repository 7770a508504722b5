package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Client отправляет запрос в pipelines.run и ждёт ответ.
//
// Для каждого вызова объявляется временная эксклюзивная очередь,
// её имя передаётся в ReplyTo, а ответ сопоставляется по CorrelationId.
type Client struct {
	conn   *Connection
	logger *slog.Logger
}

// NewClient создаёт новый Client.
func NewClient(conn *Connection, logger *slog.Logger) *Client {
	return &Client{conn: conn, logger: logger}
}

// Call публикует запрос и возвращает ответ.
// Ожидание ограничено ctx.
func (c *Client) Call(ctx context.Context, payload any) (*Message, error) {
	var reply *Message

	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // имя выдаёт сервер
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare reply queue: %w", err)
		}

		tag := "piper-client-" + uuid.New().String()
		deliveries, err := ch.Consume(q.Name, tag, true, true, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume replies: %w", err)
		}
		defer ch.Cancel(tag, false)

		msg := NewMessage(MessageTypeRunRequest, payload)
		opts := PublishOptions{ReplyTo: q.Name, CorrelationID: msg.ID}
		if err := publish(ctx, ch, ExchangePipelines, RoutingKeyRun, msg, opts); err != nil {
			return err
		}
		c.logger.Debug("request published", "message_id", msg.ID, "reply_to", q.Name)

		for {
			select {
			case <-ctx.Done():
				return fmt.Errorf("wait reply: %w", ctx.Err())
			case d, ok := <-deliveries:
				if !ok {
					return fmt.Errorf("reply queue closed")
				}
				if d.CorrelationId != opts.CorrelationID {
					continue
				}
				var m Message
				if err := json.Unmarshal(d.Body, &m); err != nil {
					return fmt.Errorf("unmarshal reply: %w", err)
				}
				reply = &m
				return nil
			}
		}
	})
	return reply, err
}
