package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена объектов брокера.
type (
	Exchange   string
	Queue      string
	RoutingKey string
)

const (
	ExchangePipelines Exchange = "piper.pipelines"
	ExchangeDLQ       Exchange = "piper.dlq"

	QueuePipelinesRun Queue = "pipelines.run"
	QueueDLQPipelines Queue = "dlq.pipelines"

	RoutingKeyRun          RoutingKey = "run"
	RoutingKeyDLQPipelines RoutingKey = "pipelines"
)

// binding — durable очередь, привязанная к direct обменнику.
type binding struct {
	exchange Exchange
	queue    Queue
	key      RoutingKey
	args     amqp.Table
}

// topology агента:
//
//	piper.pipelines ─run→ pipelines.run ─(nack)→ piper.dlq ─pipelines→ dlq.pipelines
//
// Ответы идут через обменник по умолчанию с routing key = ReplyTo
// запроса и отдельных объявлений не требуют.
var topology = []binding{
	{
		exchange: ExchangePipelines,
		queue:    QueuePipelinesRun,
		key:      RoutingKeyRun,
		args: amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQPipelines),
		},
	},
	{
		exchange: ExchangeDLQ,
		queue:    QueueDLQPipelines,
		key:      RoutingKeyDLQPipelines,
	},
}

// SetupTopology объявляет обменники, очереди и привязки. Повторный вызов
// с теми же параметрами безопасен.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, b := range topology {
			if err := declare(ch, b); err != nil {
				return err
			}
		}
		return nil
	})
}

func declare(ch *amqp.Channel, b binding) error {
	// durable, не auto-delete, не internal, без no-wait
	if err := ch.ExchangeDeclare(string(b.exchange), amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
	}
	if _, err := ch.QueueDeclare(string(b.queue), true, false, false, false, b.args); err != nil {
		return fmt.Errorf("declare queue %s: %w", b.queue, err)
	}
	if err := ch.QueueBind(string(b.queue), string(b.key), string(b.exchange), false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", b.queue, b.exchange, err)
	}
	return nil
}
