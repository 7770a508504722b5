// Package mq связывает агента с RabbitMQ: запуск pipeline можно заказать
// сообщением в очередь pipelines.run и получить результат ответом в
// очередь ReplyTo (RPC поверх AMQP).
//
// Сообщение, которое не удалось разобрать или обработать, отклоняется
// без повторной доставки и уходит в dlq.pipelines.
package mq
