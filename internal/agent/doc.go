// Package agent выполняет pipeline, присланные удалённо.
//
// Service — общая граница выполнения для HTTP API и очереди: разбирает
// текст pipeline, материализует мета-пайплайн и запускает Interpreter.
// Worker получает запросы из очереди pipelines.run и отвечает
// в очередь ReplyTo с тем же CorrelationId.
package agent
