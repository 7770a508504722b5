// Package cli реализует инструмент командной строки piper.
//
// # Обзор
//
// CLI работает в двух режимах: локально (компилирует и выполняет
// pipeline в своём процессе через пакет agent) и удалённо (через HTTP
// API агента или очередь pipelines.run).
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент API агента. Разбирает DataResponse, ListResponse и
// ErrorResponse, ошибки оборачивает в ErrAPI.
//
//	client := cli.NewClient("http://localhost:8080", "secret")
//	resp, err := client.Run(ctx, agent.RunRequest{Source: src})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: piper run deploy.piper --json | jq .
//
// ## Commands
//
//   - init — пример piper.yaml
//   - run — выполнение pipeline (локально, --agent, --amqp, --watch)
//   - check, fmt — статическая проверка и форматирование
//   - generate — материализация meta-pipeline в кэш
//   - agents, history — состояние агентов и история run
//
// Команды создаются фабриками (NewRunCmd и т.д.), которые получают Env.
// Env лениво загружает конфигурацию после разбора PersistentFlags.
package cli
