// Package llm содержит клиент языковой модели для задач llm и генерации
// конкретных пайплайнов из мета-пайплайнов.
//
// Включает:
//   - client.go    — интерфейс Client, Request, Response
//   - anthropic.go — реализация поверх Anthropic Messages API
//
// Пример:
//
//	client := llm.NewAnthropic(llm.WithModel("claude-sonnet-4-20250514"))
//	resp, err := client.Complete(ctx, &llm.Request{Prompt: "Summarize: ..."})
package llm
