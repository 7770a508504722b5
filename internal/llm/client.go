package llm

import (
	"context"
	"errors"
)

// Ошибки клиента.
var (
	// ErrEmptyAPIKey — ключ API не задан.
	ErrEmptyAPIKey = errors.New("api key is empty")

	// ErrEmptyPrompt — пустой запрос.
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// Client — языковая модель, отвечающая на одиночный запрос.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Request — запрос к модели.
type Request struct {
	Model       string   // пусто — модель клиента по умолчанию
	System      string   // системный промпт
	Prompt      string   // сообщение пользователя
	Temperature *float64 // nil — значение API по умолчанию
	MaxTokens   int      // 0 — DefaultMaxTokens
}

// Response — ответ модели.
type Response struct {
	Text         string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// TokensUsed возвращает суммарное количество токенов.
func (r *Response) TokensUsed() int {
	return r.InputTokens + r.OutputTokens
}
