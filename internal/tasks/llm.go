package tasks

import (
	"context"
	"strings"

	"github.com/shaiso/piper/internal/engine"
	"github.com/shaiso/piper/internal/llm"
)

// LLMTask — запрос к языковой модели.
//
//	llm(prompt = "Summarize: #{log}", system = "Be brief", model = "...",
//	    temperature = 0.2, max_tokens = 512, output = summary)
//
// Поля результата: text, model, tokens_used. Основной результат — text.
type LLMTask struct {
	base
	client llm.Client
}

// NewLLMTask возвращает фабрику задач llm.
func NewLLMTask(client llm.Client) Factory {
	return func(spec Spec) Task {
		return &LLMTask{base: newBase(spec), client: client}
	}
}

func (t *LLMTask) prompt() string {
	return toString(t.spec.arg("prompt", 0))
}

// Validate проверяет наличие промпта и числовых параметров.
func (t *LLMTask) Validate() error {
	if strings.TrimSpace(t.prompt()) == "" {
		return missingArg(t.spec.Name, "prompt")
	}
	if _, ok := t.spec.Args["temperature"]; ok {
		if temp, valid := GetConfigFloat(t.spec.Args, "temperature"); !valid || temp < 0 || temp > 2 {
			return NewValidationError(t.spec.Name, "'temperature' must be a number between 0 and 2")
		}
	}
	if _, ok := t.spec.Args["max_tokens"]; ok && GetConfigInt(t.spec.Args, "max_tokens") <= 0 {
		return NewValidationError(t.spec.Name, "'max_tokens' must be a positive number")
	}
	return nil
}

// Execute отправляет запрос модели.
func (t *LLMTask) Execute(ctx context.Context, _ *engine.Context, sink *ResultSink) error {
	req := &llm.Request{
		Model:     GetConfigString(t.spec.Args, "model"),
		System:    GetConfigString(t.spec.Args, "system"),
		Prompt:    t.prompt(),
		MaxTokens: GetConfigInt(t.spec.Args, "max_tokens"),
	}
	if temp, ok := GetConfigFloat(t.spec.Args, "temperature"); ok {
		req.Temperature = &temp
	}

	resp, err := t.client.Complete(ctx, req)
	if err != nil {
		t.record(sink, StatusError)
		sink.Set("error", err.Error())
		return NewExecutionError(t.spec.Name, "llm request failed", err)
	}

	sink.SetMany(map[string]any{
		"text":        resp.Text,
		"model":       resp.Model,
		"stop_reason": resp.StopReason,
		"tokens_used": float64(resp.TokensUsed()),
	})
	sink.SetOutput(resp.Text)
	t.record(sink, StatusSuccess)
	return nil
}
