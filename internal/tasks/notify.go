package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shaiso/piper/internal/engine"
)

// NotifyTask — уведомление через webhook.
//
//	notify(uri = "https://hooks.example.com/x", message = "deployed #{version}")
//
// Все аргументы задачи отправляются POST запросом в виде JSON.
// Код ответа вне 2xx — ошибка выполнения.
type NotifyTask struct {
	base
	client *http.Client
}

// NewNotifyTask возвращает фабрику задач notify.
func NewNotifyTask(client *http.Client) Factory {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return func(spec Spec) Task {
		return &NotifyTask{base: newBase(spec), client: client}
	}
}

// Validate проверяет наличие uri.
func (t *NotifyTask) Validate() error {
	if GetConfigString(t.spec.Args, "uri") == "" {
		return missingArg(t.spec.Name, "uri")
	}
	return nil
}

// Execute отправляет уведомление.
func (t *NotifyTask) Execute(ctx context.Context, _ *engine.Context, sink *ResultSink) error {
	uri := GetConfigString(t.spec.Args, "uri")
	sink.Set("uri", uri)

	payload := make(map[string]any, len(t.spec.Args))
	for k, v := range t.spec.Args {
		if k == "output" {
			continue
		}
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return t.fail(sink, "json serialization", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return t.fail(sink, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return t.fail(sink, "http request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	sink.Set("status_code", float64(resp.StatusCode))
	sink.SetOutput(float64(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return t.fail(sink, "unexpected status", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	t.record(sink, StatusSuccess)
	return nil
}

func (t *NotifyTask) fail(sink *ResultSink, msg string, err error) error {
	t.record(sink, StatusError)
	sink.Set("error", err.Error())
	return NewExecutionError(t.spec.Name, msg, err)
}
