package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropic_Complete(t *testing.T) {
	var received messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "test-model",
			"content": [{"type": "text", "text": "hello "}, {"type": "text", "text": "there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 7, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	client := NewAnthropic(WithAPIKey("secret"), WithBaseURL(server.URL+"/"), WithModel("test-model"))
	temp := 0.2
	resp, err := client.Complete(context.Background(), &Request{
		System:      "be brief",
		Prompt:      "hi",
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text != "hello there" {
		t.Errorf("unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed() != 10 {
		t.Errorf("expected 10 tokens, got %d", resp.TokensUsed())
	}

	// Проверяем тело запроса
	if received.Model != "test-model" || received.System != "be brief" {
		t.Errorf("unexpected request: %+v", received)
	}
	if received.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", received.MaxTokens)
	}
	if received.Temperature == nil || *received.Temperature != 0.2 {
		t.Errorf("temperature not forwarded")
	}
}

func TestAnthropic_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	}))
	defer server.Close()

	tests := []struct {
		name   string
		client *Anthropic
		prompt string
		check  func(error) bool
	}{
		{
			name:   "empty key",
			client: NewAnthropic(WithAPIKey(""), WithBaseURL(server.URL)),
			prompt: "hi",
			check:  func(err error) bool { return errors.Is(err, ErrEmptyAPIKey) },
		},
		{
			name:   "empty prompt",
			client: NewAnthropic(WithAPIKey("k"), WithBaseURL(server.URL)),
			prompt: "  ",
			check:  func(err error) bool { return errors.Is(err, ErrEmptyPrompt) },
		},
		{
			name:   "api error",
			client: NewAnthropic(WithAPIKey("k"), WithBaseURL(server.URL)),
			prompt: "hi",
			check: func(err error) bool {
				var apiErr *APIError
				return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.client.Complete(context.Background(), &Request{Prompt: tt.prompt})
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
