package tasks

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/piper/internal/engine"
	"github.com/shaiso/piper/internal/telemetry"
)

const (
	// Значения по умолчанию.
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи аргументов HTTP задачи.
const (
	argMethod          = "method"
	argURL             = "url"
	argHeaders         = "headers"
	argBody            = "body"
	argFollowRedirects = "follow_redirects"
	argValidateSSL     = "validate_ssl"
)

// HTTPTask — HTTP запрос к внешнему API.
//
// Аргументы:
//
//	http(
//	    method = "POST",
//	    url = "https://api.example.com/data",
//	    headers = {Authorization: "Bearer #{token}"},
//	    body = {data: fetch.body},
//	    follow_redirects = true,
//	    validate_ssl = true,
//	    timeout_sec = 30,
//	    allow_failure = false,
//	)
//
// Поля результата:
//
//	{
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json", ...},
//	    "body": {...}  // parsed JSON or string
//	}
//
// Код ответа 4xx/5xx — ошибка выполнения, если не задан allow_failure.
type HTTPTask struct {
	base
}

// NewHTTPTask создаёт задачу http.
func NewHTTPTask(spec Spec) Task {
	return &HTTPTask{base: newBase(spec)}
}

// httpConfig — разобранные аргументы HTTP задачи.
type httpConfig struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	ValidateSSL     bool
	TimeoutSec      int
	AllowFailure    bool
}

// Validate проверяет аргументы.
func (t *HTTPTask) Validate() error {
	_, err := t.parseConfig()
	return err
}

// Execute выполняет HTTP запрос.
func (t *HTTPTask) Execute(ctx context.Context, _ *engine.Context, sink *ResultSink) error {
	cfg, err := t.parseConfig()
	if err != nil {
		return err
	}

	sink.SetMany(map[string]any{"url": cfg.URL, "method": cfg.Method})

	client := buildClient(cfg)
	req, err := buildRequest(ctx, cfg)
	if err != nil {
		return t.fail(sink, "build request", err)
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return t.fail(sink, "http request failed", err)
	}
	defer resp.Body.Close()

	telemetry.FromContext(ctx).Debug("http response",
		"method", cfg.Method,
		"url", cfg.URL,
		"status", resp.StatusCode,
		"elapsed", time.Since(started),
	)

	fields, err := parseResponse(resp)
	if err != nil {
		return t.fail(sink, "read response", err)
	}
	sink.SetMany(fields)
	sink.SetOutput(fields["body"])

	if resp.StatusCode >= http.StatusBadRequest && !cfg.AllowFailure {
		return t.fail(sink, "unexpected status", &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       engine.Stringify(fields["body"]),
		})
	}

	t.record(sink, StatusSuccess)
	return nil
}

func (t *HTTPTask) fail(sink *ResultSink, msg string, err error) error {
	t.record(sink, StatusError)
	sink.Set("error", err.Error())
	return NewExecutionError(t.spec.Name, msg, err)
}

// parseConfig парсит аргументы HTTP задачи.
func (t *HTTPTask) parseConfig() (*httpConfig, error) {
	args := t.spec.Args
	cfg := &httpConfig{
		Method:          GetConfigString(args, argMethod),
		URL:             toString(t.spec.arg(argURL, 0)),
		Headers:         GetConfigMapString(args, argHeaders),
		Body:            args[argBody],
		FollowRedirects: GetConfigBool(args, argFollowRedirects, true),
		ValidateSSL:     GetConfigBool(args, argValidateSSL, true),
		TimeoutSec:      GetConfigInt(args, argTimeoutSec),
		AllowFailure:    GetConfigBool(args, argAllowFailure, false),
	}

	// Валидация
	if cfg.URL == "" {
		return nil, missingArg(t.spec.Name, argURL)
	}

	// Метод по умолчанию — GET
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)

	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	return cfg, nil
}

// buildClient создаёт HTTP клиент с нужными настройками.
func buildClient(cfg *httpConfig) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	// Настройки TLS
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !cfg.ValidateSSL,
	}

	// Настройка редиректов
	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}
}

// buildRequest создаёт HTTP запрос.
func buildRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		// Устанавливаем Content-Type, если не задан
		if _, hasContentType := cfg.Headers["Content-Type"]; !hasContentType {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse преобразует HTTP ответ в поля результата.
func parseResponse(resp *http.Response) (map[string]any, error) {
	// Читаем body с ограничением размера
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			// Если не удалось распарсить JSON, возвращаем как строку
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": float64(resp.StatusCode),
		"headers":     headers,
		"body":        body,
	}, nil
}

// HTTPError — ответ с кодом ошибки.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
