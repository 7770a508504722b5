package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogConfigFromEnv(t *testing.T) {
	tests := []struct {
		level    string
		format   string
		expected LogConfig
	}{
		{level: "DEBUG", expected: LogConfig{Level: slog.LevelDebug, Format: "text"}},
		{level: "warn", expected: LogConfig{Level: slog.LevelWarn, Format: "text"}},
		{level: "ERROR", format: "JSON", expected: LogConfig{Level: slog.LevelError, Format: "json"}},
		{level: "", expected: LogConfig{Level: slog.LevelInfo, Format: "text"}},
		{level: "verbose", expected: LogConfig{Level: slog.LevelInfo, Format: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.level)
			t.Setenv("LOG_FORMAT", tt.format)
			if got := LogConfigFromEnv("text"); got != tt.expected {
				t.Errorf("got %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestSetupLoggerTo(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_LEVEL", "")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := TaskLogger(RunLogger(SetupLoggerTo(&buf, "text"), "deploy", "r1"), "build")
	logger.Info("task started")
	logger.Debug("hidden")

	out := buf.String()
	for _, want := range []string{"pipeline=deploy", "run_id=r1", "task=build"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug record written at INFO level")
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	LogConfig{Level: slog.LevelInfo, Format: "json"}.NewLogger(&buf).Info("hello", "k", 1)

	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"k":1`) {
		t.Errorf("expected JSON record, got %s", buf.String())
	}
}

func TestLoggerContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)

	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger")
	}
}

func TestRecordTask(t *testing.T) {
	before := testutil.ToFloat64(TaskExecutions.WithLabelValues("cmd", "succeeded"))
	RecordTask("cmd", "succeeded", 10*time.Millisecond)
	after := testutil.ToFloat64(TaskExecutions.WithLabelValues("cmd", "succeeded"))

	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(prev)

	ctx, runSpan := StartRunSpan(context.Background(), "demo", "r1")
	_, taskSpan := StartTaskSpan(ctx, "build", "cmd")
	EndSpan(taskSpan, errors.New("exit 1"))
	EndSpan(runSpan, nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "task.cmd" || spans[0].Status().Code != codes.Error {
		t.Errorf("unexpected task span: %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("task span should be a child of the run span")
	}
}

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{ServiceName: "piper"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}
