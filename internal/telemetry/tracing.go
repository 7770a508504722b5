package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// TracerName — имя трассировщика piper.
const TracerName = "github.com/shaiso/piper"

// TracingConfig — параметры экспорта трейсов.
type TracingConfig struct {
	ServiceName string
	Endpoint    string // OTLP gRPC endpoint; пусто — экспорт выключен
	Insecure    bool
	Headers     map[string]string
}

// SetupTracing инициализирует глобальный TracerProvider и возвращает
// функцию завершения, которая сбрасывает буферизованные спаны.
func SetupTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithReturnConnectionError()), //nolint:staticcheck // нужна ошибка соединения при старте
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	} else {
		clientOpts = append(clientOpts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exporter, err := otlptrace.New(dialCtx, otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// Tracer возвращает трассировщик из глобального провайдера.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartRunSpan открывает спан выполнения pipeline.
func StartRunSpan(ctx context.Context, pipeline, runID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("piper.pipeline", pipeline),
		attribute.String("piper.run_id", runID),
	))
}

// StartTaskSpan открывает спан выполнения задачи.
func StartTaskSpan(ctx context.Context, name, taskType string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "task."+taskType, trace.WithAttributes(
		attribute.String("piper.task", name),
		attribute.String("piper.task_type", taskType),
	))
}

// EndSpan завершает спан, отмечая ошибку при её наличии.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
