// Package telemetry — логи, метрики и трассировка piper.
//
// Логгер slog настраивается переменными LOG_LEVEL и LOG_FORMAT и
// передаётся через context.Context. Метрики Prometheus регистрируются
// при импорте пакета и отдаются агентом на /metrics. Спаны run и задач
// экспортируются по OTLP gRPC, если задан otel_endpoint; иначе Tracer
// возвращает no-op реализацию.
package telemetry
