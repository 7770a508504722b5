package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig — настройки логгера. Значения берутся из LOG_LEVEL и
// LOG_FORMAT; формат "text" или "json".
type LogConfig struct {
	Level  slog.Level
	Format string
}

// LogConfigFromEnv читает LOG_LEVEL и LOG_FORMAT. Пустой LOG_FORMAT
// заменяется на format, неизвестный уровень считается INFO.
func LogConfigFromEnv(format string) LogConfig {
	cfg := LogConfig{Level: slog.LevelInfo, Format: format}

	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		cfg.Level = slog.LevelDebug
	case "WARN", "WARNING":
		cfg.Level = slog.LevelWarn
	case "ERROR":
		cfg.Level = slog.LevelError
	}
	if f := strings.ToLower(os.Getenv("LOG_FORMAT")); f != "" {
		cfg.Format = f
	}
	return cfg
}

// NewLogger создаёт логгер без установки его глобальным.
// На уровне DEBUG в записи добавляется место вызова.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     c.Level,
		AddSource: c.Level <= slog.LevelDebug,
	}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetupLogger — JSON в stdout, для piper-agent.
func SetupLogger() *slog.Logger {
	return SetupLoggerTo(os.Stdout, "json")
}

// SetupLoggerTo создаёт логгер по окружению и делает его slog.Default.
func SetupLoggerTo(w io.Writer, defaultFormat string) *slog.Logger {
	logger := LogConfigFromEnv(defaultFormat).NewLogger(w)
	slog.SetDefault(logger)
	return logger
}

type loggerKey struct{}

// WithLogger кладёт логгер в ctx. Задачи достают его через FromContext
// и получают run_id, pipeline и task в каждой записи.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext возвращает логгер из ctx или slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RunLogger — логгер одного run.
func RunLogger(logger *slog.Logger, pipeline, runID string) *slog.Logger {
	return logger.With(slog.String("pipeline", pipeline), slog.String("run_id", runID))
}

// TaskLogger — логгер задачи внутри run.
func TaskLogger(logger *slog.Logger, task string) *slog.Logger {
	return logger.With(slog.String("task", task))
}
