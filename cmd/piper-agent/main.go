// piper-agent — сервис выполнения pipeline.
//
// Agent:
//   - Принимает pipeline по HTTP API (POST /api/v1/pipelines/run)
//   - Обрабатывает запросы из очереди pipelines.run (если задан amqp_url)
//   - Запускает pipeline из pipelines_dir по расписанию
//   - Сохраняет историю run в PostgreSQL (если задан database_url)
//
// Конфигурация читается из файла PIPER_CONFIG (default: ./piper.yaml)
// и переменных окружения.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/piper/internal/agent"
	"github.com/shaiso/piper/internal/api"
	"github.com/shaiso/piper/internal/config"
	"github.com/shaiso/piper/internal/mq"
	"github.com/shaiso/piper/internal/orchestrator"
	"github.com/shaiso/piper/internal/repo"
	"github.com/shaiso/piper/internal/scheduler"
	"github.com/shaiso/piper/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

var _ orchestrator.Recorder = (*repo.Recorder)(nil)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting piper-agent", "version", version)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Трассировка
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName: "piper-agent",
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    true,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("failed to flush traces", "error", err)
			}
		}()
	}

	// История run (опционально)
	var pool *pgxpool.Pool
	var recorder orchestrator.Recorder
	if cfg.DatabaseURL != "" {
		pool, err = repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		recorder = repo.NewRecorder(pool)
		logger.Info("database connected")
	}

	service := agent.NewServiceFromConfig(cfg, agent.BuildOptions{
		Trigger:  "http",
		Recorder: recorder,
		Logger:   logger,
	})

	// Очередь pipelines.run (опционально)
	if cfg.AMQPURL != "" {
		stop := startWorker(ctx, cfg.AMQPURL, service, logger)
		defer stop()
	}

	// Расписания
	if cfg.PipelinesDir != "" {
		schedCfg := scheduler.Config{
			Dir:    cfg.PipelinesDir,
			Runner: service,
			Logger: logger,
		}
		if pool != nil {
			schedCfg.Locker = repo.NewAdvisoryLock(pool, repo.SchedulerLockKey)
		}
		sched := scheduler.New(schedCfg)

		go func() {
			if err := sched.Start(ctx); err != nil {
				logger.Error("scheduler error", "error", err)
			}
		}()
	}

	// HTTP API
	apiCfg := api.Config{
		Service: service,
		Info: api.Info{
			Owner:       cfg.Owner,
			Description: cfg.Description,
			Version:     version,
		},
		AuthKey: cfg.AuthKey,
		Logger:  logger,
	}
	if pool != nil {
		apiCfg.Runs = repo.NewRunRepo(pool)
		apiCfg.Tasks = repo.NewTaskRunRepo(pool)
	}
	handler := api.NewHandler(apiCfg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("piper-agent stopped")
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("PIPER_CONFIG"); path != "" {
		return config.Load(path)
	}
	return config.LoadDir(".")
}

// startWorker подключается к RabbitMQ и запускает обработку pipelines.run.
// Недоступный брокер не останавливает агент: HTTP API продолжает работать.
func startWorker(ctx context.Context, url string, service *agent.Service, logger *slog.Logger) func() {
	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, queue disabled", "error", err)
		return func() {}
	}
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	w := agent.NewWorker(agent.WorkerConfig{
		Service: service,
		Conn:    conn,
		Replier: mq.NewPublisher(conn, logger),
		Logger:  logger,
	})
	if err := w.Start(ctx); err != nil {
		logger.Warn("failed to start worker", "error", err)
		conn.Close()
		return func() {}
	}

	return func() {
		w.Stop()
		conn.Close()
	}
}
