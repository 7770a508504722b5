package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/piper/internal/agent"
	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/repo"
)

// RunReader — чтение истории run. Реализуется repo.RunRepo.
type RunReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// TaskReader — чтение истории задач. Реализуется repo.TaskRunRepo.
type TaskReader interface {
	ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.TaskRun, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	service *agent.Service
	runs    RunReader
	tasks   TaskReader
	info    Info
	authKey string
	logger  *slog.Logger
}

// Info — описание агента для /healthz.
type Info struct {
	Owner       string `json:"owner,omitempty"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service *agent.Service

	// История run (опционально). Без неё маршруты /runs отвечают 404.
	Runs  RunReader
	Tasks TaskReader

	Info Info

	// AuthKey — ключ для Authorization: Bearer. Пусто — без проверки.
	AuthKey string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		runs:    cfg.Runs,
		tasks:   cfg.Tasks,
		info:    cfg.Info,
		authKey: cfg.AuthKey,
		logger:  logger,
	}
}
