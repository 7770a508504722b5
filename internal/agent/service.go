package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/dsl"
	"github.com/shaiso/piper/internal/metapipeline"
	"github.com/shaiso/piper/internal/orchestrator"
)

// ErrInvalidPipeline — текст pipeline не компилируется.
var ErrInvalidPipeline = errors.New("invalid pipeline")

// Service разбирает и выполняет pipeline.
type Service struct {
	interp *orchestrator.Interpreter
	cache  *metapipeline.Cache
	logger *slog.Logger
}

// ServiceConfig — конфигурация Service.
type ServiceConfig struct {
	// Interpreter — обязателен.
	Interpreter *orchestrator.Interpreter

	// Cache — кэш мета-пайплайнов. Nil — каталог по умолчанию
	// и FallbackGenerator.
	Cache *metapipeline.Cache

	// Logger
	Logger *slog.Logger
}

// NewService создаёт новый Service.
func NewService(cfg ServiceConfig) *Service {
	cache := cfg.Cache
	if cache == nil {
		cache = metapipeline.NewCache("", nil)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		interp: cfg.Interpreter,
		cache:  cache,
		logger: logger,
	}
}

// Compile разбирает текст и материализует мета-пайплайн.
func (s *Service) Compile(ctx context.Context, source string, regenerate bool) (*domain.Pipeline, error) {
	p, err := dsl.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
	}
	return s.cache.Resolve(ctx, p, regenerate)
}

// Run выполняет pipeline.
//
// Ошибка возвращается, только если pipeline не удалось запустить.
// Неудачный run — это успешный ответ со статусом FAILED.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	p, err := s.Compile(ctx, req.Source, req.Regenerate)
	if err != nil {
		return nil, err
	}

	result, err := s.interp.Run(ctx, p, req.Params)
	if result == nil {
		return nil, err
	}

	s.logger.Info("remote run finished",
		"pipeline", p.Name,
		"run_id", result.Run.ID,
		"status", result.Run.Status,
	)
	return NewRunResponse(result), nil
}

// Check проверяет pipeline без выполнения.
func (s *Service) Check(source string) *CheckResponse {
	return Check(source)
}

// Check проверяет текст pipeline.
//
// Ссылки flow на необъявленные задачи делают pipeline невалидным,
// остальные замечания возвращаются как предупреждения.
func Check(source string) *CheckResponse {
	p, err := dsl.Parse(source)
	if err != nil {
		return &CheckResponse{Errors: []string{err.Error()}}
	}

	resp := &CheckResponse{
		Valid:    true,
		Pipeline: p.Name,
		Meta:     p.IsMeta(),
		Tasks:    p.TaskNames(),
		Flow:     dsl.FormatFlow(p.EffectiveFlow()),
	}

	for _, problem := range dsl.Check(p) {
		if errors.Is(problem, dsl.ErrUnknownTask) {
			resp.Valid = false
			resp.Errors = append(resp.Errors, problem.Error())
			continue
		}
		resp.Warnings = append(resp.Warnings, problem.Error())
	}
	return resp
}
