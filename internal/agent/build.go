package agent

import (
	"log/slog"
	"os"

	"github.com/shaiso/piper/internal/config"
	"github.com/shaiso/piper/internal/llm"
	"github.com/shaiso/piper/internal/metapipeline"
	"github.com/shaiso/piper/internal/orchestrator"
	"github.com/shaiso/piper/internal/tasks"
)

// NewLLMClient создаёт клиент модели по настройкам llm.
// Ключ читается из переменной окружения LLMConfig.APIKeyEnv.
func NewLLMClient(cfg config.LLMConfig) *llm.Anthropic {
	env := cfg.APIKeyEnv
	if env == "" {
		env = llm.DefaultAPIKeyEnv
	}
	return llm.NewAnthropic(
		llm.WithAPIKey(os.Getenv(env)),
		llm.WithBaseURL(cfg.BaseURL),
		llm.WithModel(cfg.Model),
	)
}

// BuildOptions — зависимости Service, которые не задаются конфигурацией.
type BuildOptions struct {
	// Trigger — источник запусков по умолчанию.
	Trigger string

	// Recorder (опционально).
	Recorder orchestrator.Recorder

	Logger *slog.Logger
}

// NewServiceFromConfig собирает Service: реестр задач с клиентом модели,
// Interpreter и кэш мета-пайплайнов с генерацией через модель.
func NewServiceFromConfig(cfg *config.Config, opts BuildOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := NewLLMClient(cfg.LLM)

	interp := orchestrator.New(orchestrator.Config{
		Registry:    tasks.DefaultRegistry(tasks.Options{LLM: client}),
		Recorder:    opts.Recorder,
		Trigger:     opts.Trigger,
		MaxParallel: cfg.MaxParallel,
		Logger:      logger,
	})

	gen := metapipeline.NewLLMGenerator(client)
	gen.Model = cfg.LLM.Model
	gen.Logger = logger

	cache := metapipeline.NewCache(cfg.CacheDir, gen)
	cache.Logger = logger

	return NewService(ServiceConfig{
		Interpreter: interp,
		Cache:       cache,
		Logger:      logger,
	})
}

// Cache возвращает кэш мета-пайплайнов.
func (s *Service) Cache() *metapipeline.Cache {
	return s.cache
}
