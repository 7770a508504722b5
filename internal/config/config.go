// Package config загружает конфигурацию проекта и агента из piper.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile — имя файла конфигурации в каталоге проекта.
const DefaultFile = "piper.yaml"

// Значения по умолчанию.
const (
	DefaultListenAddr   = ":8080"
	DefaultCacheDir     = "generated"
	DefaultPipelinesDir = "pipelines"
	DefaultAPIKeyEnv    = "ANTHROPIC_API_KEY"
)

var (
	// ErrAgentNotFound — агент с таким именем не объявлен, а значение
	// не похоже на адрес.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrInvalidConfig — конфигурация не прошла проверку.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config — конфигурация проекта (piper run) и агента (piper-agent).
type Config struct {
	Owner       string `yaml:"owner,omitempty"`
	Description string `yaml:"description,omitempty"`

	// AuthKey — ключ, который агент требует в Authorization: Bearer.
	AuthKey string `yaml:"auth_key,omitempty"`

	// CacheDir — каталог сгенерированных pipeline.
	CacheDir string `yaml:"cache_dir,omitempty"`

	// Agents — удалённые агенты проекта.
	Agents []Agent `yaml:"agents,omitempty"`

	LLM LLMConfig `yaml:"llm,omitempty"`

	// Настройки агента.
	ListenAddr   string `yaml:"listen_addr,omitempty"`
	PipelinesDir string `yaml:"pipelines_dir,omitempty"`
	MaxParallel  int    `yaml:"max_parallel,omitempty"`

	// Внешние сервисы. Пусто — сервис не используется.
	DatabaseURL  string `yaml:"database_url,omitempty"`
	AMQPURL      string `yaml:"amqp_url,omitempty"`
	OTelEndpoint string `yaml:"otel_endpoint,omitempty"`
}

// Agent — удалённый агент.
type Agent struct {
	Name    string `yaml:"name,omitempty"`
	URL     string `yaml:"url"`
	AuthKey string `yaml:"auth_key,omitempty"`
}

// LLMConfig — настройки языковой модели для задач llm и генерации.
type LLMConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		CacheDir:     DefaultCacheDir,
		ListenAddr:   DefaultListenAddr,
		PipelinesDir: DefaultPipelinesDir,
		LLM:          LLMConfig{APIKeyEnv: DefaultAPIKeyEnv},
	}
}

// Load читает конфигурацию из path и применяет переменные окружения.
//
// Пустой path — только значения по умолчанию и окружение.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDir читает dir/piper.yaml, если файл существует.
func LoadDir(dir string) (*Config, error) {
	path := filepath.Join(dir, DefaultFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Load("")
	}
	return Load(path)
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("DB_URL"); val != "" {
		cfg.DatabaseURL = val
	}
	if val := os.Getenv("RABBITMQ_URL"); val != "" {
		cfg.AMQPURL = val
	}
	if val := os.Getenv("PIPER_AUTH_KEY"); val != "" {
		cfg.AuthKey = val
	}
	if val := os.Getenv("AGENT_PORT"); val != "" {
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("PIPER_CACHE_DIR"); val != "" {
		cfg.CacheDir = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		cfg.OTelEndpoint = val
	}
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("%w: agents[%d]: url is required", ErrInvalidConfig, i)
		}
		if a.Name == "" {
			continue
		}
		if names[a.Name] {
			return fmt.Errorf("%w: duplicate agent name %q", ErrInvalidConfig, a.Name)
		}
		names[a.Name] = true
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("%w: max_parallel must not be negative", ErrInvalidConfig)
	}
	return nil
}

// FindAgent возвращает агента по имени. Значение, похожее на адрес
// (http:// или https://), возвращается как агент без имени с ключом проекта.
func (c *Config) FindAgent(nameOrURL string) (Agent, error) {
	for _, a := range c.Agents {
		if a.Name == nameOrURL {
			if a.AuthKey == "" {
				a.AuthKey = c.AuthKey
			}
			return a, nil
		}
	}
	if strings.HasPrefix(nameOrURL, "http://") || strings.HasPrefix(nameOrURL, "https://") {
		return Agent{URL: nameOrURL, AuthKey: c.AuthKey}, nil
	}
	return Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, nameOrURL)
}

// Marshal сериализует конфигурацию в YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
