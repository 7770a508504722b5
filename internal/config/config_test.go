package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("expected %s, got %s", DefaultListenAddr, cfg.ListenAddr)
	}
	if cfg.CacheDir != DefaultCacheDir {
		t.Errorf("expected %s, got %s", DefaultCacheDir, cfg.CacheDir)
	}
	if cfg.LLM.APIKeyEnv != DefaultAPIKeyEnv {
		t.Errorf("expected %s, got %s", DefaultAPIKeyEnv, cfg.LLM.APIKeyEnv)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
owner: "ops"
auth_key: "secret"
cache_dir: ".piper/generated"
agents:
  - name: "build"
    url: "http://build:8080"
    auth_key: "build-key"
  - name: "edge"
    url: "http://edge:8080"
llm:
  model: "claude-test"
max_parallel: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Owner != "ops" || cfg.AuthKey != "secret" || cfg.MaxParallel != 4 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.CacheDir != ".piper/generated" {
		t.Errorf("unexpected cache dir: %s", cfg.CacheDir)
	}
	if len(cfg.Agents) != 2 || cfg.Agents[0].AuthKey != "build-key" {
		t.Errorf("unexpected agents: %+v", cfg.Agents)
	}
	// Значения, не указанные в файле, остаются по умолчанию
	if cfg.LLM.Model != "claude-test" || cfg.LLM.APIKeyEnv != DefaultAPIKeyEnv {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("expected default listen addr, got %s", cfg.ListenAddr)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_URL", "postgres://db")
	t.Setenv("RABBITMQ_URL", "amqp://mq")
	t.Setenv("PIPER_AUTH_KEY", "from-env")
	t.Setenv("AGENT_PORT", "9090")

	cfg, err := Load(writeConfig(t, `auth_key: "from-file"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://db" || cfg.AMQPURL != "amqp://mq" {
		t.Errorf("unexpected urls: %+v", cfg)
	}
	if cfg.AuthKey != "from-env" {
		t.Errorf("env should override file, got %s", cfg.AuthKey)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.ListenAddr)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{name: "bad yaml", content: "agents: [", target: nil},
		{name: "agent without url", content: "agents:\n  - name: a\n", target: ErrInvalidConfig},
		{name: "duplicate agent", content: "agents:\n  - {name: a, url: http://x}\n  - {name: a, url: http://y}\n", target: ErrInvalidConfig},
		{name: "negative parallel", content: "max_parallel: -1", target: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not exist error, got %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadDir(dir)
	if err != nil || cfg.CacheDir != DefaultCacheDir {
		t.Fatalf("missing file should give defaults: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, DefaultFile), []byte(`owner: "x"`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadDir(dir)
	if err != nil || cfg.Owner != "x" {
		t.Errorf("file should be loaded: %+v, %v", cfg, err)
	}
}

func TestFindAgent(t *testing.T) {
	cfg := &Config{
		AuthKey: "project-key",
		Agents: []Agent{
			{Name: "build", URL: "http://build:8080", AuthKey: "build-key"},
			{Name: "edge", URL: "http://edge:8080"},
		},
	}

	tests := []struct {
		name      string
		input     string
		expected  Agent
		expectErr bool
	}{
		{name: "by name", input: "build", expected: Agent{Name: "build", URL: "http://build:8080", AuthKey: "build-key"}},
		{name: "inherits project key", input: "edge", expected: Agent{Name: "edge", URL: "http://edge:8080", AuthKey: "project-key"}},
		{name: "raw url", input: "http://10.0.0.1:8080", expected: Agent{URL: "http://10.0.0.1:8080", AuthKey: "project-key"}},
		{name: "unknown", input: "ghost", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.FindAgent(tt.input)
			if tt.expectErr {
				if !errors.Is(err, ErrAgentNotFound) {
					t.Errorf("expected ErrAgentNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestWriteExample(t *testing.T) {
	for _, agent := range []bool{false, true} {
		dir := t.TempDir()

		path, err := WriteExample(dir, agent)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := Load(path); err != nil {
			t.Errorf("example should load (agent=%v): %v", agent, err)
		}
		if _, err := WriteExample(dir, agent); !errors.Is(err, fs.ErrExist) {
			t.Errorf("existing file should not be overwritten, got %v", err)
		}
	}
}
