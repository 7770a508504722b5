package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/shaiso/piper/internal/agent"
	"github.com/shaiso/piper/internal/api"
	"github.com/shaiso/piper/internal/config"
)

const greetPipeline = `
pipeline greet(who = "world") {
    hello = set_var(var = "greeting",   val = "hi #{who}")
}
`

// testEnv создаёт окружение команд с конфигурацией во временном каталоге.
func testEnv(t *testing.T) (*Env, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, config.DefaultFile)
	cfg := "cache_dir: " + filepath.Join(dir, "generated") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	env := &Env{ConfigPath: cfgPath, Stdout: &stdout, Stderr: &stderr}
	return env, &stdout, &stderr
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(env *Env, args ...string) error {
	cmd := newRootCmd(env, "test")
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		expected  map[string]any
		expectErr bool
	}{
		{name: "empty", input: nil, expected: nil},
		{name: "plain string", input: []string{"env=prod"}, expected: map[string]any{"env": "prod"}},
		{name: "number", input: []string{"n=3"}, expected: map[string]any{"n": float64(3)}},
		{name: "json array", input: []string{`tags=["a","b"]`}, expected: map[string]any{"tags": []any{"a", "b"}}},
		{name: "value with equals", input: []string{"q=a=b"}, expected: map[string]any{"q": "a=b"}},
		{name: "empty value", input: []string{"x="}, expected: map[string]any{"x": ""}},
		{name: "missing equals", input: []string{"oops"}, expectErr: true},
		{name: "empty key", input: []string{"=1"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %#v, want %#v", got, tt.expected)
			}
		})
	}
}

func TestRunCmd_Local(t *testing.T) {
	env, stdout, stderr := testEnv(t)
	path := writeFile(t, "greet.piper", greetPipeline)

	if err := execute(env, "run", path, "-p", "who=piper"); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, stderr.String())
	}

	if !strings.Contains(stdout.String(), "hello") {
		t.Errorf("expected task table, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "SUCCEEDED") {
		t.Errorf("expected summary, got %q", stderr.String())
	}
}

func TestRunCmd_LocalJSON(t *testing.T) {
	env, stdout, _ := testEnv(t)
	path := writeFile(t, "greet.piper", greetPipeline)

	if err := execute(env, "--json", "run", path, "--param", "who=piper"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), `"greeting": "hi piper"`) {
		t.Errorf("expected greeting in JSON output, got %s", stdout.String())
	}
}

func TestRunCmd_Failed(t *testing.T) {
	env, _, stderr := testEnv(t)
	path := writeFile(t, "fail.piper", `pipeline fail { a = cmd(command = "exit 3") }`)

	err := execute(env, "run", path)
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if !strings.Contains(stderr.String(), "FAILED") {
		t.Errorf("expected failure summary, got %q", stderr.String())
	}
}

func TestCheckCmd(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		expectErr error
		contains  string
	}{
		{name: "valid", source: greetPipeline, contains: "OK"},
		{name: "syntax error", source: `pipeline {`, expectErr: ErrCheckFailed},
		{
			name: "unknown task",
			source: `
pipeline bad {
    a = cmd(command = "echo a")
    flow: a > ghost
}`,
			expectErr: ErrCheckFailed,
			contains:  "ghost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _, stderr := testEnv(t)
			path := writeFile(t, "p.piper", tt.source)

			err := execute(env, "check", path)
			if !errors.Is(err, tt.expectErr) {
				t.Fatalf("expected %v, got %v", tt.expectErr, err)
			}
			if tt.contains != "" && !strings.Contains(stderr.String(), tt.contains) {
				t.Errorf("expected %q in output, got %q", tt.contains, stderr.String())
			}
		})
	}
}

func TestFmtCmd(t *testing.T) {
	env, stdout, _ := testEnv(t)
	path := writeFile(t, "greet.piper", greetPipeline)

	// Исходный текст не в канонической форме.
	if err := execute(env, "fmt", "--check", path); !errors.Is(err, ErrNotFormatted) {
		t.Fatalf("expected ErrNotFormatted, got %v", err)
	}

	if err := execute(env, "fmt", path); err != nil {
		t.Fatalf("fmt to stdout: %v", err)
	}
	if !strings.Contains(stdout.String(), `val = "hi #{who}"`) {
		t.Errorf("expected formatted text, got %q", stdout.String())
	}

	if err := execute(env, "fmt", "-w", path); err != nil {
		t.Fatalf("fmt -w: %v", err)
	}
	if err := execute(env, "fmt", "--check", path); err != nil {
		t.Errorf("file should be formatted after -w, got %v", err)
	}
}

func TestFmtCmd_InvalidSource(t *testing.T) {
	env, _, _ := testEnv(t)
	path := writeFile(t, "bad.piper", `pipeline {`)

	if err := execute(env, "fmt", path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGenerateCmd_NotMeta(t *testing.T) {
	env, _, _ := testEnv(t)
	path := writeFile(t, "greet.piper", greetPipeline)

	if err := execute(env, "generate", path); !errors.Is(err, ErrNotMeta) {
		t.Fatalf("expected ErrNotMeta, got %v", err)
	}
}

func TestGenerateCmd_Meta(t *testing.T) {
	env, stdout, _ := testEnv(t)
	path := writeFile(t, "plan.piper", `pipeline plan { design = meta_task(task = "design the schema") }`)

	if err := execute(env, "generate", path, "--print"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout.String(), "pipeline plan") {
		t.Errorf("expected generated pipeline, got %q", stdout.String())
	}

	cfg, err := env.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.CacheDir, "plan.piper")); err != nil {
		t.Errorf("expected cached file: %v", err)
	}
}

func TestInitCmd(t *testing.T) {
	env, _, stderr := testEnv(t)
	dir := t.TempDir()

	if err := execute(env, "init", dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr.String(), "Created project config") {
		t.Errorf("unexpected output %q", stderr.String())
	}

	cfg, err := config.Load(filepath.Join(dir, config.DefaultFile))
	if err != nil {
		t.Fatalf("example config must load: %v", err)
	}
	if len(cfg.Agents) == 0 {
		t.Error("expected agents in example config")
	}

	// Повторный init не перезаписывает файл.
	if err := execute(env, "init", dir); err == nil {
		t.Error("expected error for existing config")
	}
}

// newTestAgent поднимает API агента без истории.
func newTestAgent(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.CacheDir = t.TempDir()

	handler := api.NewHandler(api.Config{
		Service: agent.NewServiceFromConfig(cfg, agent.BuildOptions{Trigger: "http", Logger: logger}),
		Info:    api.Info{Owner: "tests"},
		AuthKey: "secret",
		Logger:  logger,
	})

	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := newTestAgent(t)
	ctx := context.Background()

	t.Run("health", func(t *testing.T) {
		health, err := NewClient(srv.URL, "").Health(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if health.Owner != "tests" {
			t.Errorf("expected owner tests, got %q", health.Owner)
		}
	})

	t.Run("run", func(t *testing.T) {
		resp, err := NewClient(srv.URL, "secret").Run(ctx, agent.RunRequest{
			Source: greetPipeline,
			Params: map[string]any{"who": "client"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !resp.Succeeded() {
			t.Fatalf("expected success, got %s: %s", resp.Status, resp.Error)
		}
		if resp.Vars["greeting"] != "hi client" {
			t.Errorf("unexpected vars %v", resp.Vars)
		}
		if resp.Trigger != "http" {
			t.Errorf("expected trigger http, got %q", resp.Trigger)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		_, err := NewClient(srv.URL, "wrong").Run(ctx, agent.RunRequest{Source: greetPipeline})
		if !errors.Is(err, ErrAPI) {
			t.Fatalf("expected ErrAPI, got %v", err)
		}
		if !strings.Contains(err.Error(), "UNAUTHORIZED") {
			t.Errorf("expected error code in message, got %v", err)
		}
	})

	t.Run("invalid pipeline", func(t *testing.T) {
		_, err := NewClient(srv.URL, "secret").Run(ctx, agent.RunRequest{Source: "pipeline {"})
		if !errors.Is(err, ErrAPI) || !strings.Contains(err.Error(), "INVALID_PIPELINE") {
			t.Errorf("expected INVALID_PIPELINE, got %v", err)
		}
	})

	t.Run("check", func(t *testing.T) {
		resp, err := NewClient(srv.URL, "secret").Check(ctx, greetPipeline)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !resp.Valid || resp.Pipeline != "greet" {
			t.Errorf("unexpected check response %+v", resp)
		}
	})

	t.Run("history disabled", func(t *testing.T) {
		_, err := NewClient(srv.URL, "secret").ListRuns(ctx, ListRunsOpts{})
		if !errors.Is(err, ErrAPI) {
			t.Errorf("expected ErrAPI, got %v", err)
		}
	})
}

func TestRunCmd_Remote(t *testing.T) {
	srv := newTestAgent(t)
	env, _, stderr := testEnv(t)
	path := writeFile(t, "greet.piper", greetPipeline)

	if err := os.WriteFile(env.ConfigPath, []byte("agents:\n  - name: test\n    url: "+srv.URL+"\n    auth_key: secret\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := execute(env, "run", path, "--agent", "test"); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, stderr.String())
	}
	if !strings.Contains(stderr.String(), "SUCCEEDED") {
		t.Errorf("expected summary, got %q", stderr.String())
	}
}

func TestAgentsCmd(t *testing.T) {
	srv := newTestAgent(t)
	env, stdout, _ := testEnv(t)

	cfg := "agents:\n" +
		"  - name: up\n    url: " + srv.URL + "\n" +
		"  - name: down\n    url: http://127.0.0.1:1\n"
	if err := os.WriteFile(env.ConfigPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := execute(env, "agents"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "tests") {
		t.Errorf("expected owner of live agent, got %q", out)
	}
	if !strings.Contains(out, "down") {
		t.Errorf("expected unreachable agent, got %q", out)
	}
}

func TestEnvClient_NoAgents(t *testing.T) {
	env, _, _ := testEnv(t)

	if _, err := env.Client(""); !errors.Is(err, config.ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
}
