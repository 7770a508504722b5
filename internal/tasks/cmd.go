package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/piper/internal/engine"
	"github.com/shaiso/piper/internal/telemetry"
)

// Ключи аргументов задачи cmd.
const (
	argCommand      = "command"
	argCmd          = "cmd"
	argCwd          = "cwd"
	argEnv          = "env"
	argAllowFailure = "allow_failure"
	argTimeoutSec   = "timeout_sec"
)

const defaultShell = "sh"

// CommandTask — выполнение команды оболочки.
//
// Аргументы:
//
//	cmd(
//	    command = "make build",      // или cmd = "...", или первый позиционный
//	    cwd = "./service",
//	    env = {GOFLAGS: "-mod=mod"},
//	    allow_failure = false,
//	    timeout_sec = 60,
//	)
//
// Поля результата: stdout, stderr, exit_code. Основной результат — stdout.
type CommandTask struct {
	base
	shell string
}

// NewCommandTask возвращает фабрику задач cmd для указанной оболочки.
func NewCommandTask(shell string) Factory {
	if shell == "" {
		shell = defaultShell
	}
	return func(spec Spec) Task {
		return &CommandTask{base: newBase(spec), shell: shell}
	}
}

func (t *CommandTask) command() string {
	if v := t.spec.arg(argCommand, 0); v != nil {
		return toString(v)
	}
	return GetConfigString(t.spec.Args, argCmd)
}

// Validate проверяет наличие команды.
func (t *CommandTask) Validate() error {
	if strings.TrimSpace(t.command()) == "" {
		return missingArg(t.spec.Name, argCommand)
	}
	if v, ok := t.spec.Args[argEnv]; ok {
		if _, isMap := v.(map[string]any); !isMap {
			return NewValidationError(t.spec.Name, "'env' must be an object")
		}
	}
	return nil
}

// Execute запускает команду через "<shell> -c".
func (t *CommandTask) Execute(ctx context.Context, _ *engine.Context, sink *ResultSink) error {
	command := t.command()

	if sec := GetConfigInt(t.spec.Args, argTimeoutSec); sec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(sec)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.shell, "-c", command)
	cmd.Dir = GetConfigString(t.spec.Args, argCwd)
	cmd.WaitDelay = time.Second
	if env := GetConfigMapString(t.spec.Args, argEnv); len(env) > 0 {
		cmd.Env = append(os.Environ(), envList(env)...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := telemetry.FromContext(ctx)
	logger.Debug("running command", "shell", t.shell, "dir", cmd.Dir)

	runErr := cmd.Run()

	exitCode := 0
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		exitCode = exitErr.ExitCode()
		logger.Debug("command exited", "exit_code", exitCode)
	default:
		t.record(sink, StatusError)
		sink.Set("error", runErr.Error())
		return NewExecutionError(t.spec.Name, "start command", runErr)
	}

	sink.SetMany(map[string]any{
		"command":   command,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	})
	sink.SetOutput(stdout.String())

	if ctx.Err() != nil {
		t.record(sink, StatusError)
		sink.Set("error", ctx.Err().Error())
		return NewExecutionError(t.spec.Name, "command interrupted", ctx.Err())
	}

	if exitCode != 0 && !GetConfigBool(t.spec.Args, argAllowFailure, false) {
		t.record(sink, StatusError)
		msg := fmt.Sprintf("command exited with code %d", exitCode)
		sink.Set("error", msg)
		return NewExecutionError(t.spec.Name, msg, nil)
	}

	t.record(sink, StatusSuccess)
	return nil
}

// envList преобразует map в KEY=VALUE в детерминированном порядке.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
