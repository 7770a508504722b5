package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/piper/internal/config"
	"github.com/shaiso/piper/internal/telemetry"
)

// Ошибки команд, после которых вывод уже напечатан.
var (
	ErrRunFailed    = errors.New("run failed")
	ErrCheckFailed  = errors.New("check failed")
	ErrNotFormatted = errors.New("files are not formatted")
)

// Env — общее окружение команд. Конфигурация загружается лениво,
// после разбора PersistentFlags.
type Env struct {
	ConfigPath string
	JSON       bool
	Verbose    bool

	Stdout io.Writer
	Stderr io.Writer

	cfg *config.Config
}

// Config возвращает конфигурацию проекта: --config или ./piper.yaml.
func (e *Env) Config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}

	var err error
	if e.ConfigPath != "" {
		e.cfg, err = config.Load(e.ConfigPath)
	} else {
		e.cfg, err = config.LoadDir(".")
	}
	return e.cfg, err
}

// Output создаёт Output по флагу --json.
func (e *Env) Output() *Output {
	return NewOutputTo(e.Stdout, e.Stderr, e.JSON)
}

// Logger возвращает логгер в stderr. Без --verbose выводятся только
// предупреждения и ошибки, чтобы не смешиваться с результатом.
func (e *Env) Logger() *slog.Logger {
	if e.Verbose || os.Getenv("LOG_LEVEL") != "" {
		return telemetry.SetupLoggerTo(e.Stderr, "text")
	}
	return slog.New(slog.NewTextHandler(e.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// Client возвращает клиент агента по имени или адресу.
// Пустое имя — первый агент из конфигурации.
func (e *Env) Client(nameOrURL string) (*Client, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}

	if nameOrURL == "" {
		if len(cfg.Agents) == 0 {
			return nil, fmt.Errorf("%w: no agents configured in %s", config.ErrAgentNotFound, config.DefaultFile)
		}
		nameOrURL = cfg.Agents[0].Name
		if nameOrURL == "" {
			nameOrURL = cfg.Agents[0].URL
		}
	}

	a, err := cfg.FindAgent(nameOrURL)
	if err != nil {
		return nil, err
	}
	return NewClient(a.URL, a.AuthKey), nil
}

// NewRootCmd создаёт корневую команду piper.
func NewRootCmd(version string) *cobra.Command {
	env := &Env{Stdout: os.Stdout, Stderr: os.Stderr}
	return newRootCmd(env, version)
}

func newRootCmd(env *Env, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "piper",
		Short:         "piper — pipeline DSL compiler and flow engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetOut(env.Stdout)
	rootCmd.SetErr(env.Stderr)

	rootCmd.PersistentFlags().StringVar(&env.ConfigPath, "config", "", "Config file (default: ./"+config.DefaultFile+")")
	rootCmd.PersistentFlags().BoolVar(&env.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&env.Verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(
		NewInitCmd(env),
		NewRunCmd(env),
		NewCheckCmd(env),
		NewFmtCmd(env),
		NewGenerateCmd(env),
		NewAgentsCmd(env),
		NewHistoryCmd(env),
	)

	return rootCmd
}
