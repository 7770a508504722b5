package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/piper/internal/agent"
	"github.com/shaiso/piper/internal/mq"
	"github.com/shaiso/piper/internal/watch"
)

// runFunc выполняет запрос локально или на агенте.
type runFunc func(ctx context.Context, req agent.RunRequest) (*agent.RunResponse, error)

// NewRunCmd создаёт команду run.
func NewRunCmd(env *Env) *cobra.Command {
	var params []string
	var regenerate bool
	var remote bool
	var agentName string
	var amqpURL string
	var watchFile bool

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a pipeline",
		Long: `Run a pipeline locally, on a remote agent (--remote, --agent)
or through the agent queue (--amqp).

Parameter values are parsed as JSON when possible:
  --param count=3 --param tags='["a","b"]' --param name=prod`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := env.Output()

			values, err := ParseParams(params)
			if err != nil {
				return err
			}

			run, closeFn, err := env.runner(remote || agentName != "", agentName, amqpURL)
			if err != nil {
				return err
			}
			defer closeFn()

			once := func(ctx context.Context) error {
				source, err := os.ReadFile(path)
				if err != nil {
					return err
				}

				resp, err := run(ctx, agent.RunRequest{
					Source:     string(source),
					Params:     values,
					Regenerate: regenerate,
				})
				if err != nil {
					return err
				}

				out.PrintRun(resp)
				if !resp.Succeeded() {
					return ErrRunFailed
				}
				return nil
			}

			if !watchFile {
				return once(cmd.Context())
			}
			return watchAndRun(cmd.Context(), env, path, once)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Parameter as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Regenerate a meta-pipeline even if cached")
	cmd.Flags().BoolVar(&remote, "remote", false, "Run on the first agent from the config")
	cmd.Flags().StringVar(&agentName, "agent", "", "Run on the agent with this name or URL")
	cmd.Flags().StringVar(&amqpURL, "amqp", "", "Run through the agent queue at this AMQP URL")
	cmd.Flags().BoolVarP(&watchFile, "watch", "w", false, "Re-run when the file changes")

	cmd.MarkFlagsMutuallyExclusive("amqp", "remote")
	cmd.MarkFlagsMutuallyExclusive("amqp", "agent")

	return cmd
}

// runner выбирает способ выполнения. closeFn освобождает соединения.
func (e *Env) runner(remote bool, agentName, amqpURL string) (runFunc, func(), error) {
	noop := func() {}

	switch {
	case amqpURL != "":
		conn, err := mq.NewConnection(amqpURL, e.Logger())
		if err != nil {
			return nil, noop, fmt.Errorf("connect to %s: %w", amqpURL, err)
		}
		client := mq.NewClient(conn, e.Logger())
		return func(ctx context.Context, req agent.RunRequest) (*agent.RunResponse, error) {
			return callQueue(ctx, client, req)
		}, func() { conn.Close() }, nil

	case remote:
		client, err := e.Client(agentName)
		if err != nil {
			return nil, noop, err
		}
		return client.Run, noop, nil

	default:
		cfg, err := e.Config()
		if err != nil {
			return nil, noop, err
		}
		svc := agent.NewServiceFromConfig(cfg, agent.BuildOptions{Trigger: "cli", Logger: e.Logger()})
		return svc.Run, noop, nil
	}
}

// callQueue отправляет запрос в pipelines.run и ждёт ответ.
func callQueue(ctx context.Context, client *mq.Client, req agent.RunRequest) (*agent.RunResponse, error) {
	msg, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}

	reply, err := mq.ParsePayload[agent.RunReply](msg)
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrAPI, reply.Error)
	}
	if reply.Response == nil {
		return nil, fmt.Errorf("%w: empty reply", ErrAPI)
	}
	return reply.Response, nil
}

// watchAndRun выполняет pipeline и повторяет запуск при каждом изменении файла.
// Ошибки отдельных запусков выводятся и не прерывают наблюдение.
func watchAndRun(ctx context.Context, env *Env, path string, once func(context.Context) error) error {
	out := env.Output()
	changed := make(chan struct{}, 1)

	w, err := watch.New(watch.Config{
		Paths: []string{path},
		OnChange: func(string) {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
		Logger: env.Logger(),
	})
	if err != nil {
		return err
	}
	defer w.Close()
	go w.Run(ctx)

	for {
		if err := once(ctx); err != nil && !errors.Is(err, ErrRunFailed) {
			out.Error(err.Error())
		}
		out.Success(fmt.Sprintf("Watching %s for changes (Ctrl+C to stop)", path))

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

// ParseParams разбирает значения KEY=VALUE.
// VALUE, который разбирается как JSON, сохраняет тип; остальное — строка.
func ParseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid parameter format %q, expected KEY=VALUE", kv)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[strings.TrimSpace(key)] = value
	}
	return params, nil
}
