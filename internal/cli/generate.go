package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/piper/internal/agent"
	"github.com/shaiso/piper/internal/dsl"
)

// ErrNotMeta — generate вызван для обычного pipeline.
var ErrNotMeta = errors.New("pipeline has no generation tasks")

// NewGenerateCmd создаёт команду generate.
func NewGenerateCmd(env *Env) *cobra.Command {
	var regenerate bool
	var printText bool

	cmd := &cobra.Command{
		Use:   "generate FILE",
		Short: "Materialize a meta-pipeline into the generation cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()

			cfg, err := env.Config()
			if err != nil {
				return err
			}

			p, err := dsl.ParseFile(args[0])
			if err != nil {
				return err
			}
			if !p.IsMeta() {
				return fmt.Errorf("%w: %s", ErrNotMeta, p.Name)
			}

			svc := agent.NewServiceFromConfig(cfg, agent.BuildOptions{Logger: env.Logger()})
			cache := svc.Cache()

			text, err := cache.Materialize(cmd.Context(), p, regenerate)
			if err != nil {
				return err
			}

			out.Success("Generated " + cache.Path(p.Name))
			if printText {
				out.Text(text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Regenerate even if cached")
	cmd.Flags().BoolVar(&printText, "print", false, "Print the generated pipeline")

	return cmd
}
