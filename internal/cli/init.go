package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/piper/internal/config"
)

// NewInitCmd создаёт команду init.
func NewInitCmd(env *Env) *cobra.Command {
	var agentConfig bool

	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Create an example " + config.DefaultFile,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			path, err := config.WriteExample(dir, agentConfig)
			if err != nil {
				return err
			}

			kind := "project"
			if agentConfig {
				kind = "agent"
			}
			env.Output().Success(fmt.Sprintf("Created %s config: %s", kind, path))
			return nil
		},
	}

	cmd.Flags().BoolVar(&agentConfig, "agent", false, "Create an agent config instead of a project config")

	return cmd
}
