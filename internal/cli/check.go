package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/piper/internal/agent"
)

// CheckResult — результат проверки одного файла.
type CheckResult struct {
	File string `json:"file"`
	*agent.CheckResponse
}

// NewCheckCmd создаёт команду check.
func NewCheckCmd(env *Env) *cobra.Command {
	var agentName string

	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Check pipelines without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()

			check := func(source string) (*agent.CheckResponse, error) {
				return agent.Check(source), nil
			}
			if agentName != "" {
				client, err := env.Client(agentName)
				if err != nil {
					return err
				}
				check = func(source string) (*agent.CheckResponse, error) {
					return client.Check(cmd.Context(), source)
				}
			}

			results := make([]CheckResult, 0, len(args))
			failed := false
			for _, path := range args {
				source, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				resp, err := check(string(source))
				if err != nil {
					return err
				}
				if !resp.Valid {
					failed = true
				}
				results = append(results, CheckResult{File: path, CheckResponse: resp})
			}

			if env.JSON {
				out.JSON(results)
			} else {
				printChecks(out, results)
			}

			if failed {
				return ErrCheckFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentName, "agent", "", "Check on the agent with this name or URL")

	return cmd
}

func printChecks(out *Output, results []CheckResult) {
	for _, r := range results {
		if !r.Valid {
			out.Error(fmt.Sprintf("%s:\n  %s", r.File, strings.Join(r.Errors, "\n  ")))
			continue
		}

		kind := "pipeline"
		if r.Meta {
			kind = "meta-pipeline"
		}
		out.Success(fmt.Sprintf("%s: OK (%s %s, %d tasks, flow: %s)", r.File, kind, r.Pipeline, len(r.Tasks), r.Flow))
		for _, w := range r.Warnings {
			out.Warn(fmt.Sprintf("%s: %s", r.File, w))
		}
	}
}
