package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/piper/internal/dsl"
)

// NewFmtCmd создаёт команду fmt.
func NewFmtCmd(env *Env) *cobra.Command {
	var write bool
	var check bool

	cmd := &cobra.Command{
		Use:   "fmt FILE...",
		Short: "Format pipelines in canonical form",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()

			var unformatted []string
			for _, path := range args {
				source, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				p, err := dsl.Parse(string(source))
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				formatted := dsl.Format(p)
				if formatted == string(source) {
					continue
				}
				unformatted = append(unformatted, path)

				switch {
				case check:
					out.Warn(path + " is not formatted")
				case write:
					info, err := os.Stat(path)
					if err != nil {
						return err
					}
					if err := os.WriteFile(path, []byte(formatted), info.Mode().Perm()); err != nil {
						return err
					}
					out.Success("Formatted " + path)
				default:
					out.Text(formatted)
				}
			}

			if check && len(unformatted) > 0 {
				return ErrNotFormatted
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write result to the source file")
	cmd.Flags().BoolVar(&check, "check", false, "Fail if any file is not formatted")
	cmd.MarkFlagsMutuallyExclusive("write", "check")

	return cmd
}
