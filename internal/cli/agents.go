package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

const healthTimeout = 5 * time.Second

// AgentStatus — агент из конфигурации и его состояние.
type AgentStatus struct {
	Name   string `json:"name,omitempty"`
	URL    string `json:"url"`
	Status string `json:"status"`
	Owner  string `json:"owner,omitempty"`
	Uptime string `json:"uptime,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewAgentsCmd создаёт команду agents.
func NewAgentsCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List configured agents and check their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}

			statuses := make([]AgentStatus, len(cfg.Agents))
			rows := make([][]string, len(cfg.Agents))
			for i, a := range cfg.Agents {
				key := a.AuthKey
				if key == "" {
					key = cfg.AuthKey
				}

				st := AgentStatus{Name: a.Name, URL: a.URL, Status: "up"}

				ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
				health, err := NewClient(a.URL, key).Health(ctx)
				cancel()

				if err != nil {
					st.Status = "down"
					st.Error = err.Error()
				} else {
					st.Owner = health.Owner
					st.Uptime = health.Uptime
				}

				statuses[i] = st
				rows[i] = []string{st.Name, st.URL, st.Status, st.Owner, st.Uptime}
			}

			env.Output().Print([]string{"NAME", "URL", "STATUS", "OWNER", "UPTIME"}, rows, statuses)
			return nil
		},
	}

	return cmd
}
