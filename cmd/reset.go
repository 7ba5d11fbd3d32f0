// -- cmd/reset.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/missionctl/internal/observability"
)

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Re-initialize the active mission's stage, iteration and history",
		Long: `Resets the active mission back to its first stage. Identity and
configuration (mission id, success criteria, cycle budget, preferences) are
preserved; stage, iteration, cycle and history start over.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			c, err := buildCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if _, err := c.store.Load(); err != nil {
				return err
			}
			m, err := c.orchestrator.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mission %s reset to %s (cycle %d/%d)\n",
				m.MissionID, m.CurrentStage, m.CurrentCycle, m.CycleBudget)
			return nil
		},
	}
}
