// -- cmd/new.go --
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/missionctl/internal/observability"
	"github.com/xkilldash9x/missionctl/internal/orchestrator"
)

func newNewCommand() *cobra.Command {
	var (
		missionID string
		budget    int
		criteria  []string
		workspace string
	)

	cmd := &cobra.Command{
		Use:   "new <problem statement>",
		Short: "Create (or replace) the active mission",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			c, err := buildCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			if budget <= 0 {
				budget = cfg.Mission.DefaultCycleBudget
			}
			if workspace == "" {
				workspace = cfg.Mission.Workspace
			}

			m, err := c.orchestrator.NewMission(cmd.Context(), orchestrator.NewMissionParams{
				MissionID:        missionID,
				ProblemStatement: strings.Join(args, " "),
				CycleBudget:      budget,
				SuccessCriteria:  criteria,
				WorkspacePath:    workspace,
				StateDirPath:     cfg.State.Dir,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Mission %s created (stage %s, cycle %d/%d)\n",
				m.MissionID, m.CurrentStage, m.CurrentCycle, m.CycleBudget)
			return nil
		},
	}

	cmd.Flags().StringVar(&missionID, "id", "", "mission identifier (generated when empty)")
	cmd.Flags().IntVar(&budget, "budget", 0, "cycle budget (defaults to mission.default_cycle_budget)")
	cmd.Flags().StringSliceVar(&criteria, "criteria", nil, "success criteria, repeatable")
	cmd.Flags().StringVar(&workspace, "workspace", "", "mission workspace path")
	return cmd
}
