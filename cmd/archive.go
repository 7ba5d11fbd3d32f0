// -- cmd/archive.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/missionctl/internal/observability"
)

func newArchiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move the active mission out of active storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			c, err := buildCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if _, err := c.store.Load(); err != nil {
				return err
			}
			dest, err := c.store.Archive(cfg.State.ArchiveDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mission archived to %s\n", dest)
			return nil
		},
	}
}
