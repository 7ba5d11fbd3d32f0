// -- cmd/status.go --
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/missionctl/api/schemas"
	"github.com/xkilldash9x/missionctl/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newStatusCommand() *cobra.Command {
	var includeArchived bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active mission's stage, cycle and last error",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			c, err := buildCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			m, err := c.store.Load()
			switch {
			case errors.Is(err, schemas.ErrNotFound):
				fmt.Fprintln(cmd.OutOrStdout(), "No active mission.")
			case err != nil:
				return err
			default:
				printMission(cmd, m)
			}

			if includeArchived {
				return printArchived(cmd)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeArchived, "all", false, "also list archived missions")
	return cmd
}

func printMission(cmd *cobra.Command, m *schemas.Mission) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Mission:      %s\n", m.MissionID)
	fmt.Fprintf(out, "Problem:      %s\n", m.ProblemStatement)
	fmt.Fprintf(out, "Stage:        %s\n", m.CurrentStage)
	fmt.Fprintf(out, "Cycle:        %d/%d\n", m.CurrentCycle, m.CycleBudget)
	fmt.Fprintf(out, "Iteration:    %d\n", m.Iteration)
	fmt.Fprintf(out, "Last updated: %s\n", m.LastUpdated.Format("2006-01-02T15:04:05Z07:00"))
	if m.LastError != "" {
		fmt.Fprintf(out, "Last error:   %s\n", m.LastError)
	}
}

// printArchived reads every archived mission document concurrently and
// prints a one-line summary per mission, newest first.
func printArchived(cmd *cobra.Command) error {
	entries, err := os.ReadDir(cfg.State.ArchiveDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading archive dir: %w", err)
	}

	var (
		mu       sync.Mutex
		archived []*schemas.Mission
	)
	g, _ := errgroup.WithContext(cmd.Context())
	g.SetLimit(8)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(cfg.State.ArchiveDir, entry.Name())
		g.Go(func() error {
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			var m schemas.Mission
			if err := json.Unmarshal(raw, &m); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			mu.Lock()
			archived = append(archived, &m)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(archived, func(i, j int) bool {
		return archived[i].LastUpdated.After(archived[j].LastUpdated)
	})
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nArchived missions: %d\n", len(archived))
	for _, m := range archived {
		fmt.Fprintf(out, "  %s  %-10s cycle %d/%d  %s\n",
			m.MissionID, m.CurrentStage, m.CurrentCycle, m.CycleBudget,
			m.LastUpdated.Format("2006-01-02"))
	}
	return nil
}
