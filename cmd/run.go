// -- cmd/run.go --
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/missionctl/api/schemas"
	"github.com/xkilldash9x/missionctl/internal/observability"
)

func newRunCommand() *cobra.Command {
	var responseFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the mission loop: print the stage prompt, read responses, advance stages",
		Long: `Drives the active mission. For each stage the prompt is printed to stdout
and one structured JSON response is read per line from stdin (or once from
--response-file). The loop exits when the mission reaches its terminal stage
or stdin is exhausted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			c, err := buildCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if _, err := c.store.Load(); err != nil {
				return err
			}

			if responseFile != "" {
				return applyResponseFile(cmd, c, responseFile)
			}
			return driveLoop(cmd, c, logger)
		},
	}

	cmd.Flags().StringVar(&responseFile, "response-file", "", "apply a single JSON response from a file and exit")
	return cmd
}

// driveLoop is the interactive driver. Exit and continue decisions derive
// entirely from whether the current stage is terminal.
func driveLoop(cmd *cobra.Command, c *core, logger *zap.Logger) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for {
		m, err := c.store.Current()
		if err != nil {
			return err
		}
		if m.CurrentStage.Terminal() {
			fmt.Fprintf(out, "Mission %s complete.\n", m.MissionID)
			return nil
		}

		prompt, err := c.orchestrator.Prompt(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, prompt)
		fmt.Fprint(out, "response > ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			fmt.Fprintln(out, "\nInput exhausted; leaving mission in place.")
			return nil
		}

		if err := step(cmd, c, logger, scanner.Bytes()); err != nil {
			return err
		}
	}
}

// applyResponseFile performs exactly one process/update step.
func applyResponseFile(cmd *cobra.Command, c *core, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading response file: %w", err)
	}
	return step(cmd, c, observability.GetLogger(), raw)
}

// step feeds one raw response through the orchestrator and commits the
// resulting transition. Malformed JSON is handed over as nil; the core
// normalizes it instead of failing the mission.
func step(cmd *cobra.Command, c *core, logger *zap.Logger, raw []byte) error {
	var response map[string]interface{}
	if err := json.Unmarshal(raw, &response); err != nil {
		logger.Warn("Malformed response; normalizing to empty object", zap.Error(err))
		response = nil
	}

	m, err := c.store.Current()
	if err != nil {
		return err
	}
	before := m.CurrentStage

	next, err := c.orchestrator.ProcessResponse(cmd.Context(), response)
	if err != nil {
		if errors.Is(err, schemas.ErrUnknownStageHandler) {
			// Configuration error: stop the loop rather than spin forever.
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stage %s reported: %v\n", before, err)
		return nil
	}

	if next != before {
		if err := c.orchestrator.UpdateStage(cmd.Context(), next); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s -> %s]\n", before, next)
	return nil
}
