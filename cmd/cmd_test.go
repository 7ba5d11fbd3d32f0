package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/missionctl/api/schemas"
	"github.com/xkilldash9x/missionctl/internal/config"
	"github.com/xkilldash9x/missionctl/internal/orchestrator"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	want := []string{"new", "status", "run", "reset", "archive", "logs", "version"}
	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
	assert.Equal(t, Version, root.Version)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.State.Dir = t.TempDir()
	cfg.State.ArchiveDir = t.TempDir()
	cfg.Integrations.Checkpoint.Enabled = true
	cfg.Integrations.Checkpoint.Dir = t.TempDir()
	cfg.Integrations.Transcript.Enabled = false
	return cfg
}

func testCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetContext(context.Background())
	c.SetOut(&out)
	return c, &out
}

// Drives a single-cycle mission end to end through the same step function the
// run command uses.
func TestStepDrivesAMissionToCompletion(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig(t)
	cobraCmd, out := testCommand(t)

	c, err := buildCore(cobraCmd.Context(), cfg, logger)
	require.NoError(t, err)

	m, err := c.orchestrator.NewMission(cobraCmd.Context(), orchestrator.NewMissionParams{
		ProblemStatement: "stabilize the importer",
		CycleBudget:      1,
	})
	require.NoError(t, err)
	require.Equal(t, schemas.StagePlanning, m.CurrentStage)

	// One successful response per stage. At CYCLE_END the handler recommends
	// another cycle; the exhausted budget routes to COMPLETE instead.
	for i := 0; i < 5; i++ {
		require.NoError(t, step(cobraCmd, c, logger, []byte(`{"success": true}`)))
	}

	final, err := c.store.Current()
	require.NoError(t, err)
	assert.Equal(t, schemas.StageComplete, final.CurrentStage)
	assert.True(t, final.Completed)

	assert.Contains(t, out.String(), "[PLANNING -> BUILDING]")
	assert.Contains(t, out.String(), "[CYCLE_END -> COMPLETE]")
}

func TestStepNormalizesMalformedResponses(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig(t)
	cobraCmd, out := testCommand(t)

	c, err := buildCore(cobraCmd.Context(), cfg, logger)
	require.NoError(t, err)
	_, err = c.orchestrator.NewMission(cobraCmd.Context(), orchestrator.NewMissionParams{
		ProblemStatement: "stabilize the importer",
		CycleBudget:      2,
	})
	require.NoError(t, err)

	require.NoError(t, step(cobraCmd, c, logger, []byte("{this is not json")))

	m, err := c.store.Current()
	require.NoError(t, err)
	assert.Equal(t, schemas.StagePlanning, m.CurrentStage, "a malformed response never crashes or advances the mission")
	assert.Contains(t, out.String(), "[PLANNING -> PLANNING]")
}
