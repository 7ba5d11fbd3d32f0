// -- cmd/setup.go --
// Wires the orchestration core from configuration: state store, registry
// with the default handler set, bus with the enabled integrations, cycle
// controller, orchestrator.
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/missionctl/internal/bus"
	"github.com/xkilldash9x/missionctl/internal/config"
	"github.com/xkilldash9x/missionctl/internal/cycle"
	"github.com/xkilldash9x/missionctl/internal/integrations"
	"github.com/xkilldash9x/missionctl/internal/orchestrator"
	"github.com/xkilldash9x/missionctl/internal/registry"
	"github.com/xkilldash9x/missionctl/internal/stages"
	"github.com/xkilldash9x/missionctl/internal/statestore"
)

// core bundles the wired components a command needs.
type core struct {
	store        *statestore.Store
	orchestrator *orchestrator.Orchestrator
	bus          *bus.Bus
}

// buildCore assembles the orchestration core for the active configuration.
func buildCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*core, error) {
	store := statestore.New(logger, cfg.State.ActiveDocumentPath())

	reg := registry.New(logger)
	if err := stages.RegisterDefaults(reg); err != nil {
		return nil, fmt.Errorf("registering stage handlers: %w", err)
	}

	eventBus := bus.New(logger)
	if cfg.Integrations.Checkpoint.Enabled {
		eventBus.Register(integrations.NewCheckpointer(logger, cfg.Integrations.Checkpoint.Dir))
	}
	if cfg.Integrations.Transcript.Enabled {
		eventBus.Register(integrations.NewTranscript(logger, cfg.Integrations.Transcript))
	}
	if cfg.Integrations.Git.Enabled {
		eventBus.Register(integrations.NewGitCheckpointer(
			logger, cfg.Mission.Workspace,
			cfg.Integrations.Git.AuthorName, cfg.Integrations.Git.AuthorEmail))
	}
	if cfg.Integrations.Analytics.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Integrations.Analytics.ConnectTimeout)
		defer cancel()
		pool, err := pgxpool.New(connectCtx, cfg.Integrations.Analytics.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting analytics database: %w", err)
		}
		recorder, err := integrations.NewAnalyticsRecorder(
			connectCtx, logger, pool, cfg.Integrations.Analytics.EventsPerSecond)
		if err != nil {
			return nil, err
		}
		eventBus.Register(recorder)
	}

	orch, err := orchestrator.New(logger, store, reg, eventBus, cycle.New(logger))
	if err != nil {
		return nil, err
	}

	return &core{store: store, orchestrator: orch, bus: eventBus}, nil
}
