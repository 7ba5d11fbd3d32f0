// File: internal/orchestrator/orchestrator.go
// Description: The mission stage state machine. Validates transitions,
// drives per-stage handler calls through the registry, persists results
// through the state store and publishes lifecycle events through the bus.
// It is injected with fully configured components, keeping it decoupled and
// testable.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/missionctl/api/schemas"
	"github.com/xkilldash9x/missionctl/internal/bus"
	"github.com/xkilldash9x/missionctl/internal/cycle"
	"github.com/xkilldash9x/missionctl/internal/registry"
	"github.com/xkilldash9x/missionctl/internal/statestore"
)

// continuationArtifact is the artifact key a CYCLE_END handler can populate
// to pass context into the next cycle; the cycle controller re-files it under
// a cycle-scoped key when the boundary is crossed.
const continuationArtifact = "continuation"

// Orchestrator assumes at most one logical mutator drives a given mission's
// stage machine at a time. The state store still defends against accidental
// concurrent access; see statestore for the consistency model.
type Orchestrator struct {
	log      *zap.Logger
	store    *statestore.Store
	registry *registry.Registry
	bus      *bus.Bus
	cycles   *cycle.Controller
}

// New creates an Orchestrator with its dependencies provided explicitly.
func New(
	logger *zap.Logger,
	store *statestore.Store,
	reg *registry.Registry,
	eventBus *bus.Bus,
	cycles *cycle.Controller,
) (*Orchestrator, error) {
	if logger == nil || store == nil || reg == nil || eventBus == nil || cycles == nil {
		return nil, errors.New("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		log:      logger.Named("orchestrator"),
		store:    store,
		registry: reg,
		bus:      eventBus,
		cycles:   cycles,
	}, nil
}

// NewMissionParams describes a mission to create.
type NewMissionParams struct {
	MissionID        string
	ProblemStatement string
	Preferences      map[string]string
	CycleBudget      int
	SuccessCriteria  []string
	WorkspacePath    string
	StateDirPath     string
}

// NewMission creates (or replaces) the active mission and publishes
// MISSION_STARTED. The initial record and its history entries are written
// under a suppressed batch so construction produces a single durable write.
func (o *Orchestrator) NewMission(ctx context.Context, p NewMissionParams) (*schemas.Mission, error) {
	if p.ProblemStatement == "" {
		return nil, errors.New("problem statement must not be empty")
	}
	if p.CycleBudget < 1 {
		return nil, fmt.Errorf("cycle_budget must be >= 1, got %d", p.CycleBudget)
	}
	id := p.MissionID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	m := &schemas.Mission{
		MissionID:        id,
		ProblemStatement: p.ProblemStatement,
		Preferences:      p.Preferences,
		CurrentStage:     schemas.FirstStage,
		Iteration:        0,
		CurrentCycle:     1,
		CycleBudget:      p.CycleBudget,
		SuccessCriteria:  p.SuccessCriteria,
		CreatedAt:        now,
		WorkspacePath:    p.WorkspacePath,
		StateDirPath:     p.StateDirPath,
	}

	o.store.BeginSuppressedBatch()
	err := o.store.SetMission(m)
	if err == nil {
		err = o.store.HistoryAppend("mission created", map[string]interface{}{
			"cycle_budget": p.CycleBudget,
		})
	}
	if err == nil && len(p.SuccessCriteria) > 0 {
		err = o.store.HistoryAppend("success criteria recorded", map[string]interface{}{
			"count": len(p.SuccessCriteria),
		})
	}
	if flushErr := o.store.EndSuppressedBatch(); err == nil {
		err = flushErr
	}
	if err != nil {
		return nil, fmt.Errorf("creating mission: %w", err)
	}

	created, err := o.store.Current()
	if err != nil {
		return nil, err
	}

	o.report(o.bus.Publish(ctx, schemas.NewEvent(
		schemas.EventMissionStarted, schemas.FirstStage, id, map[string]interface{}{
			"problem_statement": p.ProblemStatement,
			"cycle_budget":      p.CycleBudget,
		})))

	o.log.Info("Mission created",
		zap.String("mission_id", id),
		zap.Int("cycle_budget", p.CycleBudget))
	return created, nil
}

// BuildContext is a pure projection of the mission into the read-only
// snapshot handed to a handler. No mutation, no events.
func (o *Orchestrator) BuildContext(m *schemas.Mission) schemas.StageContext {
	return schemas.StageContext{
		MissionID:        m.MissionID,
		Stage:            m.CurrentStage,
		ProblemStatement: m.ProblemStatement,
		Iteration:        m.Iteration,
		CurrentCycle:     m.CurrentCycle,
		CycleBudget:      m.CycleBudget,
		WorkspacePath:    m.WorkspacePath,
		History:          m.History,
		SuccessCriteria:  m.SuccessCriteria,
		Preferences:      m.Preferences,
	}
}

// Prompt resolves the current stage's handler and returns its prompt for the
// external collaborator.
func (o *Orchestrator) Prompt(ctx context.Context) (string, error) {
	m, err := o.store.Current()
	if err != nil {
		return "", err
	}
	if m.CurrentStage.Terminal() {
		return "", schemas.ErrMissionComplete
	}
	handler, err := o.registry.Handler(m.CurrentStage)
	if err != nil {
		return "", err
	}
	return handler.Prompt(o.BuildContext(m))
}

// ProcessResponse feeds one structured response through the current stage's
// handler, persists its output, publishes lifecycle events and returns the
// resolved next stage. It does not change current_stage; committing the
// transition is UpdateStage's job, so a caller can inspect the proposal
// before applying it.
//
// A nil or malformed response is normalized to an empty object rather than
// rejected; the handler decides the safe default for it. The returned stage
// is always a member of the closed stage set.
func (o *Orchestrator) ProcessResponse(ctx context.Context, response map[string]interface{}) (schemas.Stage, error) {
	m, err := o.store.Current()
	if err != nil {
		return "", err
	}
	if m.CurrentStage.Terminal() {
		return schemas.TerminalStage, schemas.ErrMissionComplete
	}

	handler, err := o.registry.Handler(m.CurrentStage)
	if err != nil {
		// Configuration error. Fatal to the driving loop; never absorbed.
		return m.CurrentStage, err
	}

	if response == nil {
		response = map[string]interface{}{}
	}

	stageCtx := o.BuildContext(m)
	result, err := handler.ProcessResponse(response, stageCtx)
	if err != nil {
		o.recordError(ctx, m, fmt.Sprintf("handler failed in %s: %v", m.CurrentStage, err))
		return m.CurrentStage, fmt.Errorf("handler for stage %s: %w", m.CurrentStage, err)
	}
	if result == nil {
		result = &schemas.StageResult{NextStage: m.CurrentStage, Status: "empty_result"}
	}

	next, resolved := o.resolveNextStage(ctx, m, result)

	updated, err := o.store.Mutate(func(mm *schemas.Mission) error {
		if len(result.OutputData) > 0 {
			if mm.Artifacts == nil {
				mm.Artifacts = make(map[string]interface{})
			}
			for k, v := range result.OutputData {
				mm.Artifacts[k] = v
			}
		}
		mm.Iteration++
		if resolved {
			// A recovered data error (unknown proposed stage) keeps its
			// last_error record through the commit.
			mm.LastError = ""
		}
		mm.History = append(mm.History, schemas.HistoryEntry{
			Timestamp: time.Now().UTC(),
			Entry:     "response processed",
			Details: map[string]interface{}{
				"stage":      string(mm.CurrentStage),
				"status":     result.Status,
				"success":    result.Success,
				"next_stage": string(next),
			},
		})
		return nil
	})
	if err != nil {
		return next, err
	}

	// State is committed before any event fires: a slow or failing
	// subscriber can delay the return but cannot corrupt the record.
	for _, ev := range result.Events {
		o.report(o.bus.Publish(ctx, o.fillEvent(ev, updated)))
	}
	o.report(o.bus.Publish(ctx, schemas.NewEvent(
		schemas.EventStageCompleted, m.CurrentStage, m.MissionID, map[string]interface{}{
			"status":    result.Status,
			"success":   result.Success,
			"message":   result.Message,
			"iteration": updated.Iteration,
		})))
	o.report(o.bus.Publish(ctx, schemas.NewEvent(
		schemas.EventStageStarted, next, m.MissionID, map[string]interface{}{
			"cycle": updated.CurrentCycle,
		})))

	return next, nil
}

// resolveNextStage turns a handler's recommendation into a stage from the
// closed set. An empty recommendation means stay; an unknown name is a data
// error recovered by staying put (reported via the second return); and at a
// cycle boundary with the budget exhausted the cycle controller overrides any
// recommendation to loop again.
func (o *Orchestrator) resolveNextStage(ctx context.Context, m *schemas.Mission, result *schemas.StageResult) (schemas.Stage, bool) {
	next := result.NextStage
	if next == "" {
		next = m.CurrentStage
	}
	if !next.Valid() {
		o.recordError(ctx, m, fmt.Sprintf("handler proposed unknown stage %q; staying in %s", next, m.CurrentStage))
		return m.CurrentStage, false
	}
	if m.CurrentStage == schemas.StageCycleEnd && next == schemas.FirstStage && !o.cycles.ShouldContinue(m) {
		o.log.Info("Cycle budget exhausted; overriding handler recommendation",
			zap.String("mission_id", m.MissionID),
			zap.String("requested", string(next)),
			zap.Int("cycle", m.CurrentCycle),
			zap.Int("budget", m.CycleBudget))
		return schemas.StageComplete, true
	}
	return next, true
}

// UpdateStage commits a stage transition. Invalid targets fail loudly with
// ErrInvalidStage and leave current_stage untouched (silent absorption here
// is the defining bug this subsystem must avoid). Transitions out of
// CYCLE_END route through the cycle controller, and reaching COMPLETE
// finalizes the mission and publishes MISSION_COMPLETED.
func (o *Orchestrator) UpdateStage(ctx context.Context, next schemas.Stage) error {
	m, err := o.store.Current()
	if err != nil {
		return err
	}

	if !next.Valid() {
		o.recordError(ctx, m, fmt.Sprintf("rejected transition to unknown stage %q", next))
		return fmt.Errorf("%w: unknown stage %q", schemas.ErrInvalidStage, next)
	}
	if m.CurrentStage.Terminal() {
		return fmt.Errorf("%w: no transitions from terminal stage", schemas.ErrInvalidStage)
	}

	// CYCLE_END exits are owned by the cycle controller. A request to start
	// another cycle with the budget exhausted is overridden to finalize.
	if m.CurrentStage == schemas.StageCycleEnd && next == schemas.FirstStage && !o.cycles.ShouldContinue(m) {
		next = schemas.StageComplete
	}

	if !TransitionAllowed(m.CurrentStage, next) {
		o.recordError(ctx, m, fmt.Sprintf("rejected transition %s -> %s", m.CurrentStage, next))
		return fmt.Errorf("%w: transition %s -> %s not allowed", schemas.ErrInvalidStage, m.CurrentStage, next)
	}

	switch {
	case next == schemas.StageComplete:
		updated, err := o.store.Mutate(func(mm *schemas.Mission) error {
			o.cycles.Finalize(mm)
			mm.LastError = ""
			return nil
		})
		if err != nil {
			return err
		}
		o.report(o.bus.Publish(ctx, schemas.NewEvent(
			schemas.EventMissionCompleted, schemas.StageComplete, m.MissionID, map[string]interface{}{
				"cycles_used": updated.CurrentCycle,
				"iteration":   updated.Iteration,
			})))

	case m.CurrentStage == schemas.StageCycleEnd:
		// Cycle boundary: increment the cycle instead of a plain stage write.
		finished := m.CurrentCycle
		updated, err := o.store.Mutate(func(mm *schemas.Mission) error {
			continuation, _ := mm.Artifacts[continuationArtifact].(map[string]interface{})
			if err := o.cycles.Advance(mm, continuation); err != nil {
				return err
			}
			delete(mm.Artifacts, continuationArtifact)
			mm.LastError = ""
			return nil
		})
		if err != nil {
			return err
		}
		o.report(o.bus.Publish(ctx, schemas.NewEvent(
			schemas.EventCycleCompleted, schemas.StageCycleEnd, m.MissionID, map[string]interface{}{
				"finished_cycle": finished,
				"next_cycle":     updated.CurrentCycle,
			})))

	default:
		from := m.CurrentStage
		if _, err := o.store.Mutate(func(mm *schemas.Mission) error {
			mm.CurrentStage = next
			mm.LastError = ""
			mm.History = append(mm.History, schemas.HistoryEntry{
				Timestamp: time.Now().UTC(),
				Entry:     "stage transition",
				Details: map[string]interface{}{
					"from": string(from),
					"to":   string(next),
				},
			})
			return nil
		}); err != nil {
			return err
		}
	}

	o.log.Info("Stage updated",
		zap.String("mission_id", m.MissionID),
		zap.String("from", string(m.CurrentStage)),
		zap.String("to", string(next)))
	return nil
}

// Reset re-initializes the active mission while preserving its identity and
// configuration. See statestore.Store.Reset for the exact field semantics.
func (o *Orchestrator) Reset(ctx context.Context) (*schemas.Mission, error) {
	m, err := o.store.Reset()
	if err != nil {
		return nil, err
	}
	o.log.Info("Mission reset", zap.String("mission_id", m.MissionID))
	return m, nil
}

// recordError stamps the mission's last-error field so a stuck mission is
// visibly stuck, and publishes an ERROR event. Both are best-effort.
func (o *Orchestrator) recordError(ctx context.Context, m *schemas.Mission, msg string) {
	if _, err := o.store.Mutate(func(mm *schemas.Mission) error {
		mm.LastError = msg
		return nil
	}); err != nil {
		o.log.Warn("Failed to record mission error", zap.Error(err))
	}
	o.report(o.bus.Publish(ctx, schemas.NewEvent(
		schemas.EventError, m.CurrentStage, m.MissionID, map[string]interface{}{
			"error": msg,
		})))
}

// fillEvent completes a handler-emitted event envelope with whatever the
// handler left blank.
func (o *Orchestrator) fillEvent(ev schemas.Event, m *schemas.Mission) schemas.Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.MissionID == "" {
		ev.MissionID = m.MissionID
	}
	if ev.Stage == "" {
		ev.Stage = m.CurrentStage
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

// report logs aggregated subscriber failures as a warning-level degradation
// signal. Dispatch already completed for every subscriber; nothing to abort.
func (o *Orchestrator) report(failures []schemas.SubscriberFailure) {
	if len(failures) == 0 {
		return
	}
	errs := make([]error, len(failures))
	for i := range failures {
		errs[i] = failures[i]
	}
	o.log.Warn("Integrations degraded",
		zap.Int("failed", len(failures)),
		zap.Error(errors.Join(errs...)))
}
