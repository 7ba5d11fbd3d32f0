// File: internal/cycle/controller.go
// Description: Cycle-iteration controller. Decides whether a mission loops
// back to the first stage for another cycle or finalizes, and packages the
// continuation context for the next cycle. Budget exhaustion always routes
// to finalize, regardless of what a stage handler recommends; this boundary
// is the one most prone to silent infinite looping when mis-implemented.

package cycle

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

// Controller tracks nothing itself; it operates on the mission record inside
// state-store mutations so cycle bookkeeping and persistence stay atomic.
type Controller struct {
	log *zap.Logger
}

// New creates a cycle controller.
func New(logger *zap.Logger) *Controller {
	return &Controller{log: logger.Named("cycle")}
}

// ShouldContinue reports whether the mission has budget for another cycle.
func (c *Controller) ShouldContinue(m *schemas.Mission) bool {
	return m.CurrentCycle < m.CycleBudget
}

// Advance moves the mission into its next cycle: increments the cycle
// counter, resets the stage to the first stage, appends a cycle-boundary
// history entry and records the continuation context into artifacts under a
// key scoped to the cycle that just finished. Cycle numbers never decrement
// or skip.
func (c *Controller) Advance(m *schemas.Mission, continuation map[string]interface{}) error {
	if !c.ShouldContinue(m) {
		return fmt.Errorf("cycle budget exhausted (%d/%d)", m.CurrentCycle, m.CycleBudget)
	}

	finished := m.CurrentCycle
	if continuation != nil {
		if m.Artifacts == nil {
			m.Artifacts = make(map[string]interface{})
		}
		m.Artifacts[ContinuationKey(finished)] = continuation
	}

	m.CurrentCycle++
	m.CurrentStage = schemas.FirstStage
	m.History = append(m.History, schemas.HistoryEntry{
		Timestamp: time.Now().UTC(),
		Entry:     "cycle boundary",
		Details: map[string]interface{}{
			"finished_cycle": finished,
			"next_cycle":     m.CurrentCycle,
			"cycle_budget":   m.CycleBudget,
		},
	})

	c.log.Info("Cycle advanced",
		zap.String("mission_id", m.MissionID),
		zap.Int("cycle", m.CurrentCycle),
		zap.Int("budget", m.CycleBudget))
	return nil
}

// Finalize moves the mission into the terminal stage and marks it complete.
// Idempotent: a second call observes the same state and changes nothing.
func (c *Controller) Finalize(m *schemas.Mission) {
	if m.Completed && m.CurrentStage == schemas.TerminalStage {
		return
	}
	m.CurrentStage = schemas.TerminalStage
	m.Completed = true
	m.History = append(m.History, schemas.HistoryEntry{
		Timestamp: time.Now().UTC(),
		Entry:     "mission finalized",
		Details: map[string]interface{}{
			"cycles_used":  m.CurrentCycle,
			"cycle_budget": m.CycleBudget,
		},
	})
	c.log.Info("Mission finalized",
		zap.String("mission_id", m.MissionID),
		zap.Int("cycles_used", m.CurrentCycle))
}

// ContinuationKey returns the artifact key that stores the continuation
// context recorded at the end of the given cycle.
func ContinuationKey(cycleNumber int) string {
	return fmt.Sprintf("cycle_%d_continuation", cycleNumber)
}
