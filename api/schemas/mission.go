// File: api/schemas/mission.go
// Description: Core mission record and stage definitions shared by every
// component. The mission document in the state store is the source of truth;
// everything here must survive a JSON round trip unchanged.

package schemas

import (
	"time"
)

// Stage is one phase of the fixed mission workflow. The set is closed;
// handlers are registered per stage but the sequence itself is not
// user-definable at runtime.
type Stage string

const (
	StagePlanning  Stage = "PLANNING"
	StageBuilding  Stage = "BUILDING"
	StageTesting   Stage = "TESTING"
	StageAnalyzing Stage = "ANALYZING"
	StageCycleEnd  Stage = "CYCLE_END"
	StageComplete  Stage = "COMPLETE"
)

// FirstStage is where every new mission (and every new cycle) begins.
const FirstStage = StagePlanning

// TerminalStage accepts no further transitions once reached.
const TerminalStage = StageComplete

// AllStages returns the workflow sequence in execution order.
func AllStages() []Stage {
	return []Stage{
		StagePlanning,
		StageBuilding,
		StageTesting,
		StageAnalyzing,
		StageCycleEnd,
		StageComplete,
	}
}

// Valid reports whether s is a member of the closed stage set.
func (s Stage) Valid() bool {
	switch s {
	case StagePlanning, StageBuilding, StageTesting, StageAnalyzing, StageCycleEnd, StageComplete:
		return true
	}
	return false
}

// Terminal reports whether s is the terminal stage.
func (s Stage) Terminal() bool { return s == TerminalStage }

// HistoryEntry is a single append-only log record on the mission.
type HistoryEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Entry     string                 `json:"entry"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Mission is the unit of work tracked by the orchestration core.
//
// Mutation happens exclusively through the orchestrator and the state store;
// callers get deep copies and never mutate shared state directly. The
// MissionID never changes after creation, including across a reset.
type Mission struct {
	MissionID        string                 `json:"mission_id"`
	ProblemStatement string                 `json:"problem_statement"`
	Preferences      map[string]string      `json:"preferences,omitempty"`
	CurrentStage     Stage                  `json:"current_stage"`
	Iteration        int                    `json:"iteration"`
	CurrentCycle     int                    `json:"current_cycle"`
	CycleBudget      int                    `json:"cycle_budget"`
	History          []HistoryEntry         `json:"history"`
	Artifacts        map[string]interface{} `json:"artifacts,omitempty"`
	SuccessCriteria  []string               `json:"success_criteria,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	LastUpdated      time.Time              `json:"last_updated"`
	WorkspacePath    string                 `json:"workspace_path,omitempty"`
	StateDirPath     string                 `json:"state_dir_path,omitempty"`
	Completed        bool                   `json:"completed"`
	// LastError records the most recent non-fatal failure so a mission that
	// cannot transition stays visibly stuck rather than appearing to progress.
	LastError string `json:"last_error,omitempty"`
}

// Clone returns a deep copy of the mission. The state store hands out clones
// so callers can never alias the authoritative in-memory record.
func (m *Mission) Clone() *Mission {
	if m == nil {
		return nil
	}
	out := *m
	if m.Preferences != nil {
		out.Preferences = make(map[string]string, len(m.Preferences))
		for k, v := range m.Preferences {
			out.Preferences[k] = v
		}
	}
	if m.History != nil {
		out.History = make([]HistoryEntry, len(m.History))
		copy(out.History, m.History)
		for i := range out.History {
			out.History[i].Details = cloneValueMap(m.History[i].Details)
		}
	}
	out.Artifacts = cloneValueMap(m.Artifacts)
	if m.SuccessCriteria != nil {
		out.SuccessCriteria = make([]string, len(m.SuccessCriteria))
		copy(out.SuccessCriteria, m.SuccessCriteria)
	}
	return &out
}

// cloneValueMap copies one level of map structure plus nested maps and slices.
// Values beyond that are shared; mission payloads are plain JSON data, so
// deeper aliasing only occurs if a caller stores non-JSON types.
func cloneValueMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case map[string]interface{}:
			out[k] = cloneValueMap(t)
		case []interface{}:
			s := make([]interface{}, len(t))
			copy(s, t)
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}
