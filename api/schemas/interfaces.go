// File: api/schemas/interfaces.go
// Description: Contracts between the orchestration core and its pluggable
// collaborators. Handlers and integrations are injected; the core never
// depends on a concrete implementation.

package schemas

import "context"

// StageContext is a read-only projection of the mission fields a handler
// needs for one invocation. Handlers must not retain it past the call.
type StageContext struct {
	MissionID        string
	Stage            Stage
	ProblemStatement string
	Iteration        int
	CurrentCycle     int
	CycleBudget      int
	WorkspacePath    string
	History          []HistoryEntry
	SuccessCriteria  []string
	Preferences      map[string]string
}

// StageResult is what a handler produces from one structured response.
// An empty NextStage means "stay in the current stage".
type StageResult struct {
	Success    bool
	NextStage  Stage
	Status     string
	OutputData map[string]interface{}
	Events     []Event
	Message    string
}

// Restrictions describes the tool and write-path sandbox a stage runs under.
// The core only transports this; enforcement belongs to the driving loop.
type Restrictions struct {
	AllowedTools        []string
	BlockedTools        []string
	AllowedWritePaths   []string
	ForbiddenWritePaths []string
	AllowBash           bool
	ReadOnly            bool
}

// StageHandler is the pluggable per-stage logic. Prompt produces the context
// description handed to the external collaborator; ProcessResponse interprets
// the structured response it sent back. The response map is never nil: the
// orchestrator normalizes malformed input to an empty map, and the handler
// decides the safe default for it.
type StageHandler interface {
	Prompt(ctx StageContext) (string, error)
	ProcessResponse(response map[string]interface{}, ctx StageContext) (*StageResult, error)
	Restrictions() Restrictions
}

// Integration is an independent side-effect consumer of lifecycle events.
// HandleEvent errors are captured at the bus boundary and never abort the
// stage transition that triggered them.
type Integration interface {
	Name() string
	Subscriptions() []EventType
	HandleEvent(ctx context.Context, ev Event) error
}
