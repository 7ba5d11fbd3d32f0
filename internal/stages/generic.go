// File: internal/stages/generic.go
// Description: Default stage handlers. Each one renders a prompt describing
// what the external collaborator should do in the stage and interprets the
// structured response it sends back. The handlers never talk to an AI
// service themselves; they only map a response object onto a StageResult
// with per-stage transition defaults.

package stages

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/xkilldash9x/missionctl/api/schemas"
	"github.com/xkilldash9x/missionctl/internal/registry"
)

// Response keys recognized by the generic handlers.
const (
	keySuccess   = "success"
	keyNextStage = "next_stage"
	keyStatus    = "status"
	keyOutput    = "output"
	keyEvents    = "events"
	keyMessage   = "message"
)

var promptTmpl = template.Must(template.New("stage_prompt").Parse(
	`[{{ .Stage }}] cycle {{ .Cycle }}/{{ .Budget }}, iteration {{ .Iteration }}
Mission: {{ .Problem }}
{{ if .Criteria }}Success criteria:
{{ range .Criteria }}  - {{ . }}
{{ end }}{{ end }}{{ .Instruction }}
Respond with a JSON object: {"success": bool, "status": string, "message": string, "output": object, "next_stage": optional string}.
`))

type promptData struct {
	Stage       schemas.Stage
	Cycle       int
	Budget      int
	Iteration   int
	Problem     string
	Criteria    []string
	Instruction string
}

// Generic interprets structured responses with per-stage defaults. The
// success path follows the forward edge of the transition table; the failure
// path follows the stage's back edge where one exists.
type Generic struct {
	stage        schemas.Stage
	successNext  schemas.Stage
	failureNext  schemas.Stage
	instruction  string
	restrictions schemas.Restrictions
}

// Prompt renders the stage prompt from the read-only context snapshot.
func (g *Generic) Prompt(ctx schemas.StageContext) (string, error) {
	var buf bytes.Buffer
	err := promptTmpl.Execute(&buf, promptData{
		Stage:       g.stage,
		Cycle:       ctx.CurrentCycle,
		Budget:      ctx.CycleBudget,
		Iteration:   ctx.Iteration,
		Problem:     ctx.ProblemStatement,
		Criteria:    ctx.SuccessCriteria,
		Instruction: g.instruction,
	})
	if err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", g.stage, err)
	}
	return buf.String(), nil
}

// ProcessResponse maps the structured response onto a StageResult. An empty
// object (the normalized form of malformed upstream input) stays in the
// current stage; silently crashing the mission would be worse.
func (g *Generic) ProcessResponse(response map[string]interface{}, ctx schemas.StageContext) (*schemas.StageResult, error) {
	if len(response) == 0 {
		return &schemas.StageResult{
			Success:   false,
			NextStage: ctx.Stage,
			Status:    "no_response",
			Message:   "empty or malformed response; staying in " + string(ctx.Stage),
		}, nil
	}

	result := &schemas.StageResult{
		Success: boolValue(response[keySuccess]),
		Status:  stringValue(response[keyStatus]),
		Message: stringValue(response[keyMessage]),
	}
	if out, ok := response[keyOutput].(map[string]interface{}); ok {
		result.OutputData = out
	}
	result.Events = parseEvents(response[keyEvents], ctx)

	if raw := stringValue(response[keyNextStage]); raw != "" {
		// Passed through verbatim; the orchestrator treats an unknown name
		// as a data error and stays put.
		result.NextStage = schemas.Stage(raw)
	} else if result.Success {
		result.NextStage = g.successNext
	} else {
		result.NextStage = g.failureNext
	}
	if result.Status == "" {
		if result.Success {
			result.Status = "ok"
		} else {
			result.Status = "failed"
		}
	}
	return result, nil
}

// Restrictions reports the sandbox this stage runs under.
func (g *Generic) Restrictions() schemas.Restrictions { return g.restrictions }

// parseEvents extracts handler-emitted events from the response. Only the
// closed event types are accepted; anything else is dropped.
func parseEvents(v interface{}, ctx schemas.StageContext) []schemas.Event {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var events []schemas.Event
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		t := schemas.EventType(stringValue(entry["type"]))
		if !validEventType(t) {
			continue
		}
		data, _ := entry["data"].(map[string]interface{})
		events = append(events, schemas.NewEvent(t, ctx.Stage, ctx.MissionID, data))
	}
	return events
}

func validEventType(t schemas.EventType) bool {
	for _, known := range schemas.AllEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

func boolValue(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

// NewPlanning advances to BUILDING on success and stays put otherwise.
func NewPlanning() *Generic {
	return &Generic{
		stage:       schemas.StagePlanning,
		successNext: schemas.StageBuilding,
		failureNext: schemas.StagePlanning,
		instruction: "Plan the work: break the mission into concrete build steps and record the plan in output.",
		restrictions: schemas.Restrictions{
			AllowedTools: []string{"read", "search"},
			ReadOnly:     true,
		},
	}
}

// NewBuilding advances to TESTING on success.
func NewBuilding() *Generic {
	return &Generic{
		stage:       schemas.StageBuilding,
		successNext: schemas.StageTesting,
		failureNext: schemas.StageBuilding,
		instruction: "Execute the plan: implement the changes in the workspace and summarize what was built in output.",
		restrictions: schemas.Restrictions{
			AllowedTools:        []string{"read", "write", "search"},
			ForbiddenWritePaths: []string{".git"},
			AllowBash:           true,
		},
	}
}

// NewTesting advances to ANALYZING on success and falls back to BUILDING on
// test failure.
func NewTesting() *Generic {
	return &Generic{
		stage:       schemas.StageTesting,
		successNext: schemas.StageAnalyzing,
		failureNext: schemas.StageBuilding,
		instruction: "Run the verification suite against the built work and report pass/fail with evidence in output.",
		restrictions: schemas.Restrictions{
			AllowedTools: []string{"read", "search"},
			AllowBash:    true,
			ReadOnly:     true,
		},
	}
}

// NewAnalyzing advances to CYCLE_END on success; a failure is a
// recommendation to re-plan within the same cycle.
func NewAnalyzing() *Generic {
	return &Generic{
		stage:       schemas.StageAnalyzing,
		successNext: schemas.StageCycleEnd,
		failureNext: schemas.StagePlanning,
		instruction: "Judge the results against the success criteria. Recommend re-planning if they are not met.",
		restrictions: schemas.Restrictions{
			AllowedTools: []string{"read", "search"},
			ReadOnly:     true,
		},
	}
}

// CycleEnd summarizes the finished cycle. It recommends PLANNING for another
// cycle; the cycle controller overrides that to COMPLETE when the budget is
// exhausted. A "continuation" object in the response output is carried into
// the next cycle's artifacts.
type CycleEnd struct {
	Generic
}

// NewCycleEnd constructs the cycle-boundary handler.
func NewCycleEnd() *CycleEnd {
	return &CycleEnd{Generic: Generic{
		stage:       schemas.StageCycleEnd,
		successNext: schemas.StagePlanning,
		failureNext: schemas.StagePlanning,
		instruction: "Summarize the finished cycle and put anything the next cycle needs under output.continuation.",
		restrictions: schemas.Restrictions{
			AllowedTools: []string{"read"},
			ReadOnly:     true,
		},
	}}
}

// Complete is the terminal handler: it never proposes a transition.
type Complete struct{}

// NewComplete constructs the terminal-stage handler.
func NewComplete() *Complete { return &Complete{} }

func (c *Complete) Prompt(ctx schemas.StageContext) (string, error) {
	return fmt.Sprintf("Mission %s is complete after %d cycle(s). No further work is accepted.",
		ctx.MissionID, ctx.CurrentCycle), nil
}

func (c *Complete) ProcessResponse(response map[string]interface{}, ctx schemas.StageContext) (*schemas.StageResult, error) {
	return &schemas.StageResult{
		Success:   true,
		NextStage: schemas.StageComplete,
		Status:    "complete",
		Message:   "mission is terminal",
	}, nil
}

func (c *Complete) Restrictions() schemas.Restrictions {
	return schemas.Restrictions{ReadOnly: true}
}

// RegisterDefaults installs the default handler set for every stage in the
// closed set.
func RegisterDefaults(reg *registry.Registry) error {
	handlers := map[schemas.Stage]schemas.StageHandler{
		schemas.StagePlanning:  NewPlanning(),
		schemas.StageBuilding:  NewBuilding(),
		schemas.StageTesting:   NewTesting(),
		schemas.StageAnalyzing: NewAnalyzing(),
		schemas.StageCycleEnd:  NewCycleEnd(),
		schemas.StageComplete:  NewComplete(),
	}
	for stage, h := range handlers {
		if err := reg.Register(stage, h); err != nil {
			return err
		}
	}
	return nil
}
