// File: internal/orchestrator/transitions.go
package orchestrator

import "github.com/xkilldash9x/missionctl/api/schemas"

// transitions is the closed transition table. Forward edges follow the
// workflow sequence; the back edges are the explicit exceptions:
// TESTING -> BUILDING on test failure, ANALYZING -> PLANNING for a re-plan
// within the same cycle, CYCLE_END -> PLANNING across a cycle boundary and
// CYCLE_END -> COMPLETE when the budget is exhausted. COMPLETE is terminal.
var transitions = map[schemas.Stage][]schemas.Stage{
	schemas.StagePlanning:  {schemas.StageBuilding},
	schemas.StageBuilding:  {schemas.StageTesting},
	schemas.StageTesting:   {schemas.StageAnalyzing, schemas.StageBuilding},
	schemas.StageAnalyzing: {schemas.StageCycleEnd, schemas.StagePlanning},
	schemas.StageCycleEnd:  {schemas.StagePlanning, schemas.StageComplete},
	schemas.StageComplete:  {},
}

// TransitionAllowed reports whether from -> to is an edge in the table.
func TransitionAllowed(from, to schemas.Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
