// File: api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// Error taxonomy for the orchestration core. Data-shape errors from upstream
// are recovered locally with safe defaults; configuration errors are surfaced
// loudly so a driving loop stops instead of reprocessing the same stage
// forever.
var (
	// ErrNotFound: no durable mission record exists.
	ErrNotFound = errors.New("mission not found")
	// ErrCorrupt: a durable record exists but cannot be parsed.
	ErrCorrupt = errors.New("mission record corrupt")
	// ErrInvalidStage: a transition target outside the closed stage set or
	// outside the transition table. Never silently absorbed.
	ErrInvalidStage = errors.New("invalid stage")
	// ErrUnknownStageHandler: a stage in the closed set has no registered
	// handler. Configuration error; fatal to the driving loop.
	ErrUnknownStageHandler = errors.New("no handler registered for stage")
	// ErrPersistence: a durable write failed. The previous durable version
	// survives intact and the in-memory record holds the applied mutation,
	// so the caller may retry the save.
	ErrPersistence = errors.New("persistence failure")
	// ErrMissionComplete: the mission is terminal; no further stage
	// operations are accepted.
	ErrMissionComplete = errors.New("mission already complete")
)

// SubscriberFailure records one integration failing to handle an event.
// Aggregated and reported as a warning-level signal; never fatal.
type SubscriberFailure struct {
	Subscriber string
	EventType  EventType
	Stage      Stage
	Err        error
}

func (f SubscriberFailure) Error() string {
	return fmt.Sprintf("integration %q failed on %s (stage %s): %v", f.Subscriber, f.EventType, f.Stage, f.Err)
}

func (f SubscriberFailure) Unwrap() error { return f.Err }
