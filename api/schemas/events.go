// File: api/schemas/events.go
package schemas

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle event on the mission bus. Closed set.
type EventType string

const (
	EventStageStarted     EventType = "STAGE_STARTED"
	EventStageCompleted   EventType = "STAGE_COMPLETED"
	EventMissionStarted   EventType = "MISSION_STARTED"
	EventMissionCompleted EventType = "MISSION_COMPLETED"
	EventCycleCompleted   EventType = "CYCLE_COMPLETED"
	EventError            EventType = "ERROR"
)

// AllEventTypes returns every lifecycle event type. Useful for subscribers
// that want the full firehose (e.g. the transcript).
func AllEventTypes() []EventType {
	return []EventType{
		EventStageStarted,
		EventStageCompleted,
		EventMissionStarted,
		EventMissionCompleted,
		EventCycleCompleted,
		EventError,
	}
}

// Event is an immutable lifecycle notification. The bus never persists
// events; a subscriber that needs durability must write its own record.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Stage     Stage                  `json:"stage"`
	MissionID string                 `json:"mission_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent constructs a fully populated event envelope.
func NewEvent(t EventType, stage Stage, missionID string, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Stage:     stage,
		MissionID: missionID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
