// File: internal/integrations/checkpoint.go
// Description: Recovery-snapshot subscriber. The core guarantees a
// STAGE_COMPLETED / MISSION_COMPLETED event at the right moment; this
// integration turns those into opaque {stage, timestamp, payload} snapshots
// on disk.

package integrations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Checkpoint is the persisted snapshot layout.
type Checkpoint struct {
	Stage     schemas.Stage          `json:"stage"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Checkpointer writes one snapshot file per completed stage.
type Checkpointer struct {
	log *zap.Logger
	dir string
}

// NewCheckpointer creates the snapshot subscriber rooted at dir.
func NewCheckpointer(logger *zap.Logger, dir string) *Checkpointer {
	return &Checkpointer{
		log: logger.Named("checkpointer"),
		dir: dir,
	}
}

func (c *Checkpointer) Name() string { return "checkpointer" }

func (c *Checkpointer) Subscriptions() []schemas.EventType {
	return []schemas.EventType{schemas.EventStageCompleted, schemas.EventMissionCompleted}
}

// HandleEvent writes the snapshot atomically (temp file + rename) so a crash
// never leaves a half-written checkpoint behind.
func (c *Checkpointer) HandleEvent(ctx context.Context, ev schemas.Event) error {
	dir := filepath.Join(c.dir, ev.MissionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}

	cp := Checkpoint{
		Stage:     ev.Stage,
		Timestamp: ev.Timestamp,
		Payload:   ev.Data,
	}
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", ev.Timestamp.UTC().Format("20060102T150405.000Z0700"), ev.Stage)
	dest := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("placing checkpoint: %w", err)
	}

	c.log.Debug("Checkpoint written",
		zap.String("mission_id", ev.MissionID),
		zap.String("stage", string(ev.Stage)),
		zap.String("path", dest))
	return nil
}
