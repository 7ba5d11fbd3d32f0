// File: internal/integrations/transcript.go
// Description: Append-only audit log of every lifecycle event, one JSON
// document per line, rotated by lumberjack. Audit only: the mission document
// in the state store remains the source of truth.

package integrations

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/missionctl/api/schemas"
	"github.com/xkilldash9x/missionctl/internal/config"
)

// Transcript subscribes to the full event firehose.
type Transcript struct {
	log *zap.Logger
	w   io.WriteCloser
}

// NewTranscript creates the audit-log subscriber backed by a rotated file.
func NewTranscript(logger *zap.Logger, cfg config.TranscriptConfig) *Transcript {
	return &Transcript{
		log: logger.Named("transcript"),
		w: &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
	}
}

// NewTranscriptWriter creates a transcript over an arbitrary writer.
// Tests use this to capture output in memory.
func NewTranscriptWriter(logger *zap.Logger, w io.WriteCloser) *Transcript {
	return &Transcript{log: logger.Named("transcript"), w: w}
}

func (t *Transcript) Name() string { return "transcript" }

func (t *Transcript) Subscriptions() []schemas.EventType {
	return schemas.AllEventTypes()
}

// HandleEvent appends the event as a single JSON line.
func (t *Transcript) HandleEvent(ctx context.Context, ev schemas.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := t.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending transcript: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (t *Transcript) Close() error { return t.w.Close() }
