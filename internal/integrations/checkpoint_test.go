package integrations

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

func completedEvent() schemas.Event {
	return schemas.Event{
		ID:        "ev-1",
		Type:      schemas.EventStageCompleted,
		Stage:     schemas.StageTesting,
		MissionID: "m-1",
		Data:      map[string]interface{}{"status": "all green"},
		Timestamp: time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC),
	}
}

func TestCheckpointer(t *testing.T) {
	ctx := context.Background()

	t.Run("subscribes only to completion events", func(t *testing.T) {
		c := NewCheckpointer(zaptest.NewLogger(t), t.TempDir())
		assert.ElementsMatch(t,
			[]schemas.EventType{schemas.EventStageCompleted, schemas.EventMissionCompleted},
			c.Subscriptions())
	})

	t.Run("writes one readable snapshot per event", func(t *testing.T) {
		dir := t.TempDir()
		c := NewCheckpointer(zaptest.NewLogger(t), dir)
		ev := completedEvent()

		require.NoError(t, c.HandleEvent(ctx, ev))

		missionDir := filepath.Join(dir, ev.MissionID)
		entries, err := os.ReadDir(missionDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, strings.HasSuffix(entries[0].Name(), "-TESTING.json"))

		raw, err := os.ReadFile(filepath.Join(missionDir, entries[0].Name()))
		require.NoError(t, err)

		var cp Checkpoint
		require.NoError(t, json.Unmarshal(raw, &cp))
		assert.Equal(t, schemas.StageTesting, cp.Stage)
		assert.Equal(t, "all green", cp.Payload["status"])

		// No half-written temp file may survive the atomic rename.
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), ".checkpoint-"))
		}
	})
}

// closableBuffer lets the transcript write into memory.
type closableBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closableBuffer) Close() error {
	b.closed = true
	return nil
}

func TestTranscript(t *testing.T) {
	ctx := context.Background()

	t.Run("subscribes to the full firehose", func(t *testing.T) {
		tr := NewTranscriptWriter(zaptest.NewLogger(t), &closableBuffer{})
		assert.Equal(t, schemas.AllEventTypes(), tr.Subscriptions())
	})

	t.Run("appends one JSON line per event", func(t *testing.T) {
		buf := &closableBuffer{}
		tr := NewTranscriptWriter(zaptest.NewLogger(t), buf)

		require.NoError(t, tr.HandleEvent(ctx, completedEvent()))
		second := completedEvent()
		second.ID = "ev-2"
		second.Type = schemas.EventMissionCompleted
		require.NoError(t, tr.HandleEvent(ctx, second))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)

		var got schemas.Event
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
		assert.Equal(t, "ev-2", got.ID)
		assert.Equal(t, schemas.EventMissionCompleted, got.Type)

		require.NoError(t, tr.Close())
		assert.True(t, buf.closed)
	})
}

func TestGitCheckpointer(t *testing.T) {
	ctx := context.Background()

	t.Run("initializes the workspace and commits dirty state", func(t *testing.T) {
		ws := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(ws, "result.txt"), []byte("built\n"), 0o644))

		g := NewGitCheckpointer(zaptest.NewLogger(t), ws, "missionctl", "missionctl@localhost")
		require.NoError(t, g.HandleEvent(ctx, completedEvent()))

		assert.DirExists(t, filepath.Join(ws, ".git"))
	})

	t.Run("a clean worktree is skipped without error", func(t *testing.T) {
		ws := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(ws, "result.txt"), []byte("built\n"), 0o644))

		g := NewGitCheckpointer(zaptest.NewLogger(t), ws, "missionctl", "missionctl@localhost")
		require.NoError(t, g.HandleEvent(ctx, completedEvent()))
		require.NoError(t, g.HandleEvent(ctx, completedEvent()), "second event sees a clean tree")
	})
}
