package statestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(zaptest.NewLogger(t), filepath.Join(dir, DocumentName))
}

func testMission() *schemas.Mission {
	return &schemas.Mission{
		MissionID:        "m-1",
		ProblemStatement: "fix the flaky importer",
		CurrentStage:     schemas.StagePlanning,
		CurrentCycle:     1,
		CycleBudget:      3,
		SuccessCriteria:  []string{"importer passes CI 10x in a row"},
		Preferences:      map[string]string{"language": "go"},
		CreatedAt:        time.Now().UTC(),
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing document reports not found", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Load()
		assert.ErrorIs(t, err, schemas.ErrNotFound)
	})

	t.Run("unparseable document reports corrupt", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, os.WriteFile(s.DocumentPath(), []byte("{not json"), 0o644))
		_, err := s.Load()
		assert.ErrorIs(t, err, schemas.ErrCorrupt)
	})

	t.Run("round trip preserves every field", func(t *testing.T) {
		s := newTestStore(t)
		m := testMission()
		m.Artifacts = map[string]interface{}{"plan": "do the thing"}
		m.History = []schemas.HistoryEntry{{Timestamp: time.Now().UTC(), Entry: "created"}}
		require.NoError(t, s.Save(m))

		reloaded, err := New(zaptest.NewLogger(t), s.DocumentPath()).Load()
		require.NoError(t, err)

		// LastUpdated is stamped inside the atomic write, not by the caller.
		assert.False(t, reloaded.LastUpdated.IsZero())
		saved, err := s.Current()
		require.NoError(t, err)
		if diff := cmp.Diff(saved, reloaded); diff != "" {
			t.Errorf("reloaded mission differs from saved (-saved +reloaded):\n%s", diff)
		}
	})
}

func TestSetMission(t *testing.T) {
	t.Run("rejects nil, empty id, bad stage and bad budget", func(t *testing.T) {
		s := newTestStore(t)
		assert.Error(t, s.SetMission(nil))

		m := testMission()
		m.MissionID = ""
		assert.Error(t, s.SetMission(m))

		m = testMission()
		m.CurrentStage = "LIMBO"
		assert.ErrorIs(t, s.SetMission(m), schemas.ErrInvalidStage)

		m = testMission()
		m.CycleBudget = 0
		assert.Error(t, s.SetMission(m))
	})

	t.Run("callers never alias the in-memory record", func(t *testing.T) {
		s := newTestStore(t)
		m := testMission()
		require.NoError(t, s.SetMission(m))

		m.ProblemStatement = "mutated after set"
		got, err := s.Current()
		require.NoError(t, err)
		assert.Equal(t, "fix the flaky importer", got.ProblemStatement)

		got.Preferences["language"] = "cobol"
		again, err := s.Current()
		require.NoError(t, err)
		assert.Equal(t, "go", again.Preferences["language"])
	})
}

func TestMutate(t *testing.T) {
	t.Run("returns not found with no active mission", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Mutate(func(m *schemas.Mission) error { return nil })
		assert.ErrorIs(t, err, schemas.ErrNotFound)
	})

	t.Run("a failing mutation changes nothing", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SetMission(testMission()))
		before := s.writeCount

		_, err := s.Mutate(func(m *schemas.Mission) error {
			m.Iteration = 99
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, before, s.writeCount)

		got, err := s.Current()
		require.NoError(t, err)
		assert.Equal(t, 0, got.Iteration)
	})

	t.Run("persistence failure keeps the applied mutation in memory", func(t *testing.T) {
		dir := t.TempDir()
		s := New(zaptest.NewLogger(t), filepath.Join(dir, DocumentName))
		require.NoError(t, s.SetMission(testMission()))

		// Turn the document path into a directory so the rename must fail.
		require.NoError(t, os.Remove(s.DocumentPath()))
		require.NoError(t, os.Mkdir(s.DocumentPath(), 0o755))

		got, err := s.Mutate(func(m *schemas.Mission) error {
			m.Iteration = 7
			return nil
		})
		require.ErrorIs(t, err, schemas.ErrPersistence)
		require.NotNil(t, got)
		assert.Equal(t, 7, got.Iteration)

		inMem, cerr := s.Current()
		require.NoError(t, cerr)
		assert.Equal(t, 7, inMem.Iteration, "caller must be able to retry the save")
	})
}

func TestSuppressedBatch(t *testing.T) {
	t.Run("batch of appends coalesces into exactly one durable write", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SetMission(testMission()))
		before := s.writeCount

		s.BeginSuppressedBatch()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.HistoryAppend("step", map[string]interface{}{"i": i}))
		}
		require.NoError(t, s.EndSuppressedBatch())

		assert.Equal(t, before+1, s.writeCount, "exactly one durable write for the whole batch")

		reloaded, err := New(zaptest.NewLogger(t), s.DocumentPath()).Load()
		require.NoError(t, err)
		assert.Len(t, reloaded.History, 5, "the flushed write reflects every batched mutation")
	})

	t.Run("nested batches flush only at the outermost end", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SetMission(testMission()))
		before := s.writeCount

		s.BeginSuppressedBatch()
		s.BeginSuppressedBatch()
		require.NoError(t, s.HistoryAppend("inner", nil))
		require.NoError(t, s.EndSuppressedBatch())
		assert.Equal(t, before, s.writeCount, "inner end must not flush")
		require.NoError(t, s.HistoryAppend("outer", nil))
		require.NoError(t, s.EndSuppressedBatch())
		assert.Equal(t, before+1, s.writeCount)
	})

	t.Run("closing an empty batch writes nothing", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SetMission(testMission()))
		before := s.writeCount
		s.BeginSuppressedBatch()
		require.NoError(t, s.EndSuppressedBatch())
		assert.Equal(t, before, s.writeCount)
	})

	t.Run("unmatched end is an error", func(t *testing.T) {
		s := newTestStore(t)
		assert.Error(t, s.EndSuppressedBatch())
	})

	t.Run("batched and unbatched sequences land in the same state", func(t *testing.T) {
		run := func(batch bool) *schemas.Mission {
			s := newTestStore(t)
			require.NoError(t, s.SetMission(testMission()))
			if batch {
				s.BeginSuppressedBatch()
			}
			require.NoError(t, s.HistoryAppend("one", nil))
			_, err := s.Mutate(func(m *schemas.Mission) error {
				m.Iteration++
				return nil
			})
			require.NoError(t, err)
			require.NoError(t, s.HistoryAppend("two", map[string]interface{}{"k": "v"}))
			if batch {
				require.NoError(t, s.EndSuppressedBatch())
			}
			m, err := New(zaptest.NewLogger(t), s.DocumentPath()).Load()
			require.NoError(t, err)
			return m
		}

		batched := run(true)
		unbatched := run(false)
		ignoreTimes := cmpopts.IgnoreFields(schemas.HistoryEntry{}, "Timestamp")
		ignoreStamp := cmpopts.IgnoreFields(schemas.Mission{}, "LastUpdated", "CreatedAt")
		if diff := cmp.Diff(unbatched, batched, ignoreTimes, ignoreStamp); diff != "" {
			t.Errorf("batched state diverges from unbatched (-unbatched +batched):\n%s", diff)
		}
	})
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	m := testMission()
	require.NoError(t, s.SetMission(m))
	_, err := s.Mutate(func(mm *schemas.Mission) error {
		mm.CurrentStage = schemas.StageTesting
		mm.Iteration = 12
		mm.CurrentCycle = 2
		mm.Artifacts = map[string]interface{}{"junk": true}
		mm.LastError = "boom"
		return nil
	})
	require.NoError(t, err)

	got, err := s.Reset()
	require.NoError(t, err)

	assert.Equal(t, m.MissionID, got.MissionID, "identity survives a reset")
	assert.Equal(t, m.ProblemStatement, got.ProblemStatement)
	assert.Equal(t, m.SuccessCriteria, got.SuccessCriteria)
	assert.Equal(t, m.CycleBudget, got.CycleBudget)
	assert.Equal(t, m.Preferences, got.Preferences)

	assert.Equal(t, schemas.FirstStage, got.CurrentStage)
	assert.Equal(t, 0, got.Iteration)
	assert.Equal(t, 1, got.CurrentCycle)
	assert.Nil(t, got.Artifacts)
	assert.False(t, got.Completed)
	assert.Empty(t, got.LastError)
	require.Len(t, got.History, 1)
	assert.Equal(t, "mission reset", got.History[0].Entry)
}

func TestArchive(t *testing.T) {
	t.Run("moves the document and clears the active record", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.SetMission(testMission()))

		archiveDir := filepath.Join(t.TempDir(), "archive")
		dest, err := s.Archive(archiveDir)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(filepath.Base(dest), "m-1-"))
		assert.NoFileExists(t, s.DocumentPath())
		assert.FileExists(t, dest)

		_, err = s.Current()
		assert.ErrorIs(t, err, schemas.ErrNotFound)
	})

	t.Run("errors without an active mission", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Archive(t.TempDir())
		assert.ErrorIs(t, err, schemas.ErrNotFound)
	})
}
