// File: internal/statestore/store.go
// Description: Authoritative, durable mission record. All durable writes are
// atomic (write to a temporary file, then rename), so a crash mid-write
// leaves the previous version intact. There is no cross-process locking:
// the rename prevents torn files but the last writer wins. Callers must
// treat this as single-writer-intent, last-write-wins on violation.

package statestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DocumentName is the well-known file name of the active mission record
// inside a mission state directory.
const DocumentName = "mission.json"

// Store owns the durable mission document and the only in-memory record
// used for mutation. Callers always receive deep copies.
type Store struct {
	log  *zap.Logger
	path string

	mu      sync.Mutex
	mission *schemas.Mission

	// suppressDepth > 0 means durable writes are deferred; every mutation
	// still lands on the in-memory record and exactly one flush happens
	// when the outermost batch closes.
	suppressDepth int
	dirty         bool

	// writeCount tracks completed durable writes.
	writeCount int
}

// New creates a store bound to the mission document at path. The document
// does not need to exist yet; Load reports ErrNotFound until a mission is set.
func New(logger *zap.Logger, path string) *Store {
	return &Store{
		log:  logger.Named("statestore"),
		path: path,
	}
}

// DocumentPath returns the path of the durable mission document.
func (s *Store) DocumentPath() string { return s.path }

// Load reads the durable record into memory and returns a copy of it.
// Returns schemas.ErrNotFound when no record exists and schemas.ErrCorrupt
// when the stored representation cannot be parsed; the caller decides the
// fallback in both cases.
func (s *Store) Load() (*schemas.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, schemas.ErrNotFound
		}
		return nil, fmt.Errorf("reading mission document %s: %w", s.path, err)
	}

	var m schemas.Mission
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", schemas.ErrCorrupt, s.path, err)
	}

	s.mission = &m
	s.log.Debug("Mission loaded",
		zap.String("mission_id", m.MissionID),
		zap.String("stage", string(m.CurrentStage)))
	return m.Clone(), nil
}

// Current returns a copy of the in-memory record, or ErrNotFound if no
// mission has been set or loaded.
func (s *Store) Current() (*schemas.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mission == nil {
		return nil, schemas.ErrNotFound
	}
	return s.mission.Clone(), nil
}

// SetMission installs m as the active mission (first creation or replacement)
// and persists it. Respects an open suppressed batch the same way Mutate does.
func (s *Store) SetMission(m *schemas.Mission) error {
	if m == nil {
		return errors.New("cannot set a nil mission")
	}
	if m.MissionID == "" {
		return errors.New("mission_id must not be empty")
	}
	if !m.CurrentStage.Valid() {
		return fmt.Errorf("%w: %q", schemas.ErrInvalidStage, m.CurrentStage)
	}
	if m.CycleBudget < 1 {
		return fmt.Errorf("cycle_budget must be >= 1, got %d", m.CycleBudget)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.commitLocked(m.Clone())
	return err
}

// Save writes the full record durably and atomically. LastUpdated is set to
// the save time as part of the same atomic operation. While a suppressed
// batch is open the write is deferred and coalesced into the batch flush.
func (s *Store) Save(m *schemas.Mission) error {
	if m == nil {
		return errors.New("cannot save a nil mission")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.commitLocked(m.Clone())
	return err
}

// Mutate applies fn to a copy of the in-memory record and commits the result.
// If fn returns an error nothing changes. The returned mission snapshot is
// always exactly what was applied; on a persistence failure the in-memory
// record still holds the applied mutation (so the caller may retry the save)
// and the error wraps schemas.ErrPersistence.
func (s *Store) Mutate(fn func(*schemas.Mission) error) (*schemas.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mission == nil {
		return nil, schemas.ErrNotFound
	}
	next := s.mission.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	return s.commitLocked(next)
}

// HistoryAppend appends one entry to the mission history. Convenience wrapper
// over Mutate; respects suppression the same way.
func (s *Store) HistoryAppend(entry string, details map[string]interface{}) error {
	_, err := s.Mutate(func(m *schemas.Mission) error {
		m.History = append(m.History, schemas.HistoryEntry{
			Timestamp: time.Now().UTC(),
			Entry:     entry,
			Details:   details,
		})
		return nil
	})
	return err
}

// BeginSuppressedBatch disables durable writes until the matching
// EndSuppressedBatch. Batches nest; only the outermost end flushes. This
// exists so a fast sequence of history appends coalesces into a single disk
// write instead of racing a concurrent full-mission save.
func (s *Store) BeginSuppressedBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressDepth++
}

// EndSuppressedBatch closes the batch. When the outermost batch closes with
// pending mutations, exactly one durable write occurs and it reflects every
// mutation applied during the scope.
func (s *Store) EndSuppressedBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.suppressDepth == 0 {
		return errors.New("EndSuppressedBatch without matching BeginSuppressedBatch")
	}
	s.suppressDepth--
	if s.suppressDepth > 0 || !s.dirty {
		return nil
	}
	s.dirty = false
	if err := s.persistLocked(); err != nil {
		return err
	}
	return nil
}

// Reset re-initializes stage, iteration and history while preserving the
// mission's identity and configuration (mission_id, problem statement,
// success criteria, cycle budget, preferences, paths, created_at).
func (s *Store) Reset() (*schemas.Mission, error) {
	return s.Mutate(func(m *schemas.Mission) error {
		m.CurrentStage = schemas.FirstStage
		m.Iteration = 0
		m.CurrentCycle = 1
		m.History = []schemas.HistoryEntry{{
			Timestamp: time.Now().UTC(),
			Entry:     "mission reset",
		}}
		m.Artifacts = nil
		m.Completed = false
		m.LastError = ""
		return nil
	})
}

// Archive moves the durable record out of active storage into archiveDir.
// The active mission is never deleted in place; archival is the only way a
// mission leaves the store.
func (s *Store) Archive(archiveDir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mission == nil {
		return "", schemas.ErrNotFound
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}
	dest := filepath.Join(archiveDir, fmt.Sprintf("%s-%s.json",
		s.mission.MissionID, time.Now().UTC().Format("20060102T150405Z")))
	if err := os.Rename(s.path, dest); err != nil {
		return "", fmt.Errorf("archiving mission document: %w", err)
	}
	s.log.Info("Mission archived",
		zap.String("mission_id", s.mission.MissionID),
		zap.String("dest", dest))
	s.mission = nil
	s.dirty = false
	return dest, nil
}

// commitLocked installs next as the in-memory record and persists it unless
// a suppressed batch is open. Caller holds s.mu.
func (s *Store) commitLocked(next *schemas.Mission) (*schemas.Mission, error) {
	s.mission = next
	if s.suppressDepth > 0 {
		s.dirty = true
		return next.Clone(), nil
	}
	if err := s.persistLocked(); err != nil {
		// In-memory already holds the applied mutation; the previous durable
		// version survives intact. Caller may retry.
		return next.Clone(), err
	}
	return next.Clone(), nil
}

// persistLocked writes the in-memory record durably and atomically, stamping
// LastUpdated inside the same write. Caller holds s.mu.
func (s *Store) persistLocked() error {
	s.mission.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.mission, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling mission: %v", schemas.ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating state dir: %v", schemas.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, ".mission-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", schemas.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(raw); err != nil {
		cleanup()
		return fmt.Errorf("%w: writing temp file: %v", schemas.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: syncing temp file: %v", schemas.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp file: %v", schemas.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing mission document: %v", schemas.ErrPersistence, err)
	}

	s.writeCount++
	s.log.Debug("Mission persisted",
		zap.String("mission_id", s.mission.MissionID),
		zap.Int("writes", s.writeCount))
	return nil
}
