// Package store persists the session list and the current-session
// pointer as plain JSON under a state directory, surviving restarts.
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/argoview/floatchat/internal/logging"
	"github.com/argoview/floatchat/internal/types"
)

const (
	sessionsFile = "sessions.json"
	currentFile  = "current"
)

// State is everything the store knows across restarts. CurrentID is
// empty when no session is current; the store distinguishes that from
// a corrupt record by deleting the pointer file on clear.
type State struct {
	Sessions  []types.Session
	CurrentID string
}

// Store owns the durable session records. Persistence failures are
// never fatal: saves are logged and dropped, corrupt records are
// discarded on load.
type Store struct {
	dir string
	log *logging.Logger
	mu  sync.Mutex
}

// New creates a store rooted at dir. The directory is created lazily
// on first write.
func New(dir string, log *logging.Logger) *Store {
	return &Store{dir: dir, log: log.Named("store")}
}

// Load reads the persisted session list and current-session pointer.
// A malformed record is discarded with a warning rather than
// propagated; a fresh start must never fail here.
func (s *Store) Load() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state State

	data, err := os.ReadFile(s.path(sessionsFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// first run
	case err != nil:
		s.log.Warn("failed to read session list", zap.Error(err))
	default:
		var sessions []types.Session
		if err := json.Unmarshal(data, &sessions); err != nil {
			s.log.Warn("discarding corrupt session list", zap.Error(err))
			s.removeLocked(sessionsFile)
		} else {
			state.Sessions = sessions
		}
	}

	cur, err := os.ReadFile(s.path(currentFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// no current session
	case err != nil:
		s.log.Warn("failed to read current pointer", zap.Error(err))
	default:
		state.CurrentID = strings.TrimSpace(string(cur))
	}

	// A dangling pointer is as bad as no pointer.
	if state.CurrentID != "" && !containsID(state.Sessions, state.CurrentID) {
		s.log.Warn("current pointer references unknown session, clearing",
			zap.String("session_id", state.CurrentID))
		state.CurrentID = ""
		s.removeLocked(currentFile)
	}

	return state
}

// Save writes the full session list. Invoked after every mutation;
// failure is logged, never surfaced.
func (s *Store) Save(sessions []types.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(sessions)
	if err != nil {
		s.log.Warn("failed to serialize session list", zap.Error(err))
		return
	}
	if err := s.writeLocked(sessionsFile, data); err != nil {
		s.log.Warn("failed to persist session list",
			zap.Int("sessions", len(sessions)), zap.Error(err))
	}
}

// SetCurrent persists which session is current. An empty id removes
// the pointer file entirely, so "no session" survives restarts as an
// explicit state.
func (s *Store) SetCurrent(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		s.removeLocked(currentFile)
		return
	}
	if err := s.writeLocked(currentFile, []byte(sessionID)); err != nil {
		s.log.Warn("failed to persist current pointer",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// writeLocked writes atomically via a temp file and rename, so a crash
// mid-write never leaves a truncated record behind.
func (s *Store) writeLocked(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp := s.path(name + ".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(name))
}

func (s *Store) removeLocked(name string) {
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("failed to remove record", zap.String("record", name), zap.Error(err))
	}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func containsID(sessions []types.Session, id string) bool {
	for _, sess := range sessions {
		if sess.ID == id {
			return true
		}
	}
	return false
}
