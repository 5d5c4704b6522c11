package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argoview/floatchat/internal/logging"
	"github.com/argoview/floatchat/internal/types"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return New(dir, logging.NewNop()), dir
}

func TestLoadFreshDirectory(t *testing.T) {
	s, _ := newTestStore(t)

	state := s.Load()

	assert.Empty(t, state.Sessions)
	assert.Empty(t, state.CurrentID)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	sessions := []types.Session{
		types.NewSession("s1", time.Now()),
		types.NewSession("s2", time.Now()),
	}
	s.Save(sessions)
	s.SetCurrent("s2")

	state := s.Load()

	require.Len(t, state.Sessions, 2)
	assert.Equal(t, "s1", state.Sessions[0].ID)
	assert.Equal(t, "s2", state.Sessions[1].ID)
	assert.Equal(t, "s2", state.CurrentID)
}

func TestLoadDiscardsCorruptSessionList(t *testing.T) {
	s, dir := newTestStore(t)

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.json"), []byte("{not json"), 0o644))

	state := s.Load()

	assert.Empty(t, state.Sessions)
	assert.Empty(t, state.CurrentID)

	// The corrupt record is gone, not left to fail every load
	_, err := os.Stat(filepath.Join(dir, "sessions.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadClearsDanglingCurrentPointer(t *testing.T) {
	s, dir := newTestStore(t)

	s.Save([]types.Session{types.NewSession("s1", time.Now())})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current"), []byte("gone"), 0o644))

	state := s.Load()

	require.Len(t, state.Sessions, 1)
	assert.Empty(t, state.CurrentID)

	_, err := os.Stat(filepath.Join(dir, "current"))
	assert.True(t, os.IsNotExist(err))
}

func TestSetCurrentEmptyRemovesPointer(t *testing.T) {
	s, dir := newTestStore(t)

	s.Save([]types.Session{types.NewSession("s1", time.Now())})
	s.SetCurrent("s1")
	require.FileExists(t, filepath.Join(dir, "current"))

	s.SetCurrent("")

	_, err := os.Stat(filepath.Join(dir, "current"))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, s.Load().CurrentID)
}

func TestSaveEmptyListOverwrites(t *testing.T) {
	s, _ := newTestStore(t)

	s.Save([]types.Session{types.NewSession("s1", time.Now())})
	s.Save(nil)

	assert.Empty(t, s.Load().Sessions)
}

func TestSaveFailureIsNonFatal(t *testing.T) {
	// Point the store at a path that cannot be a directory
	dir := t.TempDir()
	file := filepath.Join(dir, "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	s := New(filepath.Join(file, "nested"), logging.NewNop())

	// Must not panic or return an error to the caller
	s.Save([]types.Session{types.NewSession("s1", time.Now())})
	s.SetCurrent("s1")

	state := s.Load()
	assert.Empty(t, state.Sessions)
}
