package session

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argoview/floatchat/internal/logging"
)

type staticStatus struct{ up bool }

func (s staticStatus) Up() bool { return s.up }

func newSweeperFixture(t *testing.T, up bool) (*fixture, *Sweeper) {
	t.Helper()
	f := newFixture(t)
	sw := NewSweeper(f.manager, f.client, staticStatus{up: up}, SweeperConfig{
		Debounce: time.Millisecond,
		Interval: time.Hour,
	}, logging.NewNop(), nil)
	return f, sw
}

func TestSweepRemovesOnlyConfirmedDead(t *testing.T) {
	f, sw := newSweeperFixture(t, true)
	ctx := context.Background()

	f.stub.QueueSessionID("alive")
	_, err := f.manager.CreateNewSession(ctx, nil)
	require.NoError(t, err)
	f.stub.QueueSessionID("dead")
	_, err = f.manager.CreateNewSession(ctx, nil)
	require.NoError(t, err)

	f.stub.Expire("dead")

	removed := sw.Sweep(ctx)

	assert.Equal(t, 1, removed)
	ids := sessionIDs(f.manager.Sessions())
	assert.Equal(t, []string{"alive"}, ids)
}

func TestSweepSkippedWhenBackendDown(t *testing.T) {
	f, sw := newSweeperFixture(t, false)
	ctx := context.Background()

	f.stub.QueueSessionID("dead")
	_, err := f.manager.CreateNewSession(ctx, nil)
	require.NoError(t, err)
	f.stub.Expire("dead")

	removed := sw.Sweep(ctx)

	// No probes at all while the backend looks unreachable
	assert.Zero(t, removed)
	assert.Zero(t, f.stub.InfoCalls)
	assert.Len(t, f.manager.Sessions(), 1)
}

func TestSweepKeepsSessionsOnAmbiguousFailure(t *testing.T) {
	f, sw := newSweeperFixture(t, true)
	ctx := context.Background()

	f.stub.QueueSessionID("flaky")
	_, err := f.manager.CreateNewSession(ctx, nil)
	require.NoError(t, err)

	f.stub.FailNext("info", http.StatusInternalServerError, "transient")

	removed := sw.Sweep(ctx)

	assert.Zero(t, removed)
	assert.Len(t, f.manager.Sessions(), 1)
}

func TestSweepDroppingCurrentClearsPointer(t *testing.T) {
	f, sw := newSweeperFixture(t, true)
	ctx := context.Background()

	f.stub.QueueSessionID("S1")
	_, err := f.manager.CreateNewSession(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "S1", f.manager.CurrentID())

	f.stub.Expire("S1")

	removed := sw.Sweep(ctx)

	assert.Equal(t, 1, removed)
	assert.Empty(t, f.manager.CurrentID())
	assert.Empty(t, f.manager.CurrentMessages())
}

func TestSweepNeverFiresRemoteDeletes(t *testing.T) {
	f, sw := newSweeperFixture(t, true)
	ctx := context.Background()

	f.stub.QueueSessionID("dead")
	_, err := f.manager.CreateNewSession(ctx, nil)
	require.NoError(t, err)
	f.stub.Expire("dead")

	sw.Sweep(ctx)

	// The remote already answered 404; a delete would be redundant
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.stub.Deletes())
}

func TestSweeperRunRespectsCancellation(t *testing.T) {
	f, sw := newSweeperFixture(t, true)

	ctx, cancel := context.WithCancel(context.Background())

	f.stub.QueueSessionID("dead")
	_, err := f.manager.CreateNewSession(ctx, nil)
	require.NoError(t, err)
	f.stub.Expire("dead")

	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	// Let the debounced first sweep happen, then stop the loop
	require.Eventually(t, func() bool {
		return len(f.manager.Sessions()) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}
