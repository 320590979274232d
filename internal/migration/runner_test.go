package migration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/mcmigrate/internal/testutil"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStage completes after a fixed number of chunks.
type fakeStage struct {
	name       string
	chunks     int
	failFirst  int
	prepareErr error

	mu       sync.Mutex
	calls    int
	prepared int
	// gate, when set, is received from before each chunk
	gate chan struct{}
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Prepare(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared++
	return s.prepareErr
}

func (s *fakeStage) MigrateNextChunk(ctx context.Context, maxItems int) (int, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return 0, fmt.Errorf("chunk %d failed", s.calls)
	}
	return maxItems, nil
}

func (s *fakeStage) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls-s.failFirst >= s.chunks
}

func (s *fakeStage) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestRunner(stages ...Stage) *Runner {
	return NewRunner(&RunnerConfig{
		Stages:       stages,
		BatchSize:    10,
		ErrorBackoff: time.Millisecond,
		Logger:       testutil.QuietLogger(),
	})
}

func TestRunner_RunsStagesInOrder(t *testing.T) {
	a := &fakeStage{name: "a", chunks: 2}
	b := &fakeStage{name: "b", chunks: 3}
	r := newTestRunner(a, b)

	require.NoError(t, r.Run(t.Context()))
	assert.Equal(t, 2, a.callCount())
	assert.Equal(t, 3, b.callCount())
	assert.Equal(t, int64(50), r.Status().Processed)
	assert.False(t, r.IsRunning())

	require.ErrorIs(t, r.Run(t.Context()), ErrAlreadyRunning)
}

func TestRunner_SkipsCompletedStage(t *testing.T) {
	done := &fakeStage{name: "done", chunks: 0}
	r := newTestRunner(done)

	require.NoError(t, r.Run(t.Context()))
	assert.Zero(t, done.callCount())
	assert.Equal(t, 1, done.prepared)
}

func TestRunner_RetriesFailedChunks(t *testing.T) {
	s := &fakeStage{name: "flaky", chunks: 1, failFirst: 2}
	r := newTestRunner(s)

	require.NoError(t, r.Run(t.Context()))
	assert.Equal(t, 3, s.callCount())
	require.Error(t, r.LastError())
	assert.Contains(t, r.Status().LastError, "chunk 2 failed")
}

func TestRunner_AbortsAfterConsecutiveErrors(t *testing.T) {
	s := &fakeStage{name: "broken", chunks: 1, failFirst: 100}
	r := NewRunner(&RunnerConfig{
		Stages:               []Stage{s},
		ErrorBackoff:         time.Millisecond,
		MaxConsecutiveErrors: 3,
		Logger:               testutil.QuietLogger(),
	})

	err := r.Run(t.Context())
	require.Error(t, err)
	assert.Equal(t, 3, s.callCount())
}

func TestRunner_PrepareErrorStopsRun(t *testing.T) {
	a := &fakeStage{name: "a", chunks: 1, prepareErr: fmt.Errorf("no index")}
	b := &fakeStage{name: "b", chunks: 1}
	r := newTestRunner(a, b)

	require.Error(t, r.Run(t.Context()))
	assert.Zero(t, b.prepared)
}

func TestRunner_PauseResume(t *testing.T) {
	gate := make(chan struct{})
	s := &fakeStage{name: "slow", chunks: 3, gate: gate}
	r := newTestRunner(s)

	// release lets one chunk through, or reports false once the run ended
	release := func() bool {
		select {
		case gate <- struct{}{}:
			return true
		case <-r.doneCh:
			return false
		}
	}

	require.NoError(t, r.Start(t.Context()))
	require.True(t, release())
	require.Eventually(t, func() bool { return s.callCount() == 1 }, time.Second, time.Millisecond)

	r.Pause()
	assert.True(t, r.IsPaused())
	assert.True(t, r.Status().Paused)

	// A chunk that was already waiting may still finish, nothing after it
	select {
	case gate <- struct{}{}:
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case gate <- struct{}{}:
		t.Fatal("runner processed a chunk while paused")
	case <-time.After(50 * time.Millisecond):
	}
	assert.LessOrEqual(t, s.callCount(), 2)

	r.Resume()
	assert.False(t, r.IsPaused())
	for release() {
	}

	require.NoError(t, r.Wait())
	assert.Equal(t, 3, s.callCount())
}

func TestRunner_Stop(t *testing.T) {
	gate := make(chan struct{})
	s := &fakeStage{name: "endless", chunks: 1000, gate: gate}
	r := newTestRunner(s)

	require.NoError(t, r.Start(t.Context()))
	require.Eventually(t, r.IsRunning, time.Second, time.Millisecond)
	r.Stop()
	// let an in-flight chunk return
	select {
	case gate <- struct{}{}:
	case <-r.doneCh:
	}

	testutil.WaitForChannel(t, r.doneCh, testutil.DefaultTestTimeout, "runner did not stop")
	require.ErrorIs(t, r.Wait(), ErrRunnerStopped)
	assert.False(t, r.IsRunning())
	assert.Equal(t, "", r.Status().CurrentStage)
	assert.LessOrEqual(t, s.callCount(), 1)
}

func TestRunner_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	s := &fakeStage{name: "endless", chunks: 1000, gate: make(chan struct{})}
	r := newTestRunner(s)

	require.NoError(t, r.Start(ctx))
	require.Eventually(t, r.IsRunning, time.Second, time.Millisecond)
	cancel()

	require.ErrorIs(t, r.Wait(), context.Canceled)
}
