package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type speakingLog struct {
	mu     sync.Mutex
	states []bool
}

func (l *speakingLog) record(speaking bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, speaking)
}

func (l *speakingLog) snapshot() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.states...)
}

func newTestScheduler(now float64) (*Scheduler, *MockPlaybackContext, *speakingLog) {
	out := &MockPlaybackContext{now: now}
	log := &speakingLog{}
	return NewScheduler(out, 24000, nil, log.record), out, log
}

func TestScheduler_BackToBack(t *testing.T) {
	s, out, _ := newTestScheduler(1.5)
	durations := []float64{0.5, 0.25, 0.75, 0.1}

	expected := 1.5
	for _, d := range durations {
		start, err := s.Schedule(context.Background(), pcmOfDuration(d))
		require.NoError(t, err)
		assert.InDelta(t, expected, start, 1e-9)
		expected += d
	}

	assert.InDelta(t, expected, s.NextStart(), 1e-9)
	assert.Equal(t, len(durations), s.Active())
	assert.Len(t, out.starts(), len(durations))
}

func TestScheduler_ClampsToDeviceTime(t *testing.T) {
	s, out, _ := newTestScheduler(0)

	_, err := s.Schedule(context.Background(), pcmOfDuration(0.5))
	require.NoError(t, err)

	// The device clock ran past the queue; the next chunk must not start in the past.
	out.setNow(3.0)
	start, err := s.Schedule(context.Background(), pcmOfDuration(0.5))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, start, 1e-9)
	assert.InDelta(t, 3.5, s.NextStart(), 1e-9)
}

func TestScheduler_ResumesSuspendedOutput(t *testing.T) {
	s, out, _ := newTestScheduler(0)
	out.suspended = true

	_, err := s.Schedule(context.Background(), pcmOfDuration(0.1))
	require.NoError(t, err)
	assert.Equal(t, 1, out.resumed)
	assert.False(t, out.Suspended())
}

func TestScheduler_ShortChunksNeverFail(t *testing.T) {
	s, _, _ := newTestScheduler(0)

	for _, pcm := range [][]byte{nil, {0x01}} {
		start, err := s.Schedule(context.Background(), pcm)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, start, 0.0)
	}
	assert.InDelta(t, 2.0/24000, s.NextStart(), 1e-12)
}

func TestScheduler_SpeakingFollowsActiveSet(t *testing.T) {
	s, out, log := newTestScheduler(0)

	_, err := s.Schedule(context.Background(), pcmOfDuration(0.2))
	require.NoError(t, err)
	_, err = s.Schedule(context.Background(), pcmOfDuration(0.2))
	require.NoError(t, err)
	assert.True(t, s.Speaking())

	handles := out.handleList()
	handles[0].finish()
	assert.True(t, s.Speaking())
	handles[1].finish()
	assert.False(t, s.Speaking())
	assert.Zero(t, s.Active())

	assert.Equal(t, []bool{true, false}, log.snapshot())
}

func TestScheduler_Interrupt(t *testing.T) {
	s, out, log := newTestScheduler(4.0)

	for i := 0; i < 5; i++ {
		_, err := s.Schedule(context.Background(), pcmOfDuration(0.3))
		require.NoError(t, err)
	}
	handles := out.handleList()
	// One chunk already played out.
	handles[0].finish()

	assert.Equal(t, 4, s.Interrupt())
	assert.Zero(t, s.Active())
	assert.Zero(t, s.NextStart())
	assert.False(t, s.Speaking())

	for _, h := range handles[1:] {
		assert.Equal(t, 1, h.stopped)
	}
	assert.Zero(t, handles[0].stopped)

	// Next chunk starts at the device's now.
	start, err := s.Schedule(context.Background(), pcmOfDuration(0.3))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, start, 1e-9)

	assert.Equal(t, []bool{true, false, true}, log.snapshot())
}

func TestScheduler_InterruptToleratesFinishedHandles(t *testing.T) {
	s, out, _ := newTestScheduler(0)
	_, err := s.Schedule(context.Background(), pcmOfDuration(0.1))
	require.NoError(t, err)

	// Mark done without the callback so the set still holds it.
	h := out.handleList()[0]
	h.mu.Lock()
	h.done = true
	h.mu.Unlock()

	assert.NotPanics(t, func() { s.Interrupt() })
	assert.Zero(t, s.Active())
}

func TestScheduler_ResetRefusesMoreChunks(t *testing.T) {
	s, _, _ := newTestScheduler(0)
	_, err := s.Schedule(context.Background(), pcmOfDuration(0.1))
	require.NoError(t, err)

	s.Reset()
	assert.Zero(t, s.Active())

	_, err = s.Schedule(context.Background(), pcmOfDuration(0.1))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestScheduler_StartFailureRollsBackClock(t *testing.T) {
	s, out, log := newTestScheduler(1.0)
	out.startErr = errors.New("device lost")

	_, err := s.Schedule(context.Background(), pcmOfDuration(0.5))
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Zero(t, s.Active())
	assert.Zero(t, s.NextStart())
	assert.False(t, s.Speaking())
	assert.Empty(t, log.snapshot())
}

func TestScheduler_ChunkEndingInsideStartReportsNoEdges(t *testing.T) {
	s, out, log := newTestScheduler(0)
	out.onStart = func(onEnded func()) { onEnded() }

	_, err := s.Schedule(context.Background(), pcmOfDuration(0.001))
	require.NoError(t, err)

	assert.Zero(t, s.Active())
	assert.False(t, s.Speaking())
	assert.Empty(t, log.snapshot())
}

func TestScheduler_EdgesAlternateWhenResetDuringStart(t *testing.T) {
	s, out, log := newTestScheduler(0)

	_, err := s.Schedule(context.Background(), pcmOfDuration(0.2))
	require.NoError(t, err)

	out.onStart = func(func()) { s.Reset() }
	_, err = s.Schedule(context.Background(), pcmOfDuration(0.2))
	require.NoError(t, err)

	handles := out.handleList()
	require.Len(t, handles, 2)
	assert.Equal(t, 1, handles[1].stopped)
	assert.Zero(t, s.Active())
	assert.Equal(t, []bool{true, false}, log.snapshot())
}
