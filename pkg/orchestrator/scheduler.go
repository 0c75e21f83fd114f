package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/whalespump/live-support/pkg/audio"
)

type scheduledChunk struct {
	handle   PlaybackHandle
	start    float64
	duration float64
}

// Scheduler queues inbound speech chunks back to back on the playback clock.
type Scheduler struct {
	out        PlaybackContext
	sampleRate int
	logger     Logger
	onSpeaking func(speaking bool)

	// edgeMu serializes onSpeaking so edges always alternate.
	edgeMu   sync.Mutex
	reported bool

	mu        sync.Mutex
	nextStart float64
	active    map[*scheduledChunk]struct{}
	speaking  bool
	closed    bool
}

// NewScheduler creates a scheduler that plays chunks on out. onSpeaking is
// called whenever the agent starts or stops being audible.
func NewScheduler(out PlaybackContext, sampleRate int, logger Logger, onSpeaking func(bool)) *Scheduler {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if onSpeaking == nil {
		onSpeaking = func(bool) {}
	}
	return &Scheduler{
		out:        out,
		sampleRate: sampleRate,
		logger:     logger,
		onSpeaking: onSpeaking,
		active:     make(map[*scheduledChunk]struct{}),
	}
}

// Schedule decodes pcm and queues it right after the previously scheduled
// chunk, or at the device's current time if the queue has drained.
func (s *Scheduler) Schedule(ctx context.Context, pcm []byte) (float64, error) {
	if s.out.Suspended() {
		if err := s.out.Resume(ctx); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}

	buf := audio.DecodePCM16(pcm, s.sampleRate, 1)
	chunk := &scheduledChunk{duration: buf.Duration()}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	prev := s.nextStart
	chunk.start = math.Max(prev, s.out.CurrentTime())
	s.nextStart = chunk.start + chunk.duration
	s.active[chunk] = struct{}{}
	s.speaking = true
	s.mu.Unlock()

	handle, err := s.out.Start(buf, chunk.start, func() { s.finished(chunk) })
	if err != nil {
		s.mu.Lock()
		if _, ok := s.active[chunk]; ok {
			delete(s.active, chunk)
			if s.nextStart == chunk.start+chunk.duration {
				s.nextStart = prev
			}
			if len(s.active) == 0 {
				s.speaking = false
			}
		}
		s.mu.Unlock()
		s.sync()
		return 0, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.mu.Lock()
	chunk.handle = handle
	_, live := s.active[chunk]
	s.mu.Unlock()

	// Flushed or already finished while starting.
	if !live {
		s.stop(handle)
	}
	s.sync()
	return chunk.start, nil
}

func (s *Scheduler) finished(chunk *scheduledChunk) {
	s.mu.Lock()
	if _, ok := s.active[chunk]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, chunk)
	// A chunk still inside Start reports its edges from Schedule.
	published := chunk.handle != nil
	if len(s.active) == 0 {
		s.speaking = false
	}
	s.mu.Unlock()

	if published {
		s.sync()
	}
}

// sync reports the current speaking state if it differs from the last edge.
func (s *Scheduler) sync() {
	s.edgeMu.Lock()
	defer s.edgeMu.Unlock()

	s.mu.Lock()
	speaking := s.speaking
	s.mu.Unlock()

	if speaking == s.reported {
		return
	}
	s.reported = speaking
	s.onSpeaking(speaking)
}

// Interrupt drops every queued or playing chunk and rewinds the clock.
// It returns how many chunks were flushed.
func (s *Scheduler) Interrupt() int {
	return s.flush(false)
}

// Reset flushes like Interrupt and refuses further chunks.
func (s *Scheduler) Reset() {
	s.flush(true)
}

func (s *Scheduler) flush(closing bool) int {
	s.mu.Lock()
	handles := make([]PlaybackHandle, 0, len(s.active))
	for chunk := range s.active {
		if chunk.handle != nil {
			handles = append(handles, chunk.handle)
		}
	}
	n := len(s.active)
	s.active = make(map[*scheduledChunk]struct{})
	s.nextStart = 0
	s.speaking = false
	if closing {
		s.closed = true
	}
	s.mu.Unlock()

	for _, h := range handles {
		s.stop(h)
	}
	s.sync()
	return n
}

func (s *Scheduler) stop(h PlaybackHandle) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("playback handle panicked on stop", "panic", r)
		}
	}()
	if err := h.Stop(); err != nil {
		s.logger.Debug("playback handle stop failed", "error", err)
	}
}

// NextStart is the time the next chunk would be queued at, before clamping to now.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Active is the number of chunks scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}
