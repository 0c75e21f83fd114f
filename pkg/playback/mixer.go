package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/whalespump/live-support/pkg/audio"
	"github.com/whalespump/live-support/pkg/orchestrator"
)

var (
	// ErrMixerClosed is returned when starting a buffer on a closed mixer
	ErrMixerClosed = errors.New("mixer closed")

	// ErrRateMismatch is returned when a buffer's sample rate differs from the mixer's
	ErrRateMismatch = errors.New("buffer sample rate does not match output")
)

// Mixer is a software output context. Buffers are started at absolute
// times on a clock that advances only as audio is rendered, which is what
// the device pulls. A suspended mixer renders silence and holds its clock.
type Mixer struct {
	sampleRate int

	mu        sync.Mutex
	clock     int64
	voices    []*voice
	suspended bool
	closed    bool
	scratch   []float32
}

type voice struct {
	m       *Mixer
	start   int64
	samples []float32
	pos     int
	done    bool
	onEnded func()
}

// NewMixer creates a suspended mixer at sampleRate.
func NewMixer(sampleRate int) *Mixer {
	return &Mixer{sampleRate: sampleRate, suspended: true}
}

func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

// CurrentTime is the playback position in seconds.
func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.clock) / float64(m.sampleRate)
}

func (m *Mixer) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

func (m *Mixer) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = true
}

func (m *Mixer) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMixerClosed
	}
	m.suspended = false
	return nil
}

// Start schedules buf at time at (seconds). Channels are mixed down to mono.
func (m *Mixer) Start(buf *audio.Buffer, at float64, onEnded func()) (orchestrator.PlaybackHandle, error) {
	if buf.SampleRate() != m.sampleRate {
		return nil, fmt.Errorf("%w: %d != %d", ErrRateMismatch, buf.SampleRate(), m.sampleRate)
	}

	v := &voice{
		m:       m,
		start:   int64(math.Round(at * float64(m.sampleRate))),
		samples: mixdown(buf),
		onEnded: onEnded,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMixerClosed
	}
	m.voices = append(m.voices, v)
	return v, nil
}

// Stop ends the voice early. Stopping a finished voice is a no-op.
func (v *voice) Stop() error {
	m := v.m
	m.mu.Lock()
	if v.done {
		m.mu.Unlock()
		return nil
	}
	v.done = true
	m.remove(v)
	m.mu.Unlock()

	if v.onEnded != nil {
		v.onEnded()
	}
	return nil
}

// Render mixes the next len(out) samples and advances the clock.
func (m *Mixer) Render(out []float32) {
	clear(out)

	m.mu.Lock()
	if m.suspended || m.closed {
		m.mu.Unlock()
		return
	}

	n := int64(len(out))
	var ended []*voice
	kept := m.voices[:0]
	for _, v := range m.voices {
		offset := v.start - m.clock
		if offset < 0 {
			// Started in the past; skip what was missed.
			skip := int(-offset)
			if v.pos < skip {
				v.pos = skip
			}
			offset = 0
		}
		if offset < n {
			for i := int(offset); i < len(out) && v.pos < len(v.samples); i++ {
				out[i] += v.samples[v.pos]
				v.pos++
			}
		}
		if v.pos >= len(v.samples) {
			v.done = true
			ended = append(ended, v)
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = kept
	m.clock += n
	m.mu.Unlock()

	for i, s := range out {
		out[i] = float32(math.Max(-1, math.Min(1, float64(s))))
	}
	for _, v := range ended {
		if v.onEnded != nil {
			v.onEnded()
		}
	}
}

// Read renders signed 16-bit little-endian mono PCM. It lets a pull-based
// player such as oto drive the mixer.
func (m *Mixer) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, io.EOF
	}
	frames := len(p) / 2
	if cap(m.scratch) < frames {
		m.scratch = make([]float32, frames)
	}
	buf := m.scratch[:frames]
	m.mu.Unlock()

	m.Render(buf)
	return copy(p, audio.EncodePCM16(buf)), nil
}

// Active is the number of voices still scheduled or playing.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Close drops all voices without firing their callbacks.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		v.done = true
	}
	m.voices = nil
	m.closed = true
	return nil
}

func (m *Mixer) remove(target *voice) {
	for i, v := range m.voices {
		if v == target {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return
		}
	}
}

func mixdown(buf *audio.Buffer) []float32 {
	channels := buf.Channels()
	if channels == 1 {
		out := make([]float32, buf.Frames())
		copy(out, buf.Channel(0))
		return out
	}
	out := make([]float32, buf.Frames())
	for c := 0; c < channels; c++ {
		for i, s := range buf.Channel(c) {
			out[i] += s / float32(channels)
		}
	}
	return out
}
