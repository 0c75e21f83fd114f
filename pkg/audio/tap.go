package audio

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrTapDisconnected is returned when a disconnected tap is connected again.
var ErrTapDisconnected = errors.New("capture tap disconnected")

// Tap sits between a capture device callback and the frame consumer.
// Devices push whatever period size the driver uses; consumers receive
// fixed-size frames. A disabled tap delivers silence, like a muted track.
type Tap struct {
	enabled atomic.Bool

	mu      sync.Mutex
	framer  *Framer
	done    bool
	scratch []float32
}

func NewTap() *Tap {
	t := &Tap{}
	t.enabled.Store(true)
	return t
}

// Connect starts delivering frames of frameSize samples to onFrame.
func (t *Tap) Connect(frameSize int, onFrame func([]float32)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTapDisconnected
	}
	t.framer = NewFramer(frameSize, onFrame)
	return nil
}

func (t *Tap) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *Tap) Enabled() bool {
	return t.enabled.Load()
}

// Disconnect detaches the consumer. Later pushes are dropped.
func (t *Tap) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.framer = nil
	return nil
}

// Push is called from the device thread with mono samples.
func (t *Tap) Push(samples []float32) {
	t.mu.Lock()
	framer := t.framer
	if framer != nil && !t.enabled.Load() {
		if cap(t.scratch) < len(samples) {
			t.scratch = make([]float32, len(samples))
		}
		samples = t.scratch[:len(samples)]
		clear(samples)
	}
	t.mu.Unlock()

	if framer != nil {
		framer.Write(samples)
	}
}
