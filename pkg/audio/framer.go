package audio

import "sync"

// Framer regroups capture callbacks of any size into fixed-size frames.
// Device backends whose hardware period differs from the frame size push
// through it so the session always sees one frame per callback.
type Framer struct {
	mu      sync.Mutex
	size    int
	pending []float32
	onFrame func([]float32)
}

// NewFramer creates a framer emitting frames of size samples.
func NewFramer(size int, onFrame func([]float32)) *Framer {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &Framer{
		size:    size,
		pending: make([]float32, 0, size),
		onFrame: onFrame,
	}
}

// Write appends samples and emits every completed frame.
func (f *Framer) Write(samples []float32) {
	f.mu.Lock()
	var ready [][]float32
	for len(samples) > 0 {
		n := f.size - len(f.pending)
		if n > len(samples) {
			n = len(samples)
		}
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]
		if len(f.pending) == f.size {
			ready = append(ready, f.pending)
			f.pending = make([]float32, 0, f.size)
		}
	}
	f.mu.Unlock()

	for _, frame := range ready {
		f.onFrame(frame)
	}
}

// Reset discards a partially filled frame.
func (f *Framer) Reset() {
	f.mu.Lock()
	f.pending = f.pending[:0]
	f.mu.Unlock()
}
