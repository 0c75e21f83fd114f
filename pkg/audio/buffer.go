package audio

// Buffer is a block of de-interleaved float samples at a fixed sample rate.
type Buffer struct {
	sampleRate int
	data       [][]float32
}

// NewSilence returns a zeroed buffer with the given shape.
func NewSilence(sampleRate, channels, frames int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, frames)
	}
	return &Buffer{sampleRate: sampleRate, data: data}
}

func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

func (b *Buffer) Channels() int {
	return len(b.data)
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.data) == 0 {
		return 0
	}
	return len(b.data[0])
}

// Channel returns the samples of channel i.
func (b *Buffer) Channel(i int) []float32 {
	return b.data[i]
}

// Duration is the playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b.sampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.sampleRate)
}
