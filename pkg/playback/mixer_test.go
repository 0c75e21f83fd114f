package playback

import (
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whalespump/live-support/pkg/audio"
)

// constant returns a mono buffer of n samples all equal to v.
func constant(rate, n int, v float32) *audio.Buffer {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = v
	}
	return audio.DecodePCM16(audio.EncodePCM16(samples), rate, 1)
}

func TestMixer_StartsSuspended(t *testing.T) {
	m := NewMixer(100)
	assert.True(t, m.Suspended())

	out := make([]float32, 10)
	m.Render(out)
	assert.Zero(t, m.CurrentTime(), "suspended mixer holds its clock")

	require.NoError(t, m.Resume(context.Background()))
	m.Render(out)
	assert.InDelta(t, 0.1, m.CurrentTime(), 1e-9)
}

func TestMixer_PlaysAtScheduledTime(t *testing.T) {
	m := NewMixer(100)
	require.NoError(t, m.Resume(context.Background()))

	ended := 0
	_, err := m.Start(constant(100, 5, 0.5), 0.03, func() { ended++ })
	require.NoError(t, err)

	out := make([]float32, 10)
	m.Render(out)
	assert.Equal(t, []float32{0, 0, 0}, out[:3])
	for _, s := range out[3:8] {
		assert.InDelta(t, 0.5, s, 1e-4)
	}
	assert.Equal(t, []float32{0, 0}, out[8:])
	assert.Equal(t, 1, ended)
	assert.Zero(t, m.Active())
}

func TestMixer_SpansRenderCalls(t *testing.T) {
	m := NewMixer(100)
	require.NoError(t, m.Resume(context.Background()))

	ended := 0
	_, err := m.Start(constant(100, 6, 0.25), 0, func() { ended++ })
	require.NoError(t, err)

	out := make([]float32, 4)
	m.Render(out)
	assert.Zero(t, ended)
	assert.Equal(t, 1, m.Active())

	m.Render(out)
	assert.InDelta(t, 0.25, out[1], 1e-4)
	assert.Zero(t, out[2])
	assert.Equal(t, 1, ended)
}

func TestMixer_MixesAndClamps(t *testing.T) {
	m := NewMixer(100)
	require.NoError(t, m.Resume(context.Background()))
	_, _ = m.Start(constant(100, 2, 0.75), 0, nil)
	_, _ = m.Start(constant(100, 2, 0.75), 0, nil)

	out := make([]float32, 2)
	m.Render(out)
	assert.Equal(t, float32(1), out[0])
}

func TestMixer_StopIsIdempotent(t *testing.T) {
	m := NewMixer(100)
	require.NoError(t, m.Resume(context.Background()))

	ended := 0
	h, err := m.Start(constant(100, 50, 0.5), 0, func() { ended++ })
	require.NoError(t, err)

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())
	assert.Equal(t, 1, ended)
	assert.Zero(t, m.Active())

	out := make([]float32, 10)
	m.Render(out)
	assert.Equal(t, make([]float32, 10), out)

	// A voice that already played out can still be stopped.
	h, _ = m.Start(constant(100, 2, 0.5), m.CurrentTime(), func() { ended++ })
	m.Render(out)
	assert.Equal(t, 2, ended)
	assert.NoError(t, h.Stop())
	assert.Equal(t, 2, ended)
}

func TestMixer_RejectsRateMismatch(t *testing.T) {
	m := NewMixer(24000)
	_, err := m.Start(constant(16000, 10, 0), 0, nil)
	assert.ErrorIs(t, err, ErrRateMismatch)
}

func TestMixer_ReadAndClose(t *testing.T) {
	m := NewMixer(100)
	require.NoError(t, m.Resume(context.Background()))
	_, _ = m.Start(constant(100, 4, 1), 0, nil)

	p := make([]byte, 8)
	n, err := m.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.InDelta(t, 32767, int16(binary.LittleEndian.Uint16(p)), 1)

	require.NoError(t, m.Close())
	_, err = m.Read(p)
	assert.ErrorIs(t, err, io.EOF)

	_, err = m.Start(constant(100, 1, 0), 0, nil)
	assert.ErrorIs(t, err, ErrMixerClosed)
	assert.ErrorIs(t, m.Resume(context.Background()), ErrMixerClosed)
}
