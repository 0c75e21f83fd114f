package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/whalespump/live-support/pkg/audio"
	"github.com/whalespump/live-support/pkg/orchestrator"
	"github.com/whalespump/live-support/pkg/playback"
)

func newMalgoContext() (*malgo.AllocatedContext, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	return mctx, nil
}

func freeMalgoContext(mctx *malgo.AllocatedContext) error {
	err := mctx.Uninit()
	mctx.Free()
	return err
}

// malgoCapture is a capture context backed by a miniaudio context.
type malgoCapture struct {
	rate   int
	logger orchestrator.Logger

	mu   sync.Mutex
	mctx *malgo.AllocatedContext
}

func newMalgoCapture(ctx context.Context, rate int, logger orchestrator.Logger) (orchestrator.CaptureContext, error) {
	mctx, err := newMalgoContext()
	if err != nil {
		return nil, err
	}
	return &malgoCapture{rate: rate, logger: logger, mctx: mctx}, nil
}

// Resume is a no-op; miniaudio contexts are never suspended.
func (c *malgoCapture) Resume(ctx context.Context) error {
	return nil
}

// OpenMicrophone opens and starts the default input device.
func (c *malgoCapture) OpenMicrophone(ctx context.Context) (orchestrator.Microphone, error) {
	c.mu.Lock()
	mctx := c.mctx
	c.mu.Unlock()
	if mctx == nil {
		return nil, orchestrator.ErrDeviceUnavailable
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(c.rate)
	cfg.Alsa.NoMMap = 1

	tap := audio.NewTap()
	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, frames uint32) {
			tap.Push(f32Samples(in, int(frames)))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}

	c.logger.Debug("microphone opened", "backend", "malgo", "sampleRate", c.rate)
	return &microphone{Tap: tap, stop: func() error {
		err := dev.Stop()
		dev.Uninit()
		return err
	}}, nil
}

func (c *malgoCapture) Close() error {
	c.mu.Lock()
	mctx := c.mctx
	c.mctx = nil
	c.mu.Unlock()
	if mctx == nil {
		return nil
	}
	return freeMalgoContext(mctx)
}

// malgoPlayback drives a Mixer from a miniaudio playback device.
type malgoPlayback struct {
	*playback.Mixer
	logger orchestrator.Logger

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	dev     *malgo.Device
	started bool
}

func newMalgoPlayback(ctx context.Context, rate int, logger orchestrator.Logger) (orchestrator.PlaybackContext, error) {
	mctx, err := newMalgoContext()
	if err != nil {
		return nil, err
	}

	mixer := playback.NewMixer(rate)
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(rate)
	cfg.Alsa.NoMMap = 1

	var scratch []float32
	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frames uint32) {
			n := int(frames)
			if cap(scratch) < n {
				scratch = make([]float32, n)
			}
			buf := scratch[:n]
			mixer.Render(buf)
			putF32Samples(out, buf)
		},
	})
	if err != nil {
		_ = freeMalgoContext(mctx)
		return nil, fmt.Errorf("failed to open speaker: %w", err)
	}

	return &malgoPlayback{Mixer: mixer, logger: logger, mctx: mctx, dev: dev}, nil
}

// Resume starts the device on first use and unpauses the mixer.
func (p *malgoPlayback) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return orchestrator.ErrDeviceUnavailable
	}
	if !p.started {
		if err := p.dev.Start(); err != nil {
			return fmt.Errorf("failed to start speaker: %w", err)
		}
		p.started = true
		p.logger.Debug("speaker started", "backend", "malgo", "sampleRate", p.SampleRate())
	}
	return p.Mixer.Resume(ctx)
}

func (p *malgoPlayback) Close() error {
	p.mu.Lock()
	dev, mctx, started := p.dev, p.mctx, p.started
	p.dev, p.mctx, p.started = nil, nil, false
	p.mu.Unlock()

	_ = p.Mixer.Close()
	var err error
	if dev != nil {
		if started {
			err = dev.Stop()
		}
		dev.Uninit()
	}
	if mctx != nil {
		if cerr := freeMalgoContext(mctx); err == nil {
			err = cerr
		}
	}
	return err
}

// f32Samples views a little-endian float32 device buffer as samples.
func f32Samples(in []byte, frames int) []float32 {
	if n := len(in) / 4; frames > n {
		frames = n
	}
	out := make([]float32, frames)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
	}
	return out
}

func putF32Samples(out []byte, samples []float32) {
	for i, s := range samples {
		if (i+1)*4 > len(out) {
			return
		}
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
}
