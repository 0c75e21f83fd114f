// Package device binds the call's audio contexts to local sound hardware.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/whalespump/live-support/pkg/audio"
	"github.com/whalespump/live-support/pkg/orchestrator"
)

const (
	CaptureMalgo     = "malgo"
	CapturePortaudio = "portaudio"
	PlaybackMalgo    = "malgo"
	PlaybackOto      = "oto"
)

// ErrUnknownBackend is returned for an unsupported backend name
var ErrUnknownBackend = errors.New("unknown audio backend")

type captureFactory func(ctx context.Context, rate int, logger orchestrator.Logger) (orchestrator.CaptureContext, error)

type playbackFactory func(ctx context.Context, rate int, logger orchestrator.Logger) (orchestrator.PlaybackContext, error)

var (
	captureFactories = map[string]captureFactory{
		CaptureMalgo:     newMalgoCapture,
		CapturePortaudio: newPortaudioCapture,
	}
	playbackFactories = map[string]playbackFactory{
		PlaybackMalgo: newMalgoPlayback,
		PlaybackOto:   newOtoPlayback,
	}
)

// Backend opens fresh device contexts for every call.
type Backend struct {
	capture     string
	playback    string
	newCapture  captureFactory
	newPlayback playbackFactory
	logger      orchestrator.Logger
}

// NewBackend selects the capture and playback implementations by name.
// Empty names default to malgo.
func NewBackend(capture, playback string, logger orchestrator.Logger) (*Backend, error) {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	capture = normalize(capture, CaptureMalgo)
	playback = normalize(playback, PlaybackMalgo)

	nc, ok := captureFactories[capture]
	if !ok {
		return nil, fmt.Errorf("%w: capture %q", ErrUnknownBackend, capture)
	}
	np, ok := playbackFactories[playback]
	if !ok {
		return nil, fmt.Errorf("%w: playback %q", ErrUnknownBackend, playback)
	}
	return &Backend{
		capture:     capture,
		playback:    playback,
		newCapture:  nc,
		newPlayback: np,
		logger:      logger,
	}, nil
}

func normalize(name, fallback string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fallback
	}
	return name
}

func (b *Backend) String() string {
	return b.capture + "/" + b.playback
}

func (b *Backend) NewCaptureContext(ctx context.Context, sampleRate int) (orchestrator.CaptureContext, error) {
	return b.newCapture(ctx, sampleRate, b.logger)
}

func (b *Backend) NewPlaybackContext(ctx context.Context, sampleRate int) (orchestrator.PlaybackContext, error) {
	return b.newPlayback(ctx, sampleRate, b.logger)
}

// Record captures d of microphone audio at sampleRate, for voice notes.
func Record(ctx context.Context, backend orchestrator.AudioBackend, sampleRate int, d time.Duration) ([]float32, error) {
	capture, err := backend.NewCaptureContext(ctx, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrDeviceUnavailable, err)
	}
	defer capture.Close()

	if err := capture.Resume(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrDeviceUnavailable, err)
	}
	mic, err := capture.OpenMicrophone(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrPermissionDenied, err)
	}

	want := int(d.Seconds() * float64(sampleRate))
	var (
		mu      sync.Mutex
		samples = make([]float32, 0, want)
		full    = make(chan struct{})
		once    sync.Once
	)
	err = mic.Connect(sampleRate/10, func(frame []float32) {
		mu.Lock()
		defer mu.Unlock()
		if len(samples) >= want {
			return
		}
		samples = append(samples, frame...)
		if len(samples) >= want {
			once.Do(func() { close(full) })
		}
	})
	if err != nil {
		_ = mic.StopTracks()
		return nil, err
	}

	timer := time.NewTimer(d + time.Second)
	defer timer.Stop()
	select {
	case <-full:
	case <-timer.C:
	case <-ctx.Done():
	}

	_ = mic.StopTracks()
	_ = mic.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	if len(samples) > want {
		samples = samples[:want]
	}
	if err := ctx.Err(); err != nil {
		return samples, err
	}
	return samples, nil
}

// microphone adapts a Tap fed by a device to orchestrator.Microphone.
type microphone struct {
	*audio.Tap
	stop func() error
	once sync.Once
}

// StopTracks halts the device. Frames already pushed are still delivered.
func (m *microphone) StopTracks() error {
	var err error
	m.once.Do(func() { err = m.stop() })
	return err
}
