package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/whalespump/live-support/pkg/audio"
	"github.com/whalespump/live-support/pkg/orchestrator"
)

const portaudioFramesPerBuffer = 1024

// portaudioCapture holds one Initialize/Terminate pair for the call.
type portaudioCapture struct {
	rate   int
	logger orchestrator.Logger

	mu     sync.Mutex
	closed bool
}

func newPortaudioCapture(ctx context.Context, rate int, logger orchestrator.Logger) (orchestrator.CaptureContext, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio.Initialize: %w", err)
	}
	return &portaudioCapture{rate: rate, logger: logger}, nil
}

func (c *portaudioCapture) Resume(ctx context.Context) error {
	return nil
}

// OpenMicrophone opens the default input stream and reads it on its own
// goroutine until the tracks are stopped.
func (c *portaudioCapture) OpenMicrophone(ctx context.Context) (orchestrator.Microphone, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, orchestrator.ErrDeviceUnavailable
	}

	buffer := make([]float32, portaudioFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.rate), len(buffer), buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}

	tap := audio.NewTap()
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			default:
			}
			if err := stream.Read(); err != nil {
				if !errors.Is(err, portaudio.InputOverflowed) {
					c.logger.Warn("microphone read failed", "backend", "portaudio", "error", err)
					return
				}
			}
			frame := make([]float32, len(buffer))
			copy(frame, buffer)
			tap.Push(frame)
		}
	}()

	c.logger.Debug("microphone opened", "backend", "portaudio", "sampleRate", c.rate)
	return &microphone{Tap: tap, stop: func() error {
		close(done)
		err := stream.Stop()
		<-stopped
		if cerr := stream.Close(); err == nil {
			err = cerr
		}
		return err
	}}, nil
}

func (c *portaudioCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return portaudio.Terminate()
}
