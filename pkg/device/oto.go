package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/whalespump/live-support/pkg/orchestrator"
	"github.com/whalespump/live-support/pkg/playback"
)

// oto allows one context per process, so every call shares it.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedOtoContext(rate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   40 * time.Millisecond,
		})
		if otoErr == nil {
			<-ready
			otoRate = rate
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("failed to init speaker: %w", otoErr)
	}
	if otoRate != rate {
		return nil, fmt.Errorf("speaker already running at %d Hz, %d requested", otoRate, rate)
	}
	return otoCtx, nil
}

// otoPlayback feeds a Mixer to an oto player.
type otoPlayback struct {
	*playback.Mixer
	logger orchestrator.Logger

	mu     sync.Mutex
	player *oto.Player
}

func newOtoPlayback(ctx context.Context, rate int, logger orchestrator.Logger) (orchestrator.PlaybackContext, error) {
	octx, err := sharedOtoContext(rate)
	if err != nil {
		return nil, err
	}
	mixer := playback.NewMixer(rate)
	return &otoPlayback{Mixer: mixer, logger: logger, player: octx.NewPlayer(mixer)}, nil
}

func (p *otoPlayback) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == nil {
		return orchestrator.ErrDeviceUnavailable
	}
	if err := p.Mixer.Resume(ctx); err != nil {
		return err
	}
	if !p.player.IsPlaying() {
		p.player.Play()
		p.logger.Debug("speaker started", "backend", "oto", "sampleRate", p.SampleRate())
	}
	return nil
}

func (p *otoPlayback) Close() error {
	p.mu.Lock()
	player := p.player
	p.player = nil
	p.mu.Unlock()

	_ = p.Mixer.Close()
	if player == nil {
		return nil
	}
	player.Pause()
	return player.Close()
}
