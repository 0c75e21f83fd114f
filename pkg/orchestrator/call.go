package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/whalespump/live-support/pkg/audio"
)

// Call is the per-call context. It owns every resource of one live call and
// is never reused; a new call always builds fresh device contexts and a
// fresh remote session.
type Call struct {
	ID       string
	orch     *Orchestrator
	cfg      Config
	logger   Logger
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc

	future   *sessionFuture
	inbound  chan LiveEvent
	outbound chan []byte
	tools    *toolRunner

	vadMu sync.Mutex
	vad   VADProvider

	duration atomic.Int64
	wg       sync.WaitGroup

	// stateMu orders state transitions against teardown.
	stateMu sync.Mutex

	mu          sync.Mutex
	state       ConnectionState
	torn        bool
	captureCtx  CaptureContext
	mic         Microphone
	playbackCtx PlaybackContext
	scheduler   *Scheduler
	handshake   *time.Timer
}

func newCall(o *Orchestrator, cfg Config) *Call {
	ctx, cancel := context.WithCancel(o.ctx)
	queue := cfg.OutboundQueue
	if queue <= 0 {
		queue = DefaultConfig().OutboundQueue
	}

	c := &Call{
		ID:       uuid.New().String(),
		orch:     o,
		cfg:      cfg,
		logger:   o.logger,
		recorder: o.recorder,
		ctx:      ctx,
		cancel:   cancel,
		future:   newSessionFuture(),
		inbound:  make(chan LiveEvent, 256),
		outbound: make(chan []byte, queue),
		vad:      NewRMSVAD(cfg.VADThreshold, cfg.VADSilence),
		state:    StateDisconnected,
	}
	c.tools = &toolRunner{
		tools:    o.tools,
		timeout:  cfg.ToolTimeout,
		logger:   o.logger,
		recorder: o.recorder,
		onResult: func(call ToolCall, result ToolResult) {
			o.emit(c.ID, ToolInvoked, map[string]any{"name": call.Name, "result": result})
		},
	}
	return c
}

// start acquires devices in order and opens the remote session. Any failure
// releases whatever was already acquired.
func (c *Call) start(ctx context.Context) error {
	c.setState(StateConnecting)
	c.recorder.CallStarted()

	capture, err := c.orch.audio.NewCaptureContext(ctx, c.cfg.CaptureSampleRate)
	if err != nil {
		return c.fail(KindDevice, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
	}
	if !c.adopt(func() { c.captureCtx = capture }) {
		c.release("capture context", capture.Close)
		return ErrSessionClosed
	}

	playback, err := c.orch.audio.NewPlaybackContext(ctx, c.cfg.PlaybackSampleRate)
	if err != nil {
		return c.fail(KindDevice, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
	}
	scheduler := NewScheduler(playback, c.cfg.PlaybackSampleRate, c.logger, c.onSpeaking)
	if !c.adopt(func() { c.playbackCtx, c.scheduler = playback, scheduler }) {
		c.release("playback context", playback.Close)
		return ErrSessionClosed
	}

	if err := capture.Resume(ctx); err != nil {
		return c.fail(KindDevice, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
	}
	if err := playback.Resume(ctx); err != nil {
		return c.fail(KindDevice, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
	}

	mic, err := capture.OpenMicrophone(ctx)
	if err != nil {
		return c.fail(KindPermission, fmt.Errorf("%w: %v", ErrPermissionDenied, err))
	}
	mic.SetEnabled(!c.orch.Muted())
	if !c.adopt(func() { c.mic = mic }) {
		c.release("capture tracks", mic.StopTracks)
		return ErrSessionClosed
	}

	if !c.adopt(func() { c.wg.Add(3) }) {
		return ErrSessionClosed
	}
	go c.loop()
	go c.pump()
	go c.dial()

	if c.cfg.HandshakeTimeout > 0 {
		timer := time.AfterFunc(c.cfg.HandshakeTimeout, func() {
			c.deliver(LiveEvent{Type: LiveErrored, Err: ErrHandshakeTimeout})
		})
		if !c.adopt(func() { c.handshake = timer }) {
			timer.Stop()
		}
	}

	c.logger.Info("call started", "callID", c.ID, "model", c.cfg.LiveModel)
	return nil
}

// adopt stores a freshly acquired resource unless the call was already torn down.
func (c *Call) adopt(set func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return false
	}
	set()
	return true
}

func (c *Call) dial() {
	defer c.wg.Done()

	sess, err := c.orch.live.Connect(c.ctx, LiveConfig{
		Model:             c.cfg.LiveModel,
		SystemInstruction: c.cfg.SystemInstruction,
		Voice:             c.cfg.Voice,
		Tools:             c.orch.declarations(),
		InputSampleRate:   c.cfg.CaptureSampleRate,
	}, c.deliver)
	c.future.resolve(sess, err)

	if err != nil {
		c.deliver(LiveEvent{Type: LiveErrored, Err: fmt.Errorf("%w: %v", ErrTransport, err)})
		return
	}
	// Hung up while the handshake was pending.
	if !c.wanted() {
		c.release("remote session", sess.Close)
	}
}

// deliver is the single entry point for remote events. Events arriving after
// teardown are dropped.
func (c *Call) deliver(ev LiveEvent) {
	select {
	case c.inbound <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Call) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.inbound:
			c.handle(ev)
		}
	}
}

// handle is the state transition function. Inbound events are handled one
// at a time in arrival order.
func (c *Call) handle(ev LiveEvent) {
	if !c.wanted() {
		return
	}

	switch ev.Type {
	case LiveOpened:
		c.onOpen()
	case LiveToolCall:
		c.onToolCall(ev.Calls)
	case LiveAudioChunk:
		c.onAudio(ev.Audio)
	case LiveInterrupted:
		n := c.getScheduler().Interrupt()
		c.logger.Debug("agent interrupted", "callID", c.ID, "flushed", n)
		c.orch.emit(c.ID, Interrupted, n)
	case LiveTurnComplete:
		c.logger.Debug("agent turn complete", "callID", c.ID)
	case LiveClosed:
		c.logger.Info("remote session closed", "callID", c.ID, "reason", ev.Reason)
		c.teardown("remote_close")
		c.orch.resetConversation()
	case LiveErrored:
		if errors.Is(ev.Err, ErrHandshakeTimeout) && c.State() == StateConnected {
			return
		}
		c.logger.Error("remote session failed", "callID", c.ID, "error", ev.Err)
		serr := newSessionError(KindTransport, ev.Err)
		c.setState(StateError)
		c.teardown("error")
		c.orch.resetConversation()
		c.orch.emit(c.ID, ErrorEvent, serr.Message)
	default:
		c.logger.Warn("unknown live event", "callID", c.ID, "type", ev.Type)
	}
}

func (c *Call) onOpen() {
	if c.State() != StateConnecting {
		c.logger.Warn("ignoring open in unexpected state", "callID", c.ID, "state", c.State())
		return
	}

	c.mu.Lock()
	if c.handshake != nil {
		c.handshake.Stop()
		c.handshake = nil
	}
	c.mu.Unlock()

	c.setState(StateConnected)
	c.startClock()

	sess, err := c.awaitSession()
	if err != nil {
		return
	}

	greeting := []Turn{{Role: "user", Text: c.cfg.GreetingText}}
	if err := sess.SendClientContent(c.ctx, greeting, true); err != nil {
		c.logger.Warn("failed to send greeting turn", "callID", c.ID, "error", err)
	}

	mic := c.getMic()
	if mic == nil {
		return
	}
	if err := mic.Connect(c.cfg.FrameSize, c.onFrame); err != nil {
		c.logger.Error("failed to wire capture callback", "callID", c.ID, "error", err)
		serr := newSessionError(KindDevice, err)
		c.setState(StateError)
		c.teardown("device_error")
		c.orch.emit(c.ID, ErrorEvent, serr.Message)
	}
}

// awaitSession waits for the handshake and re-checks that the call is still wanted.
func (c *Call) awaitSession() (LiveSession, error) {
	sess, err := c.future.wait(c.ctx)
	if err != nil {
		return nil, err
	}
	if !c.wanted() {
		return nil, ErrSessionClosed
	}
	return sess, nil
}

func (c *Call) onToolCall(calls []ToolCall) {
	if len(calls) == 0 {
		return
	}
	responses := c.tools.runAll(c.ctx, calls)

	sess, err := c.awaitSession()
	if err != nil {
		return
	}
	for _, r := range responses {
		if err := sess.SendToolResponse(c.ctx, []ToolResponse{r}); err != nil {
			c.transportFailure(err)
			return
		}
	}
}

func (c *Call) onAudio(pcm []byte) {
	s := c.getScheduler()
	if s == nil {
		return
	}
	c.recorder.AudioBytes("inbound", len(pcm))
	if _, err := s.Schedule(c.ctx, pcm); err != nil {
		c.logger.Warn("failed to schedule audio chunk", "callID", c.ID, "error", err)
	}
}

// onFrame runs on the capture thread. It never blocks.
func (c *Call) onFrame(frame []float32) {
	if !c.wanted() || c.orch.Muted() {
		return
	}
	pcm := audio.EncodePCM16(frame)
	c.meter(pcm)

	select {
	case c.outbound <- pcm:
	default:
		c.logger.Debug("send queue full, dropping capture frame", "callID", c.ID)
	}
}

func (c *Call) meter(pcm []byte) {
	c.vadMu.Lock()
	ev, _ := c.vad.Process(pcm)
	c.vadMu.Unlock()
	if ev == nil {
		return
	}
	switch ev.Type {
	case VADSpeechStart:
		c.orch.tryEmit(c.ID, UserSpeaking, nil)
	case VADSpeechEnd:
		c.orch.tryEmit(c.ID, UserStopped, nil)
	}
}

// pump is the only writer of realtime audio.
func (c *Call) pump() {
	defer c.wg.Done()

	sess, err := c.awaitSession()
	if err != nil {
		return
	}
	for {
		select {
		case <-c.ctx.Done():
			return
		case pcm := <-c.outbound:
			if !c.wanted() {
				return
			}
			if err := sess.SendRealtimeAudio(c.ctx, pcm); err != nil {
				c.transportFailure(err)
				return
			}
			c.recorder.AudioBytes("outbound", len(pcm))
		}
	}
}

func (c *Call) transportFailure(err error) {
	if c.ctx.Err() != nil {
		return
	}
	c.deliver(LiveEvent{Type: LiveErrored, Err: fmt.Errorf("%w: %v", ErrTransport, err)})
}

func (c *Call) startClock() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if !c.wanted() {
					return
				}
				c.orch.tryEmit(c.ID, CallDuration, c.duration.Add(1))
			}
		}
	}()
}

func (c *Call) onSpeaking(speaking bool) {
	if speaking {
		c.orch.tryEmit(c.ID, AgentSpeaking, nil)
		return
	}
	c.orch.tryEmit(c.ID, AgentSilent, nil)
}

// fail routes a setup failure through teardown and reports it once.
func (c *Call) fail(kind ErrorKind, err error) error {
	if c.ended() {
		return ErrSessionClosed
	}
	serr := newSessionError(kind, err)
	c.logger.Error("call setup failed", "callID", c.ID, "kind", kind, "error", err)
	c.setState(StateError)
	c.teardown("setup_failed")
	c.orch.emit(c.ID, ErrorEvent, serr.Message)
	return serr
}

// teardown releases everything the call owns. It is idempotent and every
// step tolerates the resource being absent or failing to close.
func (c *Call) teardown(reason string) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.torn = true
	mic, capture := c.mic, c.captureCtx
	playback, scheduler := c.playbackCtx, c.scheduler
	handshake := c.handshake
	c.mic, c.captureCtx, c.playbackCtx, c.handshake = nil, nil, nil, nil
	c.mu.Unlock()

	c.cancel()
	if handshake != nil {
		handshake.Stop()
	}

	if mic != nil {
		c.release("capture tracks", mic.StopTracks)
		c.release("capture nodes", mic.Disconnect)
	}
	if capture != nil {
		c.release("capture context", capture.Close)
	}
	if scheduler != nil {
		c.release("playback handles", func() error {
			scheduler.Reset()
			return nil
		})
	}
	if playback != nil {
		c.release("playback context", playback.Close)
	}
	if sess := c.future.peek(); sess != nil {
		c.release("remote session", sess.Close)
	}

	elapsed := time.Duration(c.duration.Swap(0)) * time.Second
	c.recorder.CallEnded(elapsed, reason)
	c.logger.Info("call ended", "callID", c.ID, "reason", reason, "duration", elapsed)
	c.setState(StateDisconnected)
}

func (c *Call) release(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("panic while releasing resource", "callID", c.ID, "resource", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		c.logger.Debug("failed to release resource", "callID", c.ID, "resource", name, "error", err)
	}
}

// wait blocks until every goroutine owned by the call has exited.
func (c *Call) wait() {
	c.wg.Wait()
}

// wanted is the cancellation guard checked after every wait.
func (c *Call) wanted() bool {
	return c.ctx.Err() == nil
}

// setState publishes a transition. Once the call is torn down only
// DISCONNECTED is accepted.
func (c *Call) setState(s ConnectionState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	c.mu.Lock()
	if c.state == s || (c.torn && s != StateDisconnected) {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.orch.setState(c.ID, s)
}

func (c *Call) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Call) getMic() Microphone {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mic
}

func (c *Call) getScheduler() *Scheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler
}

func (c *Call) ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.torn
}
