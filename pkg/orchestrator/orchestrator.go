package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Orchestrator is the shared core behind every UI surface. It owns the
// configuration (tool set, instruction, model, voice) and runs at most one
// live call at a time.
type Orchestrator struct {
	live     LiveProvider
	tools    ToolDispatcher
	audio    AudioBackend
	config   Config
	logger   Logger
	recorder Recorder

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan OrchestratorEvent
	closeOnce sync.Once

	muted atomic.Bool

	mu           sync.RWMutex
	call         *Call
	state        ConnectionState
	conversation *Conversation
}

// New creates an orchestrator with a no-op logger
func New(live LiveProvider, tools ToolDispatcher, audio AudioBackend, config Config) *Orchestrator {
	return NewWithLogger(live, tools, audio, config, &NoOpLogger{})
}

// NewWithLogger creates an orchestrator with a custom logger.
// If logger is nil, a no-op logger is used
func NewWithLogger(live LiveProvider, tools ToolDispatcher, audio AudioBackend, config Config, logger Logger) *Orchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		live:     live,
		tools:    tools,
		audio:    audio,
		config:   config,
		logger:   logger,
		recorder: NoOpRecorder{},
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan OrchestratorEvent, 1024),
		state:    StateDisconnected,
	}
}

// SetRecorder installs a metrics recorder for subsequent calls.
func (o *Orchestrator) SetRecorder(r Recorder) {
	if r == nil {
		r = NoOpRecorder{}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorder = r
}

// AttachConversation links the text chat so a failed call drops its cached
// chat handle too.
func (o *Orchestrator) AttachConversation(c *Conversation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conversation = c
}

// StartSession begins a new live call. It returns once devices are acquired
// and the connection attempt is underway; progress is reported on Events.
func (o *Orchestrator) StartSession(ctx context.Context) error {
	if o.ctx.Err() != nil {
		return ErrClosed
	}

	cfg := o.GetConfig()
	if strings.TrimSpace(cfg.APIKey) == "" {
		serr := newSessionError(KindConfiguration, ErrMissingCredential)
		o.logger.Error("refusing to start call", "error", serr)
		o.emit("", ErrorEvent, serr.Message)
		return serr
	}
	if o.live == nil || o.audio == nil || o.tools == nil {
		return ErrNilProvider
	}

	o.mu.Lock()
	if o.call != nil && !o.call.ended() {
		o.mu.Unlock()
		return ErrSessionActive
	}
	call := newCall(o, cfg)
	o.call = call
	o.mu.Unlock()

	return call.start(ctx)
}

// EndSession hangs up. It is safe to call at any time, any number of times.
func (o *Orchestrator) EndSession() {
	o.mu.RLock()
	call := o.call
	o.mu.RUnlock()
	if call == nil {
		return
	}
	call.teardown("hangup")
	call.wait()
	call.duration.Store(0)
}

// ToggleMute flips the mute flag and returns the new value.
func (o *Orchestrator) ToggleMute() bool {
	muted := !o.muted.Load()
	o.muted.Store(muted)

	o.mu.RLock()
	call := o.call
	o.mu.RUnlock()
	if call != nil {
		if mic := call.getMic(); mic != nil {
			mic.SetEnabled(!muted)
		}
	}
	o.logger.Info("microphone mute toggled", "muted", muted)
	return muted
}

func (o *Orchestrator) Muted() bool {
	return o.muted.Load()
}

func (o *Orchestrator) State() ConnectionState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Duration is how long the current call has been connected.
func (o *Orchestrator) Duration() time.Duration {
	o.mu.RLock()
	call := o.call
	o.mu.RUnlock()
	if call == nil || call.ended() {
		return 0
	}
	return time.Duration(call.duration.Load()) * time.Second
}

// Events returns the event channel
func (o *Orchestrator) Events() <-chan OrchestratorEvent {
	return o.events
}

// Close ends any call and closes the event channel.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.EndSession()
		o.cancel()
		close(o.events)
	})
}

// UpdateConfig updates the configuration used by the next call
func (o *Orchestrator) UpdateConfig(cfg Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.config = cfg
}

// GetConfig returns the current configuration
func (o *Orchestrator) GetConfig() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config
}

// GetProviders returns information about the current providers
func (o *Orchestrator) GetProviders() map[string]string {
	providers := map[string]string{}
	if o.live != nil {
		providers["live"] = o.live.Name()
	}
	return providers
}

func (o *Orchestrator) declarations() []ToolDeclaration {
	if o.tools == nil {
		return nil
	}
	return o.tools.Declarations()
}

func (o *Orchestrator) resetConversation() {
	o.mu.RLock()
	conv := o.conversation
	o.mu.RUnlock()
	if conv != nil {
		conv.Reset()
	}
}

func (o *Orchestrator) setState(callID string, s ConnectionState) {
	o.mu.Lock()
	if o.call != nil && o.call.ID != callID {
		o.mu.Unlock()
		return
	}
	o.state = s
	o.mu.Unlock()
	o.logger.Debug("call state changed", "callID", callID, "state", s)
	o.emit(callID, StateChanged, s)
}

// emit delivers control events; they are never dropped while the
// orchestrator is open.
func (o *Orchestrator) emit(callID string, eventType EventType, data interface{}) {
	event := OrchestratorEvent{Type: eventType, SessionID: callID, Data: data}
	select {
	case o.events <- event:
	case <-o.ctx.Done():
	}
}

// tryEmit is used from the capture thread and timers, which must not block.
func (o *Orchestrator) tryEmit(callID string, eventType EventType, data interface{}) {
	if o.ctx.Err() != nil {
		return
	}
	select {
	case o.events <- OrchestratorEvent{Type: eventType, SessionID: callID, Data: data}:
	default:
	}
}
