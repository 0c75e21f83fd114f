package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/whalespump/live-support/pkg/audio"
)

// orderLog records cross-component side effects in the order they happened.
type orderLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *orderLog) add(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *orderLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

func indexOf(entries []string, entry string) int {
	for i, e := range entries {
		if e == entry {
			return i
		}
	}
	return -1
}

type MockLiveSession struct {
	mu        sync.Mutex
	log       *orderLog
	turns     [][]Turn
	audio     [][]byte
	responses []ToolResponse
	closed    int
	audioErr  error
}

func (m *MockLiveSession) SendClientContent(ctx context.Context, turns []Turn, turnComplete bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns)
	m.log.add("client_content")
	return nil
}

func (m *MockLiveSession) SendRealtimeAudio(ctx context.Context, pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audioErr != nil {
		return m.audioErr
	}
	m.audio = append(m.audio, pcm)
	return nil
}

func (m *MockLiveSession) SendToolResponse(ctx context.Context, responses []ToolResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
	m.log.add("tool_response")
	return nil
}

func (m *MockLiveSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *MockLiveSession) turnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

func (m *MockLiveSession) firstTurn() Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turns[0][0]
}

func (m *MockLiveSession) audioCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.audio)
}

func (m *MockLiveSession) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockLiveSession) toolResponses() []ToolResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ToolResponse, len(m.responses))
	copy(out, m.responses)
	return out
}

type MockLiveProvider struct {
	mu         sync.Mutex
	session    *MockLiveSession
	connectErr error
	gate       chan struct{}
	connects   int
	lastConfig LiveConfig
	deliver    func(LiveEvent)
}

func (m *MockLiveProvider) Connect(ctx context.Context, cfg LiveConfig, deliver func(LiveEvent)) (LiveSession, error) {
	m.mu.Lock()
	m.connects++
	m.lastConfig = cfg
	m.deliver = deliver
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return m.session, nil
}

func (m *MockLiveProvider) Name() string {
	return "MockLive"
}

func (m *MockLiveProvider) config() LiveConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConfig
}

func (m *MockLiveProvider) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// push feeds a remote event as if the transport had received it.
func (m *MockLiveProvider) push(t *testing.T, ev LiveEvent) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		m.mu.Lock()
		deliver := m.deliver
		m.mu.Unlock()
		if deliver != nil {
			deliver(ev)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("live provider was never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type MockMicrophone struct {
	mu           sync.Mutex
	enabled      bool
	onFrame      func([]float32)
	connectErr   error
	stopped      int
	disconnected int
	onEnable     func()
}

func (m *MockMicrophone) Connect(frameSize int, onFrame func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.onFrame = onFrame
	return nil
}

func (m *MockMicrophone) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	hook := m.onEnable
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (m *MockMicrophone) StopTracks() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
	return nil
}

func (m *MockMicrophone) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected++
	return nil
}

func (m *MockMicrophone) isEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// frame pushes one capture frame through the wired callback.
func (m *MockMicrophone) frame(samples []float32) bool {
	m.mu.Lock()
	fn := m.onFrame
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(samples)
	return true
}

type MockCaptureContext struct {
	mu      sync.Mutex
	mic     *MockMicrophone
	micErr  error
	resumed int
	closed  int
}

func (m *MockCaptureContext) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumed++
	return nil
}

func (m *MockCaptureContext) OpenMicrophone(ctx context.Context) (Microphone, error) {
	if m.micErr != nil {
		return nil, m.micErr
	}
	return m.mic, nil
}

func (m *MockCaptureContext) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

type MockHandle struct {
	mu      sync.Mutex
	start   float64
	onEnded func()
	stopped int
	done    bool
}

func (h *MockHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return errors.New("already finished")
	}
	h.stopped++
	return nil
}

// finish simulates natural completion.
func (h *MockHandle) finish() {
	h.mu.Lock()
	h.done = true
	fn := h.onEnded
	h.mu.Unlock()
	fn()
}

type MockPlaybackContext struct {
	mu        sync.Mutex
	log       *orderLog
	now       float64
	suspended bool
	resumed   int
	handles   []*MockHandle
	startErr  error
	closed    int
	// onStart runs before Start returns, outside the mock's lock.
	onStart func(onEnded func())
}

func (m *MockPlaybackContext) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockPlaybackContext) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

func (m *MockPlaybackContext) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = false
	m.resumed++
	return nil
}

func (m *MockPlaybackContext) Start(buf *audio.Buffer, at float64, onEnded func()) (PlaybackHandle, error) {
	m.mu.Lock()
	if m.startErr != nil {
		m.mu.Unlock()
		return nil, m.startErr
	}
	h := &MockHandle{start: at, onEnded: onEnded}
	m.handles = append(m.handles, h)
	m.log.add("play")
	hook := m.onStart
	m.mu.Unlock()

	if hook != nil {
		hook(h.finish)
	}
	return h, nil
}

func (m *MockPlaybackContext) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *MockPlaybackContext) setNow(now float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MockPlaybackContext) starts() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.handles))
	for i, h := range m.handles {
		out[i] = h.start
	}
	return out
}

func (m *MockPlaybackContext) handleList() []*MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockHandle, len(m.handles))
	copy(out, m.handles)
	return out
}

type MockAudioBackend struct {
	mu          sync.Mutex
	capture     *MockCaptureContext
	playback    *MockPlaybackContext
	captureErr  error
	playbackErr error
	captures    int
	playbacks   int
}

func (m *MockAudioBackend) NewCaptureContext(ctx context.Context, sampleRate int) (CaptureContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures++
	if m.captureErr != nil {
		return nil, m.captureErr
	}
	return m.capture, nil
}

func (m *MockAudioBackend) NewPlaybackContext(ctx context.Context, sampleRate int) (PlaybackContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbacks++
	if m.playbackErr != nil {
		return nil, m.playbackErr
	}
	return m.playback, nil
}

func (m *MockAudioBackend) acquisitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures + m.playbacks
}

// MockDispatcher approves anyone with at least 5000 in capital.
type MockDispatcher struct {
	mu    sync.Mutex
	log   *orderLog
	calls []ToolCall
	delay time.Duration
}

func (m *MockDispatcher) Declarations() []ToolDeclaration {
	return []ToolDeclaration{{
		Name:        "check_eligibility",
		Description: "Checks eligibility",
		Parameters: &Schema{
			Type:       "OBJECT",
			Properties: map[string]*Schema{"capital": {Type: "NUMBER"}},
			Required:   []string{"capital"},
		},
	}}
}

func (m *MockDispatcher) Dispatch(ctx context.Context, call ToolCall) ToolResult {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	m.log.add("dispatch:" + call.Name)

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ToolResult{"error": ctx.Err().Error()}
		}
	}

	switch call.Name {
	case "check_eligibility":
		capital, _ := call.Args["capital"].(float64)
		return ToolResult{"eligible": capital >= 5000}
	default:
		return ToolResult{"error": "Unknown tool"}
	}
}

type MockRecorder struct {
	mu       sync.Mutex
	started  int
	outcomes []string
	bytes    map[string]int
	tools    map[string]int
}

func (m *MockRecorder) CallStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *MockRecorder) CallEnded(d time.Duration, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *MockRecorder) AudioBytes(direction string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bytes == nil {
		m.bytes = map[string]int{}
	}
	m.bytes[direction] += n
}

func (m *MockRecorder) ToolInvoked(name string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tools == nil {
		m.tools = map[string]int{}
	}
	m.tools[name]++
}

func (m *MockRecorder) outcomeList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}

// callRig wires an orchestrator to a full set of mocks.
type callRig struct {
	log      *orderLog
	live     *MockLiveProvider
	session  *MockLiveSession
	mic      *MockMicrophone
	capture  *MockCaptureContext
	playback *MockPlaybackContext
	backend  *MockAudioBackend
	tools    *MockDispatcher
	recorder *MockRecorder
	orch     *Orchestrator
}

func newCallRig(t *testing.T, mutate func(*Config)) *callRig {
	t.Helper()
	log := &orderLog{}
	session := &MockLiveSession{log: log}
	mic := &MockMicrophone{}
	capture := &MockCaptureContext{mic: mic}
	playback := &MockPlaybackContext{log: log}
	r := &callRig{
		log:      log,
		live:     &MockLiveProvider{session: session},
		session:  session,
		mic:      mic,
		capture:  capture,
		playback: playback,
		backend:  &MockAudioBackend{capture: capture, playback: playback},
		tools:    &MockDispatcher{log: log},
		recorder: &MockRecorder{},
	}

	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.SystemInstruction = "be helpful"
	if mutate != nil {
		mutate(&cfg)
	}
	r.orch = New(r.live, r.tools, r.backend, cfg)
	r.orch.SetRecorder(r.recorder)
	t.Cleanup(r.orch.Close)
	return r
}

// waitForEvent drains events until one of type want arrives.
func waitForEvent(t *testing.T, o *Orchestrator, want EventType) OrchestratorEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-o.Events():
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// drainEvents returns everything currently buffered.
func drainEvents(o *Orchestrator) []OrchestratorEvent {
	var out []OrchestratorEvent
	for {
		select {
		case ev := <-o.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

// pcmOfDuration returns silent 16-bit mono PCM lasting seconds at the playback rate.
func pcmOfDuration(seconds float64) []byte {
	frames := int(seconds * float64(audio.PlaybackSampleRate))
	return make([]byte, frames*2)
}

// hookLogger runs onError when a matching error is logged.
type hookLogger struct {
	NoOpLogger
	match   string
	onError func()
}

func (l *hookLogger) Error(msg string, args ...interface{}) {
	if msg == l.match && l.onError != nil {
		l.onError()
	}
}
