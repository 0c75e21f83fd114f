package orchestrator

import (
	"context"
	"time"

	"github.com/whalespump/live-support/pkg/audio"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// ConnectionState is the lifecycle state of a live call.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	// StateError is transient; teardown always follows it.
	StateError ConnectionState = "ERROR"
)

func (s ConnectionState) String() string {
	return string(s)
}

type EventType string

const (
	StateChanged  EventType = "STATE_CHANGED"
	AgentSpeaking EventType = "AGENT_SPEAKING"
	AgentSilent   EventType = "AGENT_SILENT"
	UserSpeaking  EventType = "USER_SPEAKING"
	UserStopped   EventType = "USER_STOPPED"
	Interrupted   EventType = "INTERRUPTED"
	CallDuration  EventType = "CALL_DURATION"
	ToolInvoked   EventType = "TOOL_INVOKED"
	// ErrorEvent carries the user-visible message only (payload is string)
	ErrorEvent EventType = "ERROR"
)

type OrchestratorEvent struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

// LiveEventType enumerates what the remote session can tell us.
type LiveEventType string

const (
	LiveOpened       LiveEventType = "OPENED"
	LiveToolCall     LiveEventType = "TOOL_CALL"
	LiveAudioChunk   LiveEventType = "AUDIO_CHUNK"
	LiveInterrupted  LiveEventType = "INTERRUPTED"
	LiveTurnComplete LiveEventType = "TURN_COMPLETE"
	LiveClosed       LiveEventType = "CLOSED"
	LiveErrored      LiveEventType = "ERRORED"
)

// LiveEvent is one typed event from the remote session. Only the fields
// relevant to Type are set.
type LiveEvent struct {
	Type   LiveEventType
	Calls  []ToolCall
	Audio  []byte
	Reason string
	Err    error
}

// Schema is the subset of the OpenAPI schema used by function declarations.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type ToolDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// ToolCall is a pending function call requested by the remote agent.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the structured value a handler returns. Unknown tools
// produce {"error": "..."} instead of failing.
type ToolResult map[string]any

// ToolResponse is a ToolResult correlated back to its call.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

type ToolDispatcher interface {
	Declarations() []ToolDeclaration
	Dispatch(ctx context.Context, call ToolCall) ToolResult
}

// Turn is a synthetic conversation turn sent as client content.
type Turn struct {
	Role string
	Text string
}

// LiveConfig is fixed for the lifetime of one remote session.
type LiveConfig struct {
	Model             string
	SystemInstruction string
	Voice             string
	Tools             []ToolDeclaration
	InputSampleRate   int
}

// LiveSession is the remote handle of a connected duplex session.
type LiveSession interface {
	SendClientContent(ctx context.Context, turns []Turn, turnComplete bool) error
	SendRealtimeAudio(ctx context.Context, pcm []byte) error
	SendToolResponse(ctx context.Context, responses []ToolResponse) error
	Close() error
}

// LiveProvider opens duplex sessions. Events may be delivered before
// Connect returns; consumers must not assume the handle is available yet.
type LiveProvider interface {
	Connect(ctx context.Context, cfg LiveConfig, deliver func(LiveEvent)) (LiveSession, error)
	Name() string
}

// ChatPart is one part of a text chat message.
type ChatPart struct {
	Text             string
	Data             []byte
	MimeType         string
	FunctionResponse *ToolResponse
}

type ChatReply struct {
	Text      string
	ToolCalls []ToolCall
}

type ChatConfig struct {
	Model             string
	SystemInstruction string
	Tools             []ToolDeclaration
}

type ChatSession interface {
	Send(ctx context.Context, parts []ChatPart) (*ChatReply, error)
}

type ChatProvider interface {
	NewChat(ctx context.Context, cfg ChatConfig) (ChatSession, error)
	Name() string
}

// AudioBackend creates device contexts. Each call gets fresh contexts.
type AudioBackend interface {
	NewCaptureContext(ctx context.Context, sampleRate int) (CaptureContext, error)
	NewPlaybackContext(ctx context.Context, sampleRate int) (PlaybackContext, error)
}

type CaptureContext interface {
	Resume(ctx context.Context) error
	// OpenMicrophone acquires the input device. Denial maps to ErrPermissionDenied.
	OpenMicrophone(ctx context.Context) (Microphone, error)
	Close() error
}

type Microphone interface {
	// Connect wires the per-frame processing callback.
	Connect(frameSize int, onFrame func(frame []float32)) error
	SetEnabled(enabled bool)
	StopTracks() error
	// Disconnect detaches the source and processing nodes.
	Disconnect() error
}

type PlaybackContext interface {
	CurrentTime() float64
	Suspended() bool
	Resume(ctx context.Context) error
	Start(buf *audio.Buffer, at float64, onEnded func()) (PlaybackHandle, error)
	Close() error
}

type PlaybackHandle interface {
	// Stop must be a no-op on a handle that already finished.
	Stop() error
}

// Recorder receives call metrics.
type Recorder interface {
	CallStarted()
	CallEnded(duration time.Duration, outcome string)
	AudioBytes(direction string, n int)
	ToolInvoked(name string, ok bool)
}

type NoOpRecorder struct{}

func (NoOpRecorder) CallStarted()                    {}
func (NoOpRecorder) CallEnded(time.Duration, string) {}
func (NoOpRecorder) AudioBytes(string, int)          {}
func (NoOpRecorder) ToolInvoked(string, bool)        {}

type VADProvider interface {
	Process(chunk []byte) (*VADEvent, error)
	Reset()
	Clone() VADProvider
	Name() string
}

type VADEventType string

const (
	VADSpeechStart VADEventType = "SPEECH_START"
	VADSpeechEnd   VADEventType = "SPEECH_END"
	VADSilence     VADEventType = "SILENCE"
)

type VADEvent struct {
	Type      VADEventType
	Timestamp int64
}

type Config struct {
	APIKey             string
	LiveModel          string
	ChatModel          string
	Voice              string
	SystemInstruction  string
	GreetingText       string
	CaptureSampleRate  int
	PlaybackSampleRate int
	FrameSize          int
	// Outbound frames buffered while the handshake is pending.
	OutboundQueue     int
	HandshakeTimeout  time.Duration
	ToolTimeout       time.Duration
	MaxToolRounds     int
	MaxTranscriptSize int
	VADThreshold      float64
	VADSilence        time.Duration
}

func DefaultConfig() Config {
	return Config{
		LiveModel:          "gemini-2.5-flash-native-audio-preview-09-2025",
		ChatModel:          "gemini-2.5-flash",
		Voice:              "Aoede",
		GreetingText:       "Hello",
		CaptureSampleRate:  audio.CaptureSampleRate,
		PlaybackSampleRate: audio.PlaybackSampleRate,
		FrameSize:          audio.DefaultFrameSize,
		OutboundQueue:      64,
		HandshakeTimeout:   15 * time.Second,
		ToolTimeout:        10 * time.Second,
		MaxToolRounds:      8,
		MaxTranscriptSize:  200,
		VADThreshold:       0.02,
		VADSilence:         500 * time.Millisecond,
	}
}
