package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/whalespump/live-support/pkg/audio"
	"github.com/whalespump/live-support/pkg/orchestrator"
)

const livePath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// LiveClient opens Gemini Live duplex sessions over a websocket.
type LiveClient struct {
	apiKey string
	host   string
	scheme string
	logger orchestrator.Logger
}

type LiveOption func(*LiveClient)

// WithEndpoint points the client at another host, e.g. a local test server.
func WithEndpoint(scheme, host string) LiveOption {
	return func(c *LiveClient) {
		c.scheme = scheme
		c.host = host
	}
}

func WithLogger(logger orchestrator.Logger) LiveOption {
	return func(c *LiveClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewLiveClient(apiKey string, opts ...LiveOption) *LiveClient {
	c := &LiveClient{
		apiKey: apiKey,
		host:   "generativelanguage.googleapis.com",
		scheme: "wss",
		logger: &orchestrator.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LiveClient) Name() string {
	return "gemini-live"
}

// Connect dials the service and sends the setup message. The session is
// usable once deliver receives LiveOpened; events may arrive before Connect
// returns.
func (c *LiveClient) Connect(ctx context.Context, cfg orchestrator.LiveConfig, deliver func(orchestrator.LiveEvent)) (orchestrator.LiveSession, error) {
	u := url.URL{Scheme: c.scheme, Host: c.host, Path: livePath, RawQuery: "key=" + url.QueryEscape(c.apiKey)}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gemini live: %w", err)
	}
	conn.SetReadLimit(10 * 1024 * 1024)

	if err := wsjson.Write(ctx, conn, newSetup(cfg)); err != nil {
		conn.Close(websocket.StatusAbnormalClosure, "failed to write setup")
		return nil, fmt.Errorf("failed to send setup: %w", err)
	}

	rate := cfg.InputSampleRate
	if rate <= 0 {
		rate = audio.CaptureSampleRate
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &liveSession{
		conn:     conn,
		ctx:      sessCtx,
		cancel:   cancel,
		deliver:  deliver,
		logger:   c.logger,
		mimeType: "audio/pcm;rate=" + strconv.Itoa(rate),
	}
	go s.readLoop()

	c.logger.Info("gemini live connected", "model", cfg.Model, "tools", len(cfg.Tools))
	return s, nil
}

type liveSession struct {
	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	deliver  func(orchestrator.LiveEvent)
	logger   orchestrator.Logger
	mimeType string

	writeMu   sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (s *liveSession) SendClientContent(ctx context.Context, turns []orchestrator.Turn, turnComplete bool) error {
	msg := clientContentMessage{ClientContent: clientContent{TurnComplete: turnComplete}}
	for _, t := range turns {
		msg.ClientContent.Turns = append(msg.ClientContent.Turns, content{
			Role:  t.Role,
			Parts: []part{{Text: t.Text}},
		})
	}
	if err := s.write(ctx, msg); err != nil {
		return fmt.Errorf("failed to send client content: %w", err)
	}
	return nil
}

func (s *liveSession) SendRealtimeAudio(ctx context.Context, pcm []byte) error {
	msg := realtimeInputMessage{RealtimeInput: realtimeInput{
		MediaChunks: []inlineData{{MimeType: s.mimeType, Data: audio.EncodeBase64(pcm)}},
	}}
	if err := s.write(ctx, msg); err != nil {
		return fmt.Errorf("failed to send realtime audio: %w", err)
	}
	return nil
}

func (s *liveSession) SendToolResponse(ctx context.Context, responses []orchestrator.ToolResponse) error {
	msg := toolResponseMessage{}
	for _, r := range responses {
		msg.ToolResponse.FunctionResponses = append(msg.ToolResponse.FunctionResponses, functionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		})
	}
	if err := s.write(ctx, msg); err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}
	return nil
}

func (s *liveSession) write(ctx context.Context, v any) error {
	if s.closing.Load() {
		return orchestrator.ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsjson.Write(ctx, s.conn, v)
}

// Close ends the session. No events are delivered after Close.
func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.closeErr = s.conn.Close(websocket.StatusNormalClosure, "")
		s.cancel()
	})
	return s.closeErr
}

func (s *liveSession) readLoop() {
	for {
		_, payload, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.closing.Load() {
				return
			}
			if status := websocket.CloseStatus(err); status != -1 {
				s.deliver(orchestrator.LiveEvent{Type: orchestrator.LiveClosed, Reason: status.String()})
				return
			}
			s.deliver(orchestrator.LiveEvent{Type: orchestrator.LiveErrored, Err: fmt.Errorf("failed to read from gemini live: %w", err)})
			return
		}
		s.dispatch(payload)
	}
}

// dispatch turns one server message into typed events. A message can carry
// several signals; they are delivered in the order a client must act on them.
func (s *liveSession) dispatch(payload []byte) {
	var msg serverMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("ignoring malformed live message", "error", err, "size", len(payload))
		return
	}

	if msg.SetupComplete != nil {
		s.emit(orchestrator.LiveEvent{Type: orchestrator.LiveOpened})
	}

	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		calls := make([]orchestrator.ToolCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			calls = append(calls, orchestrator.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		s.emit(orchestrator.LiveEvent{Type: orchestrator.LiveToolCall, Calls: calls})
	}

	if msg.ToolCallCancellation != nil {
		s.logger.Debug("tool calls cancelled by server", "ids", msg.ToolCallCancellation.IDs)
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			s.emit(orchestrator.LiveEvent{Type: orchestrator.LiveInterrupted})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil || p.InlineData.Data == "" {
					continue
				}
				pcm, err := audio.DecodeBase64(p.InlineData.Data)
				if err != nil {
					s.logger.Warn("skipping undecodable audio chunk", "error", err)
					continue
				}
				s.emit(orchestrator.LiveEvent{Type: orchestrator.LiveAudioChunk, Audio: pcm})
			}
		}
		if sc.TurnComplete {
			s.emit(orchestrator.LiveEvent{Type: orchestrator.LiveTurnComplete})
		}
	}

	if msg.GoAway != nil {
		s.logger.Warn("gemini live is going away", "timeLeft", msg.GoAway.TimeLeft)
	}
}

func (s *liveSession) emit(ev orchestrator.LiveEvent) {
	if s.closing.Load() {
		return
	}
	s.deliver(ev)
}
