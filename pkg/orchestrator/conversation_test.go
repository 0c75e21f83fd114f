package orchestrator

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockChatProvider struct {
	mu        sync.Mutex
	replies   []*ChatReply
	errs      []error
	created   int
	createErr error
	sent      [][]ChatPart
	config    ChatConfig
}

func (m *MockChatProvider) NewChat(ctx context.Context, cfg ChatConfig) (ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created++
	m.config = cfg
	return &mockChatSession{provider: m}, nil
}

func (m *MockChatProvider) Name() string {
	return "MockChat"
}

type mockChatSession struct {
	provider *MockChatProvider
}

func (s *mockChatSession) Send(ctx context.Context, parts []ChatPart) (*ChatReply, error) {
	m := s.provider
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, parts)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(m.replies) == 0 {
		return &ChatReply{Text: "ok"}, nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func newTestConversation(chat *MockChatProvider, mutate func(*Config)) *Conversation {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.SystemInstruction = "be helpful"
	if mutate != nil {
		mutate(&cfg)
	}
	return NewConversation(chat, &MockDispatcher{}, cfg, NewTranscript(50), nil)
}

func TestConversation_TextRoundTrip(t *testing.T) {
	chat := &MockChatProvider{replies: []*ChatReply{{Text: "Welcome to Whales Pump"}}}
	conv := newTestConversation(chat, nil)

	reply, err := conv.Send(context.Background(), "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "Welcome to Whales Pump", reply)

	msgs := conv.Transcript().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, SenderUser, msgs[0].Sender)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, SenderAgent, msgs[1].Sender)

	assert.Equal(t, "be helpful", chat.config.SystemInstruction)
	assert.Equal(t, DefaultConfig().ChatModel, chat.config.Model)
	assert.Len(t, chat.config.Tools, 1)
}

func TestConversation_BlankInputIgnored(t *testing.T) {
	chat := &MockChatProvider{}
	conv := newTestConversation(chat, nil)

	reply, err := conv.Send(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.Zero(t, chat.created)
	assert.Zero(t, conv.Transcript().Len())
}

func TestConversation_ResolvesToolCalls(t *testing.T) {
	chat := &MockChatProvider{replies: []*ChatReply{
		{ToolCalls: []ToolCall{{ID: "1", Name: "check_eligibility", Args: map[string]any{"capital": 100.0}}}},
		{Text: "You qualify for VIP."},
	}}
	conv := newTestConversation(chat, nil)

	reply, err := conv.Send(context.Background(), "I have $100")
	require.NoError(t, err)
	assert.Equal(t, "You qualify for VIP.", reply)

	require.Len(t, chat.sent, 2)
	require.Len(t, chat.sent[1], 1)
	fr := chat.sent[1][0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "1", fr.ID)
	assert.Equal(t, false, fr.Response["result"].(map[string]any)["eligible"])
}

func TestConversation_TooManyToolRounds(t *testing.T) {
	loop := &ChatReply{ToolCalls: []ToolCall{{ID: "1", Name: "check_eligibility"}}}
	chat := &MockChatProvider{replies: []*ChatReply{loop, loop, loop, loop}}
	conv := newTestConversation(chat, func(c *Config) { c.MaxToolRounds = 2 })

	_, err := conv.Send(context.Background(), "loop")
	assert.ErrorIs(t, err, ErrChatFailed)
	assert.ErrorIs(t, err, ErrTooManyToolRounds)

	msgs := conv.Transcript().Messages()
	assert.Equal(t, "Sorry, something went wrong.", msgs[len(msgs)-1].Text)
}

func TestConversation_MissingKey(t *testing.T) {
	chat := &MockChatProvider{}
	conv := newTestConversation(chat, func(c *Config) { c.APIKey = "" })

	_, err := conv.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Zero(t, chat.created)

	msgs := conv.Transcript().Messages()
	assert.Equal(t, "API Key is missing or invalid. Please check your settings.", msgs[len(msgs)-1].Text)
}

func TestConversation_NetworkErrorDropsChat(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	chat := &MockChatProvider{errs: []error{netErr}}
	conv := newTestConversation(chat, nil)

	_, err := conv.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrChatFailed)

	msgs := conv.Transcript().Messages()
	assert.Equal(t, "Network Error: Please check your internet connection. Retrying might help.", msgs[len(msgs)-1].Text)

	_, err = conv.Send(context.Background(), "hello again")
	require.NoError(t, err)
	assert.Equal(t, 2, chat.created)
}

func TestConversation_OtherErrorKeepsChat(t *testing.T) {
	chat := &MockChatProvider{errs: []error{errors.New("quota exceeded")}}
	conv := newTestConversation(chat, nil)

	_, err := conv.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrChatFailed)

	_, err = conv.Send(context.Background(), "hello again")
	require.NoError(t, err)
	assert.Equal(t, 1, chat.created)
}

func TestConversation_SendMedia(t *testing.T) {
	chat := &MockChatProvider{replies: []*ChatReply{{Text: "Balance verified."}}}
	conv := newTestConversation(chat, nil)

	reply, err := conv.SendMedia(context.Background(), "my balance", []byte{0x89, 0x50}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "Balance verified.", reply)

	require.Len(t, chat.sent, 1)
	parts := chat.sent[0]
	require.Len(t, parts, 2)
	assert.Equal(t, "image/png", parts[0].MimeType)
	assert.Equal(t, "my balance", parts[1].Text)

	msgs := conv.Transcript().Messages()
	assert.Equal(t, "image/png", msgs[0].MediaType)
}
