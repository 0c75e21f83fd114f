package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const (
	chatMissingKeyMessage = "API Key is missing or invalid. Please check your settings."
	chatNetworkMessage    = "Network Error: Please check your internet connection. Retrying might help."
	chatGenericMessage    = "Sorry, something went wrong."
)

// Conversation is the text chat with the agent. It shares the tool set and
// instruction with live calls and writes every turn to the transcript.
type Conversation struct {
	chat       ChatProvider
	tools      ToolDispatcher
	config     Config
	transcript *Transcript
	logger     Logger
	runner     *toolRunner

	// serializes turns so tool rounds of one message never interleave with the next
	turnMu sync.Mutex

	mu      sync.Mutex
	session ChatSession
}

func NewConversation(chat ChatProvider, tools ToolDispatcher, config Config, transcript *Transcript, logger Logger) *Conversation {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if transcript == nil {
		transcript = NewTranscript(config.MaxTranscriptSize)
	}
	return &Conversation{
		chat:       chat,
		tools:      tools,
		config:     config,
		transcript: transcript,
		logger:     logger,
		runner: &toolRunner{
			tools:   tools,
			timeout: config.ToolTimeout,
			logger:  logger,
		},
	}
}

func (c *Conversation) Transcript() *Transcript {
	return c.transcript
}

// Send posts a user text message and waits for the agent's answer.
func (c *Conversation) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	c.transcript.Add(SenderUser, text)
	return c.process(ctx, []ChatPart{{Text: text}})
}

// SendMedia posts an attachment (screenshot or voice note) with an optional
// caption.
func (c *Conversation) SendMedia(ctx context.Context, caption string, data []byte, mimeType string) (string, error) {
	c.transcript.AddMedia(SenderUser, mimeType, caption)

	parts := []ChatPart{{Data: data, MimeType: mimeType}}
	if caption != "" {
		parts = append(parts, ChatPart{Text: caption})
	}
	return c.process(ctx, parts)
}

// Reset drops the cached chat handle; the next message starts a fresh chat.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

func (c *Conversation) process(ctx context.Context, parts []ChatPart) (string, error) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	if strings.TrimSpace(c.config.APIKey) == "" {
		c.transcript.Add(SenderAgent, chatMissingKeyMessage)
		return "", ErrMissingCredential
	}

	session, err := c.getSession(ctx)
	if err != nil {
		return "", c.failed(err)
	}

	reply, err := session.Send(ctx, parts)
	if err != nil {
		return "", c.failed(err)
	}

	rounds := 0
	for len(reply.ToolCalls) > 0 {
		rounds++
		if rounds > c.maxToolRounds() {
			return "", c.failed(ErrTooManyToolRounds)
		}

		responses := c.runner.runAll(ctx, reply.ToolCalls)
		next := make([]ChatPart, 0, len(responses))
		for i := range responses {
			next = append(next, ChatPart{FunctionResponse: &responses[i]})
		}

		c.logger.Debug("sending tool responses", "count", len(next), "round", rounds)
		reply, err = session.Send(ctx, next)
		if err != nil {
			return "", c.failed(err)
		}
	}

	if reply.Text != "" {
		c.transcript.Add(SenderAgent, reply.Text)
	}
	return reply.Text, nil
}

func (c *Conversation) getSession(ctx context.Context) (ChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}
	if c.chat == nil {
		return nil, ErrNilProvider
	}

	var decls []ToolDeclaration
	if c.tools != nil {
		decls = c.tools.Declarations()
	}
	session, err := c.chat.NewChat(ctx, ChatConfig{
		Model:             c.config.ChatModel,
		SystemInstruction: c.config.SystemInstruction,
		Tools:             decls,
	})
	if err != nil {
		return nil, err
	}
	c.session = session
	return session, nil
}

func (c *Conversation) failed(err error) error {
	c.logger.Error("chat turn failed", "error", err)
	if isNetworkError(err) {
		c.transcript.Add(SenderAgent, chatNetworkMessage)
		c.Reset()
	} else {
		c.transcript.Add(SenderAgent, chatGenericMessage)
	}
	return fmt.Errorf("%w: %w", ErrChatFailed, err)
}

func (c *Conversation) maxToolRounds() int {
	if c.config.MaxToolRounds > 0 {
		return c.config.MaxToolRounds
	}
	return DefaultConfig().MaxToolRounds
}
