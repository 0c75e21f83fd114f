package telegram

import (
	"context"
	"sync"

	"github.com/whalespump/live-support/pkg/orchestrator"
	"github.com/whalespump/live-support/pkg/tools"
)

// ConversationRelay answers each update with a fresh text chat. Nothing is
// kept between updates.
type ConversationRelay struct {
	chat   orchestrator.ChatProvider
	config orchestrator.Config
	rules  tools.Config
	logger orchestrator.Logger
}

func NewConversationRelay(chat orchestrator.ChatProvider, config orchestrator.Config, rules tools.Config, logger orchestrator.Logger) *ConversationRelay {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &ConversationRelay{chat: chat, config: config, rules: rules, logger: logger}
}

// Reply sends text to the agent and returns every agent message the turn
// produced, including contact cards and error notices.
func (r *ConversationRelay) Reply(ctx context.Context, text string) ([]string, error) {
	transcript := orchestrator.NewTranscript(r.config.MaxTranscriptSize)

	var (
		mu      sync.Mutex
		replies []string
	)
	transcript.Subscribe(func(m orchestrator.Message) {
		if m.Sender != orchestrator.SenderAgent || m.Text == "" {
			return
		}
		mu.Lock()
		replies = append(replies, m.Text)
		mu.Unlock()
	})

	dispatcher := tools.New(r.rules, transcript)
	conversation := orchestrator.NewConversation(r.chat, dispatcher, r.config, transcript, r.logger)

	_, err := conversation.Send(ctx, text)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		// Chat failures leave a notice in the transcript for the user.
		if len(replies) == 0 {
			return nil, err
		}
		r.logger.Warn("relay turn failed", "error", err)
	}
	return replies, nil
}
