package telegram

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/whalespump/live-support/pkg/orchestrator"
)

const (
	SupportButtonText = "Live Support Center"

	WelcomeText = "Welcome to Whales Pump Support! 🐋\n\nTo verify your account, send screenshots, or chat with our AI agent, please click the **Live Support Center** button below."

	RedirectText = "⚠️ Please DO NOT message here.\n\nUse the **Live Support Center** button below to access support."

	startCommand = "/start"
)

// Update kinds reported to the observer.
const (
	KindStart   = "start"
	KindText    = "text"
	KindRelay   = "relay"
	KindIgnored = "ignored"
	KindError   = "error"
)

type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *ReplyKeyboardMarkup) error
}

// Relay turns a user's text into the agent's replies.
type Relay interface {
	Reply(ctx context.Context, text string) ([]string, error)
}

type Observer interface {
	WebhookUpdate(kind string)
}

// Webhook handles Telegram webhook updates.
type Webhook struct {
	sender    MessageSender
	webAppURL string
	relay     Relay
	observer  Observer
	logger    orchestrator.Logger
}

type WebhookOption func(*Webhook)

// WithRelay switches free text from the redirect notice to agent replies.
func WithRelay(relay Relay) WebhookOption {
	return func(w *Webhook) {
		w.relay = relay
	}
}

func WithObserver(observer Observer) WebhookOption {
	return func(w *Webhook) {
		w.observer = observer
	}
}

func WithLogger(logger orchestrator.Logger) WebhookOption {
	return func(w *Webhook) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWebhook(sender MessageSender, webAppURL string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		sender:    sender,
		webAppURL: webAppURL,
		logger:    &orchestrator.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register mounts the handler on path for every method; non-POST requests
// are answered with 405 by the handler itself.
func (w *Webhook) Register(router gin.IRoutes, path string) {
	router.Any(path, w.Handle)
}

func (w *Webhook) Handle(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var update Update
	if err := c.ShouldBindJSON(&update); err != nil {
		w.fail(c, "failed to decode update", err)
		return
	}
	if update.Message == nil {
		w.observe(KindIgnored)
		c.String(http.StatusOK, "OK")
		return
	}

	ctx := c.Request.Context()
	msg := update.Message
	keyboard := SupportKeyboard(w.webAppURL)

	switch {
	case strings.TrimSpace(msg.Text) == startCommand:
		if err := w.sender.SendMessage(ctx, msg.Chat.ID, WelcomeText, keyboard); err != nil {
			w.fail(c, "failed to send welcome", err)
			return
		}
		w.observe(KindStart)

	case msg.Text != "" && w.relay != nil:
		replies, err := w.relay.Reply(ctx, msg.Text)
		if err != nil {
			w.fail(c, "relay failed", err)
			return
		}
		for _, reply := range replies {
			if err := w.sender.SendMessage(ctx, msg.Chat.ID, reply, keyboard); err != nil {
				w.fail(c, "failed to send reply", err)
				return
			}
		}
		w.observe(KindRelay)

	case msg.Text != "":
		if err := w.sender.SendMessage(ctx, msg.Chat.ID, RedirectText, keyboard); err != nil {
			w.fail(c, "failed to send redirect", err)
			return
		}
		w.observe(KindText)

	default:
		w.observe(KindIgnored)
	}

	c.String(http.StatusOK, "OK")
}

func (w *Webhook) fail(c *gin.Context, msg string, err error) {
	w.logger.Error(msg, "error", err)
	w.observe(KindError)
	c.String(http.StatusInternalServerError, "Internal Server Error")
}

func (w *Webhook) observe(kind string) {
	if w.observer != nil {
		w.observer.WebhookUpdate(kind)
	}
}
