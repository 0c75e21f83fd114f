package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderAgent Sender = "agent"
	SenderUser  Sender = "user"
)

// Message is one entry of the chat transcript shown to the user.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	Time      time.Time `json:"time"`
}

// Transcript is the chat history owned by the UI. Tools and the text chat
// append to it; renderers subscribe to it.
type Transcript struct {
	mu          sync.RWMutex
	messages    []Message
	MaxMessages int
	listeners   []func(Message)
}

func NewTranscript(maxMessages int) *Transcript {
	if maxMessages <= 0 {
		maxMessages = DefaultConfig().MaxTranscriptSize
	}
	return &Transcript{
		messages:    []Message{},
		MaxMessages: maxMessages,
	}
}

// Add appends a text message from sender.
func (t *Transcript) Add(sender Sender, text string) Message {
	return t.Append(Message{Sender: sender, Text: text})
}

// AddMedia appends an attachment entry (screenshot or voice note).
func (t *Transcript) AddMedia(sender Sender, mediaType, caption string) Message {
	return t.Append(Message{Sender: sender, Text: caption, MediaType: mediaType})
}

func (t *Transcript) Append(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}

	t.mu.Lock()
	t.messages = append(t.messages, m)
	if len(t.messages) > t.MaxMessages {
		t.messages = t.messages[len(t.messages)-t.MaxMessages:]
	}
	listeners := make([]func(Message), len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(m)
	}
	return m
}

// Subscribe registers fn to be called after every append.
func (t *Transcript) Subscribe(fn func(Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = []Message{}
}
