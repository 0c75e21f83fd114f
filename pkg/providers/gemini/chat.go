package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/whalespump/live-support/pkg/orchestrator"
	"google.golang.org/genai"
)

// ChatClient runs the text chat against generateContent through the genai SDK.
type ChatClient struct {
	client *genai.Client
}

type ChatOption func(*genai.ClientConfig)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) ChatOption {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = baseURL
	}
}

func NewChatClient(ctx context.Context, apiKey string, opts ...ChatOption) (*ChatClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &ChatClient{client: client}, nil
}

func (c *ChatClient) Name() string {
	return "gemini-chat"
}

// NewChat starts a chat that keeps its own history on the client side.
func (c *ChatClient) NewChat(ctx context.Context, cfg orchestrator.ChatConfig) (orchestrator.ChatSession, error) {
	gc := &genai.GenerateContentConfig{}
	if cfg.SystemInstruction != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	if len(cfg.Tools) > 0 {
		gc.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(cfg.Tools)}}
	}

	chat, err := c.client.Chats.Create(ctx, cfg.Model, gc, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return &chatSession{chat: chat}, nil
}

type chatSession struct {
	chat *genai.Chat
}

func (s *chatSession) Send(ctx context.Context, parts []orchestrator.ChatPart) (*orchestrator.ChatReply, error) {
	resp, err := s.chat.SendMessage(ctx, toParts(parts)...)
	if err != nil {
		return nil, err
	}

	reply := &orchestrator.ChatReply{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		reply.ToolCalls = append(reply.ToolCalls, orchestrator.ToolCall{
			ID:   fc.ID,
			Name: fc.Name,
			Args: fc.Args,
		})
	}
	return reply, nil
}

func toParts(parts []orchestrator.ChatPart) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.FunctionResponse != nil:
			out = append(out, genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       p.FunctionResponse.ID,
				Name:     p.FunctionResponse.Name,
				Response: p.FunctionResponse.Response,
			}})
		case len(p.Data) > 0:
			out = append(out, genai.Part{InlineData: &genai.Blob{MIMEType: p.MimeType, Data: p.Data}})
		case p.Text != "":
			out = append(out, genai.Part{Text: p.Text})
		}
	}
	return out
}

func toFunctionDeclarations(decls []orchestrator.ToolDeclaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		out = append(out, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  toSchema(d.Parameters),
		})
	}
	return out
}

func toSchema(s *orchestrator.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toSchema(prop)
		}
	}
	return out
}
