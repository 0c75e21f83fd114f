// Package telegram is the bot-side relay that points chat users to the
// live support web app.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultAPIURL = "https://api.telegram.org"

// ErrAPI is returned when the Bot API answers with ok=false
var ErrAPI = errors.New("telegram api error")

// Client calls the Telegram Bot API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithAPIURL points the client at another Bot API server.
func WithAPIURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:      token,
		baseURL:    DefaultAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage posts text to chatID, with an optional reply keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *ReplyKeyboardMarkup) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ReplyMarkup: markup})
	if err != nil {
		return fmt.Errorf("failed to encode sendMessage: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}

	var result apiResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("%w: status %d", ErrAPI, resp.StatusCode)
	}
	if !result.OK {
		return fmt.Errorf("%w: %d %s", ErrAPI, result.ErrorCode, result.Description)
	}
	return nil
}
