// ABOUTME: Minimal Telegram Bot API client for sending messages and polling updates
// ABOUTME: Injected base URL and HTTP client keep tests hermetic

package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrAPIError indicates the Bot API answered with ok=false.
var ErrAPIError = errors.New("telegram api error")

// User is the sender of a message.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Message is one inbound or outbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
}

// Update is one entry from getUpdates. UpdateID is monotonic per bot and
// doubles as the relay sequence number.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// apiResponse is the Bot API's uniform envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// Config contains construction options for the Client.
type Config struct {
	Token      string
	BaseURL    string // default https://api.telegram.org
	HTTPClient *http.Client
}

// Client talks to the Telegram Bot API.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewClient creates a Bot API client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		client:  cfg.HTTPClient,
	}
}

// call posts a JSON body to one Bot API method and decodes the envelope.
func (c *Client) call(ctx context.Context, method string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%w: %s (code %d)", ErrAPIError, envelope.Description, envelope.ErrorCode)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// SendMessage delivers text to a chat and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, &msg)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// GetUpdates long-polls for updates with update_id >= offset. The server
// holds the request open up to timeout seconds when no updates are ready.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}
