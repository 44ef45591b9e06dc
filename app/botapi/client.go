// Package botapi is the HTTP client for the bot-gateway surface: reading
// recent channel messages with elevated access and sending text or media to
// destination channels.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const requestTimeout = 15 * time.Second

type Message struct {
	ID        int64     `json:"message_id"`
	Text      string    `json:"text"`
	Caption   string    `json:"caption"`
	MediaURLs []string  `json:"media_urls"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageRef struct {
	ID int64 `json:"message_id"`
}

// APIError is a non-2xx response from the gateway. Validation errors
// (malformed content, bad destination) are distinguished from transport and
// permission failures so the dispatcher can record them differently.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Description)
}

// IsValidationError reports whether the gateway rejected the request content
// itself, as opposed to an auth/permission or transport problem.
func (e *APIError) IsValidationError() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

func (e *APIError) IsPermissionError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

func NewClient(baseURL, token, userAgent string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// GetRecentMessages returns the most recent messages of a source channel,
// oldest first.
func (c *Client) GetRecentMessages(ctx context.Context, channelID string) ([]Message, error) {
	var result struct {
		Messages []Message `json:"messages"`
	}

	endpoint := fmt.Sprintf("%s/bot%s/getChannelMessages?channel_id=%s",
		c.baseURL, c.token, url.QueryEscape(channelID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}

	return result.Messages, nil
}

func (c *Client) SendText(ctx context.Context, destination, text string) (*MessageRef, error) {
	payload := map[string]any{
		"chat_id": destination,
		"text":    text,
	}

	var ref MessageRef
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &ref); err != nil {
		return nil, err
	}

	return &ref, nil
}

func (c *Client) SendMedia(ctx context.Context, destination, mediaURL, caption string) (*MessageRef, error) {
	payload := map[string]any{
		"chat_id": destination,
		"media":   mediaURL,
		"caption": caption,
	}

	var ref MessageRef
	endpoint := fmt.Sprintf("%s/bot%s/sendMedia", c.baseURL, c.token)
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &ref); err != nil {
		return nil, err
	}

	return &ref, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Description string `json:"description"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Description != "" {
			apiErr.Description = errBody.Description
		} else {
			apiErr.Description = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}

	return nil
}
