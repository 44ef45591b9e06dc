// Package translate is the HTTP client for the translation collaborator.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const requestTimeout = 20 * time.Second

// minInputLength guards the service from junk calls with a token or two;
// such input passes through untranslated.
const minInputLength = 3

type Result struct {
	DetectedLanguage string
	Text             string
	Translated       bool
}

type Client struct {
	serviceURL string
	target     string
	userAgent  string
	httpClient *http.Client
}

func NewClient(serviceURL, targetLanguage, userAgent string) *Client {
	return &Client{
		serviceURL: serviceURL,
		target:     targetLanguage,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Translate sends text to the translation service. Empty or very short input
// is a no-op, never an error.
func (c *Client) Translate(ctx context.Context, text string) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minInputLength {
		return &Result{Text: text}, nil
	}

	payload := map[string]any{
		"q":      text,
		"source": "auto",
		"target": c.target,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translation service returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation response: %w", err)
	}

	var decoded struct {
		TranslatedText   string `json:"translatedText"`
		DetectedLanguage struct {
			Language string `json:"language"`
		} `json:"detectedLanguage"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode translation response: %w", err)
	}

	detected := normalizeLanguage(decoded.DetectedLanguage.Language)

	result := &Result{
		DetectedLanguage: detected,
		Text:             decoded.TranslatedText,
		Translated:       decoded.TranslatedText != "" && detected != c.target,
	}
	if decoded.TranslatedText == "" {
		result.Text = text
	}

	return result, nil
}

// normalizeLanguage canonicalizes whatever language code the service
// reports ("EN", "en-US", "eng") to a base BCP 47 tag.
func normalizeLanguage(code string) string {
	if code == "" {
		return ""
	}

	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}

	base, _ := tag.Base()
	return base.String()
}
