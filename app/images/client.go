// Package images is the HTTP client for the image-processing collaborator
// (watermarking and original-branding removal).
package images

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const requestTimeout = 30 * time.Second

type Options struct {
	AddWatermark           bool
	WatermarkText          string
	RemoveOriginalBranding bool
	Quality                int
}

type processURLRequest struct {
	URL            string `json:"url"`
	Watermark      bool   `json:"watermark"`
	WatermarkText  string `json:"watermark_text"`
	RemoveBranding bool   `json:"remove_branding"`
	Quality        int    `json:"quality"`
}

type Client struct {
	serviceURL string
	userAgent  string
	httpClient *http.Client
}

func NewClient(serviceURL, userAgent string) *Client {
	return &Client{
		serviceURL: serviceURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// ProcessURL asks the service to fetch, transform, and re-host an image,
// returning the URL of the processed copy. This is the entry point the
// pipeline uses, since posts carry media by reference.
func (c *Client) ProcessURL(ctx context.Context, imageURL string, opts Options) (string, error) {
	if imageURL == "" {
		return "", fmt.Errorf("image URL is empty")
	}

	payload, err := json.Marshal(processURLRequest{
		URL:            imageURL,
		Watermark:      opts.AddWatermark,
		WatermarkText:  opts.WatermarkText,
		RemoveBranding: opts.RemoveOriginalBranding,
		Quality:        opts.Quality,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/process-url",
		bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image service returned HTTP %d", resp.StatusCode)
	}

	var decoded struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode image response: %w", err)
	}
	if decoded.URL == "" {
		return "", fmt.Errorf("image service returned no URL")
	}

	return decoded.URL, nil
}

// Process sends raw image bytes to the processing service and returns the
// transformed image. Callers fall back to the original bytes on error.
func (c *Client) Process(ctx context.Context, img []byte, opts Options) ([]byte, error) {
	if len(img) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}

	query := url.Values{}
	query.Set("watermark", strconv.FormatBool(opts.AddWatermark))
	if opts.WatermarkText != "" {
		query.Set("watermark_text", opts.WatermarkText)
	}
	query.Set("remove_branding", strconv.FormatBool(opts.RemoveOriginalBranding))
	if opts.Quality > 0 {
		query.Set("quality", strconv.Itoa(opts.Quality))
	}

	endpoint := c.serviceURL + "/process?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image service returned HTTP %d", resp.StatusCode)
	}

	processed, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read processed image: %w", err)
	}
	if len(processed) == 0 {
		return nil, fmt.Errorf("image service returned empty body")
	}

	return processed, nil
}
