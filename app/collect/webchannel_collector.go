package collect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"crosspost/app/database"
)

// interPairDelay keeps the scraper polite to the public preview surface.
const interPairDelay = 2 * time.Second

var backgroundImagePattern = regexp.MustCompile(`background-image:\s*url\(['"]?([^'")]+)['"]?\)`)

type webMessage struct {
	id        int64
	text      string
	timestamp time.Time
	media     []string
}

// WebChannelCollector scrapes the public web preview of source channels.
// Used when the pipeline lacks elevated access to a channel; a channel may be
// tracked by this collector and the bot-API one simultaneously, with the
// persisted dedup key as the safety net. Its high-water marks are independent
// of the bot-API collector's.
type WebChannelCollector struct {
	pairRepo     database.PairRepository
	activityRepo database.ActivityLogRepository
	intake       *Intake
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	pairDelay    time.Duration
	lastSeen     map[string]int64
}

func NewWebChannelCollector(pairRepo database.PairRepository, activityRepo database.ActivityLogRepository,
	intake *Intake, httpClient *http.Client, baseURL, userAgent string) *WebChannelCollector {
	return &WebChannelCollector{
		pairRepo:     pairRepo,
		activityRepo: activityRepo,
		intake:       intake,
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		userAgent:    userAgent,
		pairDelay:    interPairDelay,
		lastSeen:     make(map[string]int64),
	}
}

func (c *WebChannelCollector) Name() string {
	return "web_channels"
}

func (c *WebChannelCollector) Run(ctx context.Context) error {
	pairs, err := c.pairRepo.GetActivePairs()
	if err != nil {
		return fmt.Errorf("failed to load active pairs: %w", err)
	}

	for i, pair := range pairs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pairDelay):
			}
		}

		if err := c.collectPair(ctx, pair); err != nil {
			slog.Warn("Web channel collection failed", "collector", c.Name(), "source", pair.Source, "error", err)
			if logErr := c.activityRepo.Append("parsing_error",
				fmt.Sprintf("Failed to scrape public preview of %s", pair.Source),
				&pair.ID, nil, map[string]any{"error": err.Error()}); logErr != nil {
				slog.Warn("Failed to append activity log entry", "type", "parsing_error", "error", logErr)
			}
		}
	}

	return nil
}

func (c *WebChannelCollector) collectPair(ctx context.Context, pair database.ChannelPair) error {
	pageURL := c.baseURL + "/" + strings.TrimPrefix(pair.Source, "@")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch preview page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read preview page: %w", err)
	}

	messages, err := parseChannelPreview(body)
	if err != nil {
		return err
	}

	watermark := c.lastSeen[pair.Source]
	newCount := 0

	for _, m := range messages {
		if m.id <= watermark {
			continue
		}

		item := Item{
			OriginalID:  strconv.FormatInt(m.id, 10),
			Content:     m.text,
			Media:       m.media,
			SourceURL:   pageURL,
			PublishedAt: m.timestamp,
		}

		created, err := c.intake.PairItem(ctx, pair, item)
		if err != nil {
			return fmt.Errorf("intake failed for message %d: %w", m.id, err)
		}
		if created {
			newCount++
		}

		c.lastSeen[pair.Source] = m.id
	}

	if newCount > 0 {
		slog.Info("Web channel messages collected", "collector", c.Name(), "source", pair.Source, "new", newCount)
	}

	return nil
}

// parseChannelPreview extracts message blocks from a public preview page:
// the numeric message id from the data-post attribute, display text, a
// timestamp, and media URLs hidden in inline background-image styles.
func parseChannelPreview(page []byte) ([]webMessage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse preview page: %w", err)
	}

	var messages []webMessage
	doc.Find("[data-post]").Each(func(_ int, block *goquery.Selection) {
		ref := block.AttrOr("data-post", "")
		idx := strings.LastIndex(ref, "/")
		if idx < 0 {
			return
		}
		id, err := strconv.ParseInt(ref[idx+1:], 10, 64)
		if err != nil {
			return
		}

		m := webMessage{
			id:   id,
			text: strings.TrimSpace(block.Find(".tgme_widget_message_text").First().Text()),
		}

		if datetime, ok := block.Find("time").First().Attr("datetime"); ok {
			if ts, err := time.Parse(time.RFC3339, datetime); err == nil {
				m.timestamp = ts
			}
		}

		block.Find("[style]").Each(func(_ int, el *goquery.Selection) {
			style := el.AttrOr("style", "")
			for _, match := range backgroundImagePattern.FindAllStringSubmatch(style, -1) {
				m.media = append(m.media, match[1])
			}
		})

		messages = append(messages, m)
	})

	sort.Slice(messages, func(i, j int) bool { return messages[i].id < messages[j].id })

	return messages, nil
}
