package collect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"crosspost/app/database"
)

const (
	// interSourceDelay keeps the collector polite to scraped sites.
	interSourceDelay = 3 * time.Second

	maxFeedItems  = 10
	maxHTMLBlocks = 5

	// minBlockLength is the threshold below which a scraped HTML block is not
	// considered substantial content.
	minBlockLength = 100

	maxContentLength = 4000
)

// genericSelectors is tried in order when an HTML source has no configured
// selector and readability extraction comes up empty.
var genericSelectors = []string{
	"article",
	"[itemprop='articleBody']",
	".post-content",
	".entry-content",
	".article-content",
	".post",
	"main p",
}

var (
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
	imageExtPattern   = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp)(\?|$)`)
)

// WebFeedCollector polls standalone web sources (RSS or HTML) and turns
// qualifying items into drafts. Web content is never auto-published.
type WebFeedCollector struct {
	sourceRepo   database.SourceRepository
	activityRepo database.ActivityLogRepository
	intake       *Intake
	httpClient   *http.Client
	feedParser   *gofeed.Parser
	userAgent    string
	sourceDelay  time.Duration
}

func NewWebFeedCollector(sourceRepo database.SourceRepository, activityRepo database.ActivityLogRepository,
	intake *Intake, httpClient *http.Client, userAgent string) *WebFeedCollector {
	return &WebFeedCollector{
		sourceRepo:   sourceRepo,
		activityRepo: activityRepo,
		intake:       intake,
		httpClient:   httpClient,
		feedParser:   gofeed.NewParser(),
		userAgent:    userAgent,
		sourceDelay:  interSourceDelay,
	}
}

func (c *WebFeedCollector) Name() string {
	return "web_feeds"
}

func (c *WebFeedCollector) Run(ctx context.Context) error {
	sources, err := c.sourceRepo.GetActiveSources()
	if err != nil {
		return fmt.Errorf("failed to load active sources: %w", err)
	}

	now := time.Now().UTC()

	for i, source := range sources {
		if source.LastParsedAt != nil &&
			now.Sub(*source.LastParsedAt) < time.Duration(source.PollInterval)*time.Minute {
			continue
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.sourceDelay):
			}
		}

		if err := c.collectSource(ctx, source); err != nil {
			slog.Warn("Web source collection failed", "collector", c.Name(), "url", source.URL, "error", err)
			if logErr := c.activityRepo.Append("web_parsing_failed",
				fmt.Sprintf("Failed to parse web source %s", source.URL),
				nil, nil, map[string]any{"web_source_id": source.ID, "error": err.Error()}); logErr != nil {
				slog.Warn("Failed to append activity log entry", "type", "web_parsing_failed", "error", logErr)
			}
		}
	}

	return nil
}

func (c *WebFeedCollector) collectSource(ctx context.Context, source database.WebSource) error {
	body, err := c.fetch(ctx, source.URL)
	if err != nil {
		return err
	}

	var items []Item
	switch source.Kind {
	case database.SourceKindRSS:
		items, err = c.parseFeed(body, source.URL)
	case database.SourceKindHTML:
		items, err = c.parseHTML(body, source.URL, source.Selector)
	default:
		return fmt.Errorf("unknown source kind: %s", source.Kind)
	}
	if err != nil {
		return err
	}

	newCount := 0
	for _, item := range items {
		created, err := c.intake.SourceItem(ctx, source, item)
		if err != nil {
			slog.Warn("Intake failed for web item", "url", source.URL, "original_id", item.OriginalID, "error", err)
			continue
		}
		if created {
			newCount++
		}
	}

	// Advance last_parsed_at even with zero new items so stalled sources
	// stay observable.
	if err := c.sourceRepo.TouchLastParsed(source.ID, time.Now().UTC()); err != nil {
		return err
	}

	slog.Debug("Web source polled", "collector", c.Name(), "url", source.URL, "items", len(items), "new", newCount)

	return nil
}

func (c *WebFeedCollector) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

func (c *WebFeedCollector) parseFeed(data []byte, sourceURL string) ([]Item, error) {
	feed, err := c.feedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	feedItems := feed.Items
	if len(feedItems) > maxFeedItems {
		feedItems = feedItems[:maxFeedItems]
	}

	items := make([]Item, 0, len(feedItems))
	for _, fi := range feedItems {
		item := Item{
			Title:     strings.TrimSpace(fi.Title),
			Content:   cleanText(fi.Description),
			SourceURL: resolveURL(sourceURL, fi.Link),
		}

		if item.Content == "" {
			item.Content = cleanText(fi.Content)
		}

		switch {
		case fi.GUID != "":
			item.OriginalID = fi.GUID
		case fi.Link != "":
			item.OriginalID = fi.Link
		default:
			item.OriginalID = syntheticID(item.Title, item.Content)
		}

		if fi.PublishedParsed != nil {
			item.PublishedAt = *fi.PublishedParsed
		}

		item.Media = extractImageURLs(fi.Description, sourceURL)
		for _, enc := range fi.Enclosures {
			if enc != nil && looksLikeImage(enc.URL) {
				item.Media = append(item.Media, resolveURL(sourceURL, enc.URL))
			}
		}

		items = append(items, item)
	}

	return items, nil
}

func (c *WebFeedCollector) parseHTML(data []byte, sourceURL, selector string) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if selector != "" {
		return blocksToItems(doc.Find(selector), sourceURL), nil
	}

	// Without a configured selector try readability first, then a list of
	// generic article-like selectors.
	if item, ok := c.extractReadable(data, sourceURL); ok {
		return []Item{item}, nil
	}

	for _, sel := range genericSelectors {
		items := blocksToItems(doc.Find(sel), sourceURL)
		if len(items) > 0 {
			return items, nil
		}
	}

	return nil, nil
}

func (c *WebFeedCollector) extractReadable(data []byte, sourceURL string) (Item, bool) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return Item{}, false
	}

	article, err := readability.FromReader(bytes.NewReader(data), parsed)
	if err != nil {
		return Item{}, false
	}

	content := cleanText(article.Content)
	if len(content) < minBlockLength {
		return Item{}, false
	}

	item := Item{
		OriginalID: syntheticID(article.Title, content),
		Title:      strings.TrimSpace(article.Title),
		Content:    content,
		SourceURL:  sourceURL,
		Media:      extractImageURLs(article.Content, sourceURL),
	}

	return item, true
}

func blocksToItems(blocks *goquery.Selection, sourceURL string) []Item {
	var items []Item

	blocks.EachWithBreak(func(_ int, block *goquery.Selection) bool {
		content := collapseWhitespace(block.Text())
		if len(content) < minBlockLength {
			return true
		}
		content = truncate(content, maxContentLength)

		title := strings.TrimSpace(block.Find("h1, h2, h3").First().Text())

		canonical := sourceURL
		if href, ok := block.Find("a[href]").First().Attr("href"); ok {
			canonical = resolveURL(sourceURL, href)
		}

		var media []string
		block.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
			src := img.AttrOr("src", "")
			if looksLikeImage(src) {
				media = append(media, resolveURL(sourceURL, src))
			}
		})

		items = append(items, Item{
			OriginalID: syntheticID(title, content),
			Title:      title,
			Content:    content,
			SourceURL:  canonical,
			Media:      media,
		})

		return len(items) < maxHTMLBlocks
	})

	return items
}

// cleanText strips HTML tags, collapses whitespace, and caps the length.
func cleanText(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseWhitespace(html)
	}

	return truncate(collapseWhitespace(doc.Text()), maxContentLength)
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func collapseWhitespace(s string) string {
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return base
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}

	return baseURL.ResolveReference(refURL).String()
}

func extractImageURLs(html, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var urls []string
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if looksLikeImage(src) {
			urls = append(urls, resolveURL(baseURL, src))
		}
	})

	return urls
}

// looksLikeImage filters URLs to plausible images by extension or keyword.
func looksLikeImage(u string) bool {
	if u == "" {
		return false
	}
	if imageExtPattern.MatchString(u) {
		return true
	}
	lower := strings.ToLower(u)
	return strings.Contains(lower, "image") || strings.Contains(lower, "photo")
}

func syntheticID(title, content string) string {
	capped := content
	if len(capped) > 256 {
		capped = capped[:256]
	}
	sum := sha256.Sum256([]byte(title + "|" + capped))
	return hex.EncodeToString(sum[:16])
}
