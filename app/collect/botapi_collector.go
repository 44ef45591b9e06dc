package collect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"crosspost/app/botapi"
	"crosspost/app/database"
	"crosspost/app/transform"
)

// MessageFetcher is the bot-gateway surface the collector reads from.
type MessageFetcher interface {
	GetRecentMessages(ctx context.Context, channelID string) ([]botapi.Message, error)
}

// BotAPICollector polls source channels through the bot gateway. lastSeen is
// a process-local high-water mark per source channel; it only advances after
// a message has been handed to intake, so a restart may replay the tail of a
// channel and relies on the persisted dedup key to absorb it.
type BotAPICollector struct {
	pairRepo     database.PairRepository
	activityRepo database.ActivityLogRepository
	fetcher      MessageFetcher
	intake       *Intake
	lastSeen     map[string]int64
}

func NewBotAPICollector(pairRepo database.PairRepository, activityRepo database.ActivityLogRepository,
	fetcher MessageFetcher, intake *Intake) *BotAPICollector {
	return &BotAPICollector{
		pairRepo:     pairRepo,
		activityRepo: activityRepo,
		fetcher:      fetcher,
		intake:       intake,
		lastSeen:     make(map[string]int64),
	}
}

func (c *BotAPICollector) Name() string {
	return "botapi_channels"
}

func (c *BotAPICollector) Run(ctx context.Context) error {
	pairs, err := c.pairRepo.GetActivePairs()
	if err != nil {
		return fmt.Errorf("failed to load active pairs: %w", err)
	}

	for _, pair := range pairs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.collectPair(ctx, pair); err != nil {
			slog.Warn("Channel collection failed", "collector", c.Name(), "source", pair.Source, "error", err)
			if logErr := c.activityRepo.Append("parsing_error",
				fmt.Sprintf("Failed to collect messages from %s", pair.Source),
				&pair.ID, nil, map[string]any{"error": err.Error()}); logErr != nil {
				slog.Warn("Failed to append activity log entry", "type", "parsing_error", "error", logErr)
			}
		}
	}

	return nil
}

func (c *BotAPICollector) collectPair(ctx context.Context, pair database.ChannelPair) error {
	messages, err := c.fetcher.GetRecentMessages(ctx, pair.Source)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	watermark := c.lastSeen[pair.Source]

	fresh := messages[:0:0]
	for _, m := range messages {
		if m.ID > watermark {
			fresh = append(fresh, m)
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	newCount := 0
	for _, m := range fresh {
		item := messageToItem(m)

		created, err := c.intake.PairItem(ctx, pair, item)
		if err != nil {
			return fmt.Errorf("intake failed for message %d: %w", m.ID, err)
		}
		if created {
			newCount++
		}

		// Advance only after the message has been processed; an error above
		// leaves the watermark behind so the next tick retries.
		c.lastSeen[pair.Source] = m.ID
	}

	if newCount > 0 {
		slog.Info("Channel messages collected", "collector", c.Name(), "source", pair.Source, "new", newCount)
	}

	return nil
}

func messageToItem(m botapi.Message) Item {
	content := m.Text
	if content == "" {
		content = m.Caption
	}

	media := make([]string, 0, len(m.MediaURLs))
	unresolved := 0
	for _, u := range m.MediaURLs {
		if strings.TrimSpace(u) == "" {
			unresolved++
			continue
		}
		media = append(media, u)
	}
	if unresolved > 0 {
		content = strings.TrimSpace(content + "\n\n" + transform.MediaUnavailableMarker)
	}

	return Item{
		OriginalID:  strconv.FormatInt(m.ID, 10),
		Content:     content,
		Media:       media,
		PublishedAt: m.Timestamp,
	}
}
