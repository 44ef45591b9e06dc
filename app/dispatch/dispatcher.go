// Package dispatch owns the delivery state machine: pending posts become
// posted or failed, scheduled posts become published or failed. Failed
// entities are terminal; retry is a manual concern.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crosspost/app/botapi"
	"crosspost/app/database"
	"crosspost/app/transform"
)

// DestinationClient sends deliverable content to a destination channel.
type DestinationClient interface {
	SendText(ctx context.Context, destination, text string) (*botapi.MessageRef, error)
	SendMedia(ctx context.Context, destination, mediaURL, caption string) (*botapi.MessageRef, error)
}

type Dispatcher struct {
	pairRepo      database.PairRepository
	postRepo      database.PostRepository
	scheduledRepo database.ScheduledPostRepository
	draftRepo     database.DraftRepository
	activityRepo  database.ActivityLogRepository
	transformer   *transform.Transformer
	client        DestinationClient
}

func NewDispatcher(pairRepo database.PairRepository, postRepo database.PostRepository,
	scheduledRepo database.ScheduledPostRepository, draftRepo database.DraftRepository,
	activityRepo database.ActivityLogRepository, transformer *transform.Transformer,
	client DestinationClient) *Dispatcher {
	return &Dispatcher{
		pairRepo:      pairRepo,
		postRepo:      postRepo,
		scheduledRepo: scheduledRepo,
		draftRepo:     draftRepo,
		activityRepo:  activityRepo,
		transformer:   transformer,
		client:        client,
	}
}

// RunPending scans pending posts whose scheduled time has passed and sends
// them. A failure for one post never blocks the rest of the scan.
func (d *Dispatcher) RunPending(ctx context.Context) error {
	posts, err := d.postRepo.GetDuePendingPosts(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to scan due posts: %w", err)
	}

	for _, post := range posts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pair, err := d.activePair(post.ChannelPairID)
		if err != nil {
			slog.Warn("Failed to load pair for post", "post", post.ID, "error", err)
			continue
		}
		if pair == nil {
			// Paused or deleted pair: not a fault, the post waits.
			continue
		}

		if err := d.sendPost(ctx, *pair, post); err != nil {
			slog.Warn("Post delivery failed", "post", post.ID, "error", err)
		}
	}

	return nil
}

// RunScheduled scans due scheduled posts and publishes them.
func (d *Dispatcher) RunScheduled(ctx context.Context) error {
	posts, err := d.scheduledRepo.GetDueScheduledPosts(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to scan due scheduled posts: %w", err)
	}

	for _, post := range posts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pair, err := d.activePair(post.ChannelPairID)
		if err != nil {
			slog.Warn("Failed to load pair for scheduled post", "post", post.ID, "error", err)
			continue
		}
		if pair == nil {
			continue
		}

		if err := d.sendScheduledPost(ctx, *pair, post); err != nil {
			slog.Warn("Scheduled post delivery failed", "post", post.ID, "error", err)
		}
	}

	return nil
}

// SchedulePost reschedules a pending post or, with a zero delay, bypasses
// the dispatch tick and sends synchronously, re-raising the delivery error
// to the caller after recording it so interactive "publish now" actions
// surface failures immediately.
func (d *Dispatcher) SchedulePost(ctx context.Context, postID string, delayMinutes int) error {
	post, err := d.postRepo.GetPost(postID)
	if err != nil {
		return fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil {
		return fmt.Errorf("post %s not found", postID)
	}
	if post.Status != database.PostStatusPending {
		return fmt.Errorf("post %s is not pending", postID)
	}

	if delayMinutes > 0 {
		scheduledAt := time.Now().UTC().Add(time.Duration(delayMinutes) * time.Minute)
		if err := d.postRepo.SetPostScheduledAt(post.ID, scheduledAt); err != nil {
			return err
		}
		slog.Debug("Post scheduled", "post", post.ID, "scheduled_at", scheduledAt)
		return nil
	}

	pair, err := d.activePair(post.ChannelPairID)
	if err != nil {
		return err
	}
	if pair == nil {
		return fmt.Errorf("pair %s is not active", post.ChannelPairID)
	}

	return d.sendPost(ctx, *pair, *post)
}

// PublishDraft turns a draft into a scheduled post due immediately and
// removes the draft, freeing its dedup key.
func (d *Dispatcher) PublishDraft(ctx context.Context, draftID string) (*database.ScheduledPost, error) {
	draft, err := d.draftRepo.GetDraft(draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if draft == nil {
		return nil, fmt.Errorf("draft %s not found", draftID)
	}

	pairID := ""
	if draft.ChannelPairID != nil {
		pairID = *draft.ChannelPairID
	}
	if pairID == "" {
		return nil, fmt.Errorf("draft %s has no destination pair; assign one before publishing", draftID)
	}

	scheduled := &database.ScheduledPost{
		ChannelPairID: pairID,
		Content:       draft.Content,
		Media:         draft.Media,
		PublishAt:     time.Now().UTC(),
	}
	if err := d.scheduledRepo.CreateScheduledPost(scheduled); err != nil {
		return nil, fmt.Errorf("failed to create scheduled post from draft: %w", err)
	}

	if err := d.draftRepo.DeleteDraft(draft.ID); err != nil {
		return nil, fmt.Errorf("failed to delete published draft: %w", err)
	}

	d.logActivity("draft_published", "Draft queued for publishing", &pairID, &scheduled.ID, nil)

	return scheduled, nil
}

func (d *Dispatcher) sendPost(ctx context.Context, pair database.ChannelPair, post database.Post) error {
	result := d.transformer.Run(ctx, pair, post.Content, post.Media)

	if err := d.send(ctx, pair.Destination, result); err != nil {
		if markErr := d.postRepo.MarkPostFailed(post.ID, err.Error()); markErr != nil {
			slog.Error("Failed to record post failure", "post", post.ID, "error", markErr)
		}
		d.logActivity("post_failed", fmt.Sprintf("Delivery to %s failed", pair.Destination),
			&pair.ID, &post.ID, map[string]any{"error": err.Error()})
		return err
	}

	now := time.Now().UTC()
	if err := d.postRepo.MarkPostPosted(post.ID, now); err != nil {
		return fmt.Errorf("failed to mark post as posted: %w", err)
	}
	d.logActivity("post_sent", fmt.Sprintf("Post delivered to %s", pair.Destination),
		&pair.ID, &post.ID, nil)

	return nil
}

func (d *Dispatcher) sendScheduledPost(ctx context.Context, pair database.ChannelPair, post database.ScheduledPost) error {
	content := post.Content
	if post.Title != "" {
		content = post.Title + "\n\n" + content
	}

	result := d.transformer.Run(ctx, pair, content, post.Media)

	if err := d.send(ctx, pair.Destination, result); err != nil {
		if markErr := d.scheduledRepo.MarkScheduledPostFailed(post.ID, err.Error()); markErr != nil {
			slog.Error("Failed to record scheduled post failure", "post", post.ID, "error", markErr)
		}
		d.logActivity("scheduled_post_failed", fmt.Sprintf("Scheduled delivery to %s failed", pair.Destination),
			&pair.ID, &post.ID, map[string]any{"error": err.Error()})
		return err
	}

	now := time.Now().UTC()

	published := &database.Post{
		ChannelPairID:  pair.ID,
		OriginalPostID: "scheduled:" + post.ID,
		Content:        result.Content,
		Media:          result.Media,
		Status:         database.PostStatusPosted,
		PostedAt:       &now,
	}
	if err := d.postRepo.CreatePost(published); err != nil {
		slog.Warn("Failed to record published post entity", "scheduled_post", post.ID, "error", err)
	}

	if err := d.scheduledRepo.MarkScheduledPostPublished(post.ID, published.ID, now); err != nil {
		return fmt.Errorf("failed to mark scheduled post as published: %w", err)
	}
	d.logActivity("scheduled_post_published", fmt.Sprintf("Scheduled post delivered to %s", pair.Destination),
		&pair.ID, &post.ID, nil)

	return nil
}

// send delivers transformed content, preferring a media send when
// attachments exist. Additional attachments follow without captions.
func (d *Dispatcher) send(ctx context.Context, destination string, result transform.Result) error {
	if len(result.Media) == 0 {
		if _, err := d.client.SendText(ctx, destination, result.Content); err != nil {
			return err
		}
		return nil
	}

	if _, err := d.client.SendMedia(ctx, destination, result.Media[0], result.Content); err != nil {
		return err
	}
	for _, m := range result.Media[1:] {
		if _, err := d.client.SendMedia(ctx, destination, m, ""); err != nil {
			return err
		}
	}

	return nil
}

// activePair returns the pair only when it exists and is active.
func (d *Dispatcher) activePair(pairID string) (*database.ChannelPair, error) {
	pair, err := d.pairRepo.GetPair(pairID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pair: %w", err)
	}
	if pair == nil || pair.Status != database.PairStatusActive {
		return nil, nil
	}
	return pair, nil
}

func (d *Dispatcher) logActivity(entryType, description string, pairID, postID *string, metadata map[string]any) {
	if err := d.activityRepo.Append(entryType, description, pairID, postID, metadata); err != nil {
		slog.Warn("Failed to append activity log entry", "type", entryType, "error", err)
	}
}
