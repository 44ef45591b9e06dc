package collect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crosspost/app/database"
)

// Intake is the single authority that decides whether a candidate item has
// already been recorded, and creates the tracked entity when it has not.
// The collectors' in-memory high-water marks are the primary filter; the
// persisted dedup key checked here is the correctness backstop.
type Intake struct {
	postRepo     database.PostRepository
	draftRepo    database.DraftRepository
	activityRepo database.ActivityLogRepository
	scheduler    PostScheduler
	translator   Translator
}

func NewIntake(postRepo database.PostRepository, draftRepo database.DraftRepository,
	activityRepo database.ActivityLogRepository, scheduler PostScheduler,
	translator Translator) *Intake {
	return &Intake{
		postRepo:     postRepo,
		draftRepo:    draftRepo,
		activityRepo: activityRepo,
		scheduler:    scheduler,
		translator:   translator,
	}
}

// PairItem records a candidate item detected for a channel pair. Returns true
// when a new entity was created, false when the item was already known.
func (in *Intake) PairItem(ctx context.Context, pair database.ChannelPair, item Item) (bool, error) {
	if pair.CopyMode == database.CopyModeDraft {
		return in.pairDraft(pair, item)
	}

	exists, err := in.postRepo.PostExists(pair.ID, item.OriginalID)
	if err != nil {
		return false, fmt.Errorf("failed to check post dedup key: %w", err)
	}
	if exists {
		return false, nil
	}

	// The posting delay is persisted with the insert itself, so a dispatcher
	// scan between the insert and the handoff cannot deliver the post early.
	scheduledAt := time.Now().UTC().Add(time.Duration(pair.PostingDelay) * time.Minute)
	post := &database.Post{
		ChannelPairID:  pair.ID,
		OriginalPostID: item.OriginalID,
		Content:        item.Content,
		Media:          item.Media,
		ScheduledAt:    &scheduledAt,
	}
	if err := in.postRepo.CreatePost(post); err != nil {
		return false, fmt.Errorf("failed to create post: %w", err)
	}

	in.logActivity("post_detected", fmt.Sprintf("New post detected in %s", pair.Source),
		&pair.ID, &post.ID, map[string]any{"original_post_id": item.OriginalID})

	if pair.PostingDelay <= 0 {
		if err := in.scheduler.SchedulePost(ctx, post.ID, 0); err != nil {
			return true, fmt.Errorf("failed to send post %s: %w", post.ID, err)
		}
	}

	return true, nil
}

func (in *Intake) pairDraft(pair database.ChannelPair, item Item) (bool, error) {
	exists, err := in.draftRepo.DraftExistsForPair(pair.ID, item.OriginalID)
	if err != nil {
		return false, fmt.Errorf("failed to check draft dedup key: %w", err)
	}
	if exists {
		return false, nil
	}

	draft := &database.DraftPost{
		ChannelPairID:   &pair.ID,
		OriginalPostID:  item.OriginalID,
		OriginalContent: item.Content,
		Content:         item.Content,
		Media:           item.Media,
		SourceURL:       item.SourceURL,
	}
	if err := in.draftRepo.CreateDraft(draft); err != nil {
		return false, fmt.Errorf("failed to create draft: %w", err)
	}

	in.logActivity("post_detected", fmt.Sprintf("New draft held for review from %s", pair.Source),
		&pair.ID, &draft.ID, map[string]any{"original_post_id": item.OriginalID})

	return true, nil
}

// SourceItem records a candidate item extracted from a web source. Web
// content always lands as a draft; translation is attempted up front so the
// reviewer sees the translated text, but a translation failure never blocks
// the draft.
func (in *Intake) SourceItem(ctx context.Context, source database.WebSource, item Item) (bool, error) {
	exists, err := in.draftRepo.DraftExistsForSource(source.ID, item.OriginalID)
	if err != nil {
		return false, fmt.Errorf("failed to check draft dedup key: %w", err)
	}
	if exists {
		return false, nil
	}

	content := item.Content
	if item.Title != "" {
		content = item.Title + "\n\n" + item.Content
		content = strings.TrimSpace(content)
	}

	draft := &database.DraftPost{
		WebSourceID:     &source.ID,
		OriginalPostID:  item.OriginalID,
		OriginalContent: content,
		Content:         content,
		Media:           item.Media,
		SourceURL:       item.SourceURL,
	}

	if in.translator != nil {
		result, err := in.translator.Translate(ctx, content)
		if err != nil {
			slog.Warn("Draft translation failed, keeping original text", "source", source.URL, "error", err)
			in.logActivity("translation_failed", "Translation failed for web draft", nil, nil,
				map[string]any{"source_url": source.URL, "error": err.Error()})
		} else if result.Translated {
			draft.Content = result.Text
			draft.Translated = true
			draft.SourceLanguage = result.DetectedLanguage
		}
	}

	if err := in.draftRepo.CreateDraft(draft); err != nil {
		return false, fmt.Errorf("failed to create draft: %w", err)
	}

	in.logActivity("web_content_parsed", fmt.Sprintf("New content parsed from %s", source.URL),
		nil, &draft.ID, map[string]any{"original_post_id": item.OriginalID, "web_source_id": source.ID})

	return true, nil
}

func (in *Intake) logActivity(entryType, description string, pairID, postID *string, metadata map[string]any) {
	if err := in.activityRepo.Append(entryType, description, pairID, postID, metadata); err != nil {
		slog.Warn("Failed to append activity log entry", "type", entryType, "error", err)
	}
}
