package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crosspost/app/botapi"
	"crosspost/app/database"
	"crosspost/app/transform"
)

type sentMessage struct {
	Destination string
	Text        string
	MediaURL    string
}

type fakeClient struct {
	sent    []sentMessage
	failAll bool
}

func (c *fakeClient) SendText(_ context.Context, destination, text string) (*botapi.MessageRef, error) {
	if c.failAll {
		return nil, errors.New("destination unreachable")
	}
	c.sent = append(c.sent, sentMessage{Destination: destination, Text: text})
	return &botapi.MessageRef{ID: int64(len(c.sent))}, nil
}

func (c *fakeClient) SendMedia(_ context.Context, destination, mediaURL, caption string) (*botapi.MessageRef, error) {
	if c.failAll {
		return nil, errors.New("destination unreachable")
	}
	c.sent = append(c.sent, sentMessage{Destination: destination, Text: caption, MediaURL: mediaURL})
	return &botapi.MessageRef{ID: int64(len(c.sent))}, nil
}

type testEnv struct {
	pairs      database.PairRepository
	sources    database.SourceRepository
	posts      database.PostRepository
	scheduled  database.ScheduledPostRepository
	drafts     database.DraftRepository
	activity   database.ActivityLogRepository
	client     *fakeClient
	dispatcher *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	env := &testEnv{
		pairs:     database.NewPairRepository(db),
		sources:   database.NewSourceRepository(db),
		posts:     database.NewPostRepository(db),
		scheduled: database.NewScheduledPostRepository(db),
		drafts:    database.NewDraftRepository(db),
		activity:  database.NewActivityLogRepository(db),
		client:    &fakeClient{},
	}

	transformer := transform.NewTransformer(nil, nil, env.activity)
	env.dispatcher = NewDispatcher(env.pairs, env.posts, env.scheduled, env.drafts,
		env.activity, transformer, env.client)

	return env
}

func (e *testEnv) createPair(t *testing.T, status database.PairStatus) *database.ChannelPair {
	t.Helper()
	pair := &database.ChannelPair{
		Source:      "@src",
		Destination: "@dst",
		Status:      status,
		CopyMode:    database.CopyModeAutoPublish,
	}
	if err := e.pairs.CreatePair(pair); err != nil {
		t.Fatalf("failed to create pair: %v", err)
	}
	return pair
}

func (e *testEnv) createPendingPost(t *testing.T, pairID, originalID, content string, media []string) *database.Post {
	t.Helper()
	due := time.Now().UTC().Add(-time.Minute)
	post := &database.Post{
		ChannelPairID:  pairID,
		OriginalPostID: originalID,
		Content:        content,
		Media:          media,
		ScheduledAt:    &due,
	}
	if err := e.posts.CreatePost(post); err != nil {
		t.Fatalf("failed to create post: %v", err)
	}
	return post
}

func TestRunPendingSendsDuePost(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, database.PairStatusActive)
	post := env.createPendingPost(t, pair.ID, "101", "hello world", nil)

	if err := env.dispatcher.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending returned error: %v", err)
	}

	if len(env.client.sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(env.client.sent))
	}
	if env.client.sent[0].Destination != "@dst" {
		t.Errorf("expected destination '@dst', got %q", env.client.sent[0].Destination)
	}
	if env.client.sent[0].Text != "hello world" {
		t.Errorf("expected text 'hello world', got %q", env.client.sent[0].Text)
	}

	updated, err := env.posts.GetPost(post.ID)
	if err != nil {
		t.Fatalf("failed to reload post: %v", err)
	}
	if updated.Status != database.PostStatusPosted {
		t.Errorf("expected status 'posted', got %q", updated.Status)
	}
	if updated.PostedAt == nil {
		t.Error("expected posted_at to be set")
	}
}

func TestRunPendingSendsMediaFirst(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, database.PairStatusActive)
	env.createPendingPost(t, pair.ID, "102", "caption text",
		[]string{"https://example.com/a.jpg", "https://example.com/b.jpg"})

	if err := env.dispatcher.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending returned error: %v", err)
	}

	if len(env.client.sent) != 2 {
		t.Fatalf("expected 2 sent messages, got %d", len(env.client.sent))
	}
	if env.client.sent[0].MediaURL != "https://example.com/a.jpg" {
		t.Errorf("expected first media send, got %+v", env.client.sent[0])
	}
	if env.client.sent[0].Text != "caption text" {
		t.Errorf("expected caption on first media, got %q", env.client.sent[0].Text)
	}
	if env.client.sent[1].Text != "" {
		t.Errorf("expected no caption on second media, got %q", env.client.sent[1].Text)
	}
}

func TestRunPendingSkipsPausedPair(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, database.PairStatusPaused)
	post := env.createPendingPost(t, pair.ID, "103", "waiting", nil)

	if err := env.dispatcher.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending returned error: %v", err)
	}

	if len(env.client.sent) != 0 {
		t.Fatalf("expected no sends for paused pair, got %d", len(env.client.sent))
	}

	// Post stays pending so it delivers once the pair resumes.
	updated, err := env.posts.GetPost(post.ID)
	if err != nil {
		t.Fatalf("failed to reload post: %v", err)
	}
	if updated.Status != database.PostStatusPending {
		t.Errorf("expected status 'pending', got %q", updated.Status)
	}
}

func TestRunPendingMarksFailureTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.client.failAll = true
	pair := env.createPair(t, database.PairStatusActive)
	post := env.createPendingPost(t, pair.ID, "104", "doomed", nil)

	if err := env.dispatcher.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending returned error: %v", err)
	}

	updated, err := env.posts.GetPost(post.ID)
	if err != nil {
		t.Fatalf("failed to reload post: %v", err)
	}
	if updated.Status != database.PostStatusFailed {
		t.Errorf("expected status 'failed', got %q", updated.Status)
	}
	if updated.Error == "" {
		t.Error("expected error message to be recorded")
	}

	// A failed post never re-enters the due scan.
	env.client.failAll = false
	if err := env.dispatcher.RunPending(context.Background()); err != nil {
		t.Fatalf("second RunPending returned error: %v", err)
	}
	if len(env.client.sent) != 0 {
		t.Errorf("expected failed post to stay terminal, got %d sends", len(env.client.sent))
	}
}

func TestRunPendingSkipsFuturePosts(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, database.PairStatusActive)
	post := env.createPendingPost(t, pair.ID, "105", "later", nil)

	future := time.Now().UTC().Add(30 * time.Minute)
	if err := env.posts.SetPostScheduledAt(post.ID, future); err != nil {
		t.Fatalf("failed to set scheduled time: %v", err)
	}

	if err := env.dispatcher.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending returned error: %v", err)
	}
	if len(env.client.sent) != 0 {
		t.Errorf("expected no sends before scheduled time, got %d", len(env.client.sent))
	}
}

func TestSchedulePostWithDelay(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, database.PairStatusActive)
	post := env.createPendingPost(t, pair.ID, "106", "delayed", nil)

	if err := env.dispatcher.SchedulePost(context.Background(), post.ID, 15); err != nil {
		t.Fatalf("SchedulePost returned error: %v", err)
	}

	if len(env.client.sent) != 0 {
		t.Errorf("expected no immediate send with delay, got %d", len(env.client.sent))
	}

	updated, err := env.posts.GetPost(post.ID)
	if err != nil {
		t.Fatalf("failed to reload post: %v", err)
	}
	if updated.ScheduledAt == nil {
		t.Fatal("expected scheduled_at to be set")
	}
	delay := time.Until(*updated.ScheduledAt)
	if delay < 14*time.Minute || delay > 16*time.Minute {
		t.Errorf("expected roughly 15 minute delay, got %v", delay)
	}
}

func TestSchedulePostZeroDelaySendsNow(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, database.PairStatusActive)
	post := env.createPendingPost(t, pair.ID, "107", "now", nil)

	if err := env.dispatcher.SchedulePost(context.Background(), post.ID, 0); err != nil {
		t.Fatalf("SchedulePost returned error: %v", err)
	}

	if len(env.client.sent) != 1 {
		t.Fatalf("expected 1 immediate send, got %d", len(env.client.sent))
	}

	updated, err := env.posts.GetPost(post.ID)
	if err != nil {
		t.Fatalf("failed to reload post: %v", err)
	}
	if updated.Status != database.PostStatusPosted {
		t.Errorf("expected status 'posted', got %q", updated.Status)
	}
}

func TestSchedulePostRejectsNonPendingPost(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, database.PairStatusActive)
	post := env.createPendingPost(t, pair.ID, "109", "once only", nil)

	if err := env.dispatcher.SchedulePost(context.Background(), post.ID, 0); err != nil {
		t.Fatalf("SchedulePost returned error: %v", err)
	}

	// A delivered post can never leave pending a second time.
	if err := env.dispatcher.SchedulePost(context.Background(), post.ID, 0); err == nil {
		t.Fatal("expected error re-sending a posted post")
	}
	if len(env.client.sent) != 1 {
		t.Errorf("expected exactly 1 delivery, got %d", len(env.client.sent))
	}
}

func TestSchedulePostZeroDelayRaisesSendError(t *testing.T) {
	env := newTestEnv(t)
	env.client.failAll = true
	pair := env.createPair(t, database.PairStatusActive)
	post := env.createPendingPost(t, pair.ID, "108", "now", nil)

	err := env.dispatcher.SchedulePost(context.Background(), post.ID, 0)
	if err == nil {
		t.Fatal("expected error from failed immediate send")
	}

	updated, reloadErr := env.posts.GetPost(post.ID)
	if reloadErr != nil {
		t.Fatalf("failed to reload post: %v", reloadErr)
	}
	if updated.Status != database.PostStatusFailed {
		t.Errorf("expected failure recorded before error returned, got %q", updated.Status)
	}
}

func TestRunScheduledPublishesDuePost(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, database.PairStatusActive)

	scheduled := &database.ScheduledPost{
		ChannelPairID: pair.ID,
		Title:         "Announcement",
		Content:       "body text",
		PublishAt:     time.Now().UTC().Add(-time.Minute),
	}
	if err := env.scheduled.CreateScheduledPost(scheduled); err != nil {
		t.Fatalf("failed to create scheduled post: %v", err)
	}

	if err := env.dispatcher.RunScheduled(context.Background()); err != nil {
		t.Fatalf("RunScheduled returned error: %v", err)
	}

	if len(env.client.sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(env.client.sent))
	}
	if env.client.sent[0].Text != "Announcement\n\nbody text" {
		t.Errorf("expected title prepended to content, got %q", env.client.sent[0].Text)
	}

	updated, err := env.scheduled.GetScheduledPost(scheduled.ID)
	if err != nil {
		t.Fatalf("failed to reload scheduled post: %v", err)
	}
	if updated.Status != database.ScheduledPostStatusPublished {
		t.Errorf("expected status 'published', got %q", updated.Status)
	}
	if updated.PublishedPostID == "" {
		t.Error("expected published post reference to be set")
	}

	published, err := env.posts.GetPost(updated.PublishedPostID)
	if err != nil {
		t.Fatalf("failed to load published post: %v", err)
	}
	if published == nil || published.Status != database.PostStatusPosted {
		t.Errorf("expected a posted post entity, got %+v", published)
	}
}

func TestRunScheduledMarksFailure(t *testing.T) {
	env := newTestEnv(t)
	env.client.failAll = true
	pair := env.createPair(t, database.PairStatusActive)

	scheduled := &database.ScheduledPost{
		ChannelPairID: pair.ID,
		Content:       "doomed",
		PublishAt:     time.Now().UTC().Add(-time.Minute),
	}
	if err := env.scheduled.CreateScheduledPost(scheduled); err != nil {
		t.Fatalf("failed to create scheduled post: %v", err)
	}

	if err := env.dispatcher.RunScheduled(context.Background()); err != nil {
		t.Fatalf("RunScheduled returned error: %v", err)
	}

	updated, err := env.scheduled.GetScheduledPost(scheduled.ID)
	if err != nil {
		t.Fatalf("failed to reload scheduled post: %v", err)
	}
	if updated.Status != database.ScheduledPostStatusFailed {
		t.Errorf("expected status 'failed', got %q", updated.Status)
	}
	if updated.Error == "" {
		t.Error("expected error message to be recorded")
	}
}

func TestPublishDraftCreatesScheduledPost(t *testing.T) {
	env := newTestEnv(t)
	pair := env.createPair(t, database.PairStatusActive)

	draft := &database.DraftPost{
		ChannelPairID:  &pair.ID,
		OriginalPostID: "d1",
		Content:        "reviewed content",
	}
	if err := env.drafts.CreateDraft(draft); err != nil {
		t.Fatalf("failed to create draft: %v", err)
	}

	scheduled, err := env.dispatcher.PublishDraft(context.Background(), draft.ID)
	if err != nil {
		t.Fatalf("PublishDraft returned error: %v", err)
	}
	if scheduled.Content != "reviewed content" {
		t.Errorf("expected draft content carried over, got %q", scheduled.Content)
	}
	if scheduled.PublishAt.After(time.Now().UTC().Add(time.Second)) {
		t.Errorf("expected immediate publish time, got %v", scheduled.PublishAt)
	}

	// The draft is gone, so the next scan delivers it.
	gone, err := env.drafts.GetDraft(draft.ID)
	if err != nil {
		t.Fatalf("failed to check draft: %v", err)
	}
	if gone != nil {
		t.Error("expected draft to be deleted after publishing")
	}

	if err := env.dispatcher.RunScheduled(context.Background()); err != nil {
		t.Fatalf("RunScheduled returned error: %v", err)
	}
	if len(env.client.sent) != 1 {
		t.Errorf("expected published draft to be sent, got %d sends", len(env.client.sent))
	}
}

func TestPublishDraftWithoutPairRejected(t *testing.T) {
	env := newTestEnv(t)

	source := &database.WebSource{URL: "https://example.com/feed", Kind: database.SourceKindRSS, Active: true}
	if err := env.sources.CreateSource(source); err != nil {
		t.Fatalf("failed to create source: %v", err)
	}

	draft := &database.DraftPost{
		WebSourceID:    &source.ID,
		OriginalPostID: "guid-1",
		Content:        "web content",
	}
	if err := env.drafts.CreateDraft(draft); err != nil {
		t.Fatalf("failed to create draft: %v", err)
	}

	if _, err := env.dispatcher.PublishDraft(context.Background(), draft.ID); err == nil {
		t.Fatal("expected error publishing a draft with no destination pair")
	}

	if _, err := env.dispatcher.PublishDraft(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown draft")
	}
}
