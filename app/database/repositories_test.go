package database

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func createTestPair(t *testing.T, db *DB) *ChannelPair {
	t.Helper()

	pair := &ChannelPair{
		Source:      "source_channel",
		Destination: "dest_channel",
	}
	if err := NewPairRepository(db).CreatePair(pair); err != nil {
		t.Fatalf("Failed to create test pair: %v", err)
	}
	return pair
}

func TestPairRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewPairRepository(db)

	pair := &ChannelPair{
		Source:        "src",
		Destination:   "dst",
		PostingDelay:  15,
		StripMentions: true,
		BrandingText:  "via crosspost",
	}
	if err := repo.CreatePair(pair); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if pair.ID == "" {
		t.Fatal("Expected generated pair ID")
	}
	if pair.Status != PairStatusActive {
		t.Errorf("Expected default status 'active', got: %s", pair.Status)
	}
	if pair.CopyMode != CopyModeAutoPublish {
		t.Errorf("Expected default copy mode 'auto_publish', got: %s", pair.CopyMode)
	}

	got, err := repo.GetPair(pair.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got == nil {
		t.Fatal("Expected pair, got nil")
	}
	if got.Source != "src" || got.Destination != "dst" {
		t.Errorf("Unexpected pair fields: %+v", got)
	}
	if !got.StripMentions {
		t.Error("Expected strip_mentions to round-trip")
	}
	if got.PostingDelay != 15 {
		t.Errorf("Expected posting delay 15, got: %d", got.PostingDelay)
	}
}

func TestPairRepository_ActiveFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewPairRepository(db)

	active := createTestPair(t, db)
	paused := createTestPair(t, db)
	if err := repo.SetPairStatus(paused.ID, PairStatusPaused); err != nil {
		t.Fatalf("Failed to pause pair: %v", err)
	}

	pairs, err := repo.GetActivePairs()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("Expected 1 active pair, got %d", len(pairs))
	}
	if pairs[0].ID != active.ID {
		t.Errorf("Expected active pair %s, got %s", active.ID, pairs[0].ID)
	}
}

func TestPairRepository_DeleteCascades(t *testing.T) {
	db := newTestDB(t)
	pairRepo := NewPairRepository(db)
	postRepo := NewPostRepository(db)

	pair := createTestPair(t, db)
	post := &Post{ChannelPairID: pair.ID, OriginalPostID: "100", Content: "hi"}
	if err := postRepo.CreatePost(post); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}

	if err := pairRepo.DeletePair(pair.ID); err != nil {
		t.Fatalf("Failed to delete pair: %v", err)
	}

	got, err := postRepo.GetPost(post.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got != nil {
		t.Error("Expected post to be cascade-deleted with its pair")
	}
}

func TestPairRepository_CascadesOnFreshConnections(t *testing.T) {
	db := newTestDB(t)
	pairRepo := NewPairRepository(db)
	postRepo := NewPostRepository(db)

	pair := createTestPair(t, db)
	post := &Post{ChannelPairID: pair.ID, OriginalPostID: "100", Content: "hi"}
	if err := postRepo.CreatePost(post); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}

	// With no idle connections the pool opens a fresh one per statement;
	// foreign_keys must hold there too, not just on the first connection.
	db.SetMaxIdleConns(0)

	if err := pairRepo.DeletePair(pair.ID); err != nil {
		t.Fatalf("Failed to delete pair: %v", err)
	}

	got, err := postRepo.GetPost(post.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got != nil {
		t.Error("Expected cascade delete to run on a fresh pool connection")
	}
}

func TestPostRepository_DedupKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	pair := createTestPair(t, db)

	post := &Post{ChannelPairID: pair.ID, OriginalPostID: "42", Content: "first"}
	if err := repo.CreatePost(post); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	exists, err := repo.PostExists(pair.ID, "42")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !exists {
		t.Error("Expected post to exist for its dedup key")
	}

	dup := &Post{ChannelPairID: pair.ID, OriginalPostID: "42", Content: "second"}
	if err := repo.CreatePost(dup); err == nil {
		t.Error("Expected unique constraint violation for duplicate dedup key")
	}
}

func TestPostRepository_DuePendingPosts(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	pair := createTestPair(t, db)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &Post{ChannelPairID: pair.ID, OriginalPostID: "1", ScheduledAt: &past}
	unscheduled := &Post{ChannelPairID: pair.ID, OriginalPostID: "2"}
	notDue := &Post{ChannelPairID: pair.ID, OriginalPostID: "3", ScheduledAt: &future}

	for _, p := range []*Post{due, unscheduled, notDue} {
		if err := repo.CreatePost(p); err != nil {
			t.Fatalf("Failed to create post: %v", err)
		}
	}

	posts, err := repo.GetDuePendingPosts(now)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("Expected 1 due post, got %d", len(posts))
	}
	if posts[0].OriginalPostID != "1" {
		t.Errorf("Expected only the past-scheduled post to be due, got %q", posts[0].OriginalPostID)
	}
}

func TestPostRepository_StatusTransitions(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	pair := createTestPair(t, db)

	post := &Post{ChannelPairID: pair.ID, OriginalPostID: "7"}
	if err := repo.CreatePost(post); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}
	if post.Status != PostStatusPending {
		t.Errorf("Expected initial status 'pending', got: %s", post.Status)
	}

	postedAt := time.Now().UTC()
	if err := repo.MarkPostPosted(post.ID, postedAt); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, _ := repo.GetPost(post.ID)
	if got.Status != PostStatusPosted {
		t.Errorf("Expected status 'posted', got: %s", got.Status)
	}
	if got.PostedAt == nil {
		t.Error("Expected posted_at to be set")
	}

	failed := &Post{ChannelPairID: pair.ID, OriginalPostID: "8"}
	if err := repo.CreatePost(failed); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}
	if err := repo.MarkPostFailed(failed.ID, "destination rejected"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, _ = repo.GetPost(failed.ID)
	if got.Status != PostStatusFailed {
		t.Errorf("Expected status 'failed', got: %s", got.Status)
	}
	if got.Error != "destination rejected" {
		t.Errorf("Expected error message to be recorded, got: %q", got.Error)
	}
}

func TestPostRepository_TransitionsAreSingleShot(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	pair := createTestPair(t, db)

	post := &Post{ChannelPairID: pair.ID, OriginalPostID: "9"}
	if err := repo.CreatePost(post); err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}

	postedAt := time.Now().UTC()
	if err := repo.MarkPostPosted(post.ID, postedAt); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// Posted and failed are terminal: a second writer losing the race gets
	// an error instead of rewriting the row.
	if err := repo.MarkPostPosted(post.ID, postedAt); err == nil {
		t.Error("Expected error marking an already-posted post")
	}
	if err := repo.MarkPostFailed(post.ID, "late failure"); err == nil {
		t.Error("Expected error failing an already-posted post")
	}

	got, _ := repo.GetPost(post.ID)
	if got.Status != PostStatusPosted {
		t.Errorf("Expected status to stay 'posted', got: %s", got.Status)
	}
	if got.Error != "" {
		t.Errorf("Expected no error message on posted row, got: %q", got.Error)
	}
}

func TestScheduledPostRepository_DueAndTransitions(t *testing.T) {
	db := newTestDB(t)
	repo := NewScheduledPostRepository(db)
	pair := createTestPair(t, db)

	now := time.Now().UTC()
	due := &ScheduledPost{ChannelPairID: pair.ID, Title: "due", PublishAt: now.Add(-time.Minute)}
	notDue := &ScheduledPost{ChannelPairID: pair.ID, Title: "later", PublishAt: now.Add(time.Hour)}
	for _, p := range []*ScheduledPost{due, notDue} {
		if err := repo.CreateScheduledPost(p); err != nil {
			t.Fatalf("Failed to create scheduled post: %v", err)
		}
	}

	posts, err := repo.GetDueScheduledPosts(now)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != due.ID {
		t.Fatalf("Expected only the due scheduled post, got %d", len(posts))
	}

	if err := repo.MarkScheduledPostPublished(due.ID, "post-1", now); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	got, _ := repo.GetScheduledPost(due.ID)
	if got.Status != ScheduledPostStatusPublished {
		t.Errorf("Expected status 'published', got: %s", got.Status)
	}
	if got.PublishedPostID != "post-1" {
		t.Errorf("Expected published post reference, got: %q", got.PublishedPostID)
	}

	// Published entries are no longer due.
	posts, _ = repo.GetDueScheduledPosts(now.Add(time.Minute))
	if len(posts) != 0 {
		t.Errorf("Expected no due posts after publishing, got %d", len(posts))
	}
}

func TestScheduledPostRepository_Cancel(t *testing.T) {
	db := newTestDB(t)
	repo := NewScheduledPostRepository(db)
	pair := createTestPair(t, db)

	post := &ScheduledPost{ChannelPairID: pair.ID, PublishAt: time.Now().UTC().Add(time.Hour)}
	if err := repo.CreateScheduledPost(post); err != nil {
		t.Fatalf("Failed to create scheduled post: %v", err)
	}

	if err := repo.CancelScheduledPost(post.ID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	got, _ := repo.GetScheduledPost(post.ID)
	if got.Status != ScheduledPostStatusCancelled {
		t.Errorf("Expected status 'cancelled', got: %s", got.Status)
	}

	// Cancelling twice is rejected.
	if err := repo.CancelScheduledPost(post.ID); err == nil {
		t.Error("Expected error when cancelling a non-scheduled post")
	}
}

func TestDraftRepository_DedupKeys(t *testing.T) {
	db := newTestDB(t)
	repo := NewDraftRepository(db)
	pair := createTestPair(t, db)

	sourceRepo := NewSourceRepository(db)
	source := &WebSource{URL: "https://example.com/feed.xml", Kind: SourceKindRSS, Active: true}
	if err := sourceRepo.CreateSource(source); err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}

	pairDraft := &DraftPost{ChannelPairID: &pair.ID, OriginalPostID: "g1", Content: "a"}
	if err := repo.CreateDraft(pairDraft); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sourceDraft := &DraftPost{WebSourceID: &source.ID, OriginalPostID: "g1", Content: "b"}
	if err := repo.CreateDraft(sourceDraft); err != nil {
		t.Fatalf("Same original id under a different source key must be allowed: %v", err)
	}

	dup := &DraftPost{WebSourceID: &source.ID, OriginalPostID: "g1", Content: "c"}
	if err := repo.CreateDraft(dup); err == nil {
		t.Error("Expected unique constraint violation for duplicate source dedup key")
	}

	exists, err := repo.DraftExistsForSource(source.ID, "g1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !exists {
		t.Error("Expected draft to exist for source dedup key")
	}

	exists, _ = repo.DraftExistsForPair(pair.ID, "g1")
	if !exists {
		t.Error("Expected draft to exist for pair dedup key")
	}

	// A draft must reference exactly one owner.
	both := &DraftPost{ChannelPairID: &pair.ID, WebSourceID: &source.ID, OriginalPostID: "g2"}
	if err := repo.CreateDraft(both); err == nil {
		t.Error("Expected error when both foreign keys are set")
	}
	neither := &DraftPost{OriginalPostID: "g3"}
	if err := repo.CreateDraft(neither); err == nil {
		t.Error("Expected error when no foreign key is set")
	}
}

func TestDraftRepository_DeleteFreesKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewDraftRepository(db)
	pair := createTestPair(t, db)

	draft := &DraftPost{ChannelPairID: &pair.ID, OriginalPostID: "g1"}
	if err := repo.CreateDraft(draft); err != nil {
		t.Fatalf("Failed to create draft: %v", err)
	}
	if err := repo.DeleteDraft(draft.ID); err != nil {
		t.Fatalf("Failed to delete draft: %v", err)
	}

	again := &DraftPost{ChannelPairID: &pair.ID, OriginalPostID: "g1"}
	if err := repo.CreateDraft(again); err != nil {
		t.Errorf("Expected dedup key to be reusable after delete, got: %v", err)
	}
}

func TestSourceRepository_TouchLastParsedMonotonic(t *testing.T) {
	db := newTestDB(t)
	repo := NewSourceRepository(db)

	source := &WebSource{URL: "https://example.com", Kind: SourceKindHTML, Selector: ".post", Active: true}
	if err := repo.CreateSource(source); err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	if err := repo.TouchLastParsed(source.ID, second); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	// A stale write must not rewind the timestamp.
	if err := repo.TouchLastParsed(source.ID, first); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, _ := repo.GetSource(source.ID)
	if got.LastParsedAt == nil {
		t.Fatal("Expected last_parsed_at to be set")
	}
	if !got.LastParsedAt.Equal(second) {
		t.Errorf("Expected last_parsed_at %v, got %v", second, got.LastParsedAt)
	}
}

func TestActivityLogRepository_AppendAndRetention(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityLogRepository(db)
	pair := createTestPair(t, db)

	err := repo.Append("post_detected", "new post detected", &pair.ID, nil, map[string]any{"original_post_id": "42"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	entries, err := repo.GetEntries(10)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Type != "post_detected" {
		t.Errorf("Expected type 'post_detected', got: %s", entries[0].Type)
	}
	if entries[0].Metadata["original_post_id"] != "42" {
		t.Errorf("Expected metadata to round-trip, got: %v", entries[0].Metadata)
	}

	// Retention only removes entries older than the cutoff.
	deleted, err := repo.DeleteOlderThan(time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected no entries deleted, got %d", deleted)
	}

	deleted, err = repo.DeleteOlderThan(time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 entry deleted, got %d", deleted)
	}
}

func TestMarshalMedia(t *testing.T) {
	encoded, err := marshalMedia(nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if encoded != "[]" {
		t.Errorf("Expected nil media to encode as '[]', got: %s", encoded)
	}

	encoded, err = marshalMedia([]string{"https://example.com/a.jpg"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(encoded, "a.jpg") {
		t.Errorf("Expected encoded media to contain URL, got: %s", encoded)
	}
}
