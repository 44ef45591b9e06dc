package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ DraftRepository = (*draftRepository)(nil)

type draftRepository struct {
	db *DB
}

func NewDraftRepository(db *DB) DraftRepository {
	return &draftRepository{db: db}
}

const draftColumns = `id, channel_pair_id, web_source_id, original_post_id,
	original_content, content, media, status, translated, source_language,
	source_url, created_at, updated_at`

func (r *draftRepository) CreateDraft(draft *DraftPost) error {
	if (draft.ChannelPairID == nil) == (draft.WebSourceID == nil) {
		return fmt.Errorf("draft must reference exactly one of channel pair or web source")
	}

	if draft.ID == "" {
		draft.ID = uuid.New().String()
	}
	if draft.Status == "" {
		draft.Status = DraftStatusDraft
	}
	now := time.Now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	media, err := marshalMedia(draft.Media)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO draft_posts (`+draftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, draft.ID, draft.ChannelPairID, draft.WebSourceID, draft.OriginalPostID,
		draft.OriginalContent, draft.Content, media, draft.Status,
		draft.Translated, draft.SourceLanguage, draft.SourceURL,
		draft.CreatedAt, draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}

	return nil
}

func (r *draftRepository) UpdateDraftContent(id, content string) error {
	_, err := r.db.Exec(`
		UPDATE draft_posts SET content = ?, updated_at = ? WHERE id = ?
	`, content, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update draft content: %w", err)
	}
	return nil
}

func (r *draftRepository) DeleteDraft(id string) error {
	_, err := r.db.Exec(`DELETE FROM draft_posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func (r *draftRepository) GetDraft(id string) (*DraftPost, error) {
	row := r.db.QueryRow(`SELECT `+draftColumns+` FROM draft_posts WHERE id = ?`, id)

	draft, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	return draft, nil
}

func (r *draftRepository) GetDrafts(limit int) ([]DraftPost, error) {
	rows, err := r.db.Query(`
		SELECT `+draftColumns+` FROM draft_posts
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, DraftStatusDraft, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []DraftPost
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft row: %w", err)
		}
		drafts = append(drafts, *draft)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draft rows: %w", err)
	}

	return drafts, nil
}

func (r *draftRepository) DraftExistsForPair(pairID, originalPostID string) (bool, error) {
	return r.exists(`
		SELECT COUNT(*) FROM draft_posts
		WHERE channel_pair_id = ? AND original_post_id = ?
	`, pairID, originalPostID)
}

func (r *draftRepository) DraftExistsForSource(sourceID, originalPostID string) (bool, error) {
	return r.exists(`
		SELECT COUNT(*) FROM draft_posts
		WHERE web_source_id = ? AND original_post_id = ?
	`, sourceID, originalPostID)
}

func (r *draftRepository) MarkDraftDiscarded(id string) error {
	_, err := r.db.Exec(`
		UPDATE draft_posts SET status = ?, updated_at = ? WHERE id = ?
	`, DraftStatusDiscarded, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to discard draft: %w", err)
	}
	return nil
}

func (r *draftRepository) exists(query string, args ...any) (bool, error) {
	var count int
	err := r.db.QueryRow(query, args...).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check draft existence: %w", err)
	}
	return count > 0, nil
}

func scanDraft(row rowScanner) (*DraftPost, error) {
	var draft DraftPost
	var media string
	err := row.Scan(
		&draft.ID, &draft.ChannelPairID, &draft.WebSourceID, &draft.OriginalPostID,
		&draft.OriginalContent, &draft.Content, &media, &draft.Status,
		&draft.Translated, &draft.SourceLanguage, &draft.SourceURL,
		&draft.CreatedAt, &draft.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(media), &draft.Media); err != nil {
		return nil, fmt.Errorf("failed to decode media list: %w", err)
	}

	return &draft, nil
}
