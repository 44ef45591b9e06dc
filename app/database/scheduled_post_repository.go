package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ ScheduledPostRepository = (*scheduledPostRepository)(nil)

type scheduledPostRepository struct {
	db *DB
}

func NewScheduledPostRepository(db *DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

const scheduledPostColumns = `id, channel_pair_id, title, content, media,
	publish_at, status, error, published_post_id, published_at, created_at`

func (r *scheduledPostRepository) CreateScheduledPost(post *ScheduledPost) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.Status == "" {
		post.Status = ScheduledPostStatusScheduled
	}
	post.CreatedAt = time.Now().UTC()

	media, err := marshalMedia(post.Media)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO scheduled_posts (`+scheduledPostColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, post.ID, post.ChannelPairID, post.Title, post.Content, media,
		post.PublishAt.UTC(), post.Status, post.Error, post.PublishedPostID,
		nullableTime(post.PublishedAt), post.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scheduled post: %w", err)
	}

	return nil
}

func (r *scheduledPostRepository) GetScheduledPost(id string) (*ScheduledPost, error) {
	row := r.db.QueryRow(`SELECT `+scheduledPostColumns+` FROM scheduled_posts WHERE id = ?`, id)

	post, err := scanScheduledPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled post: %w", err)
	}

	return post, nil
}

func (r *scheduledPostRepository) GetScheduledPosts(limit int) ([]ScheduledPost, error) {
	return r.queryScheduledPosts(`
		SELECT `+scheduledPostColumns+` FROM scheduled_posts
		ORDER BY publish_at DESC
		LIMIT ?
	`, limit)
}

func (r *scheduledPostRepository) GetDueScheduledPosts(now time.Time) ([]ScheduledPost, error) {
	return r.queryScheduledPosts(`
		SELECT `+scheduledPostColumns+` FROM scheduled_posts
		WHERE status = ? AND publish_at <= ?
		ORDER BY publish_at
		LIMIT 100
	`, ScheduledPostStatusScheduled, now.UTC())
}

func (r *scheduledPostRepository) MarkScheduledPostPublished(id, publishedPostID string, publishedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE scheduled_posts
		SET status = ?, published_post_id = ?, published_at = ?, error = ''
		WHERE id = ?
	`, ScheduledPostStatusPublished, publishedPostID, publishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark scheduled post as published: %w", err)
	}
	return nil
}

func (r *scheduledPostRepository) MarkScheduledPostFailed(id string, errMsg string) error {
	_, err := r.db.Exec(`
		UPDATE scheduled_posts SET status = ?, error = ? WHERE id = ?
	`, ScheduledPostStatusFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark scheduled post as failed: %w", err)
	}
	return nil
}

// CancelScheduledPost is a manual transition; only still-scheduled entries
// can be cancelled.
func (r *scheduledPostRepository) CancelScheduledPost(id string) error {
	res, err := r.db.Exec(`
		UPDATE scheduled_posts SET status = ? WHERE id = ? AND status = ?
	`, ScheduledPostStatusCancelled, id, ScheduledPostStatusScheduled)
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled post: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cancel result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("scheduled post %s is not in a cancellable state", id)
	}

	return nil
}

func (r *scheduledPostRepository) queryScheduledPosts(query string, args ...any) ([]ScheduledPost, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled posts: %w", err)
	}
	defer rows.Close()

	var posts []ScheduledPost
	for rows.Next() {
		post, err := scanScheduledPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled post row: %w", err)
		}
		posts = append(posts, *post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled post rows: %w", err)
	}

	return posts, nil
}

func scanScheduledPost(row rowScanner) (*ScheduledPost, error) {
	var post ScheduledPost
	var media string
	err := row.Scan(
		&post.ID, &post.ChannelPairID, &post.Title, &post.Content, &media,
		&post.PublishAt, &post.Status, &post.Error, &post.PublishedPostID,
		&post.PublishedAt, &post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(media), &post.Media); err != nil {
		return nil, fmt.Errorf("failed to decode media list: %w", err)
	}

	return &post, nil
}
