package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ PostRepository = (*postRepository)(nil)

type postRepository struct {
	db *DB
}

func NewPostRepository(db *DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, channel_pair_id, original_post_id, content, media,
	status, error, scheduled_at, posted_at, created_at`

func (r *postRepository) CreatePost(post *Post) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.Status == "" {
		post.Status = PostStatusPending
	}
	post.CreatedAt = time.Now().UTC()

	media, err := marshalMedia(post.Media)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, post.ID, post.ChannelPairID, post.OriginalPostID, post.Content, media,
		post.Status, post.Error, nullableTime(post.ScheduledAt),
		nullableTime(post.PostedAt), post.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}

	return nil
}

func (r *postRepository) GetPost(id string) (*Post, error) {
	row := r.db.QueryRow(`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return post, nil
}

func (r *postRepository) GetPosts(limit int) ([]Post, error) {
	return r.queryPosts(`
		SELECT `+postColumns+` FROM posts
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
}

// PostExists reports whether the (pair, original id) dedup key is already
// recorded. This is the correctness backstop behind the collectors'
// in-memory high-water marks.
func (r *postRepository) PostExists(pairID, originalPostID string) (bool, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM posts
		WHERE channel_pair_id = ? AND original_post_id = ?
	`, pairID, originalPostID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check post existence: %w", err)
	}
	return count > 0, nil
}

// GetDuePendingPosts returns pending posts whose scheduled time has passed.
// A pending post with no scheduled time is never due; the intake persists the
// posting delay together with the insert, so an unscheduled pending row can
// only mean the writer has not finished yet.
func (r *postRepository) GetDuePendingPosts(now time.Time) ([]Post, error) {
	return r.queryPosts(`
		SELECT `+postColumns+` FROM posts
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY created_at
		LIMIT 100
	`, PostStatusPending, now.UTC())
}

func (r *postRepository) SetPostScheduledAt(id string, scheduledAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE posts SET scheduled_at = ? WHERE id = ?
	`, scheduledAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set post scheduled time: %w", err)
	}
	return nil
}

// MarkPostPosted transitions a pending post to posted. The status guard keeps
// posted and failed terminal: a post can leave pending exactly once, even when
// two senders race on the same row.
func (r *postRepository) MarkPostPosted(id string, postedAt time.Time) error {
	result, err := r.db.Exec(`
		UPDATE posts SET status = ?, posted_at = ?, error = ''
		WHERE id = ? AND status = ?
	`, PostStatusPosted, postedAt.UTC(), id, PostStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark post as posted: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("post %s is not pending", id)
	}
	return nil
}

func (r *postRepository) MarkPostFailed(id string, errMsg string) error {
	result, err := r.db.Exec(`
		UPDATE posts SET status = ?, error = ?
		WHERE id = ? AND status = ?
	`, PostStatusFailed, errMsg, id, PostStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark post as failed: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("post %s is not pending", id)
	}
	return nil
}

func (r *postRepository) GetPostStats() (map[PostStatus]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM posts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to get post stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[PostStatus]int)
	for rows.Next() {
		var status PostStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats rows: %w", err)
	}

	return stats, nil
}

func (r *postRepository) queryPosts(query string, args ...any) ([]Post, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, *post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}

	return posts, nil
}

func scanPost(row rowScanner) (*Post, error) {
	var post Post
	var media string
	err := row.Scan(
		&post.ID, &post.ChannelPairID, &post.OriginalPostID, &post.Content, &media,
		&post.Status, &post.Error, &post.ScheduledAt, &post.PostedAt, &post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(media), &post.Media); err != nil {
		return nil, fmt.Errorf("failed to decode media list: %w", err)
	}

	return &post, nil
}

func marshalMedia(media []string) (string, error) {
	if media == nil {
		media = []string{}
	}
	data, err := json.Marshal(media)
	if err != nil {
		return "", fmt.Errorf("failed to encode media list: %w", err)
	}
	return string(data), nil
}
