package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ ActivityLogRepository = (*activityLogRepository)(nil)

type activityLogRepository struct {
	db *DB
}

func NewActivityLogRepository(db *DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Append(entryType, description string, pairID, postID *string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO activity_logs (id, type, description, channel_pair_id, post_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), entryType, description, pairID, postID, string(meta), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append activity log entry: %w", err)
	}

	return nil
}

func (r *activityLogRepository) GetEntries(limit int) ([]ActivityLog, error) {
	rows, err := r.db.Query(`
		SELECT id, type, description, channel_pair_id, post_id, metadata, created_at
		FROM activity_logs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	defer rows.Close()

	var entries []ActivityLog
	for rows.Next() {
		var entry ActivityLog
		var meta string
		err := rows.Scan(&entry.ID, &entry.Type, &entry.Description,
			&entry.ChannelPairID, &entry.PostID, &meta, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log row: %w", err)
		}

		if err := json.Unmarshal([]byte(meta), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity log rows: %w", err)
	}

	return entries, nil
}

func (r *activityLogRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM activity_logs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old activity log entries: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted entries: %w", err)
	}

	return deleted, nil
}
