package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ PairRepository = (*pairRepository)(nil)

type pairRepository struct {
	db *DB
}

func NewPairRepository(db *DB) PairRepository {
	return &pairRepository{db: db}
}

const pairColumns = `id, source, destination, status, posting_delay,
	strip_mentions, strip_links, add_watermark, remove_branding,
	branding_text, auto_translate, copy_mode, created_at, updated_at`

func (r *pairRepository) CreatePair(pair *ChannelPair) error {
	if pair.ID == "" {
		pair.ID = uuid.New().String()
	}
	if pair.Status == "" {
		pair.Status = PairStatusActive
	}
	if pair.CopyMode == "" {
		pair.CopyMode = CopyModeAutoPublish
	}
	now := time.Now().UTC()
	pair.CreatedAt = now
	pair.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO channel_pairs (`+pairColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pair.ID, pair.Source, pair.Destination, pair.Status, pair.PostingDelay,
		pair.StripMentions, pair.StripLinks, pair.AddWatermark, pair.RemoveBranding,
		pair.BrandingText, pair.AutoTranslate, pair.CopyMode, pair.CreatedAt, pair.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pair: %w", err)
	}

	return nil
}

func (r *pairRepository) UpdatePair(pair *ChannelPair) error {
	pair.UpdatedAt = time.Now().UTC()

	_, err := r.db.Exec(`
		UPDATE channel_pairs
		SET source = ?, destination = ?, status = ?, posting_delay = ?,
		    strip_mentions = ?, strip_links = ?, add_watermark = ?,
		    remove_branding = ?, branding_text = ?, auto_translate = ?,
		    copy_mode = ?, updated_at = ?
		WHERE id = ?
	`, pair.Source, pair.Destination, pair.Status, pair.PostingDelay,
		pair.StripMentions, pair.StripLinks, pair.AddWatermark,
		pair.RemoveBranding, pair.BrandingText, pair.AutoTranslate,
		pair.CopyMode, pair.UpdatedAt, pair.ID)
	if err != nil {
		return fmt.Errorf("failed to update pair: %w", err)
	}

	return nil
}

func (r *pairRepository) DeletePair(id string) error {
	_, err := r.db.Exec(`DELETE FROM channel_pairs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pair: %w", err)
	}
	return nil
}

func (r *pairRepository) GetPair(id string) (*ChannelPair, error) {
	row := r.db.QueryRow(`SELECT `+pairColumns+` FROM channel_pairs WHERE id = ?`, id)

	pair, err := scanPair(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pair: %w", err)
	}

	return pair, nil
}

func (r *pairRepository) GetPairs() ([]ChannelPair, error) {
	return r.queryPairs(`SELECT ` + pairColumns + ` FROM channel_pairs ORDER BY created_at`)
}

func (r *pairRepository) GetActivePairs() ([]ChannelPair, error) {
	return r.queryPairs(`SELECT `+pairColumns+` FROM channel_pairs WHERE status = ? ORDER BY created_at`, PairStatusActive)
}

func (r *pairRepository) SetPairStatus(id string, status PairStatus) error {
	_, err := r.db.Exec(`
		UPDATE channel_pairs SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set pair status: %w", err)
	}
	return nil
}

func (r *pairRepository) GetPairCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM channel_pairs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get pair count: %w", err)
	}
	return count, nil
}

func (r *pairRepository) queryPairs(query string, args ...any) ([]ChannelPair, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairs: %w", err)
	}
	defer rows.Close()

	var pairs []ChannelPair
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pair row: %w", err)
		}
		pairs = append(pairs, *pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pair rows: %w", err)
	}

	return pairs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPair(row rowScanner) (*ChannelPair, error) {
	var pair ChannelPair
	err := row.Scan(
		&pair.ID, &pair.Source, &pair.Destination, &pair.Status, &pair.PostingDelay,
		&pair.StripMentions, &pair.StripLinks, &pair.AddWatermark, &pair.RemoveBranding,
		&pair.BrandingText, &pair.AutoTranslate, &pair.CopyMode, &pair.CreatedAt, &pair.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}
