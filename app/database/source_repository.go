package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ SourceRepository = (*sourceRepository)(nil)

type sourceRepository struct {
	db *DB
}

func NewSourceRepository(db *DB) SourceRepository {
	return &sourceRepository{db: db}
}

const sourceColumns = `id, url, kind, selector, active, poll_interval,
	last_parsed_at, created_at, updated_at`

func (r *sourceRepository) CreateSource(source *WebSource) error {
	if source.ID == "" {
		source.ID = uuid.New().String()
	}
	if source.PollInterval <= 0 {
		source.PollInterval = 5
	}
	now := time.Now().UTC()
	source.CreatedAt = now
	source.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO web_sources (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, source.ID, source.URL, source.Kind, source.Selector, source.Active,
		source.PollInterval, nullableTime(source.LastParsedAt), source.CreatedAt, source.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	return nil
}

func (r *sourceRepository) UpdateSource(source *WebSource) error {
	source.UpdatedAt = time.Now().UTC()

	_, err := r.db.Exec(`
		UPDATE web_sources
		SET url = ?, kind = ?, selector = ?, active = ?, poll_interval = ?, updated_at = ?
		WHERE id = ?
	`, source.URL, source.Kind, source.Selector, source.Active,
		source.PollInterval, source.UpdatedAt, source.ID)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	return nil
}

func (r *sourceRepository) DeleteSource(id string) error {
	_, err := r.db.Exec(`DELETE FROM web_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

func (r *sourceRepository) GetSource(id string) (*WebSource, error) {
	row := r.db.QueryRow(`SELECT `+sourceColumns+` FROM web_sources WHERE id = ?`, id)

	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	return source, nil
}

func (r *sourceRepository) GetSources() ([]WebSource, error) {
	return r.querySources(`SELECT ` + sourceColumns + ` FROM web_sources ORDER BY created_at`)
}

func (r *sourceRepository) GetActiveSources() ([]WebSource, error) {
	return r.querySources(`SELECT ` + sourceColumns + ` FROM web_sources WHERE active = 1 ORDER BY created_at`)
}

func (r *sourceRepository) SetSourceActive(id string, active bool) error {
	_, err := r.db.Exec(`
		UPDATE web_sources SET active = ?, updated_at = ? WHERE id = ?
	`, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set source active status: %w", err)
	}
	return nil
}

// TouchLastParsed advances last_parsed_at. The timestamp only moves forward,
// so an out-of-order write from a stale tick cannot rewind it.
func (r *sourceRepository) TouchLastParsed(id string, parsedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE web_sources
		SET last_parsed_at = ?, updated_at = ?
		WHERE id = ? AND (last_parsed_at IS NULL OR last_parsed_at < ?)
	`, parsedAt.UTC(), time.Now().UTC(), id, parsedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update last parsed time: %w", err)
	}
	return nil
}

func (r *sourceRepository) querySources(query string, args ...any) ([]WebSource, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []WebSource
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

func scanSource(row rowScanner) (*WebSource, error) {
	var source WebSource
	err := row.Scan(
		&source.ID, &source.URL, &source.Kind, &source.Selector, &source.Active,
		&source.PollInterval, &source.LastParsedAt, &source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
