package collect

import (
	"context"
	"time"

	"crosspost/app/translate"
)

// Item is a normalized candidate produced by a collector before the intake
// dedup check.
type Item struct {
	OriginalID  string
	Title       string
	Content     string
	Media       []string
	SourceURL   string
	PublishedAt time.Time
}

// Collector is one polling loop: bot-API channels, public-web channels, or
// web feeds. Run performs a single tick; the task scheduler owns the cadence
// and guarantees Run is never re-entered concurrently with itself, which is
// what makes the collectors' in-memory high-water marks safe.
type Collector interface {
	Name() string
	Run(ctx context.Context) error
}

// PostScheduler is the dispatcher's scheduling entry point, consumed by the
// intake stage for zero-delay pairs where the post goes out immediately
// instead of waiting for a dispatch tick.
type PostScheduler interface {
	SchedulePost(ctx context.Context, postID string, delayMinutes int) error
}

// Translator is the translation collaborator; the intake stage runs it over
// web-sourced drafts. Failures are never fatal.
type Translator interface {
	Translate(ctx context.Context, text string) (*translate.Result, error)
}
