package database

import (
	"time"
)

type PairStatus string

const (
	PairStatusActive PairStatus = "active"
	PairStatusPaused PairStatus = "paused"
	PairStatusError  PairStatus = "error"
)

type CopyMode string

const (
	CopyModeAutoPublish CopyMode = "auto_publish"
	CopyModeDraft       CopyMode = "draft_mode"
)

type PostStatus string

const (
	PostStatusPending PostStatus = "pending"
	PostStatusPosted  PostStatus = "posted"
	PostStatusFailed  PostStatus = "failed"
)

type ScheduledPostStatus string

const (
	ScheduledPostStatusScheduled ScheduledPostStatus = "scheduled"
	ScheduledPostStatusPublished ScheduledPostStatus = "published"
	ScheduledPostStatusFailed    ScheduledPostStatus = "failed"
	ScheduledPostStatusCancelled ScheduledPostStatus = "cancelled"
)

type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusPublished DraftStatus = "published"
	DraftStatusDiscarded DraftStatus = "discarded"
)

type SourceKind string

const (
	SourceKindRSS  SourceKind = "rss"
	SourceKindHTML SourceKind = "html"
)

// ChannelPair is a configured source-to-destination binding.
type ChannelPair struct {
	ID             string
	Source         string // source channel identifier
	Destination    string // destination channel identifier
	Status         PairStatus
	PostingDelay   int // minutes
	StripMentions  bool
	StripLinks     bool
	AddWatermark   bool
	RemoveBranding bool
	BrandingText   string
	AutoTranslate  bool
	CopyMode       CopyMode
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebSource is a standalone RSS or HTML feed not tied to a destination.
type WebSource struct {
	ID           string
	URL          string
	Kind         SourceKind
	Selector     string // CSS selector, HTML kind only
	Active       bool
	PollInterval int // minutes
	LastParsedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Post is one piece of source content detected via a ChannelPair collector.
// (ChannelPairID, OriginalPostID) is the dedup key.
type Post struct {
	ID             string
	ChannelPairID  string
	OriginalPostID string
	Content        string
	Media          []string
	Status         PostStatus
	Error          string
	ScheduledAt    *time.Time
	PostedAt       *time.Time
	CreatedAt      time.Time
}

// ScheduledPost is a post explicitly scheduled for an absolute publish time.
type ScheduledPost struct {
	ID              string
	ChannelPairID   string
	Title           string
	Content         string
	Media           []string
	PublishAt       time.Time
	Status          ScheduledPostStatus
	Error           string
	PublishedPostID string
	PublishedAt     *time.Time
	CreatedAt       time.Time
}

// DraftPost holds content for manual review. Exactly one of ChannelPairID
// and WebSourceID is set; together with OriginalPostID it forms the dedup key.
type DraftPost struct {
	ID              string
	ChannelPairID   *string
	WebSourceID     *string
	OriginalPostID  string
	OriginalContent string
	Content         string
	Media           []string
	Status          DraftStatus
	Translated      bool
	SourceLanguage  string
	SourceURL       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActivityLog is an append-only audit entry.
type ActivityLog struct {
	ID            string
	Type          string
	Description   string
	ChannelPairID *string
	PostID        *string
	Metadata      map[string]any
	CreatedAt     time.Time
}
