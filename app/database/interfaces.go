package database

import (
	"time"
)

type PairRepository interface {
	CreatePair(pair *ChannelPair) error
	UpdatePair(pair *ChannelPair) error
	DeletePair(id string) error
	GetPair(id string) (*ChannelPair, error)
	GetPairs() ([]ChannelPair, error)
	GetActivePairs() ([]ChannelPair, error)
	SetPairStatus(id string, status PairStatus) error
	GetPairCount() (int, error)
}

type SourceRepository interface {
	CreateSource(source *WebSource) error
	UpdateSource(source *WebSource) error
	DeleteSource(id string) error
	GetSource(id string) (*WebSource, error)
	GetSources() ([]WebSource, error)
	GetActiveSources() ([]WebSource, error)
	SetSourceActive(id string, active bool) error
	TouchLastParsed(id string, parsedAt time.Time) error
}

type PostRepository interface {
	CreatePost(post *Post) error
	GetPost(id string) (*Post, error)
	GetPosts(limit int) ([]Post, error)
	PostExists(pairID, originalPostID string) (bool, error)
	GetDuePendingPosts(now time.Time) ([]Post, error)
	SetPostScheduledAt(id string, scheduledAt time.Time) error
	MarkPostPosted(id string, postedAt time.Time) error
	MarkPostFailed(id string, errMsg string) error
	GetPostStats() (map[PostStatus]int, error)
}

type ScheduledPostRepository interface {
	CreateScheduledPost(post *ScheduledPost) error
	GetScheduledPost(id string) (*ScheduledPost, error)
	GetScheduledPosts(limit int) ([]ScheduledPost, error)
	GetDueScheduledPosts(now time.Time) ([]ScheduledPost, error)
	MarkScheduledPostPublished(id, publishedPostID string, publishedAt time.Time) error
	MarkScheduledPostFailed(id string, errMsg string) error
	CancelScheduledPost(id string) error
}

type DraftRepository interface {
	CreateDraft(draft *DraftPost) error
	UpdateDraftContent(id, content string) error
	DeleteDraft(id string) error
	GetDraft(id string) (*DraftPost, error)
	GetDrafts(limit int) ([]DraftPost, error)
	DraftExistsForPair(pairID, originalPostID string) (bool, error)
	DraftExistsForSource(sourceID, originalPostID string) (bool, error)
	MarkDraftDiscarded(id string) error
}

type ActivityLogRepository interface {
	Append(entryType, description string, pairID, postID *string, metadata map[string]any) error
	GetEntries(limit int) ([]ActivityLog, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}
