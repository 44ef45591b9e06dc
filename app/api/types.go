package api

import (
	"crosspost/app/collect"
	"crosspost/app/database"
	"crosspost/app/dispatch"
	"crosspost/app/tasks"
)

type Handler struct {
	pairRepo      database.PairRepository
	sourceRepo    database.SourceRepository
	postRepo      database.PostRepository
	scheduledRepo database.ScheduledPostRepository
	draftRepo     database.DraftRepository
	activityRepo  database.ActivityLogRepository
	dispatcher    *dispatch.Dispatcher
	scheduler     tasks.TaskSchedulerInterface
	collectors    map[string]collect.Collector
}

type updateDraftRequest struct {
	Content string `json:"content" binding:"required"`
}

type createPairRequest struct {
	Source         string `json:"source" binding:"required"`
	Destination    string `json:"destination" binding:"required"`
	PostingDelay   int    `json:"posting_delay"`
	StripMentions  bool   `json:"strip_mentions"`
	StripLinks     bool   `json:"strip_links"`
	AddWatermark   bool   `json:"add_watermark"`
	RemoveBranding bool   `json:"remove_branding"`
	BrandingText   string `json:"branding_text"`
	AutoTranslate  bool   `json:"auto_translate"`
	CopyMode       string `json:"copy_mode"`
}

type createSourceRequest struct {
	URL          string `json:"url" binding:"required"`
	Kind         string `json:"kind" binding:"required"`
	Selector     string `json:"selector"`
	PollInterval int    `json:"poll_interval"`
}
