package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"crosspost/app/collect"
	"crosspost/app/database"
	"crosspost/app/dispatch"
	"crosspost/app/tasks"
)

func NewHandler(pairRepo database.PairRepository, sourceRepo database.SourceRepository,
	postRepo database.PostRepository, scheduledRepo database.ScheduledPostRepository,
	draftRepo database.DraftRepository, activityRepo database.ActivityLogRepository,
	dispatcher *dispatch.Dispatcher, scheduler tasks.TaskSchedulerInterface,
	collectors map[string]collect.Collector) *Handler {
	return &Handler{
		pairRepo:      pairRepo,
		sourceRepo:    sourceRepo,
		postRepo:      postRepo,
		scheduledRepo: scheduledRepo,
		draftRepo:     draftRepo,
		activityRepo:  activityRepo,
		dispatcher:    dispatcher,
		scheduler:     scheduler,
		collectors:    collectors,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if pairCount, err := h.pairRepo.GetPairCount(); err == nil {
		health["pairs"] = pairCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if postStats, err := h.postRepo.GetPostStats(); err == nil {
		posts := map[string]int{}
		for status, count := range postStats {
			posts[string(status)] = count
		}
		stats["posts"] = posts
	}

	if pairs, err := h.pairRepo.GetPairs(); err == nil {
		active := 0
		for _, pair := range pairs {
			if pair.Status == database.PairStatusActive {
				active++
			}
		}
		stats["pairs"] = map[string]int{"total": len(pairs), "active": active}
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListPairs(c *gin.Context) {
	pairs, err := h.pairRepo.GetPairs()
	if err != nil {
		slog.Error("Database error", "operation", "get_pairs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	list := make([]map[string]interface{}, 0, len(pairs))
	for _, pair := range pairs {
		list = append(list, map[string]interface{}{
			"id":            pair.ID,
			"source":        pair.Source,
			"destination":   pair.Destination,
			"status":        pair.Status,
			"copy_mode":     pair.CopyMode,
			"posting_delay": pair.PostingDelay,
			"created_at":    pair.CreatedAt,
			"updated_at":    pair.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"pairs": list,
		"total": len(list),
	})
}

func (h *Handler) APICreatePair(c *gin.Context) {
	var req createPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.PostingDelay < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "posting_delay must not be negative"})
		return
	}
	copyMode := database.CopyMode(req.CopyMode)
	if copyMode != "" && copyMode != database.CopyModeAutoPublish && copyMode != database.CopyModeDraft {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown copy_mode"})
		return
	}

	pair := &database.ChannelPair{
		Source:         req.Source,
		Destination:    req.Destination,
		PostingDelay:   req.PostingDelay,
		StripMentions:  req.StripMentions,
		StripLinks:     req.StripLinks,
		AddWatermark:   req.AddWatermark,
		RemoveBranding: req.RemoveBranding,
		BrandingText:   req.BrandingText,
		AutoTranslate:  req.AutoTranslate,
		CopyMode:       copyMode,
	}
	if err := h.pairRepo.CreatePair(pair); err != nil {
		slog.Error("Database error", "operation", "create_pair", "error", err)
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Cannot create pair",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"pair": gin.H{
			"id":          pair.ID,
			"source":      pair.Source,
			"destination": pair.Destination,
			"status":      pair.Status,
			"copy_mode":   pair.CopyMode,
		},
	})
}

func (h *Handler) APIDeletePair(c *gin.Context) {
	id := c.Param("id")

	pair, err := h.pairRepo.GetPair(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_pair", "pair", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if pair == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pair not found"})
		return
	}

	if err := h.pairRepo.DeletePair(id); err != nil {
		slog.Error("Database error", "operation", "delete_pair", "pair", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "pair": id})
}

func (h *Handler) APIPausePair(c *gin.Context) {
	h.setPairStatus(c, database.PairStatusPaused)
}

func (h *Handler) APIResumePair(c *gin.Context) {
	h.setPairStatus(c, database.PairStatusActive)
}

func (h *Handler) setPairStatus(c *gin.Context, status database.PairStatus) {
	id := c.Param("id")

	pair, err := h.pairRepo.GetPair(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_pair", "pair", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if pair == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pair not found"})
		return
	}

	if err := h.pairRepo.SetPairStatus(id, status); err != nil {
		slog.Error("Database error", "operation", "set_pair_status", "pair", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pair":    id,
		"status":  status,
	})
}

func (h *Handler) APIListSources(c *gin.Context) {
	sources, err := h.sourceRepo.GetSources()
	if err != nil {
		slog.Error("Database error", "operation", "get_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	list := make([]map[string]interface{}, 0, len(sources))
	for _, source := range sources {
		list = append(list, map[string]interface{}{
			"id":             source.ID,
			"url":            source.URL,
			"kind":           source.Kind,
			"active":         source.Active,
			"poll_interval":  source.PollInterval,
			"last_parsed_at": source.LastParsedAt,
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": list,
		"total":   len(list),
	})
}

func (h *Handler) APICreateSource(c *gin.Context) {
	var req createSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	kind := database.SourceKind(req.Kind)
	switch kind {
	case database.SourceKindRSS:
	case database.SourceKindHTML:
		if req.Selector == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "HTML sources require a selector"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source kind"})
		return
	}

	source := &database.WebSource{
		URL:          req.URL,
		Kind:         kind,
		Selector:     req.Selector,
		Active:       true,
		PollInterval: req.PollInterval,
	}
	if err := h.sourceRepo.CreateSource(source); err != nil {
		slog.Error("Database error", "operation", "create_source", "error", err)
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Cannot create source",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"source": gin.H{
			"id":            source.ID,
			"url":           source.URL,
			"kind":          source.Kind,
			"active":        source.Active,
			"poll_interval": source.PollInterval,
		},
	})
}

func (h *Handler) APIDeleteSource(c *gin.Context) {
	id := c.Param("id")

	source, err := h.sourceRepo.GetSource(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	if err := h.sourceRepo.DeleteSource(id); err != nil {
		slog.Error("Database error", "operation", "delete_source", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "source": id})
}

func (h *Handler) APIEnableSource(c *gin.Context) {
	h.setSourceActive(c, true)
}

func (h *Handler) APIDisableSource(c *gin.Context) {
	h.setSourceActive(c, false)
}

func (h *Handler) setSourceActive(c *gin.Context, active bool) {
	id := c.Param("id")

	source, err := h.sourceRepo.GetSource(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	if err := h.sourceRepo.SetSourceActive(id, active); err != nil {
		slog.Error("Database error", "operation", "set_source_active", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"source":  id,
		"active":  active,
	})
}

// APITriggerCollector enqueues an out-of-cadence run of one collector. A
// run already in flight is reported as a conflict rather than queued twice.
func (h *Handler) APITriggerCollector(c *gin.Context) {
	name := c.Param("name")

	collector, ok := h.collectors[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown collector"})
		return
	}

	task := tasks.NewCollectTask(collector)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue collector run", "collector", name, "error", err)
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Failed to enqueue collector run",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

func (h *Handler) APIListPosts(c *gin.Context) {
	limit := queryLimit(c, 50)

	posts, err := h.postRepo.GetPosts(limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_posts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"posts": posts,
		"total": len(posts),
	})
}

// APISendPost bypasses the posting delay and delivers a post immediately.
func (h *Handler) APISendPost(c *gin.Context) {
	id := c.Param("id")

	post, err := h.postRepo.GetPost(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_post", "post", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if post == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if post.Status != database.PostStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "Post is not pending"})
		return
	}

	if err := h.dispatcher.SchedulePost(c.Request.Context(), id, 0); err != nil {
		slog.Error("Immediate send failed", "post", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Delivery failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "post": id})
}

func (h *Handler) APIListScheduledPosts(c *gin.Context) {
	limit := queryLimit(c, 50)

	posts, err := h.scheduledRepo.GetScheduledPosts(limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_scheduled_posts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"scheduled_posts": posts,
		"total":           len(posts),
	})
}

func (h *Handler) APICancelScheduledPost(c *gin.Context) {
	id := c.Param("id")

	post, err := h.scheduledRepo.GetScheduledPost(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_scheduled_post", "post", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if post == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scheduled post not found"})
		return
	}

	if err := h.scheduledRepo.CancelScheduledPost(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Cannot cancel scheduled post",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "scheduled_post": id})
}

func (h *Handler) APIListDrafts(c *gin.Context) {
	limit := queryLimit(c, 50)

	drafts, err := h.draftRepo.GetDrafts(limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_drafts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"drafts": drafts,
		"total":  len(drafts),
	})
}

func (h *Handler) APIUpdateDraft(c *gin.Context) {
	id := c.Param("id")

	var req updateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	draft, err := h.draftRepo.GetDraft(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_draft", "draft", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if draft == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Draft not found"})
		return
	}
	if draft.Status != database.DraftStatusDraft {
		c.JSON(http.StatusConflict, gin.H{"error": "Draft is not editable"})
		return
	}

	if err := h.draftRepo.UpdateDraftContent(id, req.Content); err != nil {
		slog.Error("Database error", "operation", "update_draft", "draft", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "draft": id})
}

func (h *Handler) APIPublishDraft(c *gin.Context) {
	id := c.Param("id")

	scheduled, err := h.dispatcher.PublishDraft(c.Request.Context(), id)
	if err != nil {
		slog.Error("Draft publish failed", "draft", id, "error", err)
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Cannot publish draft",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"draft":          id,
		"scheduled_post": scheduled.ID,
	})
}

func (h *Handler) APIDiscardDraft(c *gin.Context) {
	id := c.Param("id")

	draft, err := h.draftRepo.GetDraft(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_draft", "draft", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if draft == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Draft not found"})
		return
	}

	if err := h.draftRepo.MarkDraftDiscarded(id); err != nil {
		slog.Error("Database error", "operation", "discard_draft", "draft", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "draft": id})
}

func (h *Handler) APIListActivity(c *gin.Context) {
	limit := queryLimit(c, 100)

	entries, err := h.activityRepo.GetEntries(limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_activity", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 500 {
		return fallback
	}
	return limit
}
