package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crosspost/app/database"
)

// HousekeepingTask prunes activity log entries older than the retention
// window. Scheduled daily; the queue-full case just waits for the next day.
type HousekeepingTask struct {
	Task
	activityRepo  database.ActivityLogRepository
	retentionDays int
}

func NewHousekeepingTask(activityRepo database.ActivityLogRepository, retentionDays int) *HousekeepingTask {
	return &HousekeepingTask{
		Task:          NewTask(TaskTypeHousekeeping, "activity_log"),
		activityRepo:  activityRepo,
		retentionDays: retentionDays,
	}
}

func (t *HousekeepingTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -t.retentionDays)

	deleted, err := t.activityRepo.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune activity log: %w", err)
	}

	slog.Info("Task completed", "type", string(t.Type), "duration", t.GetDuration(),
		"cutoff", cutoff, "deleted", deleted)

	return nil
}
