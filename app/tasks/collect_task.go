package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"crosspost/app/collect"
)

// CollectTask runs a single tick of one collector. Per-source failures are
// handled inside the collector; an error here means the whole tick failed and
// is worth retrying.
type CollectTask struct {
	Task
	collector collect.Collector
}

func NewCollectTask(collector collect.Collector) *CollectTask {
	return &CollectTask{
		Task:      NewTask(TaskTypeCollect, collector.Name()),
		collector: collector,
	}
}

func (t *CollectTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.collector.Run(ctx); err != nil {
		return fmt.Errorf("collector %s failed: %w", t.collector.Name(), err)
	}

	slog.Debug("Task completed", "type", string(t.Type), "collector", t.Subject, "duration", t.GetDuration())

	return nil
}
