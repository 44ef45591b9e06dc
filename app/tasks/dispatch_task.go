package tasks

import (
	"context"
	"log/slog"

	"crosspost/app/dispatch"
)

// DispatchPendingTask runs one scan over due pending posts.
type DispatchPendingTask struct {
	Task
	dispatcher *dispatch.Dispatcher
}

func NewDispatchPendingTask(dispatcher *dispatch.Dispatcher) *DispatchPendingTask {
	return &DispatchPendingTask{
		Task:       NewTask(TaskTypeDispatchPending, "pending"),
		dispatcher: dispatcher,
	}
}

func (t *DispatchPendingTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.dispatcher.RunPending(ctx); err != nil {
		return err
	}

	slog.Debug("Task completed", "type", string(t.Type), "duration", t.GetDuration())

	return nil
}

// DispatchScheduledTask runs one scan over due scheduled posts.
type DispatchScheduledTask struct {
	Task
	dispatcher *dispatch.Dispatcher
}

func NewDispatchScheduledTask(dispatcher *dispatch.Dispatcher) *DispatchScheduledTask {
	return &DispatchScheduledTask{
		Task:       NewTask(TaskTypeDispatchScheduled, "scheduled"),
		dispatcher: dispatcher,
	}
}

func (t *DispatchScheduledTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.dispatcher.RunScheduled(ctx); err != nil {
		return err
	}

	slog.Debug("Task completed", "type", string(t.Type), "duration", t.GetDuration())

	return nil
}
