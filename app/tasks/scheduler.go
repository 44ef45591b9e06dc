package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crosspost/app/cfg"
	"crosspost/app/collect"
	"crosspost/app/database"
	"crosspost/app/dispatch"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// housekeepingSchedule runs the retention prune daily at a quiet hour.
const housekeepingSchedule = "0 4 * * *"

type collectorEntry struct {
	collector    collect.Collector
	interval     time.Duration
	startupDelay time.Duration
}

// Scheduler owns the worker pool and the polling cadences. Each collector
// gets its own ticker; a per-task-kind in-flight guard makes sure a slow tick
// is skipped rather than overlapped, which is what keeps the collectors'
// unsynchronized high-water marks safe.
type Scheduler struct {
	collectors       []collectorEntry
	dispatcher       *dispatch.Dispatcher
	activityRepo     database.ActivityLogRepository
	retentionDays    int
	dispatchInterval time.Duration
	workerCount      int
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	taskQueue        chan TaskInterface
	cron             *cron.Cron
	inFlight         sync.Map
}

func NewScheduler(dispatcher *dispatch.Dispatcher, activityRepo database.ActivityLogRepository) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		dispatcher:       dispatcher,
		activityRepo:     activityRepo,
		retentionDays:    cfg.LogRetentionDays,
		dispatchInterval: time.Duration(cfg.DispatchInterval) * time.Second,
		workerCount:      cfg.WorkerCount,
		ctx:              ctx,
		cancel:           cancel,
		taskQueue:        make(chan TaskInterface, 300),
		cron:             cron.New(),
	}
}

// RegisterCollector adds a collector with its own polling cadence and an
// optional delay before the first run. Must be called before Start.
func (s *Scheduler) RegisterCollector(collector collect.Collector, interval, startupDelay time.Duration) {
	s.collectors = append(s.collectors, collectorEntry{
		collector:    collector,
		interval:     interval,
		startupDelay: startupDelay,
	})
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	for _, entry := range s.collectors {
		s.wg.Add(1)
		go s.runTicker(entry.interval, entry.startupDelay, func() {
			s.enqueueIfIdle(NewCollectTask(entry.collector))
		})
	}

	s.wg.Add(1)
	go s.runTicker(s.dispatchInterval, 0, func() {
		s.enqueueIfIdle(NewDispatchPendingTask(s.dispatcher))
		s.enqueueIfIdle(NewDispatchScheduledTask(s.dispatcher))
	})

	if _, err := s.cron.AddFunc(housekeepingSchedule, func() {
		s.enqueueIfIdle(NewHousekeepingTask(s.activityRepo, s.retentionDays))
	}); err != nil {
		slog.Error("Failed to register housekeeping schedule", "error", err)
	}
	s.cron.Start()

	slog.Debug("Task scheduler started", "workers", s.workerCount, "collectors", len(s.collectors))
}

func (s *Scheduler) Stop() {
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

// EnqueueTask queues a task unless one of the same kind is already queued or
// running. Used by the tickers and by API-triggered manual runs.
func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	key := taskKey(task)
	if _, busy := s.inFlight.LoadOrStore(key, struct{}{}); busy {
		return fmt.Errorf("task %s is already in flight", key)
	}

	if err := s.enqueue(task); err != nil {
		s.inFlight.Delete(key)
		return err
	}

	return nil
}

func (s *Scheduler) enqueueIfIdle(task TaskInterface) {
	if err := s.EnqueueTask(task); err != nil {
		slog.Debug("Tick skipped", "type", string(task.GetType()), "subject", task.GetSubject(), "reason", err)
	}
}

// enqueue bypasses the in-flight guard; used for retries, which still hold
// their key.
func (s *Scheduler) enqueue(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) runTicker(interval, startupDelay time.Duration, tick func()) {
	defer s.wg.Done()

	if startupDelay > 0 {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(startupDelay):
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.inFlight.Delete(taskKey(task))
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()),
		"id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(),
			"retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		s.inFlight.Delete(taskKey(task))
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(),
		"retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	// The retry keeps holding the in-flight key so ticks during the backoff
	// window stay skipped. The goroutine joins the WaitGroup so Stop never
	// closes the queue while a re-enqueue is still possible.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			s.inFlight.Delete(taskKey(task))
			return
		case <-time.After(retryDelay):
		}

		if retryErr := s.enqueue(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()),
				"id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			s.inFlight.Delete(taskKey(task))
		}
	}()
}

func taskKey(task TaskInterface) string {
	return string(task.GetType()) + "/" + task.GetSubject()
}
