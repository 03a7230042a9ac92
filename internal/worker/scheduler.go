package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/afterwords-app/afterwords/internal/config"
	"github.com/hibiken/asynq"
)

// StartScheduler creates and starts an Asynq Scheduler that enqueues the two
// periodic sweeps. Returns a stop function for graceful shutdown.
//
// Sweeps run on single-process timers; asynq.Unique keeps a second scheduler
// instance sharing the same redis from enqueueing duplicate sweep tasks, but
// true multi-instance coordination is out of scope.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	entries := []struct {
		schedule string
		taskType string
		timeout  time.Duration
	}{
		// Inactivity sweeps walk every user; give them room.
		{cfg.InactivitySweepSchedule, TaskInactivitySweep, 10 * time.Minute},
		{cfg.DateSweepSchedule, TaskDateSweep, 10 * time.Minute},
	}

	for _, entry := range entries {
		task := asynq.NewTask(
			entry.taskType,
			nil, // Empty payload - the handler queries everything itself
			asynq.MaxRetry(2),
			asynq.Timeout(entry.timeout),
			asynq.Retention(24*time.Hour),
			asynq.Unique(30*time.Minute), // Prevent duplicate if scheduler runs twice
		)

		entryID, err := scheduler.Register(entry.schedule, task)
		if err != nil {
			return nil, fmt.Errorf("failed to register %s schedule: %w", entry.taskType, err)
		}

		slog.Info(
			"Sweep scheduled",
			"task", entry.taskType,
			"schedule", entry.schedule,
			"entry_id", entryID,
		)
	}

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	return func() { scheduler.Shutdown() }, nil
}
