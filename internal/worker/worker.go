package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afterwords-app/afterwords/internal/config"
	"github.com/afterwords-app/afterwords/internal/delivery"
	"github.com/afterwords-app/afterwords/internal/trigger"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, evaluator *trigger.Evaluator, dispatcher *delivery.Dispatcher) error {
	srv, mux, err := newServer(cfg, evaluator, dispatcher)
	if err != nil {
		return err
	}

	// Run blocks and handles its own signal interception
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, evaluator *trigger.Evaluator, dispatcher *delivery.Dispatcher) (stop func(), err error) {
	srv, mux, err := newServer(cfg, evaluator, dispatcher)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, evaluator *trigger.Evaluator, dispatcher *delivery.Dispatcher) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     5,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	// Dedicated Redis client for sweep advisory locks, separate from the
	// Asynq internal connection.
	rdb, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sweep lock Redis client: %w", err)
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskInactivitySweep, handleSweep(logger, rdb, "inactivity", evaluator.InactivitySweep))
	mux.HandleFunc(TaskDateSweep, handleSweep(logger, rdb, "date", evaluator.DateSweep))
	mux.HandleFunc(TaskDeliverMessage, handleDeliverMessage(logger, dispatcher))

	logger.Info("Worker starting", "concurrency", 5, "redis", cfg.RedisURL)
	return srv, mux, nil
}

// handleSweep wraps one sweep function with the advisory lock. A sweep always
// runs to completion; per-item failures are handled inside the evaluator.
func handleSweep(logger *slog.Logger, rdb *redis.Client, name string, sweep func(context.Context) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		acquired, release := acquireSweepLock(ctx, rdb, name)
		if !acquired {
			logger.Info("Sweep already running elsewhere, skipping", "sweep", name)
			return nil
		}
		defer release()

		started := time.Now()
		if err := sweep(ctx); err != nil {
			return fmt.Errorf("%s sweep failed: %w", name, err)
		}

		logger.Info("Sweep finished", "sweep", name, "duration", time.Since(started).String())
		return nil
	}
}

// handleDeliverMessage processes manual-release delivery tasks.
func handleDeliverMessage(logger *slog.Logger, dispatcher *delivery.Dispatcher) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload struct {
			MessageID uint `json:"message_id"`
		}
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info("Processing message:deliver task", "message_id", payload.MessageID)

		result, err := dispatcher.Deliver(ctx, payload.MessageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Error("Message not found", "message_id", payload.MessageID)
				return fmt.Errorf("message not found: %w", asynq.SkipRetry)
			}
			// Load error - retryable
			return fmt.Errorf("delivery failed: %w", err)
		}

		logger.Info("Delivery task completed",
			"message_id", payload.MessageID,
			"delivered", result.Delivered,
			"failed", len(result.Failed),
		)
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
