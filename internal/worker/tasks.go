package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskInactivitySweep = "sweep:inactivity"
	TaskDateSweep       = "sweep:date"
	TaskDeliverMessage  = "message:deliver"
)

// Package-level Asynq client for task enqueueing
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any EnqueueX functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// EnqueueDeliverMessage enqueues a delivery task for the given message ID.
// Used by the manual release flow, which must route through the dispatcher
// like every other trigger. Retries up to 3 times; the dispatcher itself is
// idempotent once the message leaves draft.
func EnqueueDeliverMessage(messageID uint) error {
	payload, err := json.Marshal(map[string]uint{
		"message_id": messageID,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(
		TaskDeliverMessage,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
	)

	_, err = client.Enqueue(task)
	return err
}
