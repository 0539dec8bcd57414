package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrityScan verifies movements mirror their source records.
	TaskLedgerIntegrityScan = "ledger:integrity_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// IntegrityScanPayload configures an integrity scan run.
type IntegrityScanPayload struct {
	// MaxLogged caps the anomalies logged individually; the rest are only counted.
	MaxLogged int `json:"max_logged,omitempty"`
}

// IdempotencyCleanupPayload overrides the configured retention when set.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// NewIntegrityScanTask constructs the integrity scan task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, data, asynq.MaxRetry(1), asynq.Timeout(10*time.Minute)), nil
}

// NewIdempotencyCleanupTask constructs the idempotency cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(3)), nil
}

// NewTask builds a task by type with an empty payload, used by the CLI.
func NewTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskLedgerIntegrityScan:
		return NewIntegrityScanTask(IntegrityScanPayload{})
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	default:
		return nil, ErrUnknownTask
	}
}
