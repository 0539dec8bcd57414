package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pocketledger/pocketledger/internal/jobs"
	"github.com/pocketledger/pocketledger/internal/ledger"
)

const defaultMaxLogged = 200

// IntegrityChecker reports ledger anomalies.
type IntegrityChecker interface {
	Check(ctx context.Context) ([]ledger.Anomaly, error)
}

// IntegrityScanJob runs the ledger integrity checker and reports its findings.
type IntegrityScanJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{
		Checker: checker,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan. Anomalies are reported, not returned as errors,
// so the task is not retried for data problems.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.MaxLogged <= 0 {
		payload.MaxLogged = defaultMaxLogged
	}

	start := j.now()
	tracker := j.Metrics.Track(TaskLedgerIntegrityScan)
	logger := j.logger()
	logger.Info("starting integrity scan")

	anomalies, err := j.Checker.Check(ctx)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return tracker.End(err)
	}

	byKind := make(map[ledger.AnomalyKind]int)
	for i, a := range anomalies {
		byKind[a.Kind]++
		if i >= payload.MaxLogged {
			continue
		}
		logger.Warn("ledger anomaly detected",
			slog.String("kind", string(a.Kind)),
			slog.String("owner_id", a.OwnerID),
			slog.String("source_type", string(a.SourceType)),
			slog.String("source_id", a.SourceID.String()),
			slog.String("detail", a.Detail),
		)
	}
	for kind, n := range byKind {
		j.Metrics.AddAnomalies(string(kind), n)
	}
	logger.Info("completed integrity scan",
		slog.Int("anomalies", len(anomalies)),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return tracker.End(nil)
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrityScan))
}

func (j *IntegrityScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
