package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/pocketledger/pocketledger/internal/jobs"
	"github.com/pocketledger/pocketledger/internal/ledger"
)

type stubChecker struct {
	anomalies []ledger.Anomaly
	err       error
}

func (s stubChecker) Check(context.Context) ([]ledger.Anomaly, error) {
	return s.anomalies, s.err
}

type stubStore struct {
	cutoff  time.Time
	removed int64
}

func (s *stubStore) Cleanup(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.removed, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestIntegrityScanCountsAnomalies(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	checker := stubChecker{anomalies: []ledger.Anomaly{
		{Kind: ledger.AnomalyLegCount, OwnerID: "u", SourceType: ledger.SourceTransfer, SourceID: uuid.New()},
		{Kind: ledger.AnomalyOrphanMovement, OwnerID: "u", SourceType: ledger.SourceExpense, SourceID: uuid.New()},
	}}
	job := NewIntegrityScanJob(checker, nil, metrics)
	task, err := NewIntegrityScanTask(IntegrityScanPayload{MaxLogged: 1})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, float64(2), counterValue(t, reg, "pocketledger_ledger_anomalies_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "pocketledger_jobs_total"))
}

func TestIntegrityScanPropagatesCheckerFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	boom := errors.New("db down")
	job := NewIntegrityScanJob(stubChecker{err: boom}, nil, jobmetrics.NewMetrics(reg))

	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrityScan, nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, float64(1), counterValue(t, reg, "pocketledger_jobs_failures_total"))
}

func TestIntegrityScanSkipsMalformedPayload(t *testing.T) {
	job := NewIntegrityScanJob(stubChecker{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrityScan, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	store := &stubStore{removed: 3}
	job := NewIdempotencyCleanupJob(store, 72*time.Hour, nil, nil)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, now.Add(-72*time.Hour), store.cutoff)

	task, err = NewIdempotencyCleanupTask(IdempotencyCleanupPayload{Retention: time.Hour})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, now.Add(-time.Hour), store.cutoff)
}

func TestNewTaskByType(t *testing.T) {
	task, err := NewTask(TaskLedgerIntegrityScan)
	require.NoError(t, err)
	assert.Equal(t, TaskLedgerIntegrityScan, task.Type())

	_, err = NewTask("mail:send")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestJobsHealth(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":4,"active":0,"retry":0,"failed":0}`, rec.Body.String())

	r = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis down")}, nil).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
