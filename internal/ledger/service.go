package ledger

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pocketledger/pocketledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, mode TxMode, fn func(context.Context, TxRepository) error) error
}

// MetricsRecorder receives ledger write and cache counters.
type MetricsRecorder interface {
	ObserveMovements(source string, count int)
	ObserveCacheLookup(result string)
}

// Service implements the account registry, the movement ledger and the
// orchestration of compound ledger writes. The owner of every call is read
// from the context.
type Service struct {
	repo    RepositoryPort
	cache   *BalanceCache
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewService constructs the ledger service. cache may be nil.
func NewService(repo RepositoryPort, cache *BalanceCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.New,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a metrics recorder.
func (s *Service) WithMetrics(m MetricsRecorder) {
	s.metrics = m
	if s.cache != nil {
		s.cache.metrics = m
	}
}

func (s *Service) owner(ctx context.Context) (string, error) {
	return shared.RequireOwner(ctx)
}

func (s *Service) occurredAt(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t.UTC()
}

// afterWrite runs once movements for owner have been committed.
func (s *Service) afterWrite(ctx context.Context, owner string, source SourceType, count int) {
	if s.metrics != nil && count > 0 {
		s.metrics.ObserveMovements(string(source), count)
	}
	if err := s.cache.Invalidate(ctx, owner); err != nil {
		s.logger.Warn("balance cache invalidate", slog.String("owner_id", owner), slog.Any("error", err))
	}
}

func (s *Service) movement(owner string, accountID uuid.UUID, amount int64, at time.Time, source SourceType, sourceID uuid.UUID, note *string) Movement {
	return Movement{
		ID:         s.newID(),
		OwnerID:    owner,
		AccountID:  accountID,
		Amount:     amount,
		OccurredAt: at,
		SourceType: source,
		SourceID:   sourceID,
		Note:       note,
	}
}

// lockActive locks the accounts in id order so concurrent writers touching the
// same pair cannot deadlock, and requires each to be active.
func lockActive(ctx context.Context, tx TxRepository, owner string, ids ...uuid.UUID) (map[uuid.UUID]Account, error) {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	locked := make(map[uuid.UUID]Account, len(ordered))
	for _, id := range ordered {
		if _, ok := locked[id]; ok {
			continue
		}
		acc, err := tx.LockAccount(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		if acc.IsArchived {
			return nil, ErrAccountArchived
		}
		locked[id] = acc
	}
	return locked, nil
}

func stringsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
