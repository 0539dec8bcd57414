package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AnomalyKind classifies an integrity finding.
type AnomalyKind string

const (
	AnomalyOrphanMovement  AnomalyKind = "orphan_movement"
	AnomalyMissingMovement AnomalyKind = "missing_movement"
	AnomalyLegCount        AnomalyKind = "leg_count"
	AnomalySumMismatch     AnomalyKind = "sum_mismatch"
	AnomalyLegMismatch     AnomalyKind = "leg_mismatch"
)

// Anomaly is one source record whose movements do not mirror it.
type Anomaly struct {
	Kind       AnomalyKind `json:"kind"`
	OwnerID    string      `json:"owner_id"`
	SourceType SourceType  `json:"source_type"`
	SourceID   uuid.UUID   `json:"source_id"`
	Detail     string      `json:"detail"`
}

// SourceSummary aggregates the movements attached to one source record.
type SourceSummary struct {
	OwnerID       string
	SourceType    SourceType
	SourceID      uuid.UUID
	SourceExists  bool
	ExpectedCount int64
	ExpectedSum   int64
	MovementCount int64
	MovementSum   int64
	LegsMatch     bool
}

// IntegritySource yields per-source movement summaries across all owners.
type IntegritySource interface {
	IntegritySummaries(ctx context.Context) ([]SourceSummary, error)
}

// IntegrityChecker verifies that every source record is mirrored by its movements.
type IntegrityChecker struct {
	source IntegritySource
}

// NewIntegrityChecker constructs the checker.
func NewIntegrityChecker(source IntegritySource) *IntegrityChecker {
	return &IntegrityChecker{source: source}
}

// Check returns every anomaly found; an empty result means the ledger is consistent.
func (c *IntegrityChecker) Check(ctx context.Context) ([]Anomaly, error) {
	if c == nil || c.source == nil {
		return nil, errors.New("integrity checker not configured")
	}
	summaries, err := c.source.IntegritySummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("integrity summaries: %w", err)
	}
	anomalies := make([]Anomaly, 0)
	for _, s := range summaries {
		anomalies = append(anomalies, Classify(s)...)
	}
	return anomalies, nil
}

// Classify compares a summary with what its source type requires.
func Classify(s SourceSummary) []Anomaly {
	anomaly := func(kind AnomalyKind, detail string) Anomaly {
		return Anomaly{Kind: kind, OwnerID: s.OwnerID, SourceType: s.SourceType, SourceID: s.SourceID, Detail: detail}
	}
	if !s.SourceExists {
		if s.SourceType == SourceAdjustment {
			return nil
		}
		return []Anomaly{anomaly(AnomalyOrphanMovement,
			fmt.Sprintf("%d movement(s) reference a missing %s", s.MovementCount, s.SourceType))}
	}
	if s.MovementCount == 0 {
		return []Anomaly{anomaly(AnomalyMissingMovement, "source has no movements")}
	}
	var out []Anomaly
	if s.MovementCount != s.ExpectedCount {
		out = append(out, anomaly(AnomalyLegCount,
			fmt.Sprintf("expected %d movement(s), found %d", s.ExpectedCount, s.MovementCount)))
	}
	if s.MovementSum != s.ExpectedSum {
		out = append(out, anomaly(AnomalySumMismatch,
			fmt.Sprintf("expected sum %d, found %d", s.ExpectedSum, s.MovementSum)))
	}
	if !s.LegsMatch {
		out = append(out, anomaly(AnomalyLegMismatch, "movement accounts or amounts differ from source"))
	}
	return out
}

const integritySummarySQL = `
SELECT t.owner_id, 'transfer'::text, t.id, TRUE, 2::bigint, 0::bigint,
	COUNT(m.id), COALESCE(SUM(m.amount), 0)::bigint,
	COALESCE(BOOL_OR(m.account_id = t.from_account_id AND m.amount = -t.amount)
		AND BOOL_OR(m.account_id = t.to_account_id AND m.amount = t.amount), FALSE)
FROM transfers t
LEFT JOIN account_movements m ON m.source_type = 'transfer' AND m.source_id = t.id AND m.owner_id = t.owner_id
GROUP BY t.id
UNION ALL
SELECT o.owner_id, 'opening_balance'::text, o.id, TRUE, 1::bigint, o.amount,
	COUNT(m.id), COALESCE(SUM(m.amount), 0)::bigint,
	COALESCE(BOOL_AND(m.account_id = o.account_id), FALSE)
FROM account_openings o
LEFT JOIN account_movements m ON m.source_type = 'opening_balance' AND m.source_id = o.id AND m.owner_id = o.owner_id
GROUP BY o.id
UNION ALL
SELECT e.owner_id, 'expense'::text, e.id, TRUE, 1::bigint, -e.amount,
	COUNT(m.id), COALESCE(SUM(m.amount), 0)::bigint,
	COALESCE(BOOL_AND(m.account_id = e.account_id), FALSE)
FROM expenses e
LEFT JOIN account_movements m ON m.source_type = 'expense' AND m.source_id = e.id AND m.owner_id = e.owner_id
GROUP BY e.id
UNION ALL
SELECT i.owner_id, 'income'::text, i.id, TRUE, 1::bigint, i.amount,
	COUNT(m.id), COALESCE(SUM(m.amount), 0)::bigint,
	COALESCE(BOOL_AND(m.account_id = i.account_id), FALSE)
FROM incomes i
LEFT JOIN account_movements m ON m.source_type = 'income' AND m.source_id = i.id AND m.owner_id = i.owner_id
GROUP BY i.id
UNION ALL
SELECT m.owner_id, m.source_type, m.source_id, FALSE, 0::bigint, 0::bigint,
	COUNT(*), COALESCE(SUM(m.amount), 0)::bigint, FALSE
FROM account_movements m
WHERE (m.source_type = 'transfer' AND NOT EXISTS (SELECT 1 FROM transfers t WHERE t.id = m.source_id))
	OR (m.source_type = 'opening_balance' AND NOT EXISTS (SELECT 1 FROM account_openings o WHERE o.id = m.source_id))
	OR (m.source_type = 'expense' AND NOT EXISTS (SELECT 1 FROM expenses e WHERE e.id = m.source_id))
	OR (m.source_type = 'income' AND NOT EXISTS (SELECT 1 FROM incomes i WHERE i.id = m.source_id))
GROUP BY m.owner_id, m.source_type, m.source_id`

// IntegritySummaries runs outside any owner scope; it is used only by the
// background integrity scan.
func (r *Repository) IntegritySummaries(ctx context.Context) ([]SourceSummary, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, integritySummarySQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SourceSummary, 0)
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.OwnerID, &s.SourceType, &s.SourceID, &s.SourceExists, &s.ExpectedCount, &s.ExpectedSum,
			&s.MovementCount, &s.MovementSum, &s.LegsMatch); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
