package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIntegritySource struct {
	rows []SourceSummary
	err  error
}

func (s stubIntegritySource) IntegritySummaries(context.Context) ([]SourceSummary, error) {
	return s.rows, s.err
}

func TestClassify(t *testing.T) {
	id := uuid.New()
	healthy := SourceSummary{
		OwnerID: "u", SourceType: SourceTransfer, SourceID: id, SourceExists: true,
		ExpectedCount: 2, ExpectedSum: 0, MovementCount: 2, MovementSum: 0, LegsMatch: true,
	}
	cases := []struct {
		name  string
		apply func(*SourceSummary)
		want  []AnomalyKind
	}{
		{"healthy transfer", func(*SourceSummary) {}, nil},
		{"one leg missing", func(s *SourceSummary) { s.MovementCount, s.MovementSum, s.LegsMatch = 1, -500, false },
			[]AnomalyKind{AnomalyLegCount, AnomalySumMismatch, AnomalyLegMismatch}},
		{"no legs", func(s *SourceSummary) { s.MovementCount, s.LegsMatch = 0, false }, []AnomalyKind{AnomalyMissingMovement}},
		{"wrong accounts", func(s *SourceSummary) { s.LegsMatch = false }, []AnomalyKind{AnomalyLegMismatch}},
		{"orphan", func(s *SourceSummary) { s.SourceExists, s.MovementCount = false, 1 }, []AnomalyKind{AnomalyOrphanMovement}},
		{"adjustment never orphaned", func(s *SourceSummary) { s.SourceType, s.SourceExists = SourceAdjustment, false }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := healthy
			tc.apply(&s)
			var kinds []AnomalyKind
			for _, a := range Classify(s) {
				assert.Equal(t, id, a.SourceID)
				kinds = append(kinds, a.Kind)
			}
			assert.Equal(t, tc.want, kinds)
		})
	}
}

func TestIntegrityCheckerAggregates(t *testing.T) {
	opening := SourceSummary{
		OwnerID: "u", SourceType: SourceOpeningBalance, SourceID: uuid.New(), SourceExists: true,
		ExpectedCount: 1, ExpectedSum: 900, MovementCount: 1, MovementSum: 800, LegsMatch: true,
	}
	expense := SourceSummary{
		OwnerID: "u", SourceType: SourceExpense, SourceID: uuid.New(), SourceExists: true,
		ExpectedCount: 1, ExpectedSum: -100, MovementCount: 1, MovementSum: -100, LegsMatch: true,
	}
	checker := NewIntegrityChecker(stubIntegritySource{rows: []SourceSummary{opening, expense}})

	anomalies, err := checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, AnomalySumMismatch, anomalies[0].Kind)
	assert.Equal(t, opening.SourceID, anomalies[0].SourceID)

	boom := errors.New("db down")
	_, err = NewIntegrityChecker(stubIntegritySource{err: boom}).Check(context.Background())
	assert.ErrorIs(t, err, boom)
}
