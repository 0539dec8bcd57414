package ledger

import (
	"context"
	"log/slog"
)

// ApplyAdjustment posts a single-sided reconciliation movement. The generated
// id is used as the movement id and as its own source id.
func (s *Service) ApplyAdjustment(ctx context.Context, input AdjustmentInput) (Adjustment, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Adjustment{}, err
	}
	if err := input.Validate(); err != nil {
		return Adjustment{}, err
	}
	id := s.newID()
	adj := Adjustment{
		ID:         id,
		OwnerID:    owner,
		AccountID:  input.AccountID,
		Diff:       input.Diff,
		OccurredAt: s.occurredAt(input.OccurredAt),
		Note:       input.Note,
	}
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockAccount(ctx, owner, input.AccountID); err != nil {
			return accessible(err)
		}
		return tx.InsertMovement(ctx, Movement{
			ID:         id,
			OwnerID:    owner,
			AccountID:  adj.AccountID,
			Amount:     adj.Diff,
			OccurredAt: adj.OccurredAt,
			SourceType: SourceAdjustment,
			SourceID:   id,
			Note:       adj.Note,
		})
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.logger.Info("adjustment applied",
		slog.String("owner_id", owner),
		slog.String("account_id", adj.AccountID.String()),
		slog.Int64("diff", adj.Diff),
	)
	s.afterWrite(ctx, owner, SourceAdjustment, 1)
	return adj, nil
}
