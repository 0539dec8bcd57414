package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

const transferIdempotencyModule = "ledger.transfer"

// CreateTransfer moves funds between two of the caller's active accounts. The
// transfer row and both legs commit together.
func (s *Service) CreateTransfer(ctx context.Context, input CreateTransferInput) (Transfer, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Transfer{}, err
	}
	cents, err := ToCents(input.Amount)
	if err != nil {
		return Transfer{}, err
	}
	if input.FromAccountID == input.ToAccountID {
		return Transfer{}, ErrSameAccount
	}
	var created Transfer
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockActive(ctx, tx, owner, input.FromAccountID, input.ToAccountID); err != nil {
			return transferAccount(err)
		}
		if input.IdempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, owner, input.IdempotencyKey, transferIdempotencyModule); err != nil {
				return err
			}
		}
		now := s.now()
		created, err = tx.InsertTransfer(ctx, Transfer{
			ID:            s.newID(),
			OwnerID:       owner,
			FromAccountID: input.FromAccountID,
			ToAccountID:   input.ToAccountID,
			Amount:        cents,
			OccurredAt:    s.occurredAt(input.OccurredAt),
			Description:   input.Description,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}
		return s.postTransferLegs(ctx, tx, created)
	})
	if err != nil {
		return Transfer{}, err
	}
	s.logger.Info("transfer created",
		slog.String("owner_id", owner),
		slog.String("transfer_id", created.ID.String()),
		slog.Int64("amount", created.Amount),
	)
	s.afterWrite(ctx, owner, SourceTransfer, 2)
	return created, nil
}

// UpdateTransfer merges the supplied fields and re-posts both legs in the same
// unit of work, so a failure leaves the original legs untouched.
func (s *Service) UpdateTransfer(ctx context.Context, id uuid.UUID, input UpdateTransferInput) (Transfer, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Transfer{}, err
	}
	var cents *int64
	if input.Amount != nil {
		v, err := ToCents(*input.Amount)
		if err != nil {
			return Transfer{}, err
		}
		cents = &v
	}
	var updated Transfer
	changed := false
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransfer(ctx, owner, id, true)
		if err != nil {
			return err
		}
		next := current
		if input.FromAccountID != nil {
			next.FromAccountID = *input.FromAccountID
		}
		if input.ToAccountID != nil {
			next.ToAccountID = *input.ToAccountID
		}
		if cents != nil {
			next.Amount = *cents
		}
		if input.OccurredAt != nil {
			next.OccurredAt = input.OccurredAt.UTC()
		}
		if input.Description != nil {
			next.Description = input.Description
		}
		accountsChanged := next.FromAccountID != current.FromAccountID || next.ToAccountID != current.ToAccountID
		changed = accountsChanged ||
			next.Amount != current.Amount ||
			!next.OccurredAt.Equal(current.OccurredAt) ||
			!stringsEqual(next.Description, current.Description)
		if !changed {
			updated = current
			return nil
		}
		if next.FromAccountID == next.ToAccountID {
			return ErrSameAccount
		}
		if accountsChanged {
			if _, err := lockActive(ctx, tx, owner, next.FromAccountID, next.ToAccountID); err != nil {
				return transferAccount(err)
			}
		}
		n, err := tx.DeleteMovementsBySource(ctx, owner, SourceTransfer, id)
		if err != nil {
			return err
		}
		if n != 2 {
			return ErrUnbalancedLedger
		}
		next.UpdatedAt = s.now()
		updated, err = tx.UpdateTransfer(ctx, next)
		if err != nil {
			return err
		}
		return s.postTransferLegs(ctx, tx, updated)
	})
	if err != nil {
		return Transfer{}, err
	}
	if changed {
		s.logger.Info("transfer updated",
			slog.String("owner_id", owner),
			slog.String("transfer_id", id.String()),
			slog.Int64("amount", updated.Amount),
		)
		s.afterWrite(ctx, owner, SourceTransfer, 2)
	}
	return updated, nil
}

// DeleteTransfer removes both legs and the transfer row, returning the removed row.
func (s *Service) DeleteTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Transfer{}, err
	}
	var deleted Transfer
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransfer(ctx, owner, id, true)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteMovementsBySource(ctx, owner, SourceTransfer, id); err != nil {
			return err
		}
		if err := tx.DeleteTransfer(ctx, owner, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.logger.Info("transfer deleted", slog.String("owner_id", owner), slog.String("transfer_id", id.String()))
	s.afterWrite(ctx, owner, SourceTransfer, 2)
	return deleted, nil
}

// GetTransfer returns one of the caller's transfers.
func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Transfer{}, err
	}
	var transfer Transfer
	err = s.repo.WithTx(ctx, TxReadCommitted, func(ctx context.Context, tx TxRepository) error {
		transfer, err = tx.GetTransfer(ctx, owner, id, false)
		return err
	})
	return transfer, err
}

// ListTransfers pages through the caller's transfers, newest first.
func (s *Service) ListTransfers(ctx context.Context, limit, offset int) ([]Transfer, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	page := MovementFilter{Limit: limit, Offset: offset}.normalized()
	var transfers []Transfer
	err = s.repo.WithTx(ctx, TxReadCommitted, func(ctx context.Context, tx TxRepository) error {
		transfers, err = tx.ListTransfers(ctx, owner, page.Limit, page.Offset)
		return err
	})
	return transfers, err
}

func (s *Service) postTransferLegs(ctx context.Context, tx TxRepository, t Transfer) error {
	out := s.movement(t.OwnerID, t.FromAccountID, -t.Amount, t.OccurredAt, SourceTransfer, t.ID, t.Description)
	if err := tx.InsertMovement(ctx, out); err != nil {
		return err
	}
	in := s.movement(t.OwnerID, t.ToAccountID, t.Amount, t.OccurredAt, SourceTransfer, t.ID, t.Description)
	return tx.InsertMovement(ctx, in)
}

func transferAccount(err error) error {
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrAccountArchived) {
		return ErrTransferAccount
	}
	return err
}
