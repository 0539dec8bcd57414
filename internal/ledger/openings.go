package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// EnsureOpening records the account's starting balance once. A second call
// returns the existing opening unchanged.
func (s *Service) EnsureOpening(ctx context.Context, input OpeningInput) (Opening, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Opening{}, err
	}
	var opening Opening
	created := false
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockAccount(ctx, owner, input.AccountID); err != nil {
			return accessible(err)
		}
		existing, err := tx.GetOpening(ctx, owner, input.AccountID)
		if err == nil {
			opening = existing
			return nil
		}
		if !errors.Is(err, ErrOpeningNotFound) {
			return err
		}
		at := s.occurredAt(input.OccurredAt)
		opening, err = tx.InsertOpening(ctx, Opening{
			ID:         s.newID(),
			OwnerID:    owner,
			AccountID:  input.AccountID,
			Amount:     input.Amount,
			OccurredAt: at,
			Note:       input.Note,
			CreatedAt:  s.now(),
		})
		if err != nil {
			return err
		}
		created = true
		return tx.InsertMovement(ctx, s.movement(owner, input.AccountID, input.Amount, at, SourceOpeningBalance, opening.ID, input.Note))
	})
	if errors.Is(err, ErrOpeningExists) || errors.Is(err, ErrConcurrentUpdate) {
		// a concurrent EnsureOpening may have committed first
		if existing, getErr := s.GetOpening(ctx, input.AccountID); getErr == nil {
			return existing, nil
		}
		return Opening{}, err
	}
	if err != nil {
		return Opening{}, err
	}
	if created {
		s.logger.Info("opening recorded",
			slog.String("owner_id", owner),
			slog.String("account_id", input.AccountID.String()),
			slog.Int64("amount", opening.Amount),
		)
		s.afterWrite(ctx, owner, SourceOpeningBalance, 1)
	}
	return opening, nil
}

// UpdateOpening edits the opening while it is still the account's only
// movement, keeping its movement an exact mirror.
func (s *Service) UpdateOpening(ctx context.Context, accountID uuid.UUID, input UpdateOpeningInput) (Opening, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Opening{}, err
	}
	var updated Opening
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		current, err := s.guardedOpening(ctx, tx, owner, accountID)
		if err != nil {
			return err
		}
		next := current
		if input.Amount != nil {
			next.Amount = *input.Amount
		}
		if input.OccurredAt != nil {
			next.OccurredAt = input.OccurredAt.UTC()
		}
		if input.Note != nil {
			next.Note = input.Note
		}
		if err := tx.UpdateOpening(ctx, next); err != nil {
			return err
		}
		n, err := tx.UpdateMovementsBySource(ctx, owner, SourceOpeningBalance, next.ID, next.Amount, next.OccurredAt, next.Note)
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrUnbalancedLedger
		}
		updated = next
		return nil
	})
	if err != nil {
		return Opening{}, err
	}
	s.logger.Info("opening updated",
		slog.String("owner_id", owner),
		slog.String("account_id", accountID.String()),
		slog.Int64("amount", updated.Amount),
	)
	s.afterWrite(ctx, owner, SourceOpeningBalance, 1)
	return updated, nil
}

// DeleteOpening removes the opening and its movement and returns the removed row.
func (s *Service) DeleteOpening(ctx context.Context, accountID uuid.UUID) (Opening, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Opening{}, err
	}
	var deleted Opening
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		current, err := s.guardedOpening(ctx, tx, owner, accountID)
		if err != nil {
			return err
		}
		n, err := tx.DeleteMovementsBySource(ctx, owner, SourceOpeningBalance, current.ID)
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrUnbalancedLedger
		}
		if err := tx.DeleteOpening(ctx, owner, current.ID); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return Opening{}, err
	}
	s.logger.Info("opening deleted",
		slog.String("owner_id", owner),
		slog.String("account_id", accountID.String()),
	)
	s.afterWrite(ctx, owner, SourceOpeningBalance, 1)
	return deleted, nil
}

// GetOpening returns the account's opening.
func (s *Service) GetOpening(ctx context.Context, accountID uuid.UUID) (Opening, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Opening{}, err
	}
	var opening Opening
	err = s.repo.WithTx(ctx, TxReadCommitted, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, owner, accountID); err != nil {
			return accessible(err)
		}
		opening, err = tx.GetOpening(ctx, owner, accountID)
		return err
	})
	return opening, err
}

// guardedOpening locks the account, loads its opening and rejects the change
// once any other movement has been posted to the account.
func (s *Service) guardedOpening(ctx context.Context, tx TxRepository, owner string, accountID uuid.UUID) (Opening, error) {
	if _, err := tx.LockAccount(ctx, owner, accountID); err != nil {
		return Opening{}, accessible(err)
	}
	current, err := tx.GetOpening(ctx, owner, accountID)
	if err != nil {
		return Opening{}, err
	}
	busy, err := tx.HasMovementsOtherThanOpening(ctx, owner, accountID)
	if err != nil {
		return Opening{}, err
	}
	if busy {
		return Opening{}, ErrOpeningLocked
	}
	return current, nil
}
