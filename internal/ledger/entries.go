package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecordExpense posts an expense and its negative movement.
func (s *Service) RecordExpense(ctx context.Context, input EntryInput) (Entry, error) {
	return s.recordEntry(ctx, EntryExpense, input)
}

// RecordIncome posts an income and its positive movement.
func (s *Service) RecordIncome(ctx context.Context, input EntryInput) (Entry, error) {
	return s.recordEntry(ctx, EntryIncome, input)
}

// UpdateExpense edits an expense and re-posts its movement.
func (s *Service) UpdateExpense(ctx context.Context, id uuid.UUID, input UpdateEntryInput) (Entry, error) {
	return s.updateEntry(ctx, EntryExpense, id, input)
}

// UpdateIncome edits an income and re-posts its movement.
func (s *Service) UpdateIncome(ctx context.Context, id uuid.UUID, input UpdateEntryInput) (Entry, error) {
	return s.updateEntry(ctx, EntryIncome, id, input)
}

// DeleteExpense removes an expense with its movement.
func (s *Service) DeleteExpense(ctx context.Context, id uuid.UUID) (Entry, error) {
	return s.deleteEntry(ctx, EntryExpense, id)
}

// DeleteIncome removes an income with its movement.
func (s *Service) DeleteIncome(ctx context.Context, id uuid.UUID) (Entry, error) {
	return s.deleteEntry(ctx, EntryIncome, id)
}

func (s *Service) recordEntry(ctx context.Context, kind EntryKind, input EntryInput) (Entry, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Entry{}, err
	}
	if input.AccountID == uuid.Nil {
		return Entry{}, fmt.Errorf("%w: account required", ErrInvalidInput)
	}
	cents, err := ToCents(input.Amount)
	if err != nil {
		return Entry{}, err
	}
	var created Entry
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockActive(ctx, tx, owner, input.AccountID); err != nil {
			return accessible(err)
		}
		created, err = tx.InsertEntry(ctx, Entry{
			ID:          s.newID(),
			OwnerID:     owner,
			Kind:        kind,
			AccountID:   input.AccountID,
			Amount:      cents,
			OccurredAt:  s.occurredAt(input.OccurredAt),
			Description: input.Description,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return err
		}
		return tx.InsertMovement(ctx, s.entryMovement(created))
	})
	if err != nil {
		return Entry{}, err
	}
	s.afterWrite(ctx, owner, kind.SourceType(), 1)
	return created, nil
}

func (s *Service) updateEntry(ctx context.Context, kind EntryKind, id uuid.UUID, input UpdateEntryInput) (Entry, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Entry{}, err
	}
	var cents *int64
	if input.Amount != nil {
		v, err := ToCents(*input.Amount)
		if err != nil {
			return Entry{}, err
		}
		cents = &v
	}
	var updated Entry
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntry(ctx, owner, kind, id, true)
		if err != nil {
			return err
		}
		next := current
		if input.AccountID != nil {
			next.AccountID = *input.AccountID
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
		if next.AccountID != current.AccountID {
			if _, err := lockActive(ctx, tx, owner, next.AccountID); err != nil {
				return accessible(err)
			}
		}
		next.UpdatedAt = s.now()
		updated, err = tx.UpdateEntry(ctx, next)
		if err != nil {
			return err
		}
		if next.AccountID == current.AccountID {
			n, err := tx.UpdateMovementsBySource(ctx, owner, kind.SourceType(), id, kind.Signed(updated.Amount), updated.OccurredAt, updated.Description)
			if err != nil {
				return err
			}
			if n != 1 {
				return ErrUnbalancedLedger
			}
			return nil
		}
		n, err := tx.DeleteMovementsBySource(ctx, owner, kind.SourceType(), id)
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrUnbalancedLedger
		}
		return tx.InsertMovement(ctx, s.entryMovement(updated))
	})
	if err != nil {
		return Entry{}, err
	}
	s.afterWrite(ctx, owner, kind.SourceType(), 1)
	return updated, nil
}

func (s *Service) deleteEntry(ctx context.Context, kind EntryKind, id uuid.UUID) (Entry, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Entry{}, err
	}
	var deleted Entry
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntry(ctx, owner, kind, id, true)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteMovementsBySource(ctx, owner, kind.SourceType(), id); err != nil {
			return err
		}
		if err := tx.DeleteEntry(ctx, owner, kind, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.afterWrite(ctx, owner, kind.SourceType(), 1)
	return deleted, nil
}

func (s *Service) entryMovement(e Entry) Movement {
	return s.movement(e.OwnerID, e.AccountID, e.Kind.Signed(e.Amount), e.OccurredAt, e.Kind.SourceType(), e.ID, e.Description)
}
