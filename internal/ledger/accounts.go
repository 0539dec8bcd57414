package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// CreateAccount inserts an active account for the caller.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Account{}, err
	}
	input, err = input.Normalize()
	if err != nil {
		return Account{}, err
	}
	var created Account
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.ActiveNameExists(ctx, owner, input.Name, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrAccountNameTaken
		}
		created, err = tx.InsertAccount(ctx, Account{
			ID:        s.newID(),
			OwnerID:   owner,
			Name:      input.Name,
			Type:      input.Type,
			Currency:  input.Currency,
			CreatedAt: s.now(),
		})
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.afterWrite(ctx, owner, "", 0)
	return created, nil
}

// UpdateAccount applies a partial update to name, type or currency.
func (s *Service) UpdateAccount(ctx context.Context, id uuid.UUID, input UpdateAccountInput) (Account, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Account{}, err
	}
	input, err = input.Normalize()
	if err != nil {
		return Account{}, err
	}
	var updated Account
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockAccount(ctx, owner, id)
		if err != nil {
			return err
		}
		next := current
		if input.Name != nil {
			next.Name = *input.Name
		}
		if input.Type != nil {
			next.Type = *input.Type
		}
		if input.Currency != nil {
			next.Currency = *input.Currency
		}
		if !next.IsArchived && nameKey(next.Name) != nameKey(current.Name) {
			taken, err := tx.ActiveNameExists(ctx, owner, next.Name, id)
			if err != nil {
				return err
			}
			if taken {
				return ErrAccountNameTaken
			}
		}
		next.UpdatedAt = s.now()
		updated, err = tx.UpdateAccount(ctx, next)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.afterWrite(ctx, owner, "", 0)
	return updated, nil
}

// ArchiveAccount soft-disables an account; its movements are retained.
func (s *Service) ArchiveAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.setArchived(ctx, id, true)
}

// UnarchiveAccount reactivates an account when its name is free among active accounts.
func (s *Service) UnarchiveAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.setArchived(ctx, id, false)
}

func (s *Service) setArchived(ctx context.Context, id uuid.UUID, archived bool) (Account, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Account{}, err
	}
	var result Account
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockAccount(ctx, owner, id)
		if err != nil {
			return err
		}
		if current.IsArchived == archived {
			result = current
			return nil
		}
		if !archived {
			taken, err := tx.ActiveNameExists(ctx, owner, current.Name, id)
			if err != nil {
				return err
			}
			if taken {
				return ErrAccountNameTaken
			}
		}
		now := s.now()
		current.IsArchived = archived
		current.ArchivedAt = nil
		if archived {
			current.ArchivedAt = &now
		}
		current.UpdatedAt = now
		result, err = tx.UpdateAccount(ctx, current)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.afterWrite(ctx, owner, "", 0)
	return result, nil
}

// DeleteAccount hard-deletes an account that has never had a movement and
// returns the removed row.
func (s *Service) DeleteAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Account{}, err
	}
	var deleted Account
	err = s.repo.WithTx(ctx, TxSerializable, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockAccount(ctx, owner, id)
		if err != nil {
			return err
		}
		n, err := tx.CountMovements(ctx, owner, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAccountHasMovements
		}
		if err := tx.DeleteAccount(ctx, owner, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("account deleted", slog.String("owner_id", owner), slog.String("account_id", id.String()))
	s.afterWrite(ctx, owner, "", 0)
	return deleted, nil
}

// GetAccount returns one of the caller's accounts.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Account{}, err
	}
	var account Account
	err = s.repo.WithTx(ctx, TxReadCommitted, func(ctx context.Context, tx TxRepository) error {
		account, err = tx.GetAccount(ctx, owner, id)
		return err
	})
	return account, err
}

// ListAccounts returns the caller's accounts, newest first.
func (s *Service) ListAccounts(ctx context.Context, includeArchived bool) ([]Account, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	err = s.repo.WithTx(ctx, TxReadCommitted, func(ctx context.Context, tx TxRepository) error {
		accounts, err = tx.ListAccounts(ctx, owner, includeArchived)
		return err
	})
	return accounts, err
}

// accessible maps a missing account to the forbidden sentinel used by the
// orchestrator; missing and foreign accounts answer identically.
func accessible(err error) error {
	if errors.Is(err, ErrAccountNotFound) {
		return ErrAccountForbidden
	}
	return err
}
