package ledger

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// BalanceOf sums every movement of the account regardless of when it occurred.
func (s *Service) BalanceOf(ctx context.Context, accountID uuid.UUID) (int64, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return 0, err
	}
	var balance int64
	err = s.cache.Fetch(ctx, owner, "balance:"+accountID.String(), &balance, func(ctx context.Context) (any, error) {
		var value int64
		err := s.repo.WithTx(ctx, TxReadCommitted, func(ctx context.Context, tx TxRepository) error {
			if _, err := tx.GetAccount(ctx, owner, accountID); err != nil {
				return err
			}
			var err error
			value, err = tx.BalanceOf(ctx, owner, accountID)
			return err
		})
		return value, err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ListAccountsWithBalance aggregates every account's movements, newest account
// first; accounts without movements report zero.
func (s *Service) ListAccountsWithBalance(ctx context.Context, includeArchived bool) ([]AccountWithBalance, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	var accounts []AccountWithBalance
	name := "balances:" + strconv.FormatBool(includeArchived)
	err = s.cache.Fetch(ctx, owner, name, &accounts, func(ctx context.Context) (any, error) {
		var rows []AccountWithBalance
		err := s.repo.WithTx(ctx, TxReadCommitted, func(ctx context.Context, tx TxRepository) error {
			var err error
			rows, err = tx.ListAccountsWithBalance(ctx, owner, includeArchived)
			return err
		})
		return rows, err
	})
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		accounts[i].OwnerID = owner
	}
	return accounts, nil
}

// ListMovements returns an account statement, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	filter = filter.normalized()
	var movements []Movement
	err = s.repo.WithTx(ctx, TxReadCommitted, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, owner, filter.AccountID); err != nil {
			return err
		}
		var err error
		movements, err = tx.ListMovements(ctx, owner, filter)
		return err
	})
	return movements, err
}
