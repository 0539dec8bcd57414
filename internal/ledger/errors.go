package ledger

import "github.com/pocketledger/pocketledger/internal/shared"

var (
	// ErrInvalidInput wraps malformed request values.
	ErrInvalidInput = shared.NewError(shared.KindBadRequest, "ledger: invalid input")
	// ErrAccountNotFound indicates a missing or foreign account.
	ErrAccountNotFound = shared.NewError(shared.KindNotFound, "ledger: account not found")
	// ErrAccountForbidden indicates the caller may not post against the account.
	ErrAccountForbidden = shared.NewError(shared.KindForbidden, "ledger: account not accessible")
	// ErrAccountNameTaken indicates another active account uses the name.
	ErrAccountNameTaken = shared.NewError(shared.KindConflict, "ledger: an active account with this name already exists")
	// ErrAccountHasMovements blocks deleting accounts with ledger history.
	ErrAccountHasMovements = shared.NewError(shared.KindInvalidState, "ledger: account has movements and cannot be deleted")
	// ErrAccountArchived blocks postings against archived accounts.
	ErrAccountArchived = shared.NewError(shared.KindBadRequest, "ledger: account is archived")
	// ErrOpeningNotFound indicates the account has no opening balance.
	ErrOpeningNotFound = shared.NewError(shared.KindNotFound, "ledger: opening balance not found")
	// ErrOpeningLocked blocks opening changes once other movements exist.
	ErrOpeningLocked = shared.NewError(shared.KindInvalidState, "ledger: cannot modify opening balance: other movements exist")
	// ErrOpeningExists is raised by the unique index on account openings.
	ErrOpeningExists = shared.NewError(shared.KindConflict, "ledger: opening balance already exists")
	// ErrTransferNotFound indicates a missing or foreign transfer.
	ErrTransferNotFound = shared.NewError(shared.KindNotFound, "ledger: transfer not found")
	// ErrTransferAccount indicates a transfer leg account is missing, foreign or archived.
	ErrTransferAccount = shared.NewError(shared.KindBadRequest, "ledger: transfer accounts must exist, belong to you and be active")
	// ErrSameAccount rejects transfers from an account to itself.
	ErrSameAccount = shared.NewError(shared.KindBadRequest, "ledger: transfer source and destination must differ")
	// ErrInvalidAmount rejects non-positive or over-precise amounts.
	ErrInvalidAmount = shared.NewError(shared.KindBadRequest, "ledger: amount must be positive with at most two decimals")
	// ErrZeroAdjustment rejects adjustments without a delta.
	ErrZeroAdjustment = shared.NewError(shared.KindBadRequest, "ledger: adjustment diff must be non-zero")
	// ErrEntryNotFound indicates a missing or foreign expense/income.
	ErrEntryNotFound = shared.NewError(shared.KindNotFound, "ledger: entry not found")
	// ErrConcurrentUpdate reports a serialization failure; the caller may resubmit.
	ErrConcurrentUpdate = shared.NewError(shared.KindConflict, "ledger: concurrent modification, please retry")
	// ErrUnbalancedLedger indicates a movement write did not touch the expected rows.
	ErrUnbalancedLedger = shared.NewError(shared.KindInvalidState, "ledger: movements out of sync with source record")
)
