package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
)

// AccountType enumerates places money can sit.
type AccountType string

const (
	AccountTypeBank       AccountType = "bank"
	AccountTypeCash       AccountType = "cash"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeEWallet    AccountType = "ewallet"
	AccountTypeOther      AccountType = "other"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeBank, AccountTypeCash, AccountTypeCreditCard, AccountTypeEWallet, AccountTypeOther:
		return true
	}
	return false
}

// SourceType tags the operation that produced a movement.
type SourceType string

const (
	SourceOpeningBalance SourceType = "opening_balance"
	SourceExpense        SourceType = "expense"
	SourceIncome         SourceType = "income"
	SourceTransfer       SourceType = "transfer"
	SourceAdjustment     SourceType = "adjustment"
)

// EntryKind distinguishes expense and income postings.
type EntryKind string

const (
	EntryExpense EntryKind = "expense"
	EntryIncome  EntryKind = "income"
)

// SourceType returns the movement tag written for the entry kind.
func (k EntryKind) SourceType() SourceType {
	if k == EntryIncome {
		return SourceIncome
	}
	return SourceExpense
}

// Signed converts a positive entry amount into its ledger delta.
func (k EntryKind) Signed(amount int64) int64 {
	if k == EntryExpense {
		return -amount
	}
	return amount
}

// TxMode selects the isolation of a unit of work.
type TxMode int

const (
	// TxReadCommitted is used for reads and single-row appends.
	TxReadCommitted TxMode = iota
	// TxSerializable is used for every guarded check-then-act operation.
	TxSerializable
)

// Account is a place money sits.
type Account struct {
	ID         uuid.UUID   `json:"id"`
	OwnerID    string      `json:"-"`
	Name       string      `json:"name"`
	Type       AccountType `json:"type"`
	Currency   string      `json:"currency"`
	IsArchived bool        `json:"is_archived"`
	ArchivedAt *time.Time  `json:"archived_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// AccountWithBalance pairs an account with its aggregated balance in cents.
type AccountWithBalance struct {
	Account
	Balance int64 `json:"balance"`
}

// Movement is one signed delta against one account.
type Movement struct {
	ID         uuid.UUID  `json:"id"`
	OwnerID    string     `json:"-"`
	AccountID  uuid.UUID  `json:"account_id"`
	Amount     int64      `json:"amount"`
	OccurredAt time.Time  `json:"occurred_at"`
	SourceType SourceType `json:"source_type"`
	SourceID   uuid.UUID  `json:"source_id"`
	Note       *string    `json:"note,omitempty"`
}

// Opening is the declared starting balance of an account.
type Opening struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    string    `json:"-"`
	AccountID  uuid.UUID `json:"account_id"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
	Note       *string   `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Transfer moves funds between two accounts of the same owner.
type Transfer struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       string    `json:"-"`
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	OccurredAt    time.Time `json:"occurred_at"`
	Description   *string   `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Adjustment is a single-sided reconciliation movement. Its id doubles as the
// movement id and the movement source id.
type Adjustment struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    string    `json:"-"`
	AccountID  uuid.UUID `json:"account_id"`
	Diff       int64     `json:"diff"`
	OccurredAt time.Time `json:"occurred_at"`
	Note       *string   `json:"note,omitempty"`
}

// Entry is an expense or income posted against one account. Amount is positive.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     string    `json:"-"`
	Kind        EntryKind `json:"kind"`
	AccountID   uuid.UUID `json:"account_id"`
	Amount      int64     `json:"amount"`
	OccurredAt  time.Time `json:"occurred_at"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateAccountInput describes a new account.
type CreateAccountInput struct {
	Name     string      `json:"name" validate:"required,max=120"`
	Type     AccountType `json:"type" validate:"required"`
	Currency string      `json:"currency" validate:"required,len=3"`
}

// UpdateAccountInput is a partial update; nil fields are left unchanged.
type UpdateAccountInput struct {
	Name     *string      `json:"name" validate:"omitempty,max=120"`
	Type     *AccountType `json:"type"`
	Currency *string      `json:"currency" validate:"omitempty,len=3"`
}

// OpeningInput declares an account's starting balance in cents.
type OpeningInput struct {
	AccountID  uuid.UUID `json:"-"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
	Note       *string   `json:"note"`
}

// UpdateOpeningInput is a partial opening update.
type UpdateOpeningInput struct {
	Amount     *int64     `json:"amount"`
	OccurredAt *time.Time `json:"occurred_at"`
	Note       *string    `json:"note"`
}

// CreateTransferInput carries the amount in major currency units.
type CreateTransferInput struct {
	FromAccountID  uuid.UUID       `json:"from_account_id" validate:"required"`
	ToAccountID    uuid.UUID       `json:"to_account_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Description    *string         `json:"description" validate:"omitempty,max=500"`
	IdempotencyKey string          `json:"-"`
}

// UpdateTransferInput is a partial transfer update.
type UpdateTransferInput struct {
	FromAccountID *uuid.UUID       `json:"from_account_id"`
	ToAccountID   *uuid.UUID       `json:"to_account_id"`
	Amount        *decimal.Decimal `json:"amount"`
	OccurredAt    *time.Time       `json:"occurred_at"`
	Description   *string          `json:"description" validate:"omitempty,max=500"`
}

// AdjustmentInput is a signed reconciliation delta in cents.
type AdjustmentInput struct {
	AccountID  uuid.UUID `json:"-"`
	Diff       int64     `json:"diff"`
	OccurredAt time.Time `json:"occurred_at"`
	Note       *string   `json:"note" validate:"omitempty,max=500"`
}

// EntryInput posts an expense or income; Amount is in major units.
type EntryInput struct {
	AccountID   uuid.UUID       `json:"account_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Description *string         `json:"description" validate:"omitempty,max=500"`
}

// UpdateEntryInput is a partial expense/income update.
type UpdateEntryInput struct {
	AccountID   *uuid.UUID       `json:"account_id"`
	Amount      *decimal.Decimal `json:"amount"`
	OccurredAt  *time.Time       `json:"occurred_at"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
}

// MovementFilter narrows an account statement.
type MovementFilter struct {
	AccountID uuid.UUID
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

const (
	defaultMovementLimit = 50
	maxMovementLimit     = 500
)

func (f MovementFilter) normalized() MovementFilter {
	if f.Limit <= 0 {
		f.Limit = defaultMovementLimit
	}
	if f.Limit > maxMovementLimit {
		f.Limit = maxMovementLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Normalize trims and canonicalises the input, rejecting invalid values.
func (in CreateAccountInput) Normalize() (CreateAccountInput, error) {
	name, err := normalizeName(in.Name)
	if err != nil {
		return in, err
	}
	if !in.Type.Valid() {
		return in, fmt.Errorf("%w: unknown account type %q", ErrInvalidInput, in.Type)
	}
	code, err := normalizeCurrency(in.Currency)
	if err != nil {
		return in, err
	}
	return CreateAccountInput{Name: name, Type: in.Type, Currency: code}, nil
}

// Normalize validates the fields that are present.
func (in UpdateAccountInput) Normalize() (UpdateAccountInput, error) {
	out := in
	if in.Name != nil {
		name, err := normalizeName(*in.Name)
		if err != nil {
			return in, err
		}
		out.Name = &name
	}
	if in.Type != nil && !in.Type.Valid() {
		return in, fmt.Errorf("%w: unknown account type %q", ErrInvalidInput, *in.Type)
	}
	if in.Currency != nil {
		code, err := normalizeCurrency(*in.Currency)
		if err != nil {
			return in, err
		}
		out.Currency = &code
	}
	return out, nil
}

// Validate checks the adjustment carries a non-zero delta.
func (in AdjustmentInput) Validate() error {
	if in.AccountID == uuid.Nil {
		return fmt.Errorf("%w: account required", ErrInvalidInput)
	}
	if in.Diff == 0 {
		return ErrZeroAdjustment
	}
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if len([]rune(name)) > 120 {
		return "", fmt.Errorf("%w: name too long", ErrInvalidInput)
	}
	return name, nil
}

func normalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", ErrInvalidInput, code)
	}
	return unit.String(), nil
}

// nameKey folds a display name for case-insensitive comparison.
func nameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
