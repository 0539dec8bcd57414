package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pocketledger/pocketledger/internal/platform/db"
	"github.com/pocketledger/pocketledger/internal/shared"
)

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the statements available inside a unit of work. Every
// query is scoped to the owner passed in.
type TxRepository interface {
	InsertAccount(ctx context.Context, a Account) (Account, error)
	GetAccount(ctx context.Context, owner string, id uuid.UUID) (Account, error)
	LockAccount(ctx context.Context, owner string, id uuid.UUID) (Account, error)
	ActiveNameExists(ctx context.Context, owner, name string, exclude uuid.UUID) (bool, error)
	UpdateAccount(ctx context.Context, a Account) (Account, error)
	DeleteAccount(ctx context.Context, owner string, id uuid.UUID) error
	ListAccounts(ctx context.Context, owner string, includeArchived bool) ([]Account, error)
	ListAccountsWithBalance(ctx context.Context, owner string, includeArchived bool) ([]AccountWithBalance, error)

	InsertMovement(ctx context.Context, m Movement) error
	UpdateMovementsBySource(ctx context.Context, owner string, source SourceType, sourceID uuid.UUID, amount int64, occurredAt time.Time, note *string) (int64, error)
	DeleteMovementsBySource(ctx context.Context, owner string, source SourceType, sourceID uuid.UUID) (int64, error)
	BalanceOf(ctx context.Context, owner string, accountID uuid.UUID) (int64, error)
	CountMovements(ctx context.Context, owner string, accountID uuid.UUID) (int64, error)
	HasMovementsOtherThanOpening(ctx context.Context, owner string, accountID uuid.UUID) (bool, error)
	ListMovements(ctx context.Context, owner string, filter MovementFilter) ([]Movement, error)

	GetOpening(ctx context.Context, owner string, accountID uuid.UUID) (Opening, error)
	InsertOpening(ctx context.Context, o Opening) (Opening, error)
	UpdateOpening(ctx context.Context, o Opening) error
	DeleteOpening(ctx context.Context, owner string, id uuid.UUID) error

	InsertTransfer(ctx context.Context, t Transfer) (Transfer, error)
	GetTransfer(ctx context.Context, owner string, id uuid.UUID, forUpdate bool) (Transfer, error)
	UpdateTransfer(ctx context.Context, t Transfer) (Transfer, error)
	DeleteTransfer(ctx context.Context, owner string, id uuid.UUID) error
	ListTransfers(ctx context.Context, owner string, limit, offset int) ([]Transfer, error)

	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	GetEntry(ctx context.Context, owner string, kind EntryKind, id uuid.UUID, forUpdate bool) (Entry, error)
	UpdateEntry(ctx context.Context, e Entry) (Entry, error)
	DeleteEntry(ctx context.Context, owner string, kind EntryKind, id uuid.UUID) error

	ClaimIdempotencyKey(ctx context.Context, owner, key, module string) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a transaction at the isolation selected by mode.
// Driver errors surfacing from fn or commit are translated to ledger sentinels.
func (r *Repository) WithTx(ctx context.Context, mode TxMode, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("ledger repository not initialised")
	}
	iso := pgx.ReadCommitted
	if mode == TxSerializable {
		iso = pgx.Serializable
	}
	err := db.WithTx(ctx, r.pool, iso, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil {
		return translate(err)
	}
	return nil
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		switch pgErr.ConstraintName {
		case "uq_accounts_owner_active_name":
			return ErrAccountNameTaken
		case "uq_account_openings_account":
			return ErrOpeningExists
		case "idempotency_keys_pkey":
			return shared.ErrIdempotencyConflict
		}
	case "23503":
		return ErrAccountHasMovements
	case "40001", "40P01":
		return ErrConcurrentUpdate
	}
	return err
}

const accountColumns = `id, owner_id, name, type, currency, is_archived, archived_at, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.Currency, &a.IsArchived, &a.ArchivedAt, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) InsertAccount(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (id, owner_id, name, type, currency, is_archived, archived_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,FALSE,NULL,$6,$6) RETURNING `+accountColumns, a.ID, a.OwnerID, a.Name, a.Type, a.Currency, a.CreatedAt)
	return scanAccount(row)
}

func (r *txRepository) GetAccount(ctx context.Context, owner string, id uuid.UUID) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 AND owner_id=$2`, id, owner))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *txRepository) LockAccount(ctx context.Context, owner string, id uuid.UUID) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 AND owner_id=$2 FOR UPDATE`, id, owner))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *txRepository) ActiveNameExists(ctx context.Context, owner, name string, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM accounts WHERE owner_id=$1 AND lower(name)=lower($2) AND is_archived=FALSE AND id<>$3
)`, owner, name, exclude).Scan(&exists)
	return exists, err
}

func (r *txRepository) UpdateAccount(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `UPDATE accounts SET name=$3, type=$4, currency=$5, is_archived=$6, archived_at=$7, updated_at=$8
WHERE id=$1 AND owner_id=$2 RETURNING `+accountColumns, a.ID, a.OwnerID, a.Name, a.Type, a.Currency, a.IsArchived, a.ArchivedAt, a.UpdatedAt)
	updated, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return updated, err
}

func (r *txRepository) DeleteAccount(ctx context.Context, owner string, id uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id=$1 AND owner_id=$2`, id, owner)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) ListAccounts(ctx context.Context, owner string, includeArchived bool) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE owner_id=$1 AND ($2 OR is_archived=FALSE) ORDER BY created_at DESC`, owner, includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make([]Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) ListAccountsWithBalance(ctx context.Context, owner string, includeArchived bool) ([]AccountWithBalance, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.owner_id, a.name, a.type, a.currency, a.is_archived, a.archived_at, a.created_at, a.updated_at,
	COALESCE(SUM(m.amount), 0)::bigint AS balance
FROM accounts a
LEFT JOIN account_movements m ON m.account_id = a.id AND m.owner_id = a.owner_id
WHERE a.owner_id=$1 AND ($2 OR a.is_archived=FALSE)
GROUP BY a.id
ORDER BY a.created_at DESC`, owner, includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]AccountWithBalance, 0)
	for rows.Next() {
		var a AccountWithBalance
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.Currency, &a.IsArchived, &a.ArchivedAt, &a.CreatedAt, &a.UpdatedAt, &a.Balance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO account_movements (id, owner_id, account_id, amount, occurred_at, source_type, source_id, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, m.ID, m.OwnerID, m.AccountID, m.Amount, m.OccurredAt, m.SourceType, m.SourceID, m.Note)
	return err
}

func (r *txRepository) UpdateMovementsBySource(ctx context.Context, owner string, source SourceType, sourceID uuid.UUID, amount int64, occurredAt time.Time, note *string) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE account_movements SET amount=$4, occurred_at=$5, note=$6
WHERE owner_id=$1 AND source_type=$2 AND source_id=$3`, owner, source, sourceID, amount, occurredAt, note)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) DeleteMovementsBySource(ctx context.Context, owner string, source SourceType, sourceID uuid.UUID) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM account_movements WHERE owner_id=$1 AND source_type=$2 AND source_id=$3`, owner, source, sourceID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) BalanceOf(ctx context.Context, owner string, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::bigint FROM account_movements WHERE owner_id=$1 AND account_id=$2`, owner, accountID).Scan(&balance)
	return balance, err
}

func (r *txRepository) CountMovements(ctx context.Context, owner string, accountID uuid.UUID) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM account_movements WHERE owner_id=$1 AND account_id=$2`, owner, accountID).Scan(&n)
	return n, err
}

func (r *txRepository) HasMovementsOtherThanOpening(ctx context.Context, owner string, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM account_movements WHERE owner_id=$1 AND account_id=$2 AND source_type<>'opening_balance'
)`, owner, accountID).Scan(&exists)
	return exists, err
}

func (r *txRepository) ListMovements(ctx context.Context, owner string, filter MovementFilter) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, owner_id, account_id, amount, occurred_at, source_type, source_id, note
FROM account_movements
WHERE owner_id=$1 AND account_id=$2
	AND ($3::timestamptz IS NULL OR occurred_at >= $3)
	AND ($4::timestamptz IS NULL OR occurred_at < $4)
ORDER BY occurred_at DESC, id
LIMIT $5 OFFSET $6`, owner, filter.AccountID, filter.From, filter.To, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Movement, 0)
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.AccountID, &m.Amount, &m.OccurredAt, &m.SourceType, &m.SourceID, &m.Note); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) GetOpening(ctx context.Context, owner string, accountID uuid.UUID) (Opening, error) {
	var o Opening
	err := r.tx.QueryRow(ctx, `SELECT id, owner_id, account_id, amount, occurred_at, note, created_at
FROM account_openings WHERE owner_id=$1 AND account_id=$2`, owner, accountID).
		Scan(&o.ID, &o.OwnerID, &o.AccountID, &o.Amount, &o.OccurredAt, &o.Note, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Opening{}, ErrOpeningNotFound
	}
	return o, err
}

func (r *txRepository) InsertOpening(ctx context.Context, o Opening) (Opening, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO account_openings (id, owner_id, account_id, amount, occurred_at, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING created_at`, o.ID, o.OwnerID, o.AccountID, o.Amount, o.OccurredAt, o.Note, o.CreatedAt).Scan(&o.CreatedAt)
	return o, err
}

func (r *txRepository) UpdateOpening(ctx context.Context, o Opening) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE account_openings SET amount=$3, occurred_at=$4, note=$5 WHERE id=$1 AND owner_id=$2`,
		o.ID, o.OwnerID, o.Amount, o.OccurredAt, o.Note)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrOpeningNotFound
	}
	return nil
}

func (r *txRepository) DeleteOpening(ctx context.Context, owner string, id uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM account_openings WHERE id=$1 AND owner_id=$2`, id, owner)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrOpeningNotFound
	}
	return nil
}

const transferColumns = `id, owner_id, from_account_id, to_account_id, amount, occurred_at, description, created_at, updated_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.OwnerID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.OccurredAt, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO transfers (id, owner_id, from_account_id, to_account_id, amount, occurred_at, description, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8) RETURNING `+transferColumns, t.ID, t.OwnerID, t.FromAccountID, t.ToAccountID, t.Amount, t.OccurredAt, t.Description, t.CreatedAt)
	return scanTransfer(row)
}

func (r *txRepository) GetTransfer(ctx context.Context, owner string, id uuid.UUID, forUpdate bool) (Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id=$1 AND owner_id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTransfer(r.tx.QueryRow(ctx, query, id, owner))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrTransferNotFound
	}
	return t, err
}

func (r *txRepository) UpdateTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	row := r.tx.QueryRow(ctx, `UPDATE transfers SET from_account_id=$3, to_account_id=$4, amount=$5, occurred_at=$6, description=$7, updated_at=$8
WHERE id=$1 AND owner_id=$2 RETURNING `+transferColumns, t.ID, t.OwnerID, t.FromAccountID, t.ToAccountID, t.Amount, t.OccurredAt, t.Description, t.UpdatedAt)
	updated, err := scanTransfer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrTransferNotFound
	}
	return updated, err
}

func (r *txRepository) DeleteTransfer(ctx context.Context, owner string, id uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM transfers WHERE id=$1 AND owner_id=$2`, id, owner)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (r *txRepository) ListTransfers(ctx context.Context, owner string, limit, offset int) ([]Transfer, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+transferColumns+` FROM transfers WHERE owner_id=$1
ORDER BY occurred_at DESC, id LIMIT $2 OFFSET $3`, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// entryTable maps the kind to its table; kinds are closed so the name is never
// caller supplied.
func entryTable(kind EntryKind) string {
	if kind == EntryIncome {
		return "incomes"
	}
	return "expenses"
}

const entryColumns = `id, owner_id, account_id, amount, occurred_at, description, created_at, updated_at`

func scanEntry(row pgx.Row, kind EntryKind) (Entry, error) {
	e := Entry{Kind: kind}
	err := row.Scan(&e.ID, &e.OwnerID, &e.AccountID, &e.Amount, &e.OccurredAt, &e.Description, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO `+entryTable(e.Kind)+` (id, owner_id, account_id, amount, occurred_at, description, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7) RETURNING `+entryColumns, e.ID, e.OwnerID, e.AccountID, e.Amount, e.OccurredAt, e.Description, e.CreatedAt)
	return scanEntry(row, e.Kind)
}

func (r *txRepository) GetEntry(ctx context.Context, owner string, kind EntryKind, id uuid.UUID, forUpdate bool) (Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ` + entryTable(kind) + ` WHERE id=$1 AND owner_id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	e, err := scanEntry(r.tx.QueryRow(ctx, query, id, owner), kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

func (r *txRepository) UpdateEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `UPDATE `+entryTable(e.Kind)+` SET account_id=$3, amount=$4, occurred_at=$5, description=$6, updated_at=$7
WHERE id=$1 AND owner_id=$2 RETURNING `+entryColumns, e.ID, e.OwnerID, e.AccountID, e.Amount, e.OccurredAt, e.Description, e.UpdatedAt)
	updated, err := scanEntry(row, e.Kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return updated, err
}

func (r *txRepository) DeleteEntry(ctx context.Context, owner string, kind EntryKind, id uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM `+entryTable(kind)+` WHERE id=$1 AND owner_id=$2`, id, owner)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, owner, key, module string) error {
	return shared.ClaimIdempotencyKey(ctx, r.tx, owner, key, module)
}
