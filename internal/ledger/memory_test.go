package ledger

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pocketledger/pocketledger/internal/shared"
)

// memoryState is one consistent copy of every table.
type memoryState struct {
	accounts    map[uuid.UUID]Account
	movements   []Movement
	openings    map[uuid.UUID]Opening
	transfers   map[uuid.UUID]Transfer
	entries     map[EntryKind]map[uuid.UUID]Entry
	idempotency map[string]struct{}
}

func newMemoryState() *memoryState {
	return &memoryState{
		accounts:    map[uuid.UUID]Account{},
		openings:    map[uuid.UUID]Opening{},
		transfers:   map[uuid.UUID]Transfer{},
		entries:     map[EntryKind]map[uuid.UUID]Entry{EntryExpense: {}, EntryIncome: {}},
		idempotency: map[string]struct{}{},
	}
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		accounts:  maps.Clone(s.accounts),
		movements: slices.Clone(s.movements),
		openings:  maps.Clone(s.openings),
		transfers: maps.Clone(s.transfers),
		entries: map[EntryKind]map[uuid.UUID]Entry{
			EntryExpense: maps.Clone(s.entries[EntryExpense]),
			EntryIncome:  maps.Clone(s.entries[EntryIncome]),
		},
		idempotency: maps.Clone(s.idempotency),
	}
}

// memoryRepo runs each unit of work against a copy of the state and only
// publishes the copy on success, giving all-or-nothing semantics.
type memoryRepo struct {
	mu      sync.Mutex
	state   *memoryState
	failOn  string
	failErr error
	// concurrent runs against the committed state when the injected failure fires
	concurrent func(*memoryState)
	txCalls    int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newMemoryState()}
}

func (r *memoryRepo) WithTx(ctx context.Context, _ TxMode, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCalls++
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r, s: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

// failNext makes the named statement fail with err until cleared.
func (r *memoryRepo) failNext(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn, r.failErr = method, err
}

// failAfterConcurrent fails method with err once, after first committing the
// work of a competing transaction.
func (r *memoryRepo) failAfterConcurrent(method string, err error, winner func(*memoryState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn, r.failErr, r.concurrent = method, err, winner
}

func (r *memoryRepo) movements() []Movement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.movements)
}

func (r *memoryRepo) movementsBySource(source SourceType, id uuid.UUID) []Movement {
	var out []Movement
	for _, m := range r.movements() {
		if m.SourceType == source && m.SourceID == id {
			out = append(out, m)
		}
	}
	return out
}

type memoryTx struct {
	repo *memoryRepo
	s    *memoryState
}

func (tx *memoryTx) fail(method string) error {
	if tx.repo.failOn != method {
		return nil
	}
	err := tx.repo.failErr
	if winner := tx.repo.concurrent; winner != nil {
		winner(tx.repo.state)
		tx.repo.failOn, tx.repo.failErr, tx.repo.concurrent = "", nil, nil
	}
	return err
}

func (tx *memoryTx) InsertAccount(_ context.Context, a Account) (Account, error) {
	if err := tx.fail("InsertAccount"); err != nil {
		return Account{}, err
	}
	a.UpdatedAt = a.CreatedAt
	tx.s.accounts[a.ID] = a
	return a, nil
}

func (tx *memoryTx) GetAccount(_ context.Context, owner string, id uuid.UUID) (Account, error) {
	a, ok := tx.s.accounts[id]
	if !ok || a.OwnerID != owner {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (tx *memoryTx) LockAccount(ctx context.Context, owner string, id uuid.UUID) (Account, error) {
	return tx.GetAccount(ctx, owner, id)
}

func (tx *memoryTx) ActiveNameExists(_ context.Context, owner, name string, exclude uuid.UUID) (bool, error) {
	for _, a := range tx.s.accounts {
		if a.OwnerID == owner && !a.IsArchived && a.ID != exclude && nameKey(a.Name) == nameKey(name) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) UpdateAccount(_ context.Context, a Account) (Account, error) {
	cur, ok := tx.s.accounts[a.ID]
	if !ok || cur.OwnerID != a.OwnerID {
		return Account{}, ErrAccountNotFound
	}
	tx.s.accounts[a.ID] = a
	return a, nil
}

func (tx *memoryTx) DeleteAccount(_ context.Context, owner string, id uuid.UUID) error {
	a, ok := tx.s.accounts[id]
	if !ok || a.OwnerID != owner {
		return ErrAccountNotFound
	}
	for _, m := range tx.s.movements {
		if m.AccountID == id {
			return ErrAccountHasMovements
		}
	}
	delete(tx.s.accounts, id)
	return nil
}

func (tx *memoryTx) ListAccounts(_ context.Context, owner string, includeArchived bool) ([]Account, error) {
	out := make([]Account, 0)
	for _, a := range tx.s.accounts {
		if a.OwnerID == owner && (includeArchived || !a.IsArchived) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (tx *memoryTx) ListAccountsWithBalance(ctx context.Context, owner string, includeArchived bool) ([]AccountWithBalance, error) {
	accounts, _ := tx.ListAccounts(ctx, owner, includeArchived)
	out := make([]AccountWithBalance, 0, len(accounts))
	for _, a := range accounts {
		balance, _ := tx.BalanceOf(ctx, owner, a.ID)
		out = append(out, AccountWithBalance{Account: a, Balance: balance})
	}
	return out, nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m Movement) error {
	if err := tx.fail("InsertMovement"); err != nil {
		return err
	}
	if _, ok := tx.s.accounts[m.AccountID]; !ok {
		return ErrAccountNotFound
	}
	tx.s.movements = append(tx.s.movements, m)
	return nil
}

func (tx *memoryTx) UpdateMovementsBySource(_ context.Context, owner string, source SourceType, sourceID uuid.UUID, amount int64, occurredAt time.Time, note *string) (int64, error) {
	var n int64
	for i, m := range tx.s.movements {
		if m.OwnerID == owner && m.SourceType == source && m.SourceID == sourceID {
			tx.s.movements[i].Amount = amount
			tx.s.movements[i].OccurredAt = occurredAt
			tx.s.movements[i].Note = note
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) DeleteMovementsBySource(_ context.Context, owner string, source SourceType, sourceID uuid.UUID) (int64, error) {
	if err := tx.fail("DeleteMovementsBySource"); err != nil {
		return 0, err
	}
	kept := tx.s.movements[:0:0]
	var n int64
	for _, m := range tx.s.movements {
		if m.OwnerID == owner && m.SourceType == source && m.SourceID == sourceID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	tx.s.movements = kept
	return n, nil
}

func (tx *memoryTx) BalanceOf(_ context.Context, owner string, accountID uuid.UUID) (int64, error) {
	var sum int64
	for _, m := range tx.s.movements {
		if m.OwnerID == owner && m.AccountID == accountID {
			sum += m.Amount
		}
	}
	return sum, nil
}

func (tx *memoryTx) CountMovements(_ context.Context, owner string, accountID uuid.UUID) (int64, error) {
	var n int64
	for _, m := range tx.s.movements {
		if m.OwnerID == owner && m.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) HasMovementsOtherThanOpening(_ context.Context, owner string, accountID uuid.UUID) (bool, error) {
	for _, m := range tx.s.movements {
		if m.OwnerID == owner && m.AccountID == accountID && m.SourceType != SourceOpeningBalance {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) ListMovements(_ context.Context, owner string, filter MovementFilter) ([]Movement, error) {
	out := make([]Movement, 0)
	for _, m := range tx.s.movements {
		if m.OwnerID != owner || m.AccountID != filter.AccountID {
			continue
		}
		if filter.From != nil && m.OccurredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !m.OccurredAt.Before(*filter.To) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if filter.Offset >= len(out) {
		return []Movement{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (tx *memoryTx) GetOpening(_ context.Context, owner string, accountID uuid.UUID) (Opening, error) {
	for _, o := range tx.s.openings {
		if o.OwnerID == owner && o.AccountID == accountID {
			return o, nil
		}
	}
	return Opening{}, ErrOpeningNotFound
}

func (tx *memoryTx) InsertOpening(_ context.Context, o Opening) (Opening, error) {
	if err := tx.fail("InsertOpening"); err != nil {
		return Opening{}, err
	}
	for _, existing := range tx.s.openings {
		if existing.AccountID == o.AccountID {
			return Opening{}, ErrOpeningExists
		}
	}
	tx.s.openings[o.ID] = o
	return o, nil
}

func (tx *memoryTx) UpdateOpening(_ context.Context, o Opening) error {
	cur, ok := tx.s.openings[o.ID]
	if !ok || cur.OwnerID != o.OwnerID {
		return ErrOpeningNotFound
	}
	tx.s.openings[o.ID] = o
	return nil
}

func (tx *memoryTx) DeleteOpening(_ context.Context, owner string, id uuid.UUID) error {
	cur, ok := tx.s.openings[id]
	if !ok || cur.OwnerID != owner {
		return ErrOpeningNotFound
	}
	delete(tx.s.openings, id)
	return nil
}

func (tx *memoryTx) InsertTransfer(_ context.Context, t Transfer) (Transfer, error) {
	tx.s.transfers[t.ID] = t
	return t, nil
}

func (tx *memoryTx) GetTransfer(_ context.Context, owner string, id uuid.UUID, _ bool) (Transfer, error) {
	t, ok := tx.s.transfers[id]
	if !ok || t.OwnerID != owner {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (tx *memoryTx) UpdateTransfer(_ context.Context, t Transfer) (Transfer, error) {
	if err := tx.fail("UpdateTransfer"); err != nil {
		return Transfer{}, err
	}
	cur, ok := tx.s.transfers[t.ID]
	if !ok || cur.OwnerID != t.OwnerID {
		return Transfer{}, ErrTransferNotFound
	}
	tx.s.transfers[t.ID] = t
	return t, nil
}

func (tx *memoryTx) DeleteTransfer(_ context.Context, owner string, id uuid.UUID) error {
	cur, ok := tx.s.transfers[id]
	if !ok || cur.OwnerID != owner {
		return ErrTransferNotFound
	}
	delete(tx.s.transfers, id)
	return nil
}

func (tx *memoryTx) ListTransfers(_ context.Context, owner string, limit, offset int) ([]Transfer, error) {
	out := make([]Transfer, 0)
	for _, t := range tx.s.transfers {
		if t.OwnerID == owner {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if offset >= len(out) {
		return []Transfer{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memoryTx) InsertEntry(_ context.Context, e Entry) (Entry, error) {
	e.UpdatedAt = e.CreatedAt
	tx.s.entries[e.Kind][e.ID] = e
	return e, nil
}

func (tx *memoryTx) GetEntry(_ context.Context, owner string, kind EntryKind, id uuid.UUID, _ bool) (Entry, error) {
	e, ok := tx.s.entries[kind][id]
	if !ok || e.OwnerID != owner {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (tx *memoryTx) UpdateEntry(_ context.Context, e Entry) (Entry, error) {
	cur, ok := tx.s.entries[e.Kind][e.ID]
	if !ok || cur.OwnerID != e.OwnerID {
		return Entry{}, ErrEntryNotFound
	}
	tx.s.entries[e.Kind][e.ID] = e
	return e, nil
}

func (tx *memoryTx) DeleteEntry(_ context.Context, owner string, kind EntryKind, id uuid.UUID) error {
	cur, ok := tx.s.entries[kind][id]
	if !ok || cur.OwnerID != owner {
		return ErrEntryNotFound
	}
	delete(tx.s.entries[kind], id)
	return nil
}

func (tx *memoryTx) ClaimIdempotencyKey(_ context.Context, owner, key, module string) error {
	k := owner + "|" + module + "|" + key
	if _, ok := tx.s.idempotency[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	tx.s.idempotency[k] = struct{}{}
	return nil
}
