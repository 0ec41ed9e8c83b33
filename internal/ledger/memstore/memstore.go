// Package memstore provides an in-memory ledger.Store used by tests and
// local development. It honors the same contract as the Postgres store:
// per-account exclusive locks with a bounded wait, all-or-nothing atomic
// units, and reference numbers reserved atomically with the append.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corebank/ledger/internal/ledger"
)

const allocAttempts = 10

// Store is an in-memory ledger.Store.
//
// Mutations inside an atomic unit are staged on transaction-local working
// copies and written back at commit while holding the store mutex, so other
// callers never observe a half-applied unit. Exclusive account ownership
// between units is a one-slot semaphore per account, acquired with a bounded
// wait that fails with ErrBusy.
type Store struct {
	mu          sync.RWMutex
	accounts    map[int64]*account
	byNumber    map[string]int64
	numbers     map[string]struct{} // reserved account numbers, incl. in-flight
	entries     map[int64]*ledger.Transaction
	byAccount   map[int64][]int64
	refs        map[string]struct{} // reserved reference numbers, incl. in-flight
	nextAccount int64
	nextEntry   int64

	lockTimeout time.Duration
	now         func() time.Time
}

type account struct {
	sem  chan struct{} // one-slot semaphore, held for the duration of a unit
	data ledger.Account
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long Lock waits for exclusive access.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		accounts:    make(map[int64]*account),
		byNumber:    make(map[string]int64),
		numbers:     make(map[string]struct{}),
		entries:     make(map[int64]*ledger.Transaction),
		byAccount:   make(map[int64][]int64),
		refs:        make(map[string]struct{}),
		lockTimeout: 3 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Atomic runs fn inside one unit. On error everything staged by fn is
// discarded and reserved identifiers are released.
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

// Accounts returns auto-committing account access.
func (s *Store) Accounts() ledger.AccountStore { return &accountStore{s: s} }

// Journal returns auto-committing journal access.
func (s *Store) Journal() ledger.Journal { return &journal{s: s} }

// memTx is one atomic unit.
type memTx struct {
	s       *Store
	locked  []*lockedAccount
	created []*ledger.Account
	pending []*ledger.Transaction
	numbers []string
	refs    []string
}

type lockedAccount struct {
	ref  *account
	work ledger.Account
}

func (tx *memTx) Accounts() ledger.AccountStore { return &accountStore{s: tx.s, tx: tx} }
func (tx *memTx) Journal() ledger.Journal       { return &journal{s: tx.s, tx: tx} }

// work returns the transaction-local copy of an account this unit owns,
// whether locked or created within the unit.
func (tx *memTx) work(id int64) *ledger.Account {
	for _, la := range tx.locked {
		if la.work.ID == id {
			return &la.work
		}
	}
	for _, a := range tx.created {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (tx *memTx) commit() {
	s := tx.s
	s.mu.Lock()
	for _, a := range tx.created {
		s.accounts[a.ID] = &account{sem: make(chan struct{}, 1), data: *a}
		s.byNumber[a.Number] = a.ID
	}
	for _, la := range tx.locked {
		la.ref.data = la.work
	}
	for _, t := range tx.pending {
		entry := *t
		s.entries[entry.ID] = &entry
		s.byAccount[entry.AccountID] = append(s.byAccount[entry.AccountID], entry.ID)
	}
	s.mu.Unlock()
	tx.release()
}

func (tx *memTx) rollback() {
	s := tx.s
	s.mu.Lock()
	for _, n := range tx.numbers {
		delete(s.numbers, n)
	}
	for _, r := range tx.refs {
		delete(s.refs, r)
	}
	s.mu.Unlock()
	tx.release()
}

func (tx *memTx) release() {
	for _, la := range tx.locked {
		<-la.ref.sem
	}
	tx.locked = nil
	tx.created = nil
	tx.pending = nil
}

// accountStore implements ledger.AccountStore. tx is nil for auto-commit use.
type accountStore struct {
	s  *Store
	tx *memTx
}

func (as *accountStore) Get(_ context.Context, id int64) (*ledger.Account, error) {
	if as.tx != nil {
		if w := as.tx.work(id); w != nil {
			out := *w
			return &out, nil
		}
	}
	as.s.mu.RLock()
	defer as.s.mu.RUnlock()
	a, ok := as.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, ledger.ErrAccountNotFound)
	}
	data := a.data
	return &data, nil
}

func (as *accountStore) GetByNumber(ctx context.Context, number string) (*ledger.Account, error) {
	as.s.mu.RLock()
	id, ok := as.s.byNumber[number]
	as.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("account %q: %w", number, ledger.ErrAccountNotFound)
	}
	return as.Get(ctx, id)
}

func (as *accountStore) ListForOwner(_ context.Context, ownerID int64) ([]ledger.Account, error) {
	as.s.mu.RLock()
	defer as.s.mu.RUnlock()
	var out []ledger.Account
	for _, a := range as.s.accounts {
		if a.data.OwnerID == ownerID {
			out = append(out, a.data)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (as *accountStore) Create(ctx context.Context, a *ledger.Account) error {
	if as.tx == nil {
		return as.s.Atomic(ctx, func(tx ledger.Tx) error {
			return tx.Accounts().Create(ctx, a)
		})
	}
	s := as.s
	s.mu.Lock()
	defer s.mu.Unlock()

	number := ""
	for i := 0; i < allocAttempts; i++ {
		candidate := ledger.AccountNumber(s.now())
		if _, taken := s.numbers[candidate]; !taken {
			s.numbers[candidate] = struct{}{}
			number = candidate
			break
		}
	}
	if number == "" {
		return fmt.Errorf("could not allocate a unique account number after %d attempts", allocAttempts)
	}

	s.nextAccount++
	now := s.now()
	a.ID = s.nextAccount
	a.Number = number
	a.CreatedAt = now
	a.UpdatedAt = now

	as.tx.created = append(as.tx.created, a)
	as.tx.numbers = append(as.tx.numbers, number)
	return nil
}

func (as *accountStore) Lock(ctx context.Context, id int64) (*ledger.Account, error) {
	if as.tx == nil {
		return nil, fmt.Errorf("memstore: Lock requires an atomic unit")
	}
	if w := as.tx.work(id); w != nil {
		out := *w
		return &out, nil
	}

	as.s.mu.RLock()
	a, ok := as.s.accounts[id]
	as.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, ledger.ErrAccountNotFound)
	}

	if err := acquire(ctx, a.sem, as.s.lockTimeout); err != nil {
		return nil, fmt.Errorf("account %d: %w", id, err)
	}

	as.s.mu.RLock()
	work := a.data
	as.s.mu.RUnlock()

	as.tx.locked = append(as.tx.locked, &lockedAccount{ref: a, work: work})
	out := work
	return &out, nil
}

func (as *accountStore) AdjustBalance(_ context.Context, id int64, delta ledger.Money) (ledger.Money, error) {
	if as.tx == nil {
		return ledger.Money{}, fmt.Errorf("memstore: AdjustBalance requires an atomic unit")
	}
	w := as.tx.work(id)
	if w == nil {
		return ledger.Money{}, fmt.Errorf("memstore: account %d is not locked by this unit", id)
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return ledger.Money{}, fmt.Errorf("account %s: %w", w.Number, ledger.ErrInsufficientFunds)
	}
	w.Balance = next
	w.UpdatedAt = as.s.now()
	return next, nil
}

func (as *accountStore) UpdateStatus(ctx context.Context, id int64, status ledger.AccountStatus) error {
	return as.mutate(ctx, id, func(a *ledger.Account) error {
		a.Status = status
		return nil
	})
}

func (as *accountStore) UpdateBranchCode(ctx context.Context, id int64, branchCode string) error {
	return as.mutate(ctx, id, func(a *ledger.Account) error {
		a.BranchCode = branchCode
		return nil
	})
}

func (as *accountStore) Close(ctx context.Context, id int64) error {
	return as.mutate(ctx, id, func(a *ledger.Account) error {
		if !a.Balance.IsZero() {
			return fmt.Errorf("account %s: %w", a.Number, ledger.ErrAccountHasBalance)
		}
		a.Status = ledger.AccountClosed
		return nil
	})
}

// mutate applies a metadata change. Inside a unit it edits the working copy;
// outside it briefly takes the account semaphore so it cannot race a
// concurrent unit's write-back.
func (as *accountStore) mutate(ctx context.Context, id int64, fn func(*ledger.Account) error) error {
	if as.tx != nil {
		w := as.tx.work(id)
		if w == nil {
			return fmt.Errorf("memstore: account %d is not locked by this unit", id)
		}
		if err := fn(w); err != nil {
			return err
		}
		w.UpdatedAt = as.s.now()
		return nil
	}

	as.s.mu.RLock()
	a, ok := as.s.accounts[id]
	as.s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("account %d: %w", id, ledger.ErrAccountNotFound)
	}
	if err := acquire(ctx, a.sem, as.s.lockTimeout); err != nil {
		return fmt.Errorf("account %d: %w", id, err)
	}
	defer func() { <-a.sem }()

	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	work := a.data
	if err := fn(&work); err != nil {
		return err
	}
	work.UpdatedAt = as.s.now()
	a.data = work
	return nil
}

// journal implements ledger.Journal. tx is nil for auto-commit use.
type journal struct {
	s  *Store
	tx *memTx
}

func (j *journal) Append(ctx context.Context, t *ledger.Transaction) error {
	if j.tx == nil {
		return j.s.Atomic(ctx, func(tx ledger.Tx) error {
			return tx.Journal().Append(ctx, t)
		})
	}
	s := j.s
	s.mu.Lock()
	defer s.mu.Unlock()

	reference := ""
	for i := 0; i < allocAttempts; i++ {
		candidate := ledger.ReferenceNumber(s.now())
		if _, taken := s.refs[candidate]; !taken {
			s.refs[candidate] = struct{}{}
			reference = candidate
			break
		}
	}
	if reference == "" {
		return fmt.Errorf("could not allocate a unique reference number after %d attempts", allocAttempts)
	}

	s.nextEntry++
	t.ID = s.nextEntry
	t.ReferenceNumber = reference
	t.CreatedAt = s.now()
	if t.Status == "" {
		t.Status = ledger.StatusCompleted
	}

	j.tx.pending = append(j.tx.pending, t)
	j.tx.refs = append(j.tx.refs, reference)
	return nil
}

func (j *journal) Get(_ context.Context, id int64) (*ledger.Transaction, error) {
	if j.tx != nil {
		for _, t := range j.tx.pending {
			if t.ID == id {
				out := *t
				return &out, nil
			}
		}
	}
	j.s.mu.RLock()
	defer j.s.mu.RUnlock()
	t, ok := j.s.entries[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, ledger.ErrTransactionNotFound)
	}
	out := *t
	return &out, nil
}

func (j *journal) ListForAccount(_ context.Context, accountID int64, limit, offset int) ([]ledger.Transaction, error) {
	j.s.mu.RLock()
	defer j.s.mu.RUnlock()
	ids := j.s.byAccount[accountID]
	out := []ledger.Transaction{}
	// Newest first: ids are in append order.
	for i := len(ids) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, *j.s.entries[ids[i]])
	}
	return out, nil
}

func (j *journal) SetStatus(_ context.Context, id int64, status ledger.TransactionStatus, notes string) (*ledger.Transaction, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	t, ok := j.s.entries[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, ledger.ErrTransactionNotFound)
	}
	if t.Status.Final() {
		return nil, fmt.Errorf("transaction %s is %s: %w", t.ReferenceNumber, t.Status, ledger.ErrAlreadyFinalized)
	}
	t.Status = status
	t.ReviewNotes = notes
	out := *t
	return &out, nil
}

// acquire takes the one-slot semaphore, failing with ErrBusy after the
// configured bound.
func acquire(ctx context.Context, sem chan struct{}, timeout time.Duration) error {
	select {
	case sem <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ledger.ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}
