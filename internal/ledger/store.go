package ledger

import "context"

// Store is the persistence boundary of the ledger. Implementations must make
// Atomic all-or-nothing: either every mutation performed through the Tx is
// committed, or none is visible to any other caller.
//
// The direct Accounts/Journal accessors run each call in its own implicit
// unit and exist for reads and single-row metadata updates.
type Store interface {
	// Atomic executes fn inside one storage transaction. A non-nil error
	// from fn rolls the unit back and is returned unchanged.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	Accounts() AccountStore
	Journal() Journal
}

// Tx exposes the repositories bound to one atomic unit. Using repositories
// obtained elsewhere inside the unit would break atomicity, so the engine
// only ever reaches storage through the Tx it was handed.
type Tx interface {
	Accounts() AccountStore
	Journal() Journal
}

// AccountStore owns account records. AdjustBalance is the only path that may
// write a balance.
type AccountStore interface {
	Get(ctx context.Context, id int64) (*Account, error)
	GetByNumber(ctx context.Context, number string) (*Account, error)
	ListForOwner(ctx context.Context, ownerID int64) ([]Account, error)

	// Create persists a new account, allocating a unique account number.
	// ID, Number and timestamps are filled in on success.
	Create(ctx context.Context, a *Account) error

	// Lock acquires exclusive access to the account until the surrounding
	// atomic unit ends, returning the current record. Fails with ErrBusy if
	// the lock cannot be acquired within the store's configured bound.
	// Callers locking several accounts must do so in ascending id order.
	Lock(ctx context.Context, id int64) (*Account, error)

	// AdjustBalance applies balance += delta and returns the new balance.
	// Fails with ErrInsufficientFunds if the result would be negative. The
	// account must be locked by the current atomic unit.
	AdjustBalance(ctx context.Context, id int64, delta Money) (Money, error)

	UpdateStatus(ctx context.Context, id int64, status AccountStatus) error
	UpdateBranchCode(ctx context.Context, id int64, branchCode string) error

	// Close marks the account closed. Fails with ErrAccountHasBalance unless
	// the balance is exactly zero.
	Close(ctx context.Context, id int64) error
}

// Journal is the append-only record of money movements. Entries are
// immutable except for the status transition out of pending.
type Journal interface {
	// Append writes a new entry, allocating a unique reference number and
	// filling in ID, ReferenceNumber and CreatedAt. It never rejects on
	// business grounds; those are checked upstream by the engine.
	Append(ctx context.Context, t *Transaction) error

	Get(ctx context.Context, id int64) (*Transaction, error)
	ListForAccount(ctx context.Context, accountID int64, limit, offset int) ([]Transaction, error)

	// SetStatus transitions a pending entry and returns the updated record.
	// Fails with ErrAlreadyFinalized if the entry is not pending.
	SetStatus(ctx context.Context, id int64, status TransactionStatus, notes string) (*Transaction, error)
}
