package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// EventPublisher receives committed journal entries for downstream consumers
// (settlement feeds, reporting). Publishing happens after commit and is best
// effort; it is never part of the atomic unit.
type EventPublisher interface {
	Publish(ctx context.Context, entry *Transaction) error
}

// Engine implements the money-movement operations as atomic units against
// the Account Store and Transaction Journal. It is safe for concurrent use;
// per-account serialization and cross-account ordering are delegated to the
// store's locking.
type Engine struct {
	store  Store
	events EventPublisher
	log    zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithPublisher attaches an event publisher for committed entries.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// NewEngine builds an Engine on top of store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenAccountParams describes a new account.
type OpenAccountParams struct {
	OwnerID        int64
	Type           AccountType
	Currency       string
	BranchCode     string
	InitialDeposit Money
}

// OpenAccount creates an active account, journaling a completed deposit
// entry for any nonzero initial balance in the same atomic unit.
func (e *Engine) OpenAccount(ctx context.Context, p OpenAccountParams) (*Account, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccountType, p.Type)
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("invalid currency code %q", p.Currency)
	}
	if p.InitialDeposit.IsNegative() {
		return nil, fmt.Errorf("%w: initial deposit %s", ErrInvalidAmount, p.InitialDeposit)
	}

	account := &Account{
		OwnerID:    p.OwnerID,
		Type:       p.Type,
		Currency:   currency,
		Status:     AccountActive,
		BranchCode: p.BranchCode,
	}
	var entry *Transaction
	err := e.store.Atomic(ctx, func(tx Tx) error {
		if err := tx.Accounts().Create(ctx, account); err != nil {
			return err
		}
		if !p.InitialDeposit.IsPositive() {
			return nil
		}
		balance, err := tx.Accounts().AdjustBalance(ctx, account.ID, p.InitialDeposit)
		if err != nil {
			return err
		}
		account.Balance = balance
		entry = &Transaction{
			AccountID:    account.ID,
			Type:         TypeDeposit,
			Amount:       p.InitialDeposit,
			BalanceAfter: balance,
			Description:  "Initial deposit",
			Status:       StatusCompleted,
		}
		return tx.Journal().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, entry)
	e.log.Info().
		Int64("account_id", account.ID).
		Str("account_number", account.Number).
		Str("type", string(account.Type)).
		Msg("account opened")
	return account, nil
}

// GetAccount returns the account by id.
func (e *Engine) GetAccount(ctx context.Context, id int64) (*Account, error) {
	return e.store.Accounts().Get(ctx, id)
}

// GetAccountByNumber returns the account by its external number.
func (e *Engine) GetAccountByNumber(ctx context.Context, number string) (*Account, error) {
	return e.store.Accounts().GetByNumber(ctx, number)
}

// ListAccountsForOwner returns all accounts owned by ownerID.
func (e *Engine) ListAccountsForOwner(ctx context.Context, ownerID int64) ([]Account, error) {
	return e.store.Accounts().ListForOwner(ctx, ownerID)
}

// UpdateAccountStatus changes an account's status. Setting closed is routed
// through CloseAccount so the zero-balance rule cannot be bypassed.
func (e *Engine) UpdateAccountStatus(ctx context.Context, id int64, status AccountStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid account status %q", status)
	}
	if status == AccountClosed {
		return e.CloseAccount(ctx, id)
	}
	return e.store.Accounts().UpdateStatus(ctx, id, status)
}

// UpdateBranchCode changes an account's branch code.
func (e *Engine) UpdateBranchCode(ctx context.Context, id int64, branchCode string) error {
	return e.store.Accounts().UpdateBranchCode(ctx, id, branchCode)
}

// CloseAccount soft-deletes an account. Permitted only at exactly zero
// balance; accounts holding money are never closed or deleted.
func (e *Engine) CloseAccount(ctx context.Context, id int64) error {
	err := e.store.Atomic(ctx, func(tx Tx) error {
		account, err := tx.Accounts().Lock(ctx, id)
		if err != nil {
			return err
		}
		if !account.Balance.IsZero() {
			return fmt.Errorf("account %s: %w", account.Number, ErrAccountHasBalance)
		}
		return tx.Accounts().Close(ctx, id)
	})
	if err != nil {
		return err
	}
	e.log.Info().Int64("account_id", id).Msg("account closed")
	return nil
}

// DepositParams describes a deposit. RequireReview journals the entry as
// pending for teller approval instead of completed.
type DepositParams struct {
	AccountID     int64
	Amount        Money
	Description   string
	RequireReview bool
}

// Deposit credits an account and journals the movement in one atomic unit.
func (e *Engine) Deposit(ctx context.Context, p DepositParams) (*Transaction, error) {
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit of %s", ErrInvalidAmount, p.Amount)
	}
	if p.Description == "" {
		p.Description = "Deposit"
	}
	var entry *Transaction
	err := e.store.Atomic(ctx, func(tx Tx) error {
		account, err := tx.Accounts().Lock(ctx, p.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive() {
			return fmt.Errorf("account %s is %s: %w", account.Number, account.Status, ErrAccountNotActive)
		}
		balance, err := tx.Accounts().AdjustBalance(ctx, p.AccountID, p.Amount)
		if err != nil {
			return err
		}
		entry = &Transaction{
			AccountID:    p.AccountID,
			Type:         TypeDeposit,
			Amount:       p.Amount,
			BalanceAfter: balance,
			Description:  p.Description,
			Status:       entryStatus(p.RequireReview),
		}
		return tx.Journal().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, entry)
	e.logEntry(entry)
	return entry, nil
}

// WithdrawParams describes a withdrawal.
type WithdrawParams struct {
	AccountID     int64
	Amount        Money
	Description   string
	RequireReview bool
}

// Withdraw debits an account and journals the movement. A debit that would
// take the balance below zero aborts the whole unit: no balance change, no
// journal entry.
func (e *Engine) Withdraw(ctx context.Context, p WithdrawParams) (*Transaction, error) {
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal of %s", ErrInvalidAmount, p.Amount)
	}
	if p.Description == "" {
		p.Description = "Withdrawal"
	}
	var entry *Transaction
	err := e.store.Atomic(ctx, func(tx Tx) error {
		account, err := tx.Accounts().Lock(ctx, p.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive() {
			return fmt.Errorf("account %s is %s: %w", account.Number, account.Status, ErrAccountNotActive)
		}
		balance, err := tx.Accounts().AdjustBalance(ctx, p.AccountID, p.Amount.Neg())
		if err != nil {
			return err
		}
		entry = &Transaction{
			AccountID:    p.AccountID,
			Type:         TypeWithdraw,
			Amount:       p.Amount,
			BalanceAfter: balance,
			Description:  p.Description,
			Status:       entryStatus(p.RequireReview),
		}
		return tx.Journal().Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, entry)
	e.logEntry(entry)
	return entry, nil
}

// TransferParams describes a transfer between two accounts.
type TransferParams struct {
	FromAccountID int64
	ToAccountID   int64
	Amount        Money
	Description   string
	RequireReview bool
}

// Transfer moves money between two accounts as one atomic unit: debit the
// source, credit the destination, and append one journal entry per account,
// each with its own reference number and its own correct balance-after.
// Returns the source-side entry.
//
// Locks are taken in ascending account-id order regardless of direction, so
// reciprocal concurrent transfers cannot deadlock.
func (e *Engine) Transfer(ctx context.Context, p TransferParams) (*Transaction, error) {
	if p.FromAccountID == p.ToAccountID {
		return nil, ErrSameAccount
	}
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: transfer of %s", ErrInvalidAmount, p.Amount)
	}

	var sourceEntry, destEntry *Transaction
	err := e.store.Atomic(ctx, func(tx Tx) error {
		first, second := p.FromAccountID, p.ToAccountID
		if second < first {
			first, second = second, first
		}
		firstAccount, err := tx.Accounts().Lock(ctx, first)
		if err != nil {
			return err
		}
		secondAccount, err := tx.Accounts().Lock(ctx, second)
		if err != nil {
			return err
		}
		source, dest := firstAccount, secondAccount
		if first != p.FromAccountID {
			source, dest = secondAccount, firstAccount
		}

		if !source.IsActive() {
			return fmt.Errorf("source account %s is %s: %w", source.Number, source.Status, ErrAccountNotActive)
		}
		if !dest.IsActive() {
			return fmt.Errorf("destination account %s is %s: %w", dest.Number, dest.Status, ErrAccountNotActive)
		}

		sourceBalance, err := tx.Accounts().AdjustBalance(ctx, p.FromAccountID, p.Amount.Neg())
		if err != nil {
			return err
		}
		destBalance, err := tx.Accounts().AdjustBalance(ctx, p.ToAccountID, p.Amount)
		if err != nil {
			return err
		}

		sourceDescription := p.Description
		if sourceDescription == "" {
			sourceDescription = "Transfer to " + dest.Number
		}
		destDescription := p.Description
		if destDescription == "" {
			destDescription = "Transfer from " + source.Number
		}

		status := entryStatus(p.RequireReview)
		sourceEntry = &Transaction{
			AccountID:        p.FromAccountID,
			Type:             TypeTransfer,
			Amount:           p.Amount,
			BalanceAfter:     sourceBalance,
			Description:      sourceDescription,
			RelatedAccountID: &p.ToAccountID,
			Status:           status,
		}
		destEntry = &Transaction{
			AccountID:        p.ToAccountID,
			Type:             TypeTransfer,
			Amount:           p.Amount,
			BalanceAfter:     destBalance,
			Description:      destDescription,
			RelatedAccountID: &p.FromAccountID,
			Status:           status,
		}
		if err := tx.Journal().Append(ctx, sourceEntry); err != nil {
			return err
		}
		return tx.Journal().Append(ctx, destEntry)
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, sourceEntry)
	e.publish(ctx, destEntry)
	e.logEntry(sourceEntry)
	return sourceEntry, nil
}

// GetTransaction returns a journal entry by id.
func (e *Engine) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	return e.store.Journal().Get(ctx, id)
}

// ListTransactions returns journal entries for an account, newest first.
func (e *Engine) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := e.store.Accounts().Get(ctx, accountID); err != nil {
		return nil, err
	}
	return e.store.Journal().ListForAccount(ctx, accountID, limit, offset)
}

// ProcessReview finalizes a pending entry: approve moves it to completed,
// reject to cancelled. The balance mutation already happened when the entry
// was journaled, so this touches the status field only.
func (e *Engine) ProcessReview(ctx context.Context, transactionID int64, decision ReviewDecision, notes string) (*Transaction, error) {
	var status TransactionStatus
	switch decision {
	case ReviewApprove:
		status = StatusCompleted
	case ReviewReject:
		status = StatusCancelled
	default:
		return nil, fmt.Errorf("invalid review decision %q", decision)
	}
	entry, err := e.store.Journal().SetStatus(ctx, transactionID, status, notes)
	if err != nil {
		return nil, err
	}
	e.log.Info().
		Int64("transaction_id", entry.ID).
		Str("reference", entry.ReferenceNumber).
		Str("decision", string(decision)).
		Msg("review processed")
	return entry, nil
}

func entryStatus(requireReview bool) TransactionStatus {
	if requireReview {
		return StatusPending
	}
	return StatusCompleted
}

func (e *Engine) publish(ctx context.Context, entry *Transaction) {
	if e.events == nil || entry == nil {
		return
	}
	if err := e.events.Publish(ctx, entry); err != nil {
		e.log.Warn().Err(err).
			Str("reference", entry.ReferenceNumber).
			Msg("failed to publish ledger event")
	}
}

func (e *Engine) logEntry(entry *Transaction) {
	e.log.Info().
		Int64("account_id", entry.AccountID).
		Str("type", string(entry.Type)).
		Str("amount", entry.Amount.String()).
		Str("reference", entry.ReferenceNumber).
		Msg("transaction recorded")
}
