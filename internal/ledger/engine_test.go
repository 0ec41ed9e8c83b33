package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebank/ledger/internal/ledger"
	"github.com/corebank/ledger/internal/ledger/memstore"
)

func newTestEngine(t *testing.T, opts ...memstore.Option) (*ledger.Engine, *memstore.Store) {
	t.Helper()
	store := memstore.New(opts...)
	return ledger.NewEngine(store), store
}

func openAccount(t *testing.T, e *ledger.Engine, deposit string) *ledger.Account {
	t.Helper()
	account, err := e.OpenAccount(context.Background(), ledger.OpenAccountParams{
		OwnerID:        1,
		Type:           ledger.AccountChecking,
		InitialDeposit: ledger.MustMoney(deposit),
	})
	require.NoError(t, err)
	return account
}

func TestOpenAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults and initial deposit", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account, err := e.OpenAccount(ctx, ledger.OpenAccountParams{
			OwnerID:        7,
			Type:           ledger.AccountSavings,
			InitialDeposit: ledger.MustMoney("100.00"),
		})
		require.NoError(t, err)

		assert.Equal(t, ledger.DefaultCurrency, account.Currency)
		assert.Equal(t, ledger.AccountActive, account.Status)
		assert.Regexp(t, `^ACC-\d{4}-\d{6}$`, account.Number)
		assert.Equal(t, "100.00", account.Balance.String())

		entries, err := e.ListTransactions(ctx, account.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ledger.TypeDeposit, entries[0].Type)
		assert.Equal(t, "Initial deposit", entries[0].Description)
		assert.Equal(t, ledger.StatusCompleted, entries[0].Status)
		assert.Equal(t, "100.00", entries[0].BalanceAfter.String())
	})

	t.Run("zero deposit journals nothing", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "0.00")

		entries, err := e.ListTransactions(ctx, account.ID, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("invalid account type", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.OpenAccount(ctx, ledger.OpenAccountParams{OwnerID: 1, Type: "premium"})
		assert.ErrorIs(t, err, ledger.ErrInvalidAccountType)
	})

	t.Run("negative initial deposit", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.OpenAccount(ctx, ledger.OpenAccountParams{
			OwnerID:        1,
			Type:           ledger.AccountSavings,
			InitialDeposit: ledger.MustMoney("-1.00"),
		})
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	})

	t.Run("lowercase currency is normalized", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account, err := e.OpenAccount(ctx, ledger.OpenAccountParams{
			OwnerID:  1,
			Type:     ledger.AccountBusiness,
			Currency: "usd",
		})
		require.NoError(t, err)
		assert.Equal(t, "USD", account.Currency)
	})
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("credits and journals", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "70.00")

		entry, err := e.Deposit(ctx, ledger.DepositParams{
			AccountID: account.ID,
			Amount:    ledger.MustMoney("25.50"),
		})
		require.NoError(t, err)

		assert.Equal(t, ledger.TypeDeposit, entry.Type)
		assert.Equal(t, "95.50", entry.BalanceAfter.String())
		assert.Equal(t, "Deposit", entry.Description)
		assert.Equal(t, ledger.StatusCompleted, entry.Status)
		assert.Regexp(t, `^TXN-\d{8}-\d{6}$`, entry.ReferenceNumber)

		got, err := e.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "95.50", got.Balance.String())
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "0.00")

		_, err := e.Deposit(ctx, ledger.DepositParams{AccountID: account.ID, Amount: ledger.MustMoney("0.00")})
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

		_, err = e.Deposit(ctx, ledger.DepositParams{AccountID: account.ID, Amount: ledger.MustMoney("-5.00")})
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	})

	t.Run("unknown account", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.Deposit(ctx, ledger.DepositParams{AccountID: 999, Amount: ledger.MustMoney("1.00")})
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})

	t.Run("inactive account", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "10.00")
		require.NoError(t, e.UpdateAccountStatus(ctx, account.ID, ledger.AccountSuspended))

		_, err := e.Deposit(ctx, ledger.DepositParams{AccountID: account.ID, Amount: ledger.MustMoney("1.00")})
		assert.ErrorIs(t, err, ledger.ErrAccountNotActive)
	})
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("debits and journals", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "100.00")

		entry, err := e.Withdraw(ctx, ledger.WithdrawParams{
			AccountID:   account.ID,
			Amount:      ledger.MustMoney("30.00"),
			Description: "ATM withdrawal",
		})
		require.NoError(t, err)

		assert.Equal(t, ledger.TypeWithdraw, entry.Type)
		assert.Equal(t, "30.00", entry.Amount.String())
		assert.Equal(t, "70.00", entry.BalanceAfter.String())
		assert.Equal(t, "ATM withdrawal", entry.Description)
	})

	t.Run("insufficient funds leaves no trace", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "70.00")

		_, err := e.Withdraw(ctx, ledger.WithdrawParams{
			AccountID: account.ID,
			Amount:    ledger.MustMoney("1000.00"),
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		got, err := e.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "70.00", got.Balance.String())

		entries, err := e.ListTransactions(ctx, account.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1) // only the initial deposit
	})

	t.Run("withdrawal to exactly zero succeeds", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "50.00")

		entry, err := e.Withdraw(ctx, ledger.WithdrawParams{
			AccountID: account.ID,
			Amount:    ledger.MustMoney("50.00"),
		})
		require.NoError(t, err)
		assert.True(t, entry.BalanceAfter.IsZero())
	})
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves money and journals both sides", func(t *testing.T) {
		e, _ := newTestEngine(t)
		source := openAccount(t, e, "100.00")
		dest := openAccount(t, e, "50.00")

		entry, err := e.Transfer(ctx, ledger.TransferParams{
			FromAccountID: source.ID,
			ToAccountID:   dest.ID,
			Amount:        ledger.MustMoney("30.00"),
		})
		require.NoError(t, err)

		assert.Equal(t, source.ID, entry.AccountID)
		assert.Equal(t, "70.00", entry.BalanceAfter.String())
		require.NotNil(t, entry.RelatedAccountID)
		assert.Equal(t, dest.ID, *entry.RelatedAccountID)
		assert.Equal(t, "Transfer to "+dest.Number, entry.Description)

		destEntries, err := e.ListTransactions(ctx, dest.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, destEntries, 2)
		credit := destEntries[0]
		assert.Equal(t, ledger.TypeTransfer, credit.Type)
		assert.Equal(t, "80.00", credit.BalanceAfter.String())
		require.NotNil(t, credit.RelatedAccountID)
		assert.Equal(t, source.ID, *credit.RelatedAccountID)
		assert.Equal(t, "Transfer from "+source.Number, credit.Description)
		assert.NotEqual(t, entry.ReferenceNumber, credit.ReferenceNumber)

		gotSource, err := e.GetAccount(ctx, source.ID)
		require.NoError(t, err)
		gotDest, err := e.GetAccount(ctx, dest.ID)
		require.NoError(t, err)
		assert.Equal(t, "70.00", gotSource.Balance.String())
		assert.Equal(t, "80.00", gotDest.Balance.String())
	})

	t.Run("same account", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "100.00")

		_, err := e.Transfer(ctx, ledger.TransferParams{
			FromAccountID: account.ID,
			ToAccountID:   account.ID,
			Amount:        ledger.MustMoney("10.00"),
		})
		assert.ErrorIs(t, err, ledger.ErrSameAccount)
	})

	t.Run("insufficient funds rolls back both sides", func(t *testing.T) {
		e, _ := newTestEngine(t)
		source := openAccount(t, e, "20.00")
		dest := openAccount(t, e, "50.00")

		_, err := e.Transfer(ctx, ledger.TransferParams{
			FromAccountID: source.ID,
			ToAccountID:   dest.ID,
			Amount:        ledger.MustMoney("30.00"),
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		gotDest, err := e.GetAccount(ctx, dest.ID)
		require.NoError(t, err)
		assert.Equal(t, "50.00", gotDest.Balance.String())
	})

	t.Run("inactive destination blocks the transfer", func(t *testing.T) {
		e, _ := newTestEngine(t)
		source := openAccount(t, e, "100.00")
		dest := openAccount(t, e, "50.00")
		require.NoError(t, e.UpdateAccountStatus(ctx, dest.ID, ledger.AccountInactive))

		_, err := e.Transfer(ctx, ledger.TransferParams{
			FromAccountID: source.ID,
			ToAccountID:   dest.ID,
			Amount:        ledger.MustMoney("10.00"),
		})
		assert.ErrorIs(t, err, ledger.ErrAccountNotActive)

		gotSource, err := e.GetAccount(ctx, source.ID)
		require.NoError(t, err)
		assert.Equal(t, "100.00", gotSource.Balance.String())
	})

	t.Run("unknown destination", func(t *testing.T) {
		e, _ := newTestEngine(t)
		source := openAccount(t, e, "100.00")

		_, err := e.Transfer(ctx, ledger.TransferParams{
			FromAccountID: source.ID,
			ToAccountID:   999,
			Amount:        ledger.MustMoney("10.00"),
		})
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})
}

// failingStore wraps a Store and fails the nth journal append, standing in
// for a storage fault mid-unit.
type failingStore struct {
	inner   ledger.Store
	mu      sync.Mutex
	appends int
	failOn  int
}

func (f *failingStore) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return f.inner.Atomic(ctx, func(tx ledger.Tx) error {
		return fn(&failingTx{f: f, inner: tx})
	})
}

func (f *failingStore) Accounts() ledger.AccountStore { return f.inner.Accounts() }
func (f *failingStore) Journal() ledger.Journal       { return f.inner.Journal() }

type failingTx struct {
	f     *failingStore
	inner ledger.Tx
}

func (t *failingTx) Accounts() ledger.AccountStore { return t.inner.Accounts() }
func (t *failingTx) Journal() ledger.Journal {
	return &failingJournal{f: t.f, inner: t.inner.Journal()}
}

type failingJournal struct {
	f     *failingStore
	inner ledger.Journal
}

func (j *failingJournal) Append(ctx context.Context, tr *ledger.Transaction) error {
	j.f.mu.Lock()
	j.f.appends++
	fail := j.f.appends == j.f.failOn
	j.f.mu.Unlock()
	if fail {
		return errors.New("journal write failed")
	}
	return j.inner.Append(ctx, tr)
}

func (j *failingJournal) Get(ctx context.Context, id int64) (*ledger.Transaction, error) {
	return j.inner.Get(ctx, id)
}

func (j *failingJournal) ListForAccount(ctx context.Context, accountID int64, limit, offset int) ([]ledger.Transaction, error) {
	return j.inner.ListForAccount(ctx, accountID, limit, offset)
}

func (j *failingJournal) SetStatus(ctx context.Context, id int64, status ledger.TransactionStatus, notes string) (*ledger.Transaction, error) {
	return j.inner.SetStatus(ctx, id, status, notes)
}

func TestTransferAtomicityOnJournalFault(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	setup := ledger.NewEngine(mem)

	source := openAccount(t, setup, "100.00")
	dest := openAccount(t, setup, "50.00")

	// Fail the second append: the debit entry is staged, the credit is not.
	faulty := &failingStore{inner: mem, failOn: 2}
	e := ledger.NewEngine(faulty)

	_, err := e.Transfer(ctx, ledger.TransferParams{
		FromAccountID: source.ID,
		ToAccountID:   dest.ID,
		Amount:        ledger.MustMoney("30.00"),
	})
	require.Error(t, err)

	gotSource, err := setup.GetAccount(ctx, source.ID)
	require.NoError(t, err)
	gotDest, err := setup.GetAccount(ctx, dest.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", gotSource.Balance.String())
	assert.Equal(t, "50.00", gotDest.Balance.String())

	sourceEntries, err := setup.ListTransactions(ctx, source.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, sourceEntries, 1) // only the initial deposit
}

func TestProcessReview(t *testing.T) {
	ctx := context.Background()

	t.Run("approve completes", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "100.00")

		entry, err := e.Deposit(ctx, ledger.DepositParams{
			AccountID:     account.ID,
			Amount:        ledger.MustMoney("40.00"),
			RequireReview: true,
		})
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusPending, entry.Status)

		reviewed, err := e.ProcessReview(ctx, entry.ID, ledger.ReviewApprove, "looks fine")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusCompleted, reviewed.Status)
		assert.Equal(t, "looks fine", reviewed.ReviewNotes)
	})

	t.Run("reject cancels without touching the balance", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "100.00")

		entry, err := e.Deposit(ctx, ledger.DepositParams{
			AccountID:     account.ID,
			Amount:        ledger.MustMoney("40.00"),
			RequireReview: true,
		})
		require.NoError(t, err)

		reviewed, err := e.ProcessReview(ctx, entry.ID, ledger.ReviewReject, "suspected fraud")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusCancelled, reviewed.Status)

		// The credit was applied when journaled; rejecting only flips status.
		got, err := e.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "140.00", got.Balance.String())
	})

	t.Run("second decision conflicts", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "100.00")

		entry, err := e.Withdraw(ctx, ledger.WithdrawParams{
			AccountID:     account.ID,
			Amount:        ledger.MustMoney("10.00"),
			RequireReview: true,
		})
		require.NoError(t, err)

		_, err = e.ProcessReview(ctx, entry.ID, ledger.ReviewApprove, "")
		require.NoError(t, err)

		_, err = e.ProcessReview(ctx, entry.ID, ledger.ReviewReject, "")
		assert.ErrorIs(t, err, ledger.ErrAlreadyFinalized)
	})

	t.Run("completed entry cannot be reviewed", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "100.00")

		entry, err := e.Deposit(ctx, ledger.DepositParams{AccountID: account.ID, Amount: ledger.MustMoney("5.00")})
		require.NoError(t, err)

		_, err = e.ProcessReview(ctx, entry.ID, ledger.ReviewApprove, "")
		assert.ErrorIs(t, err, ledger.ErrAlreadyFinalized)
	})

	t.Run("invalid decision", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.ProcessReview(ctx, 1, "defer", "")
		assert.Error(t, err)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.ProcessReview(ctx, 999, ledger.ReviewApprove, "")
		assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	})
}

func TestCloseAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("nonzero balance refuses", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "10.00")

		err := e.CloseAccount(ctx, account.ID)
		assert.ErrorIs(t, err, ledger.ErrAccountHasBalance)

		got, err := e.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.AccountActive, got.Status)
	})

	t.Run("zero balance closes and blocks further movement", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "0.00")

		require.NoError(t, e.CloseAccount(ctx, account.ID))

		got, err := e.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.AccountClosed, got.Status)

		_, err = e.Deposit(ctx, ledger.DepositParams{AccountID: account.ID, Amount: ledger.MustMoney("1.00")})
		assert.ErrorIs(t, err, ledger.ErrAccountNotActive)
	})

	t.Run("status update to closed routes through the zero-balance rule", func(t *testing.T) {
		e, _ := newTestEngine(t)
		account := openAccount(t, e, "10.00")

		err := e.UpdateAccountStatus(ctx, account.ID, ledger.AccountClosed)
		assert.ErrorIs(t, err, ledger.ErrAccountHasBalance)
	})
}

func TestListTransactions(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	account := openAccount(t, e, "1000.00")

	for i := 0; i < 5; i++ {
		_, err := e.Withdraw(ctx, ledger.WithdrawParams{AccountID: account.ID, Amount: ledger.MustMoney("1.00")})
		require.NoError(t, err)
	}

	t.Run("newest first with paging", func(t *testing.T) {
		page, err := e.ListTransactions(ctx, account.ID, 3, 0)
		require.NoError(t, err)
		require.Len(t, page, 3)
		assert.Equal(t, "995.00", page[0].BalanceAfter.String())
		assert.Equal(t, "996.00", page[1].BalanceAfter.String())

		rest, err := e.ListTransactions(ctx, account.ID, 3, 3)
		require.NoError(t, err)
		require.Len(t, rest, 3) // two withdrawals and the initial deposit
		assert.Equal(t, "1000.00", rest[2].BalanceAfter.String())
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := e.ListTransactions(ctx, 999, 10, 0)
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openAccount(t, e, "1000.00")
	b := openAccount(t, e, "1000.00")

	const workers = 40
	var wg sync.WaitGroup
	wg.Add(workers * 2)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			e.Transfer(ctx, ledger.TransferParams{
				FromAccountID: a.ID, ToAccountID: b.ID, Amount: ledger.MustMoney("3.00"),
			})
		}()
		go func() {
			defer wg.Done()
			e.Transfer(ctx, ledger.TransferParams{
				FromAccountID: b.ID, ToAccountID: a.ID, Amount: ledger.MustMoney("7.00"),
			})
		}()
	}
	wg.Wait()

	gotA, err := e.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := e.GetAccount(ctx, b.ID)
	require.NoError(t, err)

	total := gotA.Balance.Add(gotB.Balance)
	assert.Equal(t, "2000.00", total.String())
	assert.False(t, gotA.Balance.IsNegative())
	assert.False(t, gotB.Balance.IsNegative())
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	account := openAccount(t, e, "100.00")

	const workers = 50
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := e.Withdraw(ctx, ledger.WithdrawParams{
				AccountID: account.ID,
				Amount:    ledger.MustMoney("10.00"),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 10, succeeded)

	got, err := e.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
}

func TestConcurrentReferenceUniqueness(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	account := openAccount(t, e, "0.00")

	const workers = 1000
	refs := make(chan string, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			entry, err := e.Deposit(ctx, ledger.DepositParams{
				AccountID: account.ID,
				Amount:    ledger.MustMoney("1.00"),
			})
			if err == nil {
				refs <- entry.ReferenceNumber
			} else {
				refs <- ""
			}
		}()
	}
	wg.Wait()
	close(refs)

	seen := make(map[string]struct{})
	for ref := range refs {
		require.NotEmpty(t, ref)
		_, dup := seen[ref]
		assert.False(t, dup, "duplicate reference %s", ref)
		seen[ref] = struct{}{}
	}
	assert.Len(t, seen, workers)
}

func TestBusyOnHeldLock(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, memstore.WithLockTimeout(50*time.Millisecond))
	account := openAccount(t, e, "100.00")

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		store.Atomic(ctx, func(tx ledger.Tx) error {
			if _, err := tx.Accounts().Lock(ctx, account.ID); err != nil {
				return err
			}
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	_, err := e.Deposit(ctx, ledger.DepositParams{AccountID: account.ID, Amount: ledger.MustMoney("1.00")})
	assert.ErrorIs(t, err, ledger.ErrBusy)
	close(release)
}
