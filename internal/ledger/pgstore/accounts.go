package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/corebank/ledger/internal/ledger"
)

const accountColumns = `id, user_id, account_number, account_type, balance, currency, status, COALESCE(branch_code, ''), created_at, updated_at`

type accounts struct {
	s    *Store
	q    querier
	inTx bool
}

func scanAccount(row *sql.Row) (*ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Number, &a.Type, &a.Balance,
		&a.Currency, &a.Status, &a.BranchCode, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accounts) Get(ctx context.Context, id int64) (*ledger.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ledger.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch account %d: %w", id, err)
	}
	return a, nil
}

func (r *accounts) GetByNumber(ctx context.Context, number string) (*ledger.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %q: %w", number, ledger.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch account %q: %w", number, err)
	}
	return a, nil
}

func (r *accounts) ListForOwner(ctx context.Context, ownerID int64) ([]ledger.Account, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts for owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(
			&a.ID, &a.OwnerID, &a.Number, &a.Type, &a.Balance,
			&a.Currency, &a.Status, &a.BranchCode, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *accounts) Create(ctx context.Context, a *ledger.Account) error {
	for attempt := 0; attempt < allocAttempts; attempt++ {
		number := ledger.AccountNumber(r.s.now())
		if r.inTx {
			if err := savepoint(ctx, r.q); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
		}
		err := r.q.QueryRowContext(ctx, `
			INSERT INTO accounts (user_id, account_number, account_type, balance, currency, status, branch_code)
			VALUES ($1, $2, $3, 0, $4, $5, NULLIF($6, ''))
			RETURNING id, balance, created_at, updated_at`,
			a.OwnerID, number, a.Type, a.Currency, a.Status, a.BranchCode,
		).Scan(&a.ID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
		if isUniqueViolation(err, "accounts_account_number_key") {
			if r.inTx {
				if rbErr := rollbackSavepoint(ctx, r.q); rbErr != nil {
					return fmt.Errorf("create account: %w", rbErr)
				}
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		if r.inTx {
			if err := releaseSavepoint(ctx, r.q); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
		}
		a.Number = number
		return nil
	}
	return fmt.Errorf("could not allocate a unique account number after %d attempts", allocAttempts)
}

func (r *accounts) Lock(ctx context.Context, id int64) (*ledger.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ledger.ErrAccountNotFound)
	}
	if isLockTimeout(err) {
		return nil, fmt.Errorf("account %d: %w", id, ledger.ErrBusy)
	}
	if err != nil {
		return nil, fmt.Errorf("lock account %d: %w", id, err)
	}
	return a, nil
}

func (r *accounts) AdjustBalance(ctx context.Context, id int64, delta ledger.Money) (ledger.Money, error) {
	var balance ledger.Money
	err := r.q.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance`,
		delta, id,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// The caller holds the row lock, so the row exists; the guard that
		// failed is the non-negative floor.
		return ledger.Money{}, fmt.Errorf("account %d: %w", id, ledger.ErrInsufficientFunds)
	}
	if err != nil {
		return ledger.Money{}, fmt.Errorf("adjust balance of account %d: %w", id, err)
	}
	return balance, nil
}

func (r *accounts) UpdateStatus(ctx context.Context, id int64, status ledger.AccountStatus) error {
	return r.update(ctx, id,
		`UPDATE accounts SET status = $1, updated_at = NOW() WHERE id = $2`, status)
}

func (r *accounts) UpdateBranchCode(ctx context.Context, id int64, branchCode string) error {
	return r.update(ctx, id,
		`UPDATE accounts SET branch_code = NULLIF($1, ''), updated_at = NOW() WHERE id = $2`, branchCode)
}

func (r *accounts) update(ctx context.Context, id int64, query string, arg any) error {
	result, err := r.q.ExecContext(ctx, query, arg, id)
	if err != nil {
		return fmt.Errorf("update account %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("account %d: %w", id, ledger.ErrAccountNotFound)
	}
	return nil
}

func (r *accounts) Close(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET status = 'closed', updated_at = NOW()
		WHERE id = $1 AND balance = 0`, id)
	if err != nil {
		return fmt.Errorf("close account %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close account %d: %w", id, err)
	}
	if affected == 1 {
		return nil
	}
	// Distinguish a missing account from one still holding money.
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("account %d: %w", id, ledger.ErrAccountHasBalance)
}
