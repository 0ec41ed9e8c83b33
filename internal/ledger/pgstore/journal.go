package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/corebank/ledger/internal/ledger"
)

const transactionColumns = `id, account_id, transaction_type, amount, balance_after, COALESCE(description, ''), reference_number, related_account_id, status, COALESCE(review_notes, ''), created_at`

type journal struct {
	s    *Store
	q    querier
	inTx bool
}

func scanTransaction(row *sql.Row) (*ledger.Transaction, error) {
	var t ledger.Transaction
	err := row.Scan(
		&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter,
		&t.Description, &t.ReferenceNumber, &t.RelatedAccountID,
		&t.Status, &t.ReviewNotes, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *journal) Append(ctx context.Context, t *ledger.Transaction) error {
	for attempt := 0; attempt < allocAttempts; attempt++ {
		reference := ledger.ReferenceNumber(r.s.now())
		if r.inTx {
			if err := savepoint(ctx, r.q); err != nil {
				return fmt.Errorf("append journal entry: %w", err)
			}
		}
		err := r.q.QueryRowContext(ctx, `
			INSERT INTO transactions (account_id, transaction_type, amount, balance_after, description, reference_number, related_account_id, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at`,
			t.AccountID, t.Type, t.Amount, t.BalanceAfter,
			t.Description, reference, t.RelatedAccountID, t.Status,
		).Scan(&t.ID, &t.CreatedAt)
		if isUniqueViolation(err, "transactions_reference_number_key") {
			if r.inTx {
				if rbErr := rollbackSavepoint(ctx, r.q); rbErr != nil {
					return fmt.Errorf("append journal entry: %w", rbErr)
				}
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("append journal entry: %w", err)
		}
		if r.inTx {
			if err := releaseSavepoint(ctx, r.q); err != nil {
				return fmt.Errorf("append journal entry: %w", err)
			}
		}
		t.ReferenceNumber = reference
		return nil
	}
	return fmt.Errorf("could not allocate a unique reference number after %d attempts", allocAttempts)
}

func (r *journal) Get(ctx context.Context, id int64) (*ledger.Transaction, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, ledger.ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %d: %w", id, err)
	}
	return t, nil
}

func (r *journal) ListForAccount(ctx context.Context, accountID int64, limit, offset int) ([]ledger.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		if err := rows.Scan(
			&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter,
			&t.Description, &t.ReferenceNumber, &t.RelatedAccountID,
			&t.Status, &t.ReviewNotes, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *journal) SetStatus(ctx context.Context, id int64, status ledger.TransactionStatus, notes string) (*ledger.Transaction, error) {
	row := r.q.QueryRowContext(ctx, `
		UPDATE transactions
		SET status = $2, review_notes = NULLIF($3, '')
		WHERE id = $1 AND status = 'pending'
		RETURNING `+transactionColumns,
		id, status, notes)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the entry does not exist or it already left pending.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("transaction %d: %w", id, ledger.ErrAlreadyFinalized)
	}
	if err != nil {
		return nil, fmt.Errorf("update transaction %d status: %w", id, err)
	}
	return t, nil
}
