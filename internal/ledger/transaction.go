package ledger

import "time"

// TransactionType is the kind of money movement an entry records.
type TransactionType string

const (
	TypeDeposit  TransactionType = "deposit"
	TypeWithdraw TransactionType = "withdraw"
	TypeTransfer TransactionType = "transfer"
)

// TransactionStatus tracks the review state of an entry. The entry itself is
// immutable once written; only the status may move, and only out of pending.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Final reports whether the status is terminal.
func (s TransactionStatus) Final() bool {
	return s != StatusPending
}

// ReviewDecision is a teller's verdict on a pending entry.
type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
)

// Transaction is one journal entry: an immutable record of a completed money
// movement on a single account. BalanceAfter is the owning account's balance
// committed atomically with the entry, so the two can never disagree.
//
// A transfer produces two entries, one per account, sharing one logical
// movement but carrying independent reference numbers.
type Transaction struct {
	ID               int64             `json:"id"`
	AccountID        int64             `json:"account_id"`
	Type             TransactionType   `json:"transaction_type"`
	Amount           Money             `json:"amount"`
	BalanceAfter     Money             `json:"balance_after"`
	Description      string            `json:"description,omitempty"`
	ReferenceNumber  string            `json:"reference_number"`
	RelatedAccountID *int64            `json:"related_account_id,omitempty"`
	Status           TransactionStatus `json:"status"`
	ReviewNotes      string            `json:"review_notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// IsPending reports whether the entry is awaiting review.
func (t *Transaction) IsPending() bool {
	return t.Status == StatusPending
}
