package ledger

import "time"

// DefaultCurrency is applied when an account is opened without one.
const DefaultCurrency = "GHS"

// AccountType is the closed set of account products.
type AccountType string

const (
	AccountSavings  AccountType = "savings"
	AccountChecking AccountType = "checking"
	AccountBusiness AccountType = "business"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountSavings, AccountChecking, AccountBusiness:
		return true
	}
	return false
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountInactive, AccountSuspended, AccountClosed:
		return true
	}
	return false
}

// Account is a customer account. Balance is mutated exclusively through
// AccountStore.AdjustBalance inside an atomic unit; everything else here is
// metadata.
type Account struct {
	ID         int64         `json:"id"`
	OwnerID    int64         `json:"owner_id"`
	Number     string        `json:"account_number"`
	Type       AccountType   `json:"account_type"`
	Balance    Money         `json:"balance"`
	Currency   string        `json:"currency"`
	Status     AccountStatus `json:"status"`
	BranchCode string        `json:"branch_code,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// IsActive reports whether the account accepts money movement.
func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}
