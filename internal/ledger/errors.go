package ledger

import "errors"

// Business-rule failures. Every one of these is returned with zero mutation
// performed: the atomic unit that raised it has been rolled back in full.
var (
	// ErrInvalidAmount is returned for amounts that are not positive or
	// carry more than two decimal places.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAccountNotFound is returned when a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountNotActive is returned when an account's status blocks mutation.
	ErrAccountNotActive = errors.New("account not active")

	// ErrInsufficientFunds is returned when a debit would take a balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSameAccount is returned when a transfer names the same account on
	// both sides.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrAccountHasBalance is returned when closing an account whose balance
	// is not exactly zero.
	ErrAccountHasBalance = errors.New("account balance must be zero before closing")

	// ErrInvalidAccountType is returned for account types outside the
	// savings/checking/business set.
	ErrInvalidAccountType = errors.New("invalid account type")

	// ErrTransactionNotFound is returned when a referenced journal entry
	// does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAlreadyFinalized is returned when a review decision targets an
	// entry that is no longer pending.
	ErrAlreadyFinalized = errors.New("transaction already finalized")

	// ErrBusy is returned when exclusive access to an account could not be
	// acquired within the configured bound. The operation had no effect and
	// may be retried.
	ErrBusy = errors.New("account busy, lock wait timed out")
)

// IsClientError reports whether err is a business-rule rejection rather than
// a storage failure. Handlers use it to pick 4xx over 5xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAccountNotActive) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrSameAccount) ||
		errors.Is(err, ErrAccountHasBalance) ||
		errors.Is(err, ErrInvalidAccountType) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrAlreadyFinalized)
}

// IsRetryable reports whether the operation might succeed if retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
