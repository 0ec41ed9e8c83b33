package ledger

import (
	"fmt"
	"math/rand"
	"time"
)

// Externally visible identifier formats. The numeric suffix is random, not
// sequential; uniqueness is enforced where the value is reserved (a unique
// constraint in Postgres, the reservation set in the memory store), with the
// allocator retried on collision. Checking for an existing value before
// generating would race under concurrency, so stores never do that.

// AccountNumber produces a candidate account number, ACC-<year>-<6 digits>.
func AccountNumber(t time.Time) string {
	return fmt.Sprintf("ACC-%d-%06d", t.Year(), suffix())
}

// ReferenceNumber produces a candidate transaction reference,
// TXN-<yyyymmdd>-<6 digits>.
func ReferenceNumber(t time.Time) string {
	return fmt.Sprintf("TXN-%s-%06d", t.Format("20060102"), suffix())
}

func suffix() int {
	return rand.Intn(999999) + 1
}
