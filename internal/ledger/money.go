package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount carrying exactly two fractional
// digits. Amounts with finer precision are rejected at construction, so
// anything past this boundary is guaranteed to be representable on the
// ledger. Money is signed: balances and deposits are non-negative by
// policy, but deltas (debits) are negative.
type Money struct {
	d decimal.Decimal
}

// NewMoney validates that d fits in two decimal places.
func NewMoney(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Round(2)) {
		return Money{}, fmt.Errorf("%w: %s has more than 2 decimal places", ErrInvalidAmount, d)
	}
	return Money{d: d.Round(2)}, nil
}

// ParseMoney parses a decimal string such as "100.00" or "25.5".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q is not a decimal amount", ErrInvalidAmount, s)
	}
	return NewMoney(d)
}

// MustMoney parses s and panics on failure. Intended for constants and tests.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

func (m Money) IsZero() bool     { return m.d.IsZero() }
func (m Money) IsPositive() bool { return m.d.IsPositive() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }
func (m Money) Cmp(o Money) int    { return m.d.Cmp(o.d) }

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String renders the amount with exactly two fractional digits.
func (m Money) String() string { return m.d.StringFixed(2) }

// MarshalJSON emits the amount as a JSON string ("95.50") so clients never
// see binary-float rounding.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both string and numeric encodings.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer for NUMERIC(15,2) columns.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("scanning money: %w", err)
	}
	parsed, err := NewMoney(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
