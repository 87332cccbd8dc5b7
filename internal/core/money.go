// Package core provides the disclosure records, their derivation rules and
// the decimal amount type shared by every section.
package core

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an exact decimal monetary value. The zero value is 0.
//
// Amounts travel as plain JSON numbers. When decoding, strings are accepted
// and anything that does not parse as a number becomes 0.
type Amount struct {
	d decimal.Decimal
}

// Zero is the 0 amount.
var Zero = Amount{}

// NewAmount wraps a decimal value.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{d: d}
}

// AmountFromInt returns an integral amount.
func AmountFromInt(v int64) Amount {
	return Amount{d: decimal.NewFromInt(v)}
}

// ParseAmount coerces user input to an amount.
//
// Blank or non-numeric input yields 0; it is never rejected. Both dot and
// comma decimal separators are accepted. When both are present the comma is
// taken as a thousands separator.
//
// Examples:
//
//	ParseAmount("12.50")    -> 12.5
//	ParseAmount("12,50")    -> 12.5
//	ParseAmount("1,234.50") -> 1234.5
//	ParseAmount("abc")      -> 0
func ParseAmount(s string) Amount {
	a, ok := parseAmount(s)
	if !ok {
		return Zero
	}
	return a
}

// ParseAmountStrict is like ParseAmount but reports whether the input was a
// number. Blank input is reported as valid 0.
func ParseAmountStrict(s string) (Amount, bool) {
	if strings.TrimSpace(s) == "" {
		return Zero, true
	}
	return parseAmount(s)
}

func parseAmount(s string) (Amount, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, false
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, false
	}
	return Amount{d: d}, true
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a.d)
	}
	return Amount{d: total}
}

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool {
	return a.d.IsPositive()
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// Equal compares by value, so 1.50 equals 1.5.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// Decimal exposes the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// Float64 returns the nearest float, for spreadsheet cells and charts.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

func (a Amount) String() string {
	return a.d.String()
}

// StringFixed formats with exactly places decimals.
func (a Amount) StringFixed(places int32) string {
	return a.d.StringFixed(places)
}

// MarshalJSON writes the amount as an unquoted JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.d.String()), nil
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Zero
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*a = Zero
			return nil
		}
		*a = ParseAmount(s)
		return nil
	}
	*a = ParseAmount(string(data))
	return nil
}

// Value stores the amount as TEXT to keep it exact.
func (a Amount) Value() (driver.Value, error) {
	return a.d.String(), nil
}

// Scan reads TEXT, numeric and NULL columns.
func (a *Amount) Scan(value any) error {
	if value == nil {
		*a = Zero
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("scan amount: %w", err)
	}
	*a = Amount{d: d}
	return nil
}
