package money

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in integer minor units (cents). All cart and
// payment arithmetic happens on this type; decimal conversion exists only
// for parsing server payloads and for display formatting.
type Amount int64

// FromDecimal converts a major-unit decimal (e.g. 13.50) to minor units,
// rounding half away from zero.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Shift(2).Round(0).IntPart())
}

// Parse reads a major-unit value such as "5.00" or "3.5".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String formats the amount with two decimal places, e.g. "13.50".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// MulInt scales the amount by an integer quantity.
func (a Amount) MulInt(n int) Amount {
	return a * Amount(n)
}

// UnmarshalJSON accepts both JSON numbers and numeric strings; the backend
// serializes prices either way depending on the endpoint.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalJSON emits the major-unit decimal string, matching what the
// backend expects in request payloads.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}
