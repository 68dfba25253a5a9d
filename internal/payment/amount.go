package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/masumi-network/masumi-payments-go/internal/masumi"
)

// DefaultUnit is the smallest ADA denomination.
const DefaultUnit = "lovelace"

// Amount is an immutable (quantity, unit) pair. The quantity is a
// non-negative integer count of the unit's smallest denomination.
type Amount struct {
	amount string
	unit   string
}

// NewAmount validates amount as a non-negative integer and normalises it.
func NewAmount(amount, unit string) (Amount, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, amount)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, amount)
	}
	if !d.Equal(d.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: %q has a fractional part", ErrInvalidAmount, amount)
	}
	if unit == "" {
		return Amount{}, fmt.Errorf("%w: unit is required", ErrInvalidAmount)
	}
	return Amount{amount: d.String(), unit: unit}, nil
}

// AmountFromInt builds an Amount from an integer quantity.
func AmountFromInt(amount int64, unit string) (Amount, error) {
	return NewAmount(strconv.FormatInt(amount, 10), unit)
}

// MustAmount is NewAmount for constant inputs; it panics on error.
func MustAmount(amount, unit string) Amount {
	a, err := NewAmount(amount, unit)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Value() string { return a.amount }
func (a Amount) Unit() string  { return a.unit }

// Decimal returns the quantity as a decimal for arithmetic.
func (a Amount) Decimal() decimal.Decimal {
	d, _ := decimal.NewFromString(a.amount)
	return d
}

func (a Amount) String() string { return a.amount + " " + a.unit }

func (a Amount) Wire() masumi.Amount {
	return masumi.Amount{Amount: a.amount, Unit: a.unit}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Wire())
}

// UnmarshalJSON accepts the amount as a JSON string or number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var raw struct {
		Amount json.Number `json:"amount"`
		Unit   string      `json:"unit"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	parsed, err := NewAmount(raw.Amount.String(), raw.Unit)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAmounts parses a comma separated list of <quantity>[:<unit>] pairs.
// A missing unit means DefaultUnit.
func ParseAmounts(list string) ([]Amount, error) {
	var out []Amount
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		qty, unit, ok := strings.Cut(part, ":")
		if !ok || unit == "" {
			unit = DefaultUnit
		}
		a, err := NewAmount(strings.TrimSpace(qty), strings.TrimSpace(unit))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no amounts in %q", ErrInvalidAmount, list)
	}
	return out, nil
}

// WireAmounts converts amounts into their request representation.
func WireAmounts(amounts []Amount) []masumi.Amount {
	out := make([]masumi.Amount, len(amounts))
	for i, a := range amounts {
		out[i] = a.Wire()
	}
	return out
}
