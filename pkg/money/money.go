// Package money converts between euro input, integer cents and display strings.
package money

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCents caps a single user-entered amount (one million euro).
const MaxCents int64 = 100_000_000

var (
	ErrNegative = errors.New("amount must not be negative")
	ErrTooLarge = errors.New("amount is too large")
	ErrInvalid  = errors.New("amount is not a number")

	hundred = decimal.NewFromInt(100)
)

// ParseEUR converts a decimal euro string ("12.5", "12,50", "") to cents,
// rounding half away from zero. An empty string is zero.
func ParseEUR(raw string) (int64, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "€"))
	if raw == "" {
		return 0, nil
	}
	raw = strings.ReplaceAll(raw, ",", ".")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, ErrInvalid
	}
	if d.IsNegative() {
		return 0, ErrNegative
	}
	cents := d.Round(2).Mul(hundred)
	if cents.GreaterThan(decimal.NewFromInt(MaxCents)) {
		return 0, ErrTooLarge
	}
	return cents.IntPart(), nil
}

// Format renders cents as a euro amount, e.g. 5000 -> "€50.00".
func Format(cents int64) string {
	return "€" + decimal.New(cents, -2).StringFixed(2)
}

// Plain renders cents without a currency sign, e.g. 5000 -> "50.00".
func Plain(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Allocate splits total across the given percentages. Shares are floored and
// the leftover cents go to the largest remainders, so the result always sums
// to total when the percentages sum to 100.
func Allocate(total int64, percents []int) ([]int64, error) {
	if total < 0 {
		return nil, ErrNegative
	}
	sum := 0
	for _, p := range percents {
		if p < 0 {
			return nil, fmt.Errorf("percent %d out of range", p)
		}
		sum += p
	}
	if len(percents) == 0 || sum != 100 {
		return nil, fmt.Errorf("percentages must sum to 100, got %d", sum)
	}

	type remainder struct {
		idx  int
		frac decimal.Decimal
	}
	shares := make([]int64, len(percents))
	rems := make([]remainder, len(percents))
	totalDec := decimal.NewFromInt(total)
	var assigned int64
	for i, p := range percents {
		exact := totalDec.Mul(decimal.NewFromInt(int64(p))).Div(hundred)
		floor := exact.Floor()
		shares[i] = floor.IntPart()
		assigned += shares[i]
		rems[i] = remainder{idx: i, frac: exact.Sub(floor)}
	}
	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].frac.GreaterThan(rems[b].frac)
	})
	for i := int64(0); i < total-assigned; i++ {
		shares[rems[i].idx]++
	}
	return shares, nil
}
