package domain

import (
	"github.com/shopspring/decimal"
)

// Money is an amount in major currency units (rupees). Minor units only appear at vendor boundaries.
type Money = decimal.Decimal

var (
	// Zero is the zero amount.
	Zero = decimal.Zero
	// MoneyTolerance is the largest difference treated as equal when comparing client and server totals.
	MoneyTolerance = decimal.New(1, -2)

	hundred = decimal.NewFromInt(100)
)

// NewMoney parses a decimal string such as "1200.50".
func NewMoney(value string) (Money, error) {
	return decimal.NewFromString(value)
}

// MoneyFromFloat converts a stored float amount, rounding to paise.
func MoneyFromFloat(value float64) Money {
	return decimal.NewFromFloat(value).Round(2)
}

// MoneyFromMinor converts paise into rupees.
func MoneyFromMinor(minor int64) Money {
	return decimal.New(minor, -2)
}

// ToMinorUnits converts rupees into paise, rounding half away from zero.
func ToMinorUnits(amount Money) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// WithinTolerance reports whether a and b differ by at most MoneyTolerance.
func WithinTolerance(a, b Money) bool {
	return a.Sub(b).Abs().LessThanOrEqual(MoneyTolerance)
}

// Percent returns amount * pct / 100 rounded to paise.
func Percent(amount, pct Money) Money {
	return amount.Mul(pct).Div(hundred).Round(2)
}
