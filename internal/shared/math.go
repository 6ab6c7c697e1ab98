package shared

import "github.com/shopspring/decimal"

// SafeDiv divides num by den, returning zero when den is zero.
// Every ratio and percentage in the engine goes through here so the
// zero-denominator rule cannot drift between callers.
func SafeDiv(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

// SafePercent returns num/den*100, zero when den is zero.
func SafePercent(num, den decimal.Decimal) decimal.Decimal {
	return SafeDiv(num, den).Mul(decimal.NewFromInt(100))
}
