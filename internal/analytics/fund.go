package analytics

import "github.com/shopspring/decimal"

// FundBalance is the building fund position: contributed capital less
// expenses paid out, plus sale proceeds returned to the fund. Withdrawals
// are stored negative so netCapital already carries their sign.
func FundBalance(netCapital, expenses, sales decimal.Decimal) decimal.Decimal {
	return netCapital.Sub(expenses).Add(sales)
}
