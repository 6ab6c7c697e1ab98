package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionTotals is the single shape every financial sum flows through.
// NetCapital is always Deposits + Withdrawals (withdrawals stored negative);
// it is set by the aggregation layer, never recomputed by callers.
type TransactionTotals struct {
	Deposits          decimal.Decimal `json:"deposits"`
	Withdrawals       decimal.Decimal `json:"withdrawals"`
	Profits           decimal.Decimal `json:"profits"`
	NetCapital        decimal.Decimal `json:"net_capital"`
	TotalTransactions int64           `json:"total_transactions"`
}

// GrandTotal is net capital plus accrued profit.
func (t TransactionTotals) GrandTotal() decimal.Decimal {
	return t.NetCapital.Add(t.Profits)
}

// TotalsFilter narrows a transaction aggregation. Nil fields are ignored.
type TotalsFilter struct {
	InvestorID *int64
	PeriodID   *int64
	DateFrom   *time.Time
	DateTo     *time.Time
	Type       *TransactionType
}

// UnitStats aggregates the units of one project.
type UnitStats struct {
	TotalUnits int64           `json:"total_units"`
	TotalArea  decimal.Decimal `json:"total_area"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// ParticipationCounts breaks investors with ledger activity down by type.
type ParticipationCounts struct {
	Total     int64 `json:"total_investors"`
	Owners    int64 `json:"owners_count"`
	Investors int64 `json:"investors_count"`
}

// ExpenseWeights carries the two sums behind the expense-weighted average
// construction period. Expenses without a period are excluded from both.
type ExpenseWeights struct {
	WeightedSum  decimal.Decimal `json:"weighted_sum"`
	TotalExpense decimal.Decimal `json:"total_expense"`
}

// SumTotals folds transactions into a TransactionTotals record. It is the
// in-memory twin of the SQL aggregation and must stay shape-identical with
// it; anything that already holds the rows can reduce them here instead of
// round-tripping through the database.
func SumTotals(txns []Transaction) TransactionTotals {
	var out TransactionTotals
	for _, t := range txns {
		switch {
		case t.Type.IsDeposit():
			out.Deposits = out.Deposits.Add(t.Amount)
		case t.Type == TypePrincipalWithdrawal:
			out.Withdrawals = out.Withdrawals.Add(t.Amount)
		case t.Type == TypeProfitAccrual:
			out.Profits = out.Profits.Add(t.Amount)
		}
		out.TotalTransactions++
	}
	out.NetCapital = out.Deposits.Add(out.Withdrawals)
	return out
}

// MatchesFilter reports whether a transaction falls inside the filter.
func (f TotalsFilter) MatchesFilter(t Transaction) bool {
	if f.InvestorID != nil && t.InvestorID != *f.InvestorID {
		return false
	}
	if f.PeriodID != nil && t.PeriodID != *f.PeriodID {
		return false
	}
	if f.DateFrom != nil && t.Date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && t.Date.After(*f.DateTo) {
		return false
	}
	if f.Type != nil && t.Type != *f.Type {
		return false
	}
	return true
}
