package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ComputeAccrual derives the profit row for one principal transaction under
// the given daily rate, prorated to the evaluation boundary (normally the
// project end date).
//
//	profit = amount × rate × elapsed_days
//
// Withdrawals carry negative amounts, so their accrual is negative and nets
// the profit base down from the withdrawal date onward. No compounding, no
// lot tracking. A boundary on or before the transaction date yields a zero
// amount; callers skip zero rows.
func ComputeAccrual(txn Transaction, rate InterestRate, boundary time.Time) (Transaction, error) {
	if !txn.Type.IsPrincipal() {
		return Transaction{}, fmt.Errorf("%w: %s", ErrNotPrincipal, txn.Type)
	}
	if rate.Rate.IsNegative() {
		return Transaction{}, fmt.Errorf("%w: %s", ErrInvalidRate, rate.Rate)
	}

	elapsed := daysBetween(txn.Date, boundary)
	amount := decimal.Zero
	if elapsed > 0 {
		amount = txn.Amount.Mul(rate.Rate).Mul(decimal.NewFromInt(int64(elapsed)))
	}

	parentID := txn.ID
	rateID := rate.ID
	return Transaction{
		ProjectID:         txn.ProjectID,
		InvestorID:        txn.InvestorID,
		PeriodID:          txn.PeriodID,
		Date:              txn.Date,
		Amount:            amount,
		Type:              TypeProfitAccrual,
		Description:       fmt.Sprintf("accrued profit for transaction %d", txn.ID),
		DayRemaining:      txn.DayRemaining,
		DayFromStart:      txn.DayFromStart,
		InterestRateID:    &rateID,
		ParentID:          &parentID,
		IsSystemGenerated: true,
	}, nil
}
