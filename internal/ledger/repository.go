package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for the ledger and is the only
// place financial sums are derived. Aggregation methods return zero-valued
// records over empty sets, never errors.
type Repository interface {
	GetProject(ctx context.Context, id int64) (Project, error)
	GetInvestor(ctx context.Context, id int64) (Investor, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)

	// CurrentRate resolves the active rate with the greatest effective
	// date not after asOf. Project 0 searches across every project.
	// Returns ErrNoActiveRate when none qualifies.
	CurrentRate(ctx context.Context, projectID int64, asOf time.Time) (InterestRate, error)

	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)

	// TransactionTotals is the SSOT aggregation entry point.
	TransactionTotals(ctx context.Context, projectID int64, filter TotalsFilter) (TransactionTotals, error)
	// TransactionCumulativeUntil sums signed ledger turnover for every
	// period sorting at or before the reference period.
	TransactionCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error)

	ExpenseProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error)
	ExpensePeriodTotal(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error)
	ExpenseCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error)
	SaleProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error)
	SalePeriodTotal(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error)
	SaleCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error)

	ExpenseWeights(ctx context.Context, projectID int64) (ExpenseWeights, error)
	UnitStats(ctx context.Context, projectID int64) (UnitStats, error)
	InvestorUnits(ctx context.Context, investorID, projectID int64) ([]Unit, error)
	InvestorsWithTransactions(ctx context.Context, projectID int64) ([]Investor, error)
	InvestorParticipation(ctx context.Context, projectID int64) (ParticipationCounts, error)
	ActiveDays(ctx context.Context, projectID int64) (int64, error)

	// WithTx runs fn inside one database transaction; the recalculation
	// orchestrator is the only multi-step mutating caller.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// DeleteGeneratedProfits removes every system-generated profit_accrual
	// row, scoped to the project when non-nil, and reports the count.
	DeleteGeneratedProfits(ctx context.Context, projectID *int64) (int64, error)
	// ListPrincipalTransactions returns principal rows in scope ordered by
	// id so regeneration is deterministic.
	ListPrincipalTransactions(ctx context.Context, projectID *int64) ([]Transaction, error)
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	GetProject(ctx context.Context, id int64) (Project, error)
}
