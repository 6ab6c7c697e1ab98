package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/sitefund/sitefund/internal/ledger"
)

// Ledger is the aggregation surface this package consumes. Everything here
// is derived from these calls only; the calculators never reach past them
// into transaction rows.
type Ledger interface {
	Project(ctx context.Context, id int64) (ledger.Project, error)
	Investor(ctx context.Context, id int64) (ledger.Investor, error)
	TransactionTotals(ctx context.Context, projectID int64, filter ledger.TotalsFilter) (ledger.TransactionTotals, error)
	ProjectTotals(ctx context.Context, projectID int64) (ledger.TransactionTotals, error)
	ExpenseProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error)
	SaleProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error)
	ExpenseWeights(ctx context.Context, projectID int64) (ledger.ExpenseWeights, error)
	UnitStats(ctx context.Context, projectID int64) (ledger.UnitStats, error)
	InvestorUnits(ctx context.Context, investorID, projectID int64) ([]ledger.Unit, error)
	InvestorsWithTransactions(ctx context.Context, projectID int64) ([]ledger.Investor, error)
	InvestorParticipation(ctx context.Context, projectID int64) (ledger.ParticipationCounts, error)
	ActiveDays(ctx context.Context, projectID int64) (int64, error)
	CurrentRate(ctx context.Context, projectID int64) (ledger.InterestRate, error)
}

// Service coordinates the downstream calculators with the cache layer.
type Service struct {
	ledger Ledger
	cache  *Cache
	sf     singleflight.Group
	now    func() time.Time
}

// NewService wires the ledger aggregation layer with a Cache helper.
func NewService(l Ledger, cache *Cache) *Service {
	return &Service{ledger: l, cache: cache, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// round2 converts a decimal ratio to its display value.
func round2(v decimal.Decimal) float64 {
	f, _ := v.Round(2).Float64()
	return f
}

func round8(v decimal.Decimal) float64 {
	f, _ := v.Round(8).Float64()
	return f
}
