package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sitefund/sitefund/internal/shared"
)

// AuditPort records engine mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates derived analytics after the ledger changes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// RecalcLocker serializes recalculations per project.
type RecalcLocker interface {
	Acquire(ctx context.Context, projectID int64) (func(), error)
}

// Service owns ledger writes and re-exports the aggregation layer. Every
// other component obtains financial sums through it.
type Service struct {
	repo     Repository
	lock     RecalcLocker
	audit    AuditPort
	cache    CacheBumper
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a Service instance. Lock, audit and cache are
// optional; a nil lock means recalculations are not serialized externally.
func NewService(repo Repository, lock RecalcLocker, audit AuditPort, cache CacheBumper) *Service {
	return &Service{
		repo:     repo,
		lock:     lock,
		audit:    audit,
		cache:    cache,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RecordTransactionInput carries a user-entered principal transaction.
type RecordTransactionInput struct {
	ProjectID   int64           `validate:"required"`
	InvestorID  int64           `validate:"required"`
	PeriodID    int64           `validate:"required"`
	Date        time.Time       `validate:"required"`
	Amount      decimal.Decimal
	Type        TransactionType `validate:"required"`
	Description string
}

// RecordTransaction stores a principal row. Deposits must be positive;
// withdrawals are normalized to a negative stored amount. Day counters are
// derived from the project dates at insert time.
func (s *Service) RecordTransaction(ctx context.Context, in RecordTransactionInput) (Transaction, error) {
	if err := s.validate.Struct(in); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if !in.Type.IsPrincipal() {
		return Transaction{}, fmt.Errorf("%w: %s is system generated", shared.ErrValidation, in.Type)
	}
	if in.Amount.IsZero() {
		return Transaction{}, fmt.Errorf("%w: amount must not be zero", ErrInvalidAmount)
	}
	amount := in.Amount
	switch {
	case in.Type.IsDeposit():
		if amount.IsNegative() {
			return Transaction{}, fmt.Errorf("%w: deposits must be positive", ErrInvalidAmount)
		}
	case in.Type == TypePrincipalWithdrawal:
		amount = amount.Abs().Neg()
	}

	project, err := s.repo.GetProject(ctx, in.ProjectID)
	if err != nil {
		return Transaction{}, err
	}
	if _, err := s.repo.GetInvestor(ctx, in.InvestorID); err != nil {
		return Transaction{}, err
	}
	if _, err := s.repo.GetPeriod(ctx, in.PeriodID); err != nil {
		return Transaction{}, err
	}

	txn := Transaction{
		ProjectID:    in.ProjectID,
		InvestorID:   in.InvestorID,
		PeriodID:     in.PeriodID,
		Date:         in.Date,
		Amount:       amount,
		Type:         in.Type,
		Description:  in.Description,
		DayRemaining: daysBetween(in.Date, project.EndDate),
		DayFromStart: daysBetween(project.StartDate, in.Date),
	}
	inserted, err := s.repo.InsertTransaction(ctx, txn)
	if err != nil {
		return Transaction{}, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	return inserted, nil
}

// CurrentRate resolves the active rate for a project as of the service clock.
func (s *Service) CurrentRate(ctx context.Context, projectID int64) (InterestRate, error) {
	return s.repo.CurrentRate(ctx, projectID, s.now())
}

// RecalcResult reports one delete-and-regenerate cycle.
type RecalcResult struct {
	RunID         uuid.UUID       `json:"run_id"`
	DeletedCount  int64           `json:"deleted_count"`
	NewCount      int64           `json:"new_count"`
	TotalAffected int64           `json:"total_affected"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
}

// RecalculateAllProfits atomically discards every system-generated profit
// row in scope and rebuilds it from the principal ledger under rate. The
// whole cycle runs in one database transaction; on error nothing is kept.
// Runs for the same project are serialized, scope nil means all projects.
func (s *Service) RecalculateAllProfits(ctx context.Context, rate InterestRate, projectID *int64) (RecalcResult, error) {
	if rate.Rate.IsNegative() {
		return RecalcResult{}, fmt.Errorf("%w: %s", ErrInvalidRate, rate.Rate)
	}

	var lockID int64
	if projectID != nil {
		lockID = *projectID
	}
	if s.lock != nil {
		release, err := s.lock.Acquire(ctx, lockID)
		if err != nil {
			return RecalcResult{}, err
		}
		defer release()
	}

	result := RecalcResult{RunID: uuid.New(), TotalProfit: decimal.Zero}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deleted, err := tx.DeleteGeneratedProfits(ctx, projectID)
		if err != nil {
			return err
		}
		principals, err := tx.ListPrincipalTransactions(ctx, projectID)
		if err != nil {
			return err
		}

		boundaries := make(map[int64]time.Time)
		var created int64
		total := decimal.Zero
		for _, principal := range principals {
			boundary, ok := boundaries[principal.ProjectID]
			if !ok {
				project, err := tx.GetProject(ctx, principal.ProjectID)
				if err != nil {
					return err
				}
				boundary = project.EndDate
				boundaries[principal.ProjectID] = boundary
			}
			accrual, err := ComputeAccrual(principal, rate, boundary)
			if err != nil {
				return err
			}
			if accrual.Amount.IsZero() {
				continue
			}
			if _, err := tx.InsertTransaction(ctx, accrual); err != nil {
				return err
			}
			created++
			total = total.Add(accrual.Amount)
		}

		result.DeletedCount = deleted
		result.NewCount = created
		result.TotalAffected = deleted + created
		result.TotalProfit = total
		return nil
	})
	if err != nil {
		return RecalcResult{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "ledger.recalculate_profits",
			Entity:   "interest_rate",
			EntityID: fmt.Sprintf("%d", rate.ID),
			Meta: map[string]any{
				"run_id":         result.RunID.String(),
				"rate":           rate.Rate.String(),
				"project_id":     lockID,
				"deleted_count":  result.DeletedCount,
				"new_count":      result.NewCount,
				"total_affected": result.TotalAffected,
			},
			At: s.now(),
		})
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	return result, nil
}

// Recalculate resolves the project's current rate and regenerates with it.
// It reports ErrNoActiveRate instead of guessing when none is configured.
func (s *Service) Recalculate(ctx context.Context, projectID int64) (RecalcResult, error) {
	rate, err := s.repo.CurrentRate(ctx, projectID, s.now())
	if err != nil {
		if errors.Is(err, ErrNoActiveRate) {
			return RecalcResult{}, fmt.Errorf("recalculation impossible: %w", err)
		}
		return RecalcResult{}, err
	}
	return s.RecalculateAllProfits(ctx, rate, &projectID)
}

// Project fetches project settings for downstream calculators.
func (s *Service) Project(ctx context.Context, id int64) (Project, error) {
	return s.repo.GetProject(ctx, id)
}

// Investor fetches one investor.
func (s *Service) Investor(ctx context.Context, id int64) (Investor, error) {
	return s.repo.GetInvestor(ctx, id)
}

// TransactionTotals is the SSOT aggregation entry point.
func (s *Service) TransactionTotals(ctx context.Context, projectID int64, filter TotalsFilter) (TransactionTotals, error) {
	return s.repo.TransactionTotals(ctx, projectID, filter)
}

// ProjectTotals aggregates the whole project ledger.
func (s *Service) ProjectTotals(ctx context.Context, projectID int64) (TransactionTotals, error) {
	return s.repo.TransactionTotals(ctx, projectID, TotalsFilter{})
}

// PeriodTotals aggregates one period of the project ledger.
func (s *Service) PeriodTotals(ctx context.Context, projectID, periodID int64) (TransactionTotals, error) {
	return s.repo.TransactionTotals(ctx, projectID, TotalsFilter{PeriodID: &periodID})
}

// TransactionCumulativeUntil sums signed ledger turnover through the
// given period inclusive.
func (s *Service) TransactionCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return s.repo.TransactionCumulativeUntil(ctx, projectID, periodID)
}

// ExpenseProjectTotal sums all expenses of a project.
func (s *Service) ExpenseProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	return s.repo.ExpenseProjectTotal(ctx, projectID)
}

// ExpensePeriodTotal sums one period's expenses.
func (s *Service) ExpensePeriodTotal(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return s.repo.ExpensePeriodTotal(ctx, projectID, periodID)
}

// ExpenseCumulativeUntil sums expenses through the given period inclusive.
func (s *Service) ExpenseCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return s.repo.ExpenseCumulativeUntil(ctx, projectID, periodID)
}

// SaleProjectTotal sums all sales of a project.
func (s *Service) SaleProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	return s.repo.SaleProjectTotal(ctx, projectID)
}

// SalePeriodTotal sums one period's sales.
func (s *Service) SalePeriodTotal(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return s.repo.SalePeriodTotal(ctx, projectID, periodID)
}

// SaleCumulativeUntil sums sales through the given period inclusive.
func (s *Service) SaleCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return s.repo.SaleCumulativeUntil(ctx, projectID, periodID)
}

// ExpenseWeights exposes the sums behind the weighted construction period.
func (s *Service) ExpenseWeights(ctx context.Context, projectID int64) (ExpenseWeights, error) {
	return s.repo.ExpenseWeights(ctx, projectID)
}

// UnitStats aggregates a project's units.
func (s *Service) UnitStats(ctx context.Context, projectID int64) (UnitStats, error) {
	return s.repo.UnitStats(ctx, projectID)
}

// InvestorUnits lists the units an investor owns inside a project.
func (s *Service) InvestorUnits(ctx context.Context, investorID, projectID int64) ([]Unit, error) {
	return s.repo.InvestorUnits(ctx, investorID, projectID)
}

// InvestorsWithTransactions lists investors with ledger activity.
func (s *Service) InvestorsWithTransactions(ctx context.Context, projectID int64) ([]Investor, error) {
	return s.repo.InvestorsWithTransactions(ctx, projectID)
}

// InvestorParticipation counts active investors by participation type.
func (s *Service) InvestorParticipation(ctx context.Context, projectID int64) (ParticipationCounts, error) {
	return s.repo.InvestorParticipation(ctx, projectID)
}

// ActiveDays counts distinct transaction dates for a project.
func (s *Service) ActiveDays(ctx context.Context, projectID int64) (int64, error) {
	return s.repo.ActiveDays(ctx, projectID)
}
