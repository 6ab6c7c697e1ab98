package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitefund/sitefund/internal/ledger"
	"github.com/sitefund/sitefund/internal/shared"
)

// ProjectInfo carries the project settings echoed in result payloads.
type ProjectInfo struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	TotalInfrastructure decimal.Decimal `json:"total_infrastructure"`
	CorrectionFactor    decimal.Decimal `json:"correction_factor"`
	StartDate           time.Time       `json:"start_date"`
	EndDate             time.Time       `json:"end_date"`
}

// ExpenseStats pairs expense and sale totals with their difference.
type ExpenseStats struct {
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	FinalCost     decimal.Decimal `json:"final_cost"`
}

// ProjectTiming reports span and activity in days.
type ProjectTiming struct {
	ProjectDurationDays int   `json:"project_duration_days"`
	ActiveDays          int64 `json:"active_days"`
}

// ProjectStatistics is the full project dashboard record.
type ProjectStatistics struct {
	Project      ProjectInfo                `json:"project"`
	Units        ledger.UnitStats           `json:"units_statistics"`
	Transactions ledger.TransactionTotals   `json:"transaction_statistics"`
	GrandTotal   decimal.Decimal            `json:"grand_total"`
	Expenses     ExpenseStats               `json:"expense_statistics"`
	Investors    ledger.ParticipationCounts `json:"investor_statistics"`
	Timing       ProjectTiming              `json:"project_timing"`
}

// CostMetrics holds the per-meter cost figures and the fund balance.
type CostMetrics struct {
	FinalCost             decimal.Decimal `json:"final_cost"`
	FinalProfitAmount     decimal.Decimal `json:"final_profit_amount"`
	TotalProfitPercentage float64         `json:"total_profit_percentage"`
	NetCostPerMeter       float64         `json:"net_cost_per_meter"`
	GrossCostPerMeter     float64         `json:"gross_cost_per_meter"`
	ValuePerMeter         float64         `json:"value_per_meter"`
	TotalExpenses         decimal.Decimal `json:"total_expenses"`
	TotalSales            decimal.Decimal `json:"total_sales"`
	TotalValue            decimal.Decimal `json:"total_value"`
	TotalArea             decimal.Decimal `json:"total_area"`
	TotalInfrastructure   decimal.Decimal `json:"total_infrastructure"`
	TotalCapital          decimal.Decimal `json:"total_capital"`
	NetCost               decimal.Decimal `json:"net_cost"`
	BuildingFundBalance   decimal.Decimal `json:"building_fund_balance"`
}

// ProfitPercentages derives period-scaled profit rates for a project.
type ProfitPercentages struct {
	TotalProfitPercentage     float64 `json:"total_profit_percentage"`
	AnnualProfitPercentage    float64 `json:"annual_profit_percentage"`
	MonthlyProfitPercentage   float64 `json:"monthly_profit_percentage"`
	DailyProfitPercentage     float64 `json:"daily_profit_percentage"`
	AverageConstructionPeriod float64 `json:"average_construction_period"`
	CorrectionFactor          float64 `json:"correction_factor"`
}

// ComprehensiveAnalysis combines every project-level calculator output.
type ComprehensiveAnalysis struct {
	ProjectStatistics ProjectStatistics        `json:"project_statistics"`
	CostMetrics       CostMetrics              `json:"cost_metrics"`
	ProfitPercentages ProfitPercentages        `json:"profit_percentages"`
	Transactions      ledger.TransactionTotals `json:"transaction_statistics"`
	InvestorsSummary  []InvestorSummary        `json:"investors_summary"`
	CurrentDailyRate  string                   `json:"current_daily_rate"`
	GeneratedAt       time.Time                `json:"generated_at"`
}

// ProjectStatistics aggregates one project's whole financial picture.
func (s *Service) ProjectStatistics(ctx context.Context, projectID int64) (ProjectStatistics, error) {
	project, err := s.ledger.Project(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}
	units, err := s.ledger.UnitStats(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}
	totals, err := s.ledger.ProjectTotals(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}
	expenses, err := s.ledger.ExpenseProjectTotal(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}
	sales, err := s.ledger.SaleProjectTotal(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}
	participation, err := s.ledger.InvestorParticipation(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}
	activeDays, err := s.ledger.ActiveDays(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}

	return ProjectStatistics{
		Project: ProjectInfo{
			ID:                  project.ID,
			Name:                project.Name,
			TotalInfrastructure: project.TotalInfrastructure,
			CorrectionFactor:    project.CorrectionFactor,
			StartDate:           project.StartDate,
			EndDate:             project.EndDate,
		},
		Units:        units,
		Transactions: totals,
		GrandTotal:   totals.GrandTotal(),
		Expenses: ExpenseStats{
			TotalExpenses: expenses,
			TotalSales:    sales,
			FinalCost:     expenses.Sub(sales),
		},
		Investors: participation,
		Timing: ProjectTiming{
			ProjectDurationDays: project.DurationDays(),
			ActiveDays:          activeDays,
		},
	}, nil
}

// CostMetrics derives cost and value figures per square meter. The building
// fund balance flows through FundBalance so it matches every other place
// the balance appears.
func (s *Service) CostMetrics(ctx context.Context, projectID int64) (CostMetrics, error) {
	project, err := s.ledger.Project(ctx, projectID)
	if err != nil {
		return CostMetrics{}, err
	}
	expenses, err := s.ledger.ExpenseProjectTotal(ctx, projectID)
	if err != nil {
		return CostMetrics{}, err
	}
	sales, err := s.ledger.SaleProjectTotal(ctx, projectID)
	if err != nil {
		return CostMetrics{}, err
	}
	units, err := s.ledger.UnitStats(ctx, projectID)
	if err != nil {
		return CostMetrics{}, err
	}
	totals, err := s.ledger.ProjectTotals(ctx, projectID)
	if err != nil {
		return CostMetrics{}, err
	}

	netCost := expenses.Sub(sales)
	finalProfit := units.TotalPrice.Sub(netCost)

	return CostMetrics{
		FinalCost:             netCost,
		FinalProfitAmount:     finalProfit,
		TotalProfitPercentage: round2(shared.SafePercent(finalProfit, netCost)),
		NetCostPerMeter:       round2(shared.SafeDiv(netCost, units.TotalArea)),
		GrossCostPerMeter:     round2(shared.SafeDiv(netCost, project.TotalInfrastructure)),
		ValuePerMeter:         round2(shared.SafeDiv(units.TotalPrice, units.TotalArea)),
		TotalExpenses:         expenses,
		TotalSales:            sales,
		TotalValue:            units.TotalPrice,
		TotalArea:             units.TotalArea,
		TotalInfrastructure:   project.TotalInfrastructure,
		TotalCapital:          totals.NetCapital,
		NetCost:               netCost,
		BuildingFundBalance:   FundBalance(totals.NetCapital, expenses, sales),
	}, nil
}

// AverageConstructionPeriod is the expense-weighted mean of period weights.
// Expenses without a period are excluded from both sums.
func (s *Service) AverageConstructionPeriod(ctx context.Context, projectID int64) (float64, error) {
	weights, err := s.ledger.ExpenseWeights(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return round2(shared.SafeDiv(weights.WeightedSum, weights.TotalExpense)), nil
}

// ProfitPercentages scales the total profit percentage down to annual,
// monthly and daily rates using the weighted construction period.
func (s *Service) ProfitPercentages(ctx context.Context, projectID int64) (ProfitPercentages, error) {
	project, err := s.ledger.Project(ctx, projectID)
	if err != nil {
		return ProfitPercentages{}, err
	}
	metrics, err := s.CostMetrics(ctx, projectID)
	if err != nil {
		return ProfitPercentages{}, err
	}
	avgPeriod, err := s.AverageConstructionPeriod(ctx, projectID)
	if err != nil {
		return ProfitPercentages{}, err
	}

	total := decimal.NewFromFloat(metrics.TotalProfitPercentage)
	annual := shared.SafeDiv(total, decimal.NewFromFloat(avgPeriod)).Mul(decimal.NewFromInt(12))
	monthly := annual.Div(decimal.NewFromInt(12))
	daily := annual.Div(decimal.NewFromInt(365)).Mul(project.CorrectionFactor)

	factor, _ := project.CorrectionFactor.Float64()
	return ProfitPercentages{
		TotalProfitPercentage:     metrics.TotalProfitPercentage,
		AnnualProfitPercentage:    round2(annual),
		MonthlyProfitPercentage:   round2(monthly),
		DailyProfitPercentage:     round8(daily),
		AverageConstructionPeriod: avgPeriod,
		CorrectionFactor:          factor,
	}, nil
}

// ComprehensiveAnalysis builds the combined dashboard payload. Results are
// cached per ledger version and concurrent builds collapse to one.
func (s *Service) ComprehensiveAnalysis(ctx context.Context, projectID int64) (ComprehensiveAnalysis, error) {
	key, err := s.cache.BuildKey(ctx, keyComprehensive(projectID))
	if err != nil {
		return ComprehensiveAnalysis{}, err
	}
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		var out ComprehensiveAnalysis
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			return s.buildComprehensive(ctx, projectID)
		})
		return out, err
	})
	if err != nil {
		return ComprehensiveAnalysis{}, err
	}
	return v.(ComprehensiveAnalysis), nil
}

func (s *Service) buildComprehensive(ctx context.Context, projectID int64) (ComprehensiveAnalysis, error) {
	stats, err := s.ProjectStatistics(ctx, projectID)
	if err != nil {
		return ComprehensiveAnalysis{}, err
	}
	metrics, err := s.CostMetrics(ctx, projectID)
	if err != nil {
		return ComprehensiveAnalysis{}, err
	}
	percentages, err := s.ProfitPercentages(ctx, projectID)
	if err != nil {
		return ComprehensiveAnalysis{}, err
	}
	summaries, err := s.AllInvestorsSummary(ctx, projectID)
	if err != nil {
		return ComprehensiveAnalysis{}, err
	}

	rate := ""
	if current, err := s.ledger.CurrentRate(ctx, projectID); err == nil {
		rate = current.Rate.String()
	} else if !errors.Is(err, ledger.ErrNoActiveRate) {
		return ComprehensiveAnalysis{}, err
	}

	return ComprehensiveAnalysis{
		ProjectStatistics: stats,
		CostMetrics:       metrics,
		ProfitPercentages: percentages,
		Transactions:      stats.Transactions,
		InvestorsSummary:  summaries,
		CurrentDailyRate:  rate,
		GeneratedAt:       s.now(),
	}, nil
}
