package analytics

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sitefund/sitefund/internal/ledger"
	"github.com/sitefund/sitefund/internal/shared"
)

// InvestorInfo identifies an investor inside result payloads.
type InvestorInfo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Participation string `json:"participation_type"`
}

// InvestorStatistics is the per-investor totals record.
type InvestorStatistics struct {
	Investor         InvestorInfo    `json:"investor"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	NetPrincipal     decimal.Decimal `json:"net_principal"`
	TotalBalance     decimal.Decimal `json:"total_balance"`
}

// InvestorRatios relates an investor's position to the whole project.
type InvestorRatios struct {
	CapitalRatio float64 `json:"capital_ratio"`
	ProfitRatio  float64 `json:"profit_ratio"`
	TotalRatio   float64 `json:"total_ratio"`
	ProfitIndex  float64 `json:"profit_index"`
}

// UnitShare describes one owned unit inside an ownership result.
type UnitShare struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Area          decimal.Decimal `json:"area"`
	PricePerMeter decimal.Decimal `json:"price_per_meter"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// InvestorOwnership is the square-meter equivalent of an investor's
// capital-plus-profit position.
type InvestorOwnership struct {
	OwnershipArea         float64         `json:"ownership_area"`
	OwnershipPercentage   float64         `json:"ownership_percentage"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	NetPrincipal          decimal.Decimal `json:"net_principal"`
	TotalProfit           decimal.Decimal `json:"total_profit"`
	AveragePricePerMeter  float64         `json:"average_price_per_meter"`
	UnitsCount            int             `json:"units_count"`
	Units                 []UnitShare     `json:"units"`
	TotalUnitsArea        decimal.Decimal `json:"total_units_area"`
	FinalPayment          decimal.Decimal `json:"final_payment"`
	TransferPricePerMeter float64         `json:"transfer_price_per_meter"`
}

// InvestorSummary is the roll-up row used by dashboards and exports.
type InvestorSummary struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Participation    string          `json:"participation_type"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	NetPrincipal     decimal.Decimal `json:"net_principal"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	CapitalRatio     float64         `json:"capital_ratio"`
	ProfitRatio      float64         `json:"profit_ratio"`
	ProfitIndex      float64         `json:"profit_index"`
}

// InvestorStatistics sums one investor's ledger inside a project.
func (s *Service) InvestorStatistics(ctx context.Context, investorID, projectID int64) (InvestorStatistics, error) {
	investor, err := s.ledger.Investor(ctx, investorID)
	if err != nil {
		return InvestorStatistics{}, err
	}
	if _, err := s.ledger.Project(ctx, projectID); err != nil {
		return InvestorStatistics{}, err
	}
	totals, err := s.ledger.TransactionTotals(ctx, projectID, ledger.TotalsFilter{InvestorID: &investorID})
	if err != nil {
		return InvestorStatistics{}, err
	}
	return InvestorStatistics{
		Investor: InvestorInfo{
			ID:            investor.ID,
			Name:          investor.FullName(),
			FirstName:     investor.FirstName,
			LastName:      investor.LastName,
			Participation: string(investor.Participation),
		},
		TotalDeposits:    totals.Deposits,
		TotalWithdrawals: totals.Withdrawals,
		TotalProfit:      totals.Profits,
		NetPrincipal:     totals.NetCapital,
		TotalBalance:     totals.GrandTotal(),
	}, nil
}

// InvestorRatios computes capital/profit/total ratios and the profit index.
// Every division is zero-guarded; an investor in an empty project gets zeros.
func (s *Service) InvestorRatios(ctx context.Context, investorID, projectID int64) (InvestorRatios, error) {
	stats, err := s.InvestorStatistics(ctx, investorID, projectID)
	if err != nil {
		return InvestorRatios{}, err
	}
	project, err := s.ledger.ProjectTotals(ctx, projectID)
	if err != nil {
		return InvestorRatios{}, err
	}

	capitalRatio := shared.SafePercent(stats.NetPrincipal, project.NetCapital)
	profitRatio := shared.SafePercent(stats.TotalProfit, project.Profits)
	totalRatio := shared.SafePercent(stats.TotalBalance, project.GrandTotal())
	profitIndex := shared.SafeDiv(
		shared.SafeDiv(stats.TotalProfit, project.Profits),
		shared.SafeDiv(stats.NetPrincipal, project.NetCapital),
	)

	return InvestorRatios{
		CapitalRatio: round2(capitalRatio),
		ProfitRatio:  round2(profitRatio),
		TotalRatio:   round2(totalRatio),
		ProfitIndex:  round2(profitIndex),
	}, nil
}

// InvestorOwnership converts capital plus profit into square meters. With
// owned units the price per meter is the area-weighted unit average;
// otherwise the project-wide value per meter is used.
func (s *Service) InvestorOwnership(ctx context.Context, investorID, projectID int64) (InvestorOwnership, error) {
	stats, err := s.InvestorStatistics(ctx, investorID, projectID)
	if err != nil {
		return InvestorOwnership{}, err
	}
	totalAmount := stats.NetPrincipal.Add(stats.TotalProfit)

	units, err := s.ledger.InvestorUnits(ctx, investorID, projectID)
	if err != nil {
		return InvestorOwnership{}, err
	}

	out := InvestorOwnership{
		TotalAmount:    totalAmount,
		NetPrincipal:   stats.NetPrincipal,
		TotalProfit:    stats.TotalProfit,
		TotalUnitsArea: decimal.Zero,
		FinalPayment:   decimal.Zero,
		Units:          []UnitShare{},
	}

	if len(units) == 0 {
		metrics, err := s.CostMetrics(ctx, projectID)
		if err != nil {
			return InvestorOwnership{}, err
		}
		valuePerMeter := decimal.NewFromFloat(metrics.ValuePerMeter)
		out.AveragePricePerMeter = metrics.ValuePerMeter
		out.OwnershipArea = round2(shared.SafeDiv(totalAmount, valuePerMeter))
		return out, nil
	}

	totalArea := decimal.Zero
	totalValue := decimal.Zero
	totalPrice := decimal.Zero
	for _, u := range units {
		totalArea = totalArea.Add(u.Area)
		totalValue = totalValue.Add(u.Area.Mul(u.PricePerMeter))
		totalPrice = totalPrice.Add(u.TotalPrice)
		out.Units = append(out.Units, UnitShare{
			ID:            u.ID,
			Name:          u.Name,
			Area:          u.Area,
			PricePerMeter: u.PricePerMeter,
			TotalPrice:    u.TotalPrice,
		})
	}

	avgPrice := shared.SafeDiv(totalValue, totalArea)
	ownershipArea := shared.SafeDiv(totalAmount, avgPrice)
	finalPayment := totalAmount.Sub(totalPrice)

	out.UnitsCount = len(units)
	out.TotalUnitsArea = totalArea
	out.AveragePricePerMeter = round2(avgPrice)
	out.OwnershipArea = round2(ownershipArea)
	out.OwnershipPercentage = round2(shared.SafePercent(ownershipArea, totalArea))
	out.FinalPayment = finalPayment
	out.TransferPricePerMeter = round2(shared.SafeDiv(stats.NetPrincipal.Sub(finalPayment), totalArea))
	return out, nil
}

// AllInvestorsSummary rolls up stats and ratios for every investor with
// ledger activity in the project.
func (s *Service) AllInvestorsSummary(ctx context.Context, projectID int64) ([]InvestorSummary, error) {
	investors, err := s.ledger.InvestorsWithTransactions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	summaries := make([]InvestorSummary, 0, len(investors))
	for _, inv := range investors {
		stats, err := s.InvestorStatistics(ctx, inv.ID, projectID)
		if err != nil {
			return nil, err
		}
		ratios, err := s.InvestorRatios(ctx, inv.ID, projectID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, InvestorSummary{
			ID:               inv.ID,
			Name:             inv.FullName(),
			Participation:    string(inv.Participation),
			TotalDeposits:    stats.TotalDeposits,
			TotalWithdrawals: stats.TotalWithdrawals.Abs(),
			NetPrincipal:     stats.NetPrincipal,
			TotalProfit:      stats.TotalProfit,
			GrandTotal:       stats.TotalBalance,
			CapitalRatio:     ratios.CapitalRatio,
			ProfitRatio:      ratios.ProfitRatio,
			ProfitIndex:      ratios.ProfitIndex,
		})
	}
	return summaries, nil
}
