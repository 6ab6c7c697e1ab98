package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeAccrualProration(t *testing.T) {
	principal := Transaction{
		ID:         7,
		ProjectID:  1,
		InvestorID: 3,
		PeriodID:   2,
		Date:       date(2024, time.January, 1),
		Amount:     decimal.NewFromInt(1_000_000),
		Type:       TypePrincipalDeposit,
	}
	rate := InterestRate{ID: 11, ProjectID: 1, Rate: decimal.RequireFromString("0.0005")}
	boundary := date(2024, time.April, 10) // 100 days later

	accrual, err := ComputeAccrual(principal, rate, boundary)
	if err != nil {
		t.Fatalf("ComputeAccrual() error = %v", err)
	}
	if want := decimal.NewFromInt(50_000); !accrual.Amount.Equal(want) {
		t.Fatalf("expected profit %s got %s", want, accrual.Amount)
	}
	if accrual.Type != TypeProfitAccrual {
		t.Fatalf("expected profit_accrual type got %s", accrual.Type)
	}
	if !accrual.IsSystemGenerated {
		t.Fatal("expected system generated row")
	}
	if accrual.ParentID == nil || *accrual.ParentID != principal.ID {
		t.Fatalf("expected parent reference to %d got %v", principal.ID, accrual.ParentID)
	}
	if accrual.InterestRateID == nil || *accrual.InterestRateID != rate.ID {
		t.Fatalf("expected rate reference to %d got %v", rate.ID, accrual.InterestRateID)
	}
	if accrual.InvestorID != principal.InvestorID || accrual.PeriodID != principal.PeriodID {
		t.Fatal("accrual must keep the principal's investor and period")
	}
}

func TestComputeAccrualWithdrawalIsNegative(t *testing.T) {
	withdrawal := Transaction{
		ID:     9,
		Date:   date(2024, time.March, 1),
		Amount: decimal.NewFromInt(-200_000),
		Type:   TypePrincipalWithdrawal,
	}
	rate := InterestRate{ID: 1, Rate: decimal.RequireFromString("0.001")}

	accrual, err := ComputeAccrual(withdrawal, rate, date(2024, time.March, 11))
	if err != nil {
		t.Fatalf("ComputeAccrual() error = %v", err)
	}
	if want := decimal.NewFromInt(-2_000); !accrual.Amount.Equal(want) {
		t.Fatalf("expected %s got %s", want, accrual.Amount)
	}
}

func TestComputeAccrualPastBoundaryIsZero(t *testing.T) {
	principal := Transaction{
		ID:     1,
		Date:   date(2024, time.June, 1),
		Amount: decimal.NewFromInt(500),
		Type:   TypeLoanDeposit,
	}
	rate := InterestRate{Rate: decimal.RequireFromString("0.002")}

	accrual, err := ComputeAccrual(principal, rate, date(2024, time.June, 1))
	if err != nil {
		t.Fatalf("ComputeAccrual() error = %v", err)
	}
	if !accrual.Amount.IsZero() {
		t.Fatalf("expected zero accrual got %s", accrual.Amount)
	}

	accrual, err = ComputeAccrual(principal, rate, date(2024, time.May, 1))
	if err != nil {
		t.Fatalf("ComputeAccrual() error = %v", err)
	}
	if !accrual.Amount.IsZero() {
		t.Fatalf("expected zero accrual for past boundary got %s", accrual.Amount)
	}
}

func TestComputeAccrualRejectsNonPrincipal(t *testing.T) {
	profit := Transaction{Type: TypeProfitAccrual, Amount: decimal.NewFromInt(10)}
	_, err := ComputeAccrual(profit, InterestRate{Rate: decimal.NewFromInt(1)}, date(2024, time.July, 1))
	if !errors.Is(err, ErrNotPrincipal) {
		t.Fatalf("expected ErrNotPrincipal got %v", err)
	}
}

func TestComputeAccrualRejectsNegativeRate(t *testing.T) {
	principal := Transaction{Type: TypePrincipalDeposit, Amount: decimal.NewFromInt(10), Date: date(2024, time.July, 1)}
	_, err := ComputeAccrual(principal, InterestRate{Rate: decimal.NewFromInt(-1)}, date(2024, time.August, 1))
	if !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate got %v", err)
	}
}
