package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies ledger rows.
type TransactionType string

const (
	TypePrincipalDeposit    TransactionType = "principal_deposit"
	TypeLoanDeposit         TransactionType = "loan_deposit"
	TypePrincipalWithdrawal TransactionType = "principal_withdrawal"
	TypeProfitAccrual       TransactionType = "profit_accrual"
)

// IsPrincipal reports whether the type affects the capital base.
func (t TransactionType) IsPrincipal() bool {
	switch t {
	case TypePrincipalDeposit, TypeLoanDeposit, TypePrincipalWithdrawal:
		return true
	}
	return false
}

// IsDeposit reports whether the type adds capital.
func (t TransactionType) IsDeposit() bool {
	return t == TypePrincipalDeposit || t == TypeLoanDeposit
}

// Valid reports whether the type is one of the known values.
func (t TransactionType) Valid() bool {
	return t.IsPrincipal() || t == TypeProfitAccrual
}

// ParticipationType distinguishes unit owners from pure investors.
type ParticipationType string

const (
	ParticipationOwner    ParticipationType = "owner"
	ParticipationInvestor ParticipationType = "investor"
)

// Project holds the scalar settings the engine reads. CRUD lives elsewhere.
type Project struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	TotalInfrastructure decimal.Decimal `json:"total_infrastructure"`
	CorrectionFactor    decimal.Decimal `json:"correction_factor"`
	StartDate           time.Time       `json:"start_date"`
	EndDate             time.Time       `json:"end_date"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// DurationDays returns the whole project span in days.
func (p Project) DurationDays() int {
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return 0
	}
	return daysBetween(p.StartDate, p.EndDate)
}

// Period is a user-created monthly bucket, unique per (project, year, month).
// The weight feeds the expense-weighted construction period.
type Period struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Label       string    `json:"label"`
	Year        int       `json:"year"`
	MonthNumber int       `json:"month_number"`
	Weight      int       `json:"weight"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

// Investor participates in a project and may own units.
type Investor struct {
	ID            int64             `json:"id"`
	ProjectID     int64             `json:"project_id"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	Phone         string            `json:"phone"`
	Email         string            `json:"email"`
	Participation ParticipationType `json:"participation_type"`
	CreatedAt     time.Time         `json:"created_at"`
}

// FullName joins first and last name for display contexts.
func (i Investor) FullName() string {
	if i.FirstName == "" {
		return i.LastName
	}
	if i.LastName == "" {
		return i.FirstName
	}
	return i.FirstName + " " + i.LastName
}

// Unit is a sellable residential unit inside a project.
type Unit struct {
	ID            int64           `json:"id"`
	ProjectID     int64           `json:"project_id"`
	Name          string          `json:"name"`
	Area          decimal.Decimal `json:"area"`
	PricePerMeter decimal.Decimal `json:"price_per_meter"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// Transaction is the ledger row. Withdrawal amounts are stored negative.
// Profit accruals are system generated and carry a weak back-reference to
// the principal row that produced them; deleting the parent does not
// cascade, only recalculation removes generated rows in bulk.
type Transaction struct {
	ID                int64           `json:"id"`
	ProjectID         int64           `json:"project_id"`
	InvestorID        int64           `json:"investor_id"`
	PeriodID          int64           `json:"period_id"`
	Date              time.Time       `json:"date"`
	Amount            decimal.Decimal `json:"amount"`
	Type              TransactionType `json:"transaction_type"`
	Description       string          `json:"description"`
	DayRemaining      int             `json:"day_remaining"`
	DayFromStart      int             `json:"day_from_start"`
	InterestRateID    *int64          `json:"interest_rate_id,omitempty"`
	ParentID          *int64          `json:"parent_transaction_id,omitempty"`
	IsSystemGenerated bool            `json:"is_system_generated"`
	CreatedAt         time.Time       `json:"created_at"`
}

// InterestRate is an effective-dated daily rate for a project.
type InterestRate struct {
	ID            int64           `json:"id"`
	ProjectID     int64           `json:"project_id"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate time.Time       `json:"effective_date"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Expense is a project cost row, optionally assigned to a period.
type Expense struct {
	ID          int64           `json:"id"`
	ProjectID   int64           `json:"project_id"`
	PeriodID    *int64          `json:"period_id,omitempty"`
	ExpenseType string          `json:"expense_type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Sale records a unit sale or refund inflow for a period.
type Sale struct {
	ID          int64           `json:"id"`
	ProjectID   int64           `json:"project_id"`
	PeriodID    *int64          `json:"period_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// daysBetween counts whole days from a to b, ignoring the time of day.
func daysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}
