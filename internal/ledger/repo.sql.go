package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sitefund/sitefund/internal/platform/db"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetProject(ctx context.Context, id int64) (Project, error) {
	return scanProject(r.db.QueryRow(ctx, `SELECT id, name, total_infrastructure::text, correction_factor::text, start_date, end_date, created_at, updated_at
FROM projects WHERE id=$1`, id))
}

func (r *repository) GetInvestor(ctx context.Context, id int64) (Investor, error) {
	var inv Investor
	err := r.db.QueryRow(ctx, `SELECT id, project_id, first_name, last_name, phone, email, participation_type, created_at
FROM investors WHERE id=$1`, id).
		Scan(&inv.ID, &inv.ProjectID, &inv.FirstName, &inv.LastName, &inv.Phone, &inv.Email, &inv.Participation, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Investor{}, ErrInvestorNotFound
		}
		return Investor{}, err
	}
	return inv, nil
}

func (r *repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	var p Period
	err := r.db.QueryRow(ctx, `SELECT id, project_id, label, year, month_number, weight, start_date, end_date
FROM periods WHERE id=$1`, id).
		Scan(&p.ID, &p.ProjectID, &p.Label, &p.Year, &p.MonthNumber, &p.Weight, &p.StartDate, &p.EndDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

// CurrentRate resolves the newest active rate effective at asOf. Project 0
// widens the lookup to every project, for whole-book recalculation runs.
func (r *repository) CurrentRate(ctx context.Context, projectID int64, asOf time.Time) (InterestRate, error) {
	var rate InterestRate
	var raw string
	err := r.db.QueryRow(ctx, `SELECT id, project_id, rate::text, effective_date, is_active, created_at
FROM interest_rates
WHERE ($1 = 0 OR project_id = $1) AND is_active AND effective_date <= $2
ORDER BY effective_date DESC, id DESC LIMIT 1`, projectID, asOf).
		Scan(&rate.ID, &rate.ProjectID, &raw, &rate.EffectiveDate, &rate.IsActive, &rate.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InterestRate{}, ErrNoActiveRate
		}
		return InterestRate{}, err
	}
	if rate.Rate, err = decimal.NewFromString(raw); err != nil {
		return InterestRate{}, fmt.Errorf("ledger: parse rate: %w", err)
	}
	return rate, nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	return insertTransaction(ctx, r.db, txn)
}

func (r *repository) TransactionTotals(ctx context.Context, projectID int64, filter TotalsFilter) (TransactionTotals, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT
  COALESCE(SUM(amount) FILTER (WHERE transaction_type IN ('principal_deposit','loan_deposit')), 0)::text,
  COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'principal_withdrawal'), 0)::text,
  COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'profit_accrual'), 0)::text,
  COUNT(*)
FROM transactions WHERE project_id = $1`)
	args := []any{projectID}
	appendArg := func(clause string, v any) {
		args = append(args, v)
		fmt.Fprintf(&sb, " AND %s $%d", clause, len(args))
	}
	if filter.InvestorID != nil {
		appendArg("investor_id =", *filter.InvestorID)
	}
	if filter.PeriodID != nil {
		appendArg("period_id =", *filter.PeriodID)
	}
	if filter.DateFrom != nil {
		appendArg("date >=", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		appendArg("date <=", *filter.DateTo)
	}
	if filter.Type != nil {
		appendArg("transaction_type =", string(*filter.Type))
	}

	var deposits, withdrawals, profits string
	var totals TransactionTotals
	err := r.db.QueryRow(ctx, sb.String(), args...).
		Scan(&deposits, &withdrawals, &profits, &totals.TotalTransactions)
	if err != nil {
		return TransactionTotals{}, err
	}
	if totals.Deposits, err = decimal.NewFromString(deposits); err != nil {
		return TransactionTotals{}, err
	}
	if totals.Withdrawals, err = decimal.NewFromString(withdrawals); err != nil {
		return TransactionTotals{}, err
	}
	if totals.Profits, err = decimal.NewFromString(profits); err != nil {
		return TransactionTotals{}, err
	}
	totals.NetCapital = totals.Deposits.Add(totals.Withdrawals)
	return totals, nil
}

func (r *repository) TransactionCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return r.sumAmount(ctx, cumulativeQuery("transactions"), projectID, periodID)
}

func (r *repository) ExpenseProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	return r.sumAmount(ctx, `SELECT COALESCE(SUM(amount),0)::text FROM expenses WHERE project_id=$1`, projectID)
}

func (r *repository) ExpensePeriodTotal(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return r.sumAmount(ctx, `SELECT COALESCE(SUM(amount),0)::text FROM expenses WHERE project_id=$1 AND period_id=$2`, projectID, periodID)
}

func (r *repository) ExpenseCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return r.sumAmount(ctx, cumulativeQuery("expenses"), projectID, periodID)
}

func (r *repository) SaleProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	return r.sumAmount(ctx, `SELECT COALESCE(SUM(amount),0)::text FROM sales WHERE project_id=$1`, projectID)
}

func (r *repository) SalePeriodTotal(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return r.sumAmount(ctx, `SELECT COALESCE(SUM(amount),0)::text FROM sales WHERE project_id=$1 AND period_id=$2`, projectID, periodID)
}

func (r *repository) SaleCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	return r.sumAmount(ctx, cumulativeQuery("sales"), projectID, periodID)
}

// cumulativeQuery sums rows of table whose period sorts at or before the
// reference period in (year, month_number) order.
func cumulativeQuery(table string) string {
	return fmt.Sprintf(`SELECT COALESCE(SUM(t.amount),0)::text
FROM %s t
JOIN periods p ON p.id = t.period_id
JOIN periods ref ON ref.id = $2
WHERE t.project_id = $1
  AND (p.year < ref.year OR (p.year = ref.year AND p.month_number <= ref.month_number))`, table)
}

func (r *repository) ExpenseWeights(ctx context.Context, projectID int64) (ExpenseWeights, error) {
	var weighted, total string
	err := r.db.QueryRow(ctx, `SELECT
  COALESCE(SUM(e.amount * p.weight),0)::text,
  COALESCE(SUM(e.amount),0)::text
FROM expenses e
JOIN periods p ON p.id = e.period_id
WHERE e.project_id = $1`, projectID).Scan(&weighted, &total)
	if err != nil {
		return ExpenseWeights{}, err
	}
	var out ExpenseWeights
	if out.WeightedSum, err = decimal.NewFromString(weighted); err != nil {
		return ExpenseWeights{}, err
	}
	if out.TotalExpense, err = decimal.NewFromString(total); err != nil {
		return ExpenseWeights{}, err
	}
	return out, nil
}

func (r *repository) UnitStats(ctx context.Context, projectID int64) (UnitStats, error) {
	var stats UnitStats
	var area, price string
	err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(area),0)::text, COALESCE(SUM(total_price),0)::text
FROM units WHERE project_id=$1`, projectID).Scan(&stats.TotalUnits, &area, &price)
	if err != nil {
		return UnitStats{}, err
	}
	if stats.TotalArea, err = decimal.NewFromString(area); err != nil {
		return UnitStats{}, err
	}
	if stats.TotalPrice, err = decimal.NewFromString(price); err != nil {
		return UnitStats{}, err
	}
	return stats, nil
}

func (r *repository) InvestorUnits(ctx context.Context, investorID, projectID int64) ([]Unit, error) {
	rows, err := r.db.Query(ctx, `SELECT u.id, u.project_id, u.name, u.area::text, u.price_per_meter::text, u.total_price::text
FROM units u
JOIN investor_units iu ON iu.unit_id = u.id
WHERE iu.investor_id = $1 AND u.project_id = $2
ORDER BY u.id`, investorID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []Unit
	for rows.Next() {
		var u Unit
		var area, ppm, total string
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.Name, &area, &ppm, &total); err != nil {
			return nil, err
		}
		if u.Area, err = decimal.NewFromString(area); err != nil {
			return nil, err
		}
		if u.PricePerMeter, err = decimal.NewFromString(ppm); err != nil {
			return nil, err
		}
		if u.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *repository) InvestorsWithTransactions(ctx context.Context, projectID int64) ([]Investor, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT i.id, i.project_id, i.first_name, i.last_name, i.phone, i.email, i.participation_type, i.created_at
FROM investors i
JOIN transactions t ON t.investor_id = i.id
WHERE t.project_id = $1
ORDER BY i.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var investors []Investor
	for rows.Next() {
		var inv Investor
		if err := rows.Scan(&inv.ID, &inv.ProjectID, &inv.FirstName, &inv.LastName, &inv.Phone, &inv.Email, &inv.Participation, &inv.CreatedAt); err != nil {
			return nil, err
		}
		investors = append(investors, inv)
	}
	return investors, rows.Err()
}

func (r *repository) InvestorParticipation(ctx context.Context, projectID int64) (ParticipationCounts, error) {
	var counts ParticipationCounts
	err := r.db.QueryRow(ctx, `SELECT COUNT(*),
  COUNT(*) FILTER (WHERE participation_type = 'owner'),
  COUNT(*) FILTER (WHERE participation_type = 'investor')
FROM investors
WHERE id IN (SELECT DISTINCT investor_id FROM transactions WHERE project_id = $1)`, projectID).
		Scan(&counts.Total, &counts.Owners, &counts.Investors)
	if err != nil {
		return ParticipationCounts{}, err
	}
	return counts, nil
}

func (r *repository) ActiveDays(ctx context.Context, projectID int64) (int64, error) {
	var days int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT date) FROM transactions WHERE project_id=$1`, projectID).Scan(&days)
	return days, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) sumAmount(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var raw string
	if err := r.db.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) DeleteGeneratedProfits(ctx context.Context, projectID *int64) (int64, error) {
	if projectID != nil {
		cmd, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE transaction_type='profit_accrual' AND is_system_generated AND project_id=$1`, *projectID)
		if err != nil {
			return 0, err
		}
		return cmd.RowsAffected(), nil
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE transaction_type='profit_accrual' AND is_system_generated`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) ListPrincipalTransactions(ctx context.Context, projectID *int64) ([]Transaction, error) {
	query := `SELECT id, project_id, investor_id, period_id, date, amount::text, transaction_type, description, day_remaining, day_from_start, interest_rate_id, parent_transaction_id, is_system_generated, created_at
FROM transactions
WHERE transaction_type IN ('principal_deposit','loan_deposit','principal_withdrawal')`
	args := []any{}
	if projectID != nil {
		query += ` AND project_id = $1`
		args = append(args, *projectID)
	}
	query += ` ORDER BY id`
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	return insertTransaction(ctx, r.tx, txn)
}

func (r *txRepository) GetProject(ctx context.Context, id int64) (Project, error) {
	return scanProject(r.tx.QueryRow(ctx, `SELECT id, name, total_infrastructure::text, correction_factor::text, start_date, end_date, created_at, updated_at
FROM projects WHERE id=$1`, id))
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertTransaction(ctx context.Context, q rowQuerier, txn Transaction) (Transaction, error) {
	row := q.QueryRow(ctx, `INSERT INTO transactions
  (project_id, investor_id, period_id, date, amount, transaction_type, description, day_remaining, day_from_start, interest_rate_id, parent_transaction_id, is_system_generated)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at`,
		txn.ProjectID, txn.InvestorID, txn.PeriodID, txn.Date, txn.Amount.String(), string(txn.Type), txn.Description,
		txn.DayRemaining, txn.DayFromStart, txn.InterestRateID, txn.ParentID, txn.IsSystemGenerated)
	if err := row.Scan(&txn.ID, &txn.CreatedAt); err != nil {
		return Transaction{}, mapInsertError(err)
	}
	return txn, nil
}

// mapInsertError translates foreign-key violations on the transactions
// table into domain sentinels.
func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		return err
	}
	switch pgErr.ConstraintName {
	case "transactions_project_id_fkey":
		return ErrProjectNotFound
	case "transactions_investor_id_fkey":
		return ErrInvestorNotFound
	case "transactions_period_id_fkey":
		return ErrPeriodNotFound
	}
	return err
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	var infra, factor string
	err := row.Scan(&p.ID, &p.Name, &infra, &factor, &p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, err
	}
	if p.TotalInfrastructure, err = decimal.NewFromString(infra); err != nil {
		return Project{}, err
	}
	if p.CorrectionFactor, err = decimal.NewFromString(factor); err != nil {
		return Project{}, err
	}
	return p, nil
}

func scanTransaction(rows pgx.Rows) (Transaction, error) {
	var txn Transaction
	var amount string
	var txType string
	err := rows.Scan(&txn.ID, &txn.ProjectID, &txn.InvestorID, &txn.PeriodID, &txn.Date, &amount, &txType,
		&txn.Description, &txn.DayRemaining, &txn.DayFromStart, &txn.InterestRateID, &txn.ParentID,
		&txn.IsSystemGenerated, &txn.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	txn.Type = TransactionType(txType)
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}
