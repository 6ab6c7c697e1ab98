package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	projects  map[int64]Project
	investors map[int64]Investor
	periods   map[int64]Period
	rates     []InterestRate
	txns      map[int64]Transaction
	expenses  []Expense
	sales     []Sale
	units     map[int64]Unit
	ownership map[int64][]int64 // investor -> unit ids
	nextID    int64

	// fault injection: error on the nth profit insert inside a recalc run
	failOnInsert int
	insertCalls  int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		projects:  make(map[int64]Project),
		investors: make(map[int64]Investor),
		periods:   make(map[int64]Period),
		txns:      make(map[int64]Transaction),
		units:     make(map[int64]Unit),
		ownership: make(map[int64][]int64),
	}
}

func (r *memoryRepo) nextSeq() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) GetProject(ctx context.Context, id int64) (Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetInvestor(ctx context.Context, id int64) (Investor, error) {
	inv, ok := r.investors[id]
	if !ok {
		return Investor{}, ErrInvestorNotFound
	}
	return inv, nil
}

func (r *memoryRepo) GetPeriod(ctx context.Context, id int64) (Period, error) {
	p, ok := r.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (r *memoryRepo) CurrentRate(ctx context.Context, projectID int64, asOf time.Time) (InterestRate, error) {
	var best *InterestRate
	for i := range r.rates {
		rate := r.rates[i]
		if (projectID != 0 && rate.ProjectID != projectID) || !rate.IsActive || rate.EffectiveDate.After(asOf) {
			continue
		}
		if best == nil || rate.EffectiveDate.After(best.EffectiveDate) ||
			(rate.EffectiveDate.Equal(best.EffectiveDate) && rate.ID > best.ID) {
			best = &r.rates[i]
		}
	}
	if best == nil {
		return InterestRate{}, ErrNoActiveRate
	}
	return *best, nil
}

func (r *memoryRepo) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	txn.ID = r.nextSeq()
	txn.CreatedAt = time.Now()
	r.txns[txn.ID] = txn
	return txn, nil
}

func (r *memoryRepo) TransactionTotals(ctx context.Context, projectID int64, filter TotalsFilter) (TransactionTotals, error) {
	var scoped []Transaction
	for _, t := range r.txns {
		if t.ProjectID == projectID && filter.MatchesFilter(t) {
			scoped = append(scoped, t)
		}
	}
	return SumTotals(scoped), nil
}

func (r *memoryRepo) TransactionCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	ref, ok := r.periods[periodID]
	if !ok {
		return decimal.Zero, ErrPeriodNotFound
	}
	total := decimal.Zero
	for _, t := range r.txns {
		if t.ProjectID != projectID {
			continue
		}
		p, ok := r.periods[t.PeriodID]
		if !ok {
			continue
		}
		if p.Year < ref.Year || (p.Year == ref.Year && p.MonthNumber <= ref.MonthNumber) {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (r *memoryRepo) ExpenseProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range r.expenses {
		if e.ProjectID == projectID {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (r *memoryRepo) ExpensePeriodTotal(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range r.expenses {
		if e.ProjectID == projectID && e.PeriodID != nil && *e.PeriodID == periodID {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (r *memoryRepo) ExpenseCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	ref, ok := r.periods[periodID]
	if !ok {
		return decimal.Zero, ErrPeriodNotFound
	}
	total := decimal.Zero
	for _, e := range r.expenses {
		if e.ProjectID != projectID || e.PeriodID == nil {
			continue
		}
		p := r.periods[*e.PeriodID]
		if p.Year < ref.Year || (p.Year == ref.Year && p.MonthNumber <= ref.MonthNumber) {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (r *memoryRepo) SaleProjectTotal(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, s := range r.sales {
		if s.ProjectID == projectID {
			total = total.Add(s.Amount)
		}
	}
	return total, nil
}

func (r *memoryRepo) SalePeriodTotal(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, s := range r.sales {
		if s.ProjectID == projectID && s.PeriodID != nil && *s.PeriodID == periodID {
			total = total.Add(s.Amount)
		}
	}
	return total, nil
}

func (r *memoryRepo) SaleCumulativeUntil(ctx context.Context, projectID, periodID int64) (decimal.Decimal, error) {
	ref, ok := r.periods[periodID]
	if !ok {
		return decimal.Zero, ErrPeriodNotFound
	}
	total := decimal.Zero
	for _, s := range r.sales {
		if s.ProjectID != projectID || s.PeriodID == nil {
			continue
		}
		p := r.periods[*s.PeriodID]
		if p.Year < ref.Year || (p.Year == ref.Year && p.MonthNumber <= ref.MonthNumber) {
			total = total.Add(s.Amount)
		}
	}
	return total, nil
}

func (r *memoryRepo) ExpenseWeights(ctx context.Context, projectID int64) (ExpenseWeights, error) {
	out := ExpenseWeights{WeightedSum: decimal.Zero, TotalExpense: decimal.Zero}
	for _, e := range r.expenses {
		if e.ProjectID != projectID || e.PeriodID == nil {
			continue
		}
		weight := decimal.NewFromInt(int64(r.periods[*e.PeriodID].Weight))
		out.WeightedSum = out.WeightedSum.Add(e.Amount.Mul(weight))
		out.TotalExpense = out.TotalExpense.Add(e.Amount)
	}
	return out, nil
}

func (r *memoryRepo) UnitStats(ctx context.Context, projectID int64) (UnitStats, error) {
	stats := UnitStats{TotalArea: decimal.Zero, TotalPrice: decimal.Zero}
	for _, u := range r.units {
		if u.ProjectID == projectID {
			stats.TotalUnits++
			stats.TotalArea = stats.TotalArea.Add(u.Area)
			stats.TotalPrice = stats.TotalPrice.Add(u.TotalPrice)
		}
	}
	return stats, nil
}

func (r *memoryRepo) InvestorUnits(ctx context.Context, investorID, projectID int64) ([]Unit, error) {
	var units []Unit
	for _, id := range r.ownership[investorID] {
		if u, ok := r.units[id]; ok && u.ProjectID == projectID {
			units = append(units, u)
		}
	}
	return units, nil
}

func (r *memoryRepo) InvestorsWithTransactions(ctx context.Context, projectID int64) ([]Investor, error) {
	seen := make(map[int64]bool)
	var investors []Investor
	for _, t := range r.txns {
		if t.ProjectID == projectID && !seen[t.InvestorID] {
			seen[t.InvestorID] = true
			investors = append(investors, r.investors[t.InvestorID])
		}
	}
	return investors, nil
}

func (r *memoryRepo) InvestorParticipation(ctx context.Context, projectID int64) (ParticipationCounts, error) {
	investors, _ := r.InvestorsWithTransactions(ctx, projectID)
	counts := ParticipationCounts{Total: int64(len(investors))}
	for _, inv := range investors {
		switch inv.Participation {
		case ParticipationOwner:
			counts.Owners++
		case ParticipationInvestor:
			counts.Investors++
		}
	}
	return counts, nil
}

func (r *memoryRepo) ActiveDays(ctx context.Context, projectID int64) (int64, error) {
	days := make(map[string]bool)
	for _, t := range r.txns {
		if t.ProjectID == projectID {
			days[t.Date.Format("2006-01-02")] = true
		}
	}
	return int64(len(days)), nil
}

// WithTx snapshots the ledger so an error restores the exact pre-call state.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Transaction, len(r.txns))
	for id, t := range r.txns {
		snapshot[id] = t
	}
	seq := r.nextID
	r.insertCalls = 0
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.txns = snapshot
		r.nextID = seq
		return err
	}
	return nil
}

func (tx *memoryTx) DeleteGeneratedProfits(ctx context.Context, projectID *int64) (int64, error) {
	var deleted int64
	for id, t := range tx.repo.txns {
		if t.Type != TypeProfitAccrual || !t.IsSystemGenerated {
			continue
		}
		if projectID != nil && t.ProjectID != *projectID {
			continue
		}
		delete(tx.repo.txns, id)
		deleted++
	}
	return deleted, nil
}

func (tx *memoryTx) ListPrincipalTransactions(ctx context.Context, projectID *int64) ([]Transaction, error) {
	var out []Transaction
	for id := int64(1); id <= tx.repo.nextID; id++ {
		t, ok := tx.repo.txns[id]
		if !ok || !t.Type.IsPrincipal() {
			continue
		}
		if projectID != nil && t.ProjectID != *projectID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	tx.repo.insertCalls++
	if tx.repo.failOnInsert > 0 && tx.repo.insertCalls == tx.repo.failOnInsert {
		return Transaction{}, fmt.Errorf("ledger: simulated insert failure")
	}
	return tx.repo.InsertTransaction(ctx, txn)
}

func (tx *memoryTx) GetProject(ctx context.Context, id int64) (Project, error) {
	return tx.repo.GetProject(ctx, id)
}

func seedProject(repo *memoryRepo) (Project, Investor, Period) {
	project := Project{
		ID:                  1,
		Name:                "Tower A",
		TotalInfrastructure: decimal.NewFromInt(2000),
		CorrectionFactor:    decimal.NewFromInt(1),
		StartDate:           date(2024, time.January, 1),
		EndDate:             date(2024, time.April, 10), // 100-day project
	}
	investor := Investor{ID: 1, ProjectID: 1, FirstName: "Sara", LastName: "Karimi", Participation: ParticipationInvestor}
	period := Period{ID: 1, ProjectID: 1, Label: "1402-10", Year: 1402, MonthNumber: 10, Weight: 1}
	repo.projects[project.ID] = project
	repo.investors[investor.ID] = investor
	repo.periods[period.ID] = period
	return project, investor, period
}

func depositInput(amount int64) RecordTransactionInput {
	return RecordTransactionInput{
		ProjectID:  1,
		InvestorID: 1,
		PeriodID:   1,
		Date:       date(2024, time.January, 1),
		Amount:     decimal.NewFromInt(amount),
		Type:       TypePrincipalDeposit,
	}
}

func TestRecalculateEndToEnd(t *testing.T) {
	repo := newMemoryRepo()
	seedProject(repo)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.RecordTransaction(context.Background(), depositInput(1_000_000))
	require.NoError(t, err)

	projectID := int64(1)
	first, err := svc.RecalculateAllProfits(context.Background(),
		InterestRate{ID: 1, ProjectID: 1, Rate: decimal.RequireFromString("0.0005")}, &projectID)
	require.NoError(t, err)
	require.Equal(t, int64(0), first.DeletedCount)
	require.Equal(t, int64(1), first.NewCount)
	require.Equal(t, int64(1), first.TotalAffected)
	require.True(t, first.TotalProfit.Equal(decimal.NewFromInt(50_000)), "got %s", first.TotalProfit)

	before, err := svc.ProjectTotals(context.Background(), 1)
	require.NoError(t, err)

	second, err := svc.RecalculateAllProfits(context.Background(),
		InterestRate{ID: 2, ProjectID: 1, Rate: decimal.RequireFromString("0.0007")}, &projectID)
	require.NoError(t, err)
	require.Equal(t, int64(1), second.DeletedCount)
	require.Equal(t, int64(1), second.NewCount)
	require.Equal(t, int64(2), second.TotalAffected)
	require.True(t, second.TotalProfit.Equal(decimal.NewFromInt(70_000)), "got %s", second.TotalProfit)

	after, err := svc.ProjectTotals(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, after.NetCapital.Equal(before.NetCapital), "net capital must not change")
	require.True(t, after.Profits.Sub(before.Profits).Equal(decimal.NewFromInt(20_000)))
}

func TestRecalculateIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	seedProject(repo)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.RecordTransaction(context.Background(), depositInput(1_000_000))
	require.NoError(t, err)
	withdrawal := depositInput(300_000)
	withdrawal.Type = TypePrincipalWithdrawal
	withdrawal.Date = date(2024, time.February, 10)
	_, err = svc.RecordTransaction(context.Background(), withdrawal)
	require.NoError(t, err)

	projectID := int64(1)
	rate := InterestRate{ID: 1, ProjectID: 1, Rate: decimal.RequireFromString("0.0004")}

	first, err := svc.RecalculateAllProfits(context.Background(), rate, &projectID)
	require.NoError(t, err)
	second, err := svc.RecalculateAllProfits(context.Background(), rate, &projectID)
	require.NoError(t, err)

	require.Equal(t, first.NewCount, second.NewCount)
	require.True(t, first.TotalProfit.Equal(second.TotalProfit))

	totals, err := svc.ProjectTotals(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, totals.Profits.Equal(second.TotalProfit))
}

func TestRecalculateAtomicOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	seedProject(repo)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.RecordTransaction(context.Background(), depositInput(1_000_000))
	require.NoError(t, err)
	_, err = svc.RecordTransaction(context.Background(), depositInput(500_000))
	require.NoError(t, err)

	projectID := int64(1)
	rate := InterestRate{ID: 1, ProjectID: 1, Rate: decimal.RequireFromString("0.0005")}
	_, err = svc.RecalculateAllProfits(context.Background(), rate, &projectID)
	require.NoError(t, err)

	before, err := svc.ProjectTotals(context.Background(), 1)
	require.NoError(t, err)

	repo.failOnInsert = 2 // second profit insert of the next run blows up
	_, err = svc.RecalculateAllProfits(context.Background(),
		InterestRate{ID: 2, ProjectID: 1, Rate: decimal.RequireFromString("0.0009")}, &projectID)
	require.Error(t, err)

	after, err := svc.ProjectTotals(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, after.Profits.Equal(before.Profits), "profit rows must equal pre-call state")
	require.Equal(t, before.TotalTransactions, after.TotalTransactions)
}

func TestTotalsInvariantAcrossFilters(t *testing.T) {
	repo := newMemoryRepo()
	_, investor, _ := seedProject(repo)
	repo.investors[2] = Investor{ID: 2, ProjectID: 1, FirstName: "Omid", LastName: "Nazari", Participation: ParticipationOwner}
	svc := NewService(repo, nil, nil, nil)

	inputs := []RecordTransactionInput{
		depositInput(1_000_000),
		{ProjectID: 1, InvestorID: 2, PeriodID: 1, Date: date(2024, time.January, 15), Amount: decimal.NewFromInt(400_000), Type: TypeLoanDeposit},
		{ProjectID: 1, InvestorID: 1, PeriodID: 1, Date: date(2024, time.February, 1), Amount: decimal.NewFromInt(250_000), Type: TypePrincipalWithdrawal},
	}
	for _, in := range inputs {
		_, err := svc.RecordTransaction(context.Background(), in)
		require.NoError(t, err)
	}
	projectID := int64(1)
	_, err := svc.RecalculateAllProfits(context.Background(),
		InterestRate{ID: 1, ProjectID: 1, Rate: decimal.RequireFromString("0.0005")}, &projectID)
	require.NoError(t, err)

	from := date(2024, time.January, 10)
	filters := []TotalsFilter{
		{},
		{InvestorID: &investor.ID},
		{DateFrom: &from},
		{PeriodID: &[]int64{1}[0]},
	}
	for _, f := range filters {
		totals, err := svc.TransactionTotals(context.Background(), 1, f)
		require.NoError(t, err)
		require.True(t, totals.NetCapital.Equal(totals.Deposits.Add(totals.Withdrawals)),
			"net capital invariant broken for filter %+v", f)
	}
}

func TestTransactionCumulativeUntil(t *testing.T) {
	repo := newMemoryRepo()
	seedProject(repo)
	repo.periods[2] = Period{ID: 2, ProjectID: 1, Label: "1402-11", Year: 1402, MonthNumber: 11, Weight: 2}
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.RecordTransaction(context.Background(), depositInput(1_000_000))
	require.NoError(t, err)
	_, err = svc.RecordTransaction(context.Background(), RecordTransactionInput{
		ProjectID:  1,
		InvestorID: 1,
		PeriodID:   2,
		Date:       date(2024, time.February, 1),
		Amount:     decimal.NewFromInt(300_000),
		Type:       TypePrincipalWithdrawal,
	})
	require.NoError(t, err)

	first, err := svc.TransactionCumulativeUntil(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, first.Equal(decimal.NewFromInt(1_000_000)), "got %s", first)

	second, err := svc.TransactionCumulativeUntil(context.Background(), 1, 2)
	require.NoError(t, err)
	require.True(t, second.Equal(decimal.NewFromInt(700_000)), "got %s", second)

	_, err = svc.TransactionCumulativeUntil(context.Background(), 1, 99)
	require.ErrorIs(t, err, ErrPeriodNotFound)
}

func TestRecordTransactionValidation(t *testing.T) {
	repo := newMemoryRepo()
	seedProject(repo)
	svc := NewService(repo, nil, nil, nil)

	zero := depositInput(0)
	_, err := svc.RecordTransaction(context.Background(), zero)
	require.ErrorIs(t, err, ErrInvalidAmount)

	negDeposit := depositInput(-10)
	_, err = svc.RecordTransaction(context.Background(), negDeposit)
	require.ErrorIs(t, err, ErrInvalidAmount)

	profit := depositInput(10)
	profit.Type = TypeProfitAccrual
	_, err = svc.RecordTransaction(context.Background(), profit)
	require.Error(t, err)

	withdrawal := depositInput(150_000)
	withdrawal.Type = TypePrincipalWithdrawal
	stored, err := svc.RecordTransaction(context.Background(), withdrawal)
	require.NoError(t, err)
	require.True(t, stored.Amount.Equal(decimal.NewFromInt(-150_000)), "withdrawals are stored negative")
	require.Equal(t, 100, stored.DayRemaining)
}

func TestRecalculateWithoutActiveRate(t *testing.T) {
	repo := newMemoryRepo()
	seedProject(repo)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Recalculate(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoActiveRate)
}

func TestCurrentRatePicksLatestEffective(t *testing.T) {
	repo := newMemoryRepo()
	seedProject(repo)
	repo.rates = []InterestRate{
		{ID: 1, ProjectID: 1, Rate: decimal.RequireFromString("0.0003"), EffectiveDate: date(2024, time.January, 1), IsActive: true},
		{ID: 2, ProjectID: 1, Rate: decimal.RequireFromString("0.0005"), EffectiveDate: date(2024, time.February, 1), IsActive: true},
		{ID: 3, ProjectID: 1, Rate: decimal.RequireFromString("0.0009"), EffectiveDate: date(2030, time.January, 1), IsActive: true},
		{ID: 4, ProjectID: 1, Rate: decimal.RequireFromString("0.0008"), EffectiveDate: date(2024, time.March, 1), IsActive: false},
	}
	svc := NewService(repo, nil, nil, nil)
	svc.WithNow(func() time.Time { return date(2024, time.March, 15) })

	rate, err := svc.CurrentRate(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), rate.ID, "future and inactive rates must be skipped")
}

func TestRecalculateSkipsZeroAccruals(t *testing.T) {
	repo := newMemoryRepo()
	seedProject(repo)
	svc := NewService(repo, nil, nil, nil)

	// Deposit on the very last project day earns nothing.
	last := depositInput(800_000)
	last.Date = date(2024, time.April, 10)
	_, err := svc.RecordTransaction(context.Background(), last)
	require.NoError(t, err)

	projectID := int64(1)
	res, err := svc.RecalculateAllProfits(context.Background(),
		InterestRate{ID: 1, ProjectID: 1, Rate: decimal.RequireFromString("0.0005")}, &projectID)
	require.NoError(t, err)
	require.Equal(t, int64(0), res.NewCount)
	require.True(t, res.TotalProfit.IsZero())
}

type stubLock struct {
	err      error
	acquired int
}

func (l *stubLock) Acquire(ctx context.Context, projectID int64) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() {}, nil
}

func TestRecalculateRejectedWhileLocked(t *testing.T) {
	repo := newMemoryRepo()
	seedProject(repo)
	lock := &stubLock{err: errors.New("recalculation already in progress")}
	svc := NewService(repo, lock, nil, nil)

	projectID := int64(1)
	_, err := svc.RecalculateAllProfits(context.Background(),
		InterestRate{ID: 1, ProjectID: 1, Rate: decimal.RequireFromString("0.0005")}, &projectID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "in progress")
}
