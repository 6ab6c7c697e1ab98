package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitefund/sitefund/internal/analytics"
	"github.com/sitefund/sitefund/internal/ledger"
)

// LedgerOps is the slice of the ledger service the CLI drives.
type LedgerOps interface {
	RecordTransaction(ctx context.Context, in ledger.RecordTransactionInput) (ledger.Transaction, error)
	Recalculate(ctx context.Context, projectID int64) (ledger.RecalcResult, error)
	CurrentRate(ctx context.Context, projectID int64) (ledger.InterestRate, error)
	RecalculateAllProfits(ctx context.Context, rate ledger.InterestRate, projectID *int64) (ledger.RecalcResult, error)
	TransactionTotals(ctx context.Context, projectID int64, filter ledger.TotalsFilter) (ledger.TransactionTotals, error)
}

// AnalyticsOps is the slice of the analytics service the CLI drives.
type AnalyticsOps interface {
	ComprehensiveAnalysis(ctx context.Context, projectID int64) (analytics.ComprehensiveAnalysis, error)
	InvestorStatistics(ctx context.Context, investorID, projectID int64) (analytics.InvestorStatistics, error)
	InvestorRatios(ctx context.Context, investorID, projectID int64) (analytics.InvestorRatios, error)
	InvestorOwnership(ctx context.Context, investorID, projectID int64) (analytics.InvestorOwnership, error)
}

// OpsCLI exposes ledger operations for manual runs and scripting.
type OpsCLI struct {
	ledger    LedgerOps
	analytics AnalyticsOps
}

// NewOpsCLI constructs the helper around the two services.
func NewOpsCLI(l LedgerOps, a AnalyticsOps) *OpsCLI {
	return &OpsCLI{ledger: l, analytics: a}
}

// RecalcOptions scopes a manual recalculation run.
type RecalcOptions struct {
	ProjectID int64 // 0 means every project
	Stdout    io.Writer
	Stderr    io.Writer
}

// RecalcCommand runs a recalculation and prints the result as JSON.
// Returns a process exit code.
func (c *OpsCLI) RecalcCommand(ctx context.Context, opts RecalcOptions) int {
	stdout, stderr := pickWriters(opts.Stdout, opts.Stderr)

	var result ledger.RecalcResult
	var err error
	if opts.ProjectID > 0 {
		result, err = c.ledger.Recalculate(ctx, opts.ProjectID)
	} else {
		var rate ledger.InterestRate
		rate, err = c.ledger.CurrentRate(ctx, 0)
		if err == nil {
			result, err = c.ledger.RecalculateAllProfits(ctx, rate, nil)
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "recalc: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, result)
}

// AnalyzeOptions selects what to analyze. InvestorID 0 means the whole
// project.
type AnalyzeOptions struct {
	ProjectID  int64
	InvestorID int64
	Stdout     io.Writer
	Stderr     io.Writer
}

// AnalyzeCommand prints the comprehensive project analysis, or the investor
// breakdown when an investor is selected.
func (c *OpsCLI) AnalyzeCommand(ctx context.Context, opts AnalyzeOptions) int {
	stdout, stderr := pickWriters(opts.Stdout, opts.Stderr)
	if opts.ProjectID <= 0 {
		fmt.Fprintln(stderr, "analyze: -project is required")
		return 2
	}

	if opts.InvestorID > 0 {
		stats, err := c.analytics.InvestorStatistics(ctx, opts.InvestorID, opts.ProjectID)
		if err != nil {
			fmt.Fprintf(stderr, "analyze: %v\n", err)
			return 1
		}
		ratios, err := c.analytics.InvestorRatios(ctx, opts.InvestorID, opts.ProjectID)
		if err != nil {
			fmt.Fprintf(stderr, "analyze: %v\n", err)
			return 1
		}
		ownership, err := c.analytics.InvestorOwnership(ctx, opts.InvestorID, opts.ProjectID)
		if err != nil {
			fmt.Fprintf(stderr, "analyze: %v\n", err)
			return 1
		}
		return printJSON(stdout, stderr, map[string]any{
			"statistics": stats,
			"ratios":     ratios,
			"ownership":  ownership,
		})
	}

	analysis, err := c.analytics.ComprehensiveAnalysis(ctx, opts.ProjectID)
	if err != nil {
		fmt.Fprintf(stderr, "analyze: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, analysis)
}

// RecordOptions carries one transaction entry from the command line.
type RecordOptions struct {
	ProjectID   int64
	InvestorID  int64
	PeriodID    int64
	Type        string
	Amount      string
	Date        string // YYYY-MM-DD, today when empty
	Description string
	Stdout      io.Writer
	Stderr      io.Writer
}

// RecordCommand stores a principal transaction and prints the stored row.
func (c *OpsCLI) RecordCommand(ctx context.Context, opts RecordOptions) int {
	stdout, stderr := pickWriters(opts.Stdout, opts.Stderr)

	amount, err := decimal.NewFromString(opts.Amount)
	if err != nil {
		fmt.Fprintf(stderr, "record: invalid amount %q\n", opts.Amount)
		return 2
	}
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if opts.Date != "" {
		date, err = time.Parse("2006-01-02", opts.Date)
		if err != nil {
			fmt.Fprintf(stderr, "record: invalid date %q, want YYYY-MM-DD\n", opts.Date)
			return 2
		}
	}

	txn, err := c.ledger.RecordTransaction(ctx, ledger.RecordTransactionInput{
		ProjectID:   opts.ProjectID,
		InvestorID:  opts.InvestorID,
		PeriodID:    opts.PeriodID,
		Date:        date,
		Amount:      amount,
		Type:        ledger.TransactionType(opts.Type),
		Description: opts.Description,
	})
	if err != nil {
		fmt.Fprintf(stderr, "record: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, txn)
}

// TotalsOptions narrows a totals query from the command line.
type TotalsOptions struct {
	ProjectID  int64
	InvestorID int64
	PeriodID   int64
	Stdout     io.Writer
	Stderr     io.Writer
}

// TotalsCommand prints the aggregated totals for the selected scope.
func (c *OpsCLI) TotalsCommand(ctx context.Context, opts TotalsOptions) int {
	stdout, stderr := pickWriters(opts.Stdout, opts.Stderr)
	if opts.ProjectID <= 0 {
		fmt.Fprintln(stderr, "totals: -project is required")
		return 2
	}

	filter := ledger.TotalsFilter{}
	if opts.InvestorID > 0 {
		filter.InvestorID = &opts.InvestorID
	}
	if opts.PeriodID > 0 {
		filter.PeriodID = &opts.PeriodID
	}
	totals, err := c.ledger.TransactionTotals(ctx, opts.ProjectID, filter)
	if err != nil {
		fmt.Fprintf(stderr, "totals: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, totals)
}

func pickWriters(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode output: %v\n", err)
		return 1
	}
	return 0
}
