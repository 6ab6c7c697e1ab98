package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sitefund/sitefund/cmd/sitefund/cli"
	"github.com/sitefund/sitefund/internal/analytics"
	"github.com/sitefund/sitefund/internal/app"
	"github.com/sitefund/sitefund/internal/ledger"
	"github.com/sitefund/sitefund/internal/platform/cache"
	"github.com/sitefund/sitefund/internal/platform/db"
	"github.com/sitefund/sitefund/internal/shared"
)

const usage = `usage: sitefund <command> [flags]

commands:
  record    store a principal deposit or withdrawal
  recalc    delete and regenerate accrued-profit rows
  totals    print aggregated transaction totals
  analyze   print project or investor analysis
  enqueue   push a recalculation onto the job queue
  queue     inspect the background job queue
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "enqueue", "queue":
		os.Exit(runQueueCommand(ctx, cfg, logger, command, args))
	case "record", "recalc", "totals", "analyze":
		os.Exit(runServiceCommand(ctx, cfg, logger, command, args))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", command, usage)
		os.Exit(2)
	}
}

func runServiceCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, command string, args []string) int {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	repo := ledger.NewRepository(pool)
	lock := shared.NewRecalcLock(redisClient, cfg.RecalcLockTTL)
	audit := shared.NewAuditLogger(pool)
	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	ledgerService := ledger.NewService(repo, lock, audit, analyticsCache)
	analyticsService := analytics.NewService(ledgerService, analyticsCache)

	ops := cli.NewOpsCLI(ledgerService, analyticsService)

	switch command {
	case "record":
		fs := flag.NewFlagSet("record", flag.ExitOnError)
		opts := cli.RecordOptions{}
		fs.Int64Var(&opts.ProjectID, "project", 0, "project id")
		fs.Int64Var(&opts.InvestorID, "investor", 0, "investor id")
		fs.Int64Var(&opts.PeriodID, "period", 0, "period id")
		fs.StringVar(&opts.Type, "type", "principal_deposit", "transaction type")
		fs.StringVar(&opts.Amount, "amount", "", "amount")
		fs.StringVar(&opts.Date, "date", "", "transaction date (YYYY-MM-DD)")
		fs.StringVar(&opts.Description, "description", "", "free-form note")
		_ = fs.Parse(args)
		return ops.RecordCommand(ctx, opts)
	case "recalc":
		fs := flag.NewFlagSet("recalc", flag.ExitOnError)
		opts := cli.RecalcOptions{}
		fs.Int64Var(&opts.ProjectID, "project", 0, "project id, 0 for all projects")
		_ = fs.Parse(args)
		return ops.RecalcCommand(ctx, opts)
	case "totals":
		fs := flag.NewFlagSet("totals", flag.ExitOnError)
		opts := cli.TotalsOptions{}
		fs.Int64Var(&opts.ProjectID, "project", 0, "project id")
		fs.Int64Var(&opts.InvestorID, "investor", 0, "restrict to one investor")
		fs.Int64Var(&opts.PeriodID, "period", 0, "restrict to one period")
		_ = fs.Parse(args)
		return ops.TotalsCommand(ctx, opts)
	case "analyze":
		fs := flag.NewFlagSet("analyze", flag.ExitOnError)
		opts := cli.AnalyzeOptions{}
		fs.Int64Var(&opts.ProjectID, "project", 0, "project id")
		fs.Int64Var(&opts.InvestorID, "investor", 0, "investor breakdown instead of project analysis")
		_ = fs.Parse(args)
		return ops.AnalyzeCommand(ctx, opts)
	}
	return 2
}

func runQueueCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, command string, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		logger.Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()

	switch command {
	case "enqueue":
		fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
		projectID := fs.Int64("project", 0, "project id, 0 for all projects")
		_ = fs.Parse(args)
		info, err := jobsCLI.TriggerRecalc(ctx, *projectID)
		if err != nil {
			logger.Error("enqueue recalc", slog.Any("error", err))
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "queue":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	}
	return 2
}
