package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sitefund/sitefund/internal/ledger"
	"github.com/sitefund/sitefund/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRecalcProfits regenerates every accrued-profit row.
	TaskTypeRecalcProfits = "ledger:recalc_profits"
)

// RecalcProfitsPayload scopes a recalculation run. A nil ProjectID means
// every project.
type RecalcProfitsPayload struct {
	ProjectID *int64 `json:"project_id,omitempty"`
}

// NewRecalcProfitsTask constructs an Asynq task for a recalculation run.
func NewRecalcProfitsTask(projectID *int64) (*asynq.Task, error) {
	body, err := json.Marshal(RecalcProfitsPayload{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecalcProfits, body, asynq.Queue(QueueDefault)), nil
}

// Recalculator is the slice of the ledger service the worker needs.
type Recalculator interface {
	Recalculate(ctx context.Context, projectID int64) (ledger.RecalcResult, error)
	CurrentRate(ctx context.Context, projectID int64) (ledger.InterestRate, error)
	RecalculateAllProfits(ctx context.Context, rate ledger.InterestRate, projectID *int64) (ledger.RecalcResult, error)
}

// RecalcHandler processes TaskTypeRecalcProfits tasks.
type RecalcHandler struct {
	svc     Recalculator
	logger  *slog.Logger
	metrics *Metrics
}

// NewRecalcHandler wires the ledger service into an Asynq handler.
func NewRecalcHandler(svc Recalculator, logger *slog.Logger, metrics *Metrics) *RecalcHandler {
	return &RecalcHandler{svc: svc, logger: logger, metrics: metrics}
}

// Handle runs one recalculation. A run already in progress for the same
// scope is not an error worth retrying; the scheduled run will catch up.
func (h *RecalcHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RecalcProfitsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := h.metrics.Track("recalc_profits")
	result, err := h.run(ctx, payload.ProjectID)
	if err != nil {
		if errors.Is(err, ledger.ErrNoActiveRate) || errors.Is(err, shared.ErrRecalcInProgress) {
			h.logger.Warn("recalc skipped", slog.Any("error", err))
			_ = tracker.End(nil)
			return nil
		}
		h.logger.Error("recalc failed", slog.Any("error", err))
		return tracker.End(err)
	}

	h.metrics.AddRows("recalc_profits", "deleted", result.DeletedCount)
	h.metrics.AddRows("recalc_profits", "created", result.NewCount)
	h.logger.Info("recalc finished",
		slog.String("run_id", result.RunID.String()),
		slog.Int64("deleted", result.DeletedCount),
		slog.Int64("created", result.NewCount),
		slog.String("total_profit", result.TotalProfit.String()),
	)
	return tracker.End(nil)
}

func (h *RecalcHandler) run(ctx context.Context, projectID *int64) (ledger.RecalcResult, error) {
	if projectID != nil {
		return h.svc.Recalculate(ctx, *projectID)
	}
	rate, err := h.svc.CurrentRate(ctx, 0)
	if err != nil {
		return ledger.RecalcResult{}, err
	}
	return h.svc.RecalculateAllProfits(ctx, rate, nil)
}
