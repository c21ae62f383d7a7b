package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/backtest"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/queue"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/util"
)

// TypeBacktestRun is the queue message type for backtest execution.
const TypeBacktestRun = "backtest_run"

// BacktestStore persists asynchronous run state.
type BacktestStore interface {
	Put(ctx context.Context, run *models.BacktestRun) error
	Get(ctx context.Context, id string) (*models.BacktestRun, error)
}

// BacktestsUseCase accepts walk-forward runs and serves their state.
// Runs execute on the queue worker; submission returns the pending run
// immediately.
type BacktestsUseCase struct {
	store  BacktestStore
	q      ExecutionQueue
	logger *logger.Logger
}

func NewBacktestsUseCase(store BacktestStore, q ExecutionQueue, l *logger.Logger) *BacktestsUseCase {
	return &BacktestsUseCase{store: store, q: q, logger: l}
}

func (uc *BacktestsUseCase) Submit(ctx context.Context, req *models.BacktestSubmitRequest) (*models.BacktestRun, error) {
	spec, err := parseBacktestRequest(req)
	if err != nil {
		return nil, err
	}
	run := &models.BacktestRun{
		ID:          uuid.NewString(),
		Spec:        *spec,
		Status:      models.BacktestPending,
		SubmittedAt: time.Now().UTC(),
	}
	if err := uc.store.Put(ctx, run); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if err := uc.q.Enqueue(ctx, TypeBacktestRun, run); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	uc.logger.Info("backtest submitted",
		logger.String("id", run.ID),
		logger.String("symbol", spec.Symbol),
		logger.String("tf", spec.Timeframe.String()),
	)
	return run, nil
}

func (uc *BacktestsUseCase) Get(ctx context.Context, id string) (*models.BacktestRun, error) {
	if id == "" {
		return nil, fmt.Errorf("run id required")
	}
	return uc.store.Get(ctx, id)
}

func parseBacktestRequest(req *models.BacktestSubmitRequest) (*models.BacktestSpec, error) {
	if req == nil {
		return nil, fmt.Errorf("empty request")
	}
	tf, err := models.ParseTimeframe(req.TF)
	if err != nil {
		return nil, err
	}
	from, ok := util.ParseTime(req.From)
	if !ok {
		return nil, fmt.Errorf("from: unparseable %q", req.From)
	}
	to, ok := util.ParseTime(req.To)
	if !ok {
		return nil, fmt.Errorf("to: unparseable %q", req.To)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("from must precede to")
	}
	return &models.BacktestSpec{
		Symbol:    util.NormalizeSymbol(req.Symbol),
		Timeframe: tf,
		From:      from.UTC(),
		To:        to.UTC(),
		Seed:      req.Seed,
	}, nil
}

// BacktestJob runs queued walk-forward backtests.
type BacktestJob struct {
	store   BacktestStore
	bars    domrepo.BarStore
	engine  *backtest.Engine
	metrics domrepo.Metrics
	logger  *logger.Logger
}

func NewBacktestJob(store BacktestStore, bars domrepo.BarStore, engine *backtest.Engine, metrics domrepo.Metrics, l *logger.Logger) *BacktestJob {
	return &BacktestJob{store: store, bars: bars, engine: engine, metrics: metrics, logger: l}
}

func (j *BacktestJob) Name() string { return "backtest-runner" }
func (j *BacktestJob) Type() string { return TypeBacktestRun }

func (j *BacktestJob) Handle(ctx context.Context, payload interface{}) error {
	queued, err := queue.ParsePayload[models.BacktestRun](payload)
	if err != nil {
		j.metrics.RecordError("backtest_payload")
		return err
	}
	run, err := j.store.Get(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", queued.ID, err)
	}
	if run.Status != models.BacktestPending {
		// replayed message; the run already progressed
		return nil
	}

	run.Status = models.BacktestRunning
	if err := j.store.Put(ctx, run); err != nil {
		return err
	}

	start := time.Now()
	report, rerr := j.run(ctx, &run.Spec)
	run.FinishedAt = time.Now().UTC()
	if rerr != nil {
		run.Status = models.BacktestFailed
		run.Error = rerr.Error()
		j.metrics.RecordError("backtest_run")
		j.logger.Warn("backtest failed",
			logger.String("id", run.ID),
			logger.Error(rerr),
		)
	} else {
		run.Status = models.BacktestCompleted
		run.Report = report
		j.logger.Info("backtest completed",
			logger.String("id", run.ID),
			logger.Int("trades", report.Trades),
			logger.Float64("return", report.Return),
			logger.Bool("promoted", report.Promoted),
			logger.Duration("took_ms", time.Since(start)),
		)
	}
	return j.store.Put(ctx, run)
}

func (j *BacktestJob) run(ctx context.Context, spec *models.BacktestSpec) (*models.BacktestReport, error) {
	bars, err := j.bars.Range(ctx, spec.Symbol, spec.Timeframe, spec.From, spec.To, 0)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	return j.engine.Run(ctx, *spec, bars)
}

var _ queue.Job = (*BacktestJob)(nil)
