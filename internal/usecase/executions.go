package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/queue"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/util"
)

// TypeExecutionReport is the queue message type for execution intake.
const TypeExecutionReport = "execution_report"

// ErrQueueUnavailable marks an intake failure that is the service's
// fault, not the caller's.
var ErrQueueUnavailable = errors.New("processing queue unavailable")

// ExecutionQueue is the enqueue side of the processing queue.
type ExecutionQueue interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// AnalyticsInvalidator drops cached analytics snapshots after state
// changes.
type AnalyticsInvalidator interface {
	Invalidate(ctx context.Context)
}

// ExecutionsUseCase accepts execution reports from the execution layer.
// Submit validates and acknowledges; the heavy work happens in the
// queue worker so the EA's request path stays fast.
type ExecutionsUseCase struct {
	q      ExecutionQueue
	logger *logger.Logger
}

func NewExecutionsUseCase(q ExecutionQueue, l *logger.Logger) *ExecutionsUseCase {
	return &ExecutionsUseCase{q: q, logger: l}
}

// Submit parses and validates the report, then enqueues it for
// processing. Returns the parsed report so the handler can echo the
// ticket back.
func (uc *ExecutionsUseCase) Submit(ctx context.Context, req *models.ExecutionSubmitRequest) (*models.ExecutionReport, error) {
	rep, err := parseExecutionRequest(req)
	if err != nil {
		return nil, err
	}
	if err := uc.q.Enqueue(ctx, TypeExecutionReport, rep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	uc.logger.Info("execution accepted",
		logger.String("ticket", rep.Ticket),
		logger.String("symbol", rep.Symbol),
		logger.String("direction", string(rep.Direction)),
	)
	return rep, nil
}

func parseExecutionRequest(req *models.ExecutionSubmitRequest) (*models.ExecutionReport, error) {
	if req == nil {
		return nil, fmt.Errorf("empty request")
	}
	tf, err := models.ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}
	entryTime, ok := util.ParseTime(req.EntryTime)
	if !ok {
		return nil, fmt.Errorf("entry_time: unparseable %q", req.EntryTime)
	}
	exitTime, ok := util.ParseTime(req.ExitTime)
	if !ok {
		return nil, fmt.Errorf("exit_time: unparseable %q", req.ExitTime)
	}
	if exitTime.Before(entryTime) {
		return nil, fmt.Errorf("exit_time before entry_time")
	}
	profit, err := decimal.NewFromString(req.Profit)
	if err != nil {
		return nil, fmt.Errorf("profit: %w", err)
	}
	commission, err := parseMoneyDefault(req.Commission)
	if err != nil {
		return nil, fmt.Errorf("commission: %w", err)
	}
	swap, err := parseMoneyDefault(req.Swap)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	return &models.ExecutionReport{
		Ticket:     req.Ticket,
		SignalID:   req.SignalID,
		Alpha:      req.Alpha,
		Symbol:     util.NormalizeSymbol(req.Symbol),
		Timeframe:  tf,
		Direction:  models.Direction(req.Direction),
		Lots:       req.Lots,
		EntryPrice: req.EntryPrice,
		ExitPrice:  req.ExitPrice,
		EntryTime:  entryTime.UTC(),
		ExitTime:   exitTime.UTC(),
		Profit:     profit,
		Commission: commission,
		Swap:       swap,
	}, nil
}

func parseMoneyDefault(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// ExecutionJob is the queue worker side of execution intake: persist,
// account, audit, invalidate. Replayed tickets are acknowledged without
// being re-applied.
type ExecutionJob struct {
	store      domrepo.ExecutionStore
	governor   domsvc.Governor
	pub        domrepo.Publisher
	auditTopic string
	analytics  AnalyticsInvalidator
	metrics    domrepo.Metrics
	logger     *logger.Logger
}

func NewExecutionJob(
	store domrepo.ExecutionStore,
	governor domsvc.Governor,
	pub domrepo.Publisher,
	auditTopic string,
	analytics AnalyticsInvalidator,
	metrics domrepo.Metrics,
	l *logger.Logger,
) *ExecutionJob {
	return &ExecutionJob{
		store:      store,
		governor:   governor,
		pub:        pub,
		auditTopic: auditTopic,
		analytics:  analytics,
		metrics:    metrics,
		logger:     l,
	}
}

func (j *ExecutionJob) Name() string { return "execution-processor" }
func (j *ExecutionJob) Type() string { return TypeExecutionReport }

func (j *ExecutionJob) Handle(ctx context.Context, payload interface{}) error {
	rep, err := queue.ParsePayload[models.ExecutionReport](payload)
	if err != nil {
		j.metrics.RecordError("execution_payload")
		return err
	}

	exists, err := j.store.Exists(ctx, rep.Ticket)
	if err != nil {
		return fmt.Errorf("ticket lookup: %w", err)
	}
	if exists {
		j.logger.Info("duplicate execution ticket ignored", logger.String("ticket", rep.Ticket))
		return nil
	}

	start := time.Now()
	if err := j.store.Insert(ctx, rep); err != nil {
		j.metrics.RecordError("execution_store")
		return fmt.Errorf("store execution: %w", err)
	}

	// The report is persisted past this point; accounting errors are
	// logged instead of retried so the ticket is not double-applied.
	if err := j.governor.ApplyExecution(ctx, rep); err != nil {
		j.metrics.RecordError("execution_governor")
		j.logger.Error("governor accounting failed",
			logger.String("ticket", rep.Ticket),
			logger.Error(err),
		)
	}
	j.metrics.RecordExecution(rep.Symbol, rep.Win())

	if j.pub != nil && j.auditTopic != "" {
		if err := j.pub.PublishMessage(ctx, j.auditTopic, rep); err != nil {
			j.metrics.RecordError("execution_audit")
		}
	}
	if j.analytics != nil {
		j.analytics.Invalidate(ctx)
	}

	j.logger.Info("execution processed",
		logger.String("ticket", rep.Ticket),
		logger.String("symbol", rep.Symbol),
		logger.String("net", rep.NetProfit().String()),
		logger.Bool("win", rep.Win()),
		logger.Duration("took_ms", time.Since(start)),
	)
	return nil
}

var _ queue.Job = (*ExecutionJob)(nil)
