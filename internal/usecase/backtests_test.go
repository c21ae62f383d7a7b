package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/backtest"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/inference"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/scoring"
)

type memBacktestStore struct {
	mu     sync.Mutex
	runs   map[string]*models.BacktestRun
	putErr error
	puts   int
}

func (s *memBacktestStore) Put(ctx context.Context, run *models.BacktestRun) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = map[string]*models.BacktestRun{}
	}
	cp := *run
	s.runs[run.ID] = &cp
	s.puts++
	return nil
}

func (s *memBacktestStore) Get(ctx context.Context, id string) (*models.BacktestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func validBacktestRequest() *models.BacktestSubmitRequest {
	return &models.BacktestSubmitRequest{
		Symbol: "eurusd",
		TF:     "M5",
		From:   "2025-03-03T00:00:00Z",
		To:     "2025-03-05T00:00:00Z",
		Seed:   7,
	}
}

func TestBacktestSubmitPersistsAndEnqueues(t *testing.T) {
	store := &memBacktestStore{}
	q := &fakeQueue{}
	uc := NewBacktestsUseCase(store, q, testLogger(t))

	run, err := uc.Submit(context.Background(), validBacktestRequest())

	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.BacktestPending, run.Status)
	assert.Equal(t, "EURUSD", run.Spec.Symbol)
	assert.Equal(t, models.TFM5, run.Spec.Timeframe)
	assert.Equal(t, int64(7), run.Spec.Seed)

	stored, err := store.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BacktestPending, stored.Status)
	assert.Equal(t, []string{TypeBacktestRun}, q.types)
}

func TestBacktestSubmitRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *models.BacktestSubmitRequest)
	}{
		{"bad timeframe", func(r *models.BacktestSubmitRequest) { r.TF = "M2" }},
		{"bad from", func(r *models.BacktestSubmitRequest) { r.From = "last tuesday" }},
		{"bad to", func(r *models.BacktestSubmitRequest) { r.To = "" }},
		{"from equals to", func(r *models.BacktestSubmitRequest) { r.To = r.From }},
		{"from after to", func(r *models.BacktestSubmitRequest) {
			r.From = "2025-03-06T00:00:00Z"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := &fakeQueue{}
			uc := NewBacktestsUseCase(&memBacktestStore{}, q, testLogger(t))
			req := validBacktestRequest()
			tc.mutate(req)

			_, err := uc.Submit(context.Background(), req)

			require.Error(t, err)
			assert.Empty(t, q.types)
		})
	}
}

func TestBacktestSubmitStoreDownIsServiceFault(t *testing.T) {
	store := &memBacktestStore{putErr: errors.New("redis down")}
	uc := NewBacktestsUseCase(store, &fakeQueue{}, testLogger(t))

	_, err := uc.Submit(context.Background(), validBacktestRequest())

	assert.ErrorIs(t, err, ErrQueueUnavailable)
}

func TestBacktestSubmitQueueDownIsServiceFault(t *testing.T) {
	q := &fakeQueue{err: errors.New("connection refused")}
	uc := NewBacktestsUseCase(&memBacktestStore{}, q, testLogger(t))

	_, err := uc.Submit(context.Background(), validBacktestRequest())

	assert.ErrorIs(t, err, ErrQueueUnavailable)
}

func TestBacktestGetRequiresID(t *testing.T) {
	uc := NewBacktestsUseCase(&memBacktestStore{}, &fakeQueue{}, testLogger(t))

	_, err := uc.Get(context.Background(), "")

	assert.Error(t, err)
}

func TestBacktestGetUnknownRun(t *testing.T) {
	uc := NewBacktestsUseCase(&memBacktestStore{}, &fakeQueue{}, testLogger(t))

	_, err := uc.Get(context.Background(), "nope")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func walkForwardBars(n int) []models.Bar {
	t0 := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		step := 0.05
		if i%5 == 4 {
			step = -0.08
		}
		price += step
		bars[i] = models.Bar{
			Symbol:    "EURUSD",
			Timeframe: models.TFM5,
			Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      math.Max(open, price) + 0.1,
			Low:       math.Min(open, price) - 0.1,
			Close:     price,
			Volume:    150,
		}
	}
	return bars
}

func testBacktestEngine() *backtest.Engine {
	cfg := backtest.EngineConfig{
		TrainFrac:     0.7,
		CostPerUnit:   0.0001,
		MaxHoldBars:   10,
		StopATRMult:   1.0,
		TargetATRMult: 2.0,
		Gates:         backtest.Gates{MinTrades: 1},
	}
	trainCfg := inference.TrainerConfig{
		LearningRate:   0.05,
		Epochs:         40,
		BatchSize:      16,
		BoostRounds:    10,
		BoostShrinkage: 0.3,
		LogitWeight:    1,
		BoostWeight:    1,
		PriorWeight:    1,
		Seed:           7,
	}
	return backtest.NewEngine(cfg, trainCfg, features.NewExtractor(), scoring.NewSlopeRegimeDetector())
}

func pendingRun(id string) *models.BacktestRun {
	return &models.BacktestRun{
		ID: id,
		Spec: models.BacktestSpec{
			Symbol:    "EURUSD",
			Timeframe: models.TFM5,
			From:      time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
			To:        time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
			Seed:      7,
		},
		Status:      models.BacktestPending,
		SubmittedAt: time.Now().UTC(),
	}
}

func TestBacktestJobCompletesPendingRun(t *testing.T) {
	store := &memBacktestStore{}
	run := pendingRun("run-1")
	require.NoError(t, store.Put(context.Background(), run))
	bars := &memBarStore{bars: walkForwardBars(260)}
	j := NewBacktestJob(store, bars, testBacktestEngine(), nopMetrics{}, testLogger(t))

	require.NoError(t, j.Handle(context.Background(), run))

	final, err := store.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.BacktestCompleted, final.Status)
	require.NotNil(t, final.Report)
	assert.GreaterOrEqual(t, final.Report.Trades, 1)
	assert.False(t, final.FinishedAt.IsZero())
	assert.Empty(t, final.Error)
}

func TestBacktestJobMarksFailedRun(t *testing.T) {
	store := &memBacktestStore{}
	run := pendingRun("run-2")
	require.NoError(t, store.Put(context.Background(), run))
	bars := &memBarStore{bars: walkForwardBars(30)}
	j := NewBacktestJob(store, bars, testBacktestEngine(), nopMetrics{}, testLogger(t))

	require.NoError(t, j.Handle(context.Background(), run))

	final, err := store.Get(context.Background(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, models.BacktestFailed, final.Status)
	assert.NotEmpty(t, final.Error)
	assert.Nil(t, final.Report)
}

func TestBacktestJobIgnoresReplayedRun(t *testing.T) {
	store := &memBacktestStore{}
	run := pendingRun("run-3")
	run.Status = models.BacktestCompleted
	require.NoError(t, store.Put(context.Background(), run))
	putsBefore := store.puts
	j := NewBacktestJob(store, &memBarStore{}, testBacktestEngine(), nopMetrics{}, testLogger(t))

	require.NoError(t, j.Handle(context.Background(), run))

	assert.Equal(t, putsBefore, store.puts)
}

func TestBacktestJobUnknownRunErrors(t *testing.T) {
	j := NewBacktestJob(&memBacktestStore{}, &memBarStore{}, testBacktestEngine(), nopMetrics{}, testLogger(t))

	assert.Error(t, j.Handle(context.Background(), pendingRun("ghost")))
}
