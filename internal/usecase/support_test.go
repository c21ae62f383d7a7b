package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

type nopMetrics struct{}

func (nopMetrics) RecordTick(string) {}

func (nopMetrics) RecordBarStored(string, string, bool) {}

func (nopMetrics) RecordPipelineDepth(int) {}

func (nopMetrics) RecordScan(string, string, float64) {}

func (nopMetrics) RecordCandidate(string, string) {}

func (nopMetrics) RecordSignalServed(string) {}

func (nopMetrics) RecordExecution(string, bool) {}

func (nopMetrics) RecordGovernorState(string) {}

func (nopMetrics) RecordInferenceLatency(float64) {}

func (nopMetrics) RecordError(string) {}

// stubGovernor returns canned risk state and records accounting calls.
type stubGovernor struct {
	mu          sync.Mutex
	snap        models.RiskSnapshot
	limits      models.RiskLimits
	exposure    map[string]float64
	transitions []models.GovernorTransition
	reserveOK   bool
	applyErr    error
	applied     []*models.ExecutionReport
}

func newStubGovernor() *stubGovernor {
	return &stubGovernor{
		snap:      models.RiskSnapshot{State: models.GovernorActive, Equity: 100_000, SizeMultiplier: 1},
		reserveOK: true,
	}
}

func (g *stubGovernor) Snapshot() models.RiskSnapshot { return g.snap }

func (g *stubGovernor) Limits() models.RiskLimits { return g.limits }

func (g *stubGovernor) ApplyExecution(ctx context.Context, e *models.ExecutionReport) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.applied = append(g.applied, e)
	return g.applyErr
}

func (g *stubGovernor) ReserveExposure(string, string, float64, time.Duration) bool {
	return g.reserveOK
}

func (g *stubGovernor) ExposureBySymbol() map[string]float64 {
	if g.exposure == nil {
		return map[string]float64{}
	}
	return g.exposure
}

func (g *stubGovernor) TransitionsToday() []models.GovernorTransition { return g.transitions }

func (g *stubGovernor) Reset(string) {}

// memBarStore is an in-memory BarStore double.
type memBarStore struct {
	mu        sync.Mutex
	bars      []models.Bar
	last      time.Time
	inserted  [][]*models.Bar
	lastErr   error
	insertErr error
	rangeErr  error
}

func (s *memBarStore) Init(ctx context.Context) error { return nil }

func (s *memBarStore) InsertBars(ctx context.Context, bars []*models.Bar) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, bars)
	return nil
}

func (s *memBarStore) Range(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	return s.bars, s.rangeErr
}

func (s *memBarStore) Latest(ctx context.Context, symbol string, tf models.Timeframe, n int) ([]models.Bar, error) {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	return s.bars[len(s.bars)-n:], nil
}

func (s *memBarStore) LastTimestamp(ctx context.Context, symbol string, tf models.Timeframe) (time.Time, error) {
	return s.last, s.lastErr
}

func (s *memBarStore) Health(ctx context.Context) error { return nil }

func (s *memBarStore) Close() error { return nil }

func (s *memBarStore) insertedBars() []*models.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Bar
	for _, batch := range s.inserted {
		out = append(out, batch...)
	}
	return out
}

// memExecStore is an in-memory ExecutionStore double.
type memExecStore struct {
	mu         sync.Mutex
	execs      []models.ExecutionReport
	byAlpha    map[string][]models.ExecutionReport
	rangeErr   error
	byAlphaErr error
	insertErr  error
	rangeCalls int
}

func (s *memExecStore) Init(ctx context.Context) error { return nil }

func (s *memExecStore) Insert(ctx context.Context, e *models.ExecutionReport) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, *e)
	return nil
}

func (s *memExecStore) Exists(ctx context.Context, ticket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.execs {
		if s.execs[i].Ticket == ticket {
			return true, nil
		}
	}
	return false, nil
}

func (s *memExecStore) Range(ctx context.Context, from, to time.Time) ([]models.ExecutionReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangeCalls++
	return s.execs, s.rangeErr
}

func (s *memExecStore) ByAlpha(ctx context.Context, from, to time.Time) (map[string][]models.ExecutionReport, error) {
	return s.byAlpha, s.byAlphaErr
}

func (s *memExecStore) Close() error { return nil }

type memSignalEventStore struct {
	avgQ    map[string]float64
	avgQErr error
	events  []*models.SignalEvent
}

func (s *memSignalEventStore) Init(ctx context.Context) error { return nil }

func (s *memSignalEventStore) Insert(ctx context.Context, ev *models.SignalEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *memSignalEventStore) AvgQStarByAlpha(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	return s.avgQ, s.avgQErr
}

func (s *memSignalEventStore) Close() error { return nil }
