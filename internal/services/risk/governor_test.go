package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	icache "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/cache"
)

func testLimits() models.RiskLimits {
	return models.RiskLimits{
		DailyLossLimit: 0.05,
		SoftLimitFrac:  0.5,
		MaxDrawdown:    0.10,
		ExposureCap:    0.3,
	}
}

// newTestGovernor seeds a 100k account on 2025-06-02 noon UTC and hands
// back the clock pointer so tests can cross midnight.
func newTestGovernor(opts ...GovernorOption) (*EquityGovernor, *time.Time) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	opts = append(opts, WithClock(func() time.Time { return now }))
	g := NewEquityGovernor(GovernorConfig{StartingEquity: 100_000, Limits: testLimits()}, opts...)
	return g, &now
}

func execReport(signalID string, profit float64, exit time.Time) *models.ExecutionReport {
	return &models.ExecutionReport{
		Ticket:   "T-" + signalID,
		SignalID: signalID,
		Symbol:   "EURUSD",
		ExitTime: exit,
		Profit:   decimal.NewFromFloat(profit),
	}
}

func TestGovernorStartsActive(t *testing.T) {
	g, now := newTestGovernor()

	snap := g.Snapshot()

	assert.Equal(t, models.GovernorActive, snap.State)
	assert.Equal(t, 100_000.0, snap.Equity)
	assert.Equal(t, 100_000.0, snap.PeakEquity)
	assert.Equal(t, 1.0, snap.SizeMultiplier)
	assert.Zero(t, snap.DailyLossUsed)
	assert.Zero(t, snap.Drawdown)
	assert.Equal(t, now.Format("2006-01-02"), snap.Day)
}

func TestGovernorSoftLimitTransition(t *testing.T) {
	g, now := newTestGovernor()

	// 3000 loss against a 5000 daily budget crosses the 50% soft line.
	require.NoError(t, g.ApplyExecution(context.Background(), execReport("s1", -3000, *now)))

	snap := g.Snapshot()
	assert.Equal(t, models.GovernorSoftLimit, snap.State)
	assert.True(t, snap.State.Tradable())
	assert.Equal(t, 0.5, snap.SizeMultiplier)
	assert.InDelta(t, 0.6, snap.DailyLossUsed, 1e-9)
	assert.Equal(t, 97_000.0, snap.Equity)

	trs := g.TransitionsToday()
	require.Len(t, trs, 1)
	assert.Equal(t, models.GovernorActive, trs[0].From)
	assert.Equal(t, models.GovernorSoftLimit, trs[0].To)
}

func TestGovernorSuspendsAtDailyLimit(t *testing.T) {
	g, now := newTestGovernor()

	require.NoError(t, g.ApplyExecution(context.Background(), execReport("s1", -3000, *now)))
	require.NoError(t, g.ApplyExecution(context.Background(), execReport("s2", -2500, *now)))

	snap := g.Snapshot()
	assert.Equal(t, models.GovernorSuspended, snap.State)
	assert.False(t, snap.State.Tradable())
	assert.Zero(t, snap.SizeMultiplier)
	assert.GreaterOrEqual(t, snap.DailyLossUsed, 1.0)
	assert.Len(t, g.TransitionsToday(), 2)
}

func TestGovernorMidnightRearm(t *testing.T) {
	g, now := newTestGovernor()
	require.NoError(t, g.ApplyExecution(context.Background(), execReport("s1", -6000, *now)))
	require.Equal(t, models.GovernorSuspended, g.Snapshot().State)

	*now = now.Add(24 * time.Hour)

	snap := g.Snapshot()
	assert.Equal(t, models.GovernorActive, snap.State)
	assert.Zero(t, snap.DailyPnL)
	assert.Zero(t, snap.DailyLossUsed)
	assert.Equal(t, 94_000.0, snap.Equity)
	assert.Equal(t, now.Format("2006-01-02"), snap.Day)

	trs := g.TransitionsToday()
	require.Len(t, trs, 1)
	assert.Equal(t, models.GovernorActive, trs[0].To)
	assert.Contains(t, trs[0].Reason, "re-arm")
}

func TestGovernorLockdownSticky(t *testing.T) {
	g, now := newTestGovernor()

	// 12% down from peak breaches the 10% drawdown limit before the
	// daily loss rule gets a say.
	require.NoError(t, g.ApplyExecution(context.Background(), execReport("s1", -12_000, *now)))
	require.Equal(t, models.GovernorLockdown, g.Snapshot().State)

	*now = now.Add(24 * time.Hour)
	snap := g.Snapshot()
	assert.Equal(t, models.GovernorLockdown, snap.State)
	assert.False(t, snap.State.Tradable())

	g.Reset("manual operator reset")
	snap = g.Snapshot()
	assert.Equal(t, models.GovernorActive, snap.State)
	assert.Equal(t, 88_000.0, snap.PeakEquity)
	assert.Zero(t, snap.Drawdown)
}

func TestGovernorDailyPnLByExitDay(t *testing.T) {
	g, now := newTestGovernor()

	// A position closed yesterday moves equity but not today's budget.
	require.NoError(t, g.ApplyExecution(context.Background(), execReport("s1", -2000, now.Add(-24*time.Hour))))

	snap := g.Snapshot()
	assert.Equal(t, models.GovernorActive, snap.State)
	assert.Equal(t, 98_000.0, snap.Equity)
	assert.Zero(t, snap.DailyPnL)
	assert.Zero(t, snap.DailyLossUsed)
}

func TestGovernorMirrorRoundTrip(t *testing.T) {
	mirror := icache.NewTTLCache()
	g1, now := newTestGovernor(WithMirror(mirror))
	require.NoError(t, g1.ApplyExecution(context.Background(), execReport("s1", -3000, *now)))

	g2, _ := newTestGovernor(WithMirror(mirror))
	ok, err := g2.Restore(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	snap := g2.Snapshot()
	assert.Equal(t, models.GovernorSoftLimit, snap.State)
	assert.Equal(t, 97_000.0, snap.Equity)
	assert.Equal(t, -3000.0, snap.DailyPnL)
}

func TestGovernorRestoreAcrossMidnight(t *testing.T) {
	mirror := icache.NewTTLCache()
	g1, now := newTestGovernor(WithMirror(mirror))
	require.NoError(t, g1.ApplyExecution(context.Background(), execReport("s1", -6000, *now)))

	// Restart the next day: the restored state re-arms immediately.
	g2, clock := newTestGovernor(WithMirror(mirror))
	*clock = clock.Add(24 * time.Hour)
	ok, err := g2.Restore(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	snap := g2.Snapshot()
	assert.Equal(t, models.GovernorActive, snap.State)
	assert.Equal(t, 94_000.0, snap.Equity)
	assert.Zero(t, snap.DailyPnL)
}

func TestGovernorRestoreEmptyMirror(t *testing.T) {
	g, _ := newTestGovernor(WithMirror(icache.NewTTLCache()))

	ok, err := g.Restore(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
}

type stubExecStore struct {
	execs []models.ExecutionReport
	err   error
}

func (s *stubExecStore) Init(ctx context.Context) error { return nil }

func (s *stubExecStore) Insert(ctx context.Context, e *models.ExecutionReport) error {
	s.execs = append(s.execs, *e)
	return nil
}

func (s *stubExecStore) Exists(ctx context.Context, ticket string) (bool, error) {
	return false, nil
}

func (s *stubExecStore) Range(ctx context.Context, from, to time.Time) ([]models.ExecutionReport, error) {
	return s.execs, s.err
}

func (s *stubExecStore) ByAlpha(ctx context.Context, from, to time.Time) (map[string][]models.ExecutionReport, error) {
	return nil, nil
}

func (s *stubExecStore) Close() error { return nil }

func TestGovernorRebuildFromExecutions(t *testing.T) {
	g, now := newTestGovernor()
	store := &stubExecStore{execs: []models.ExecutionReport{
		{
			Ticket:   "T-1",
			SignalID: "s1",
			ExitTime: now.Add(-24 * time.Hour),
			Profit:   decimal.NewFromFloat(5000),
		},
		{
			Ticket:     "T-2",
			SignalID:   "s2",
			ExitTime:   *now,
			Profit:     decimal.NewFromFloat(-2000),
			Commission: decimal.NewFromFloat(10),
			Swap:       decimal.NewFromFloat(5),
		},
	}}

	require.NoError(t, g.Rebuild(context.Background(), store))

	snap := g.Snapshot()
	assert.Equal(t, models.GovernorActive, snap.State)
	assert.Equal(t, 102_985.0, snap.Equity)
	assert.Equal(t, 105_000.0, snap.PeakEquity)
	assert.Equal(t, -2015.0, snap.DailyPnL)
}

func TestGovernorRebuildStoreError(t *testing.T) {
	g, _ := newTestGovernor()
	store := &stubExecStore{err: errors.New("clickhouse down")}

	err := g.Rebuild(context.Background(), store)

	assert.ErrorContains(t, err, "rebuild governor")
}

func TestGovernorExposureHolds(t *testing.T) {
	g, now := newTestGovernor()

	assert.True(t, g.ReserveExposure("s1", "EURUSD", 20_000, 10*time.Minute))
	// 20k + 15k would breach the 30% cap on 100k equity.
	assert.False(t, g.ReserveExposure("s2", "GBPUSD", 15_000, 10*time.Minute))
	assert.True(t, g.ReserveExposure("s3", "GBPUSD", 8000, 10*time.Minute))

	open := g.ExposureBySymbol()
	assert.Equal(t, 20_000.0, open["EURUSD"])
	assert.Equal(t, 8000.0, open["GBPUSD"])
	assert.InDelta(t, 0.28, g.Snapshot().OpenExposure, 1e-9)

	// Closing the trade releases its hold by signal ID.
	require.NoError(t, g.ApplyExecution(context.Background(), execReport("s1", 150, *now)))
	open = g.ExposureBySymbol()
	assert.NotContains(t, open, "EURUSD")
	assert.Equal(t, 8000.0, open["GBPUSD"])

	// The rest age out with their TTL.
	*now = now.Add(11 * time.Minute)
	assert.Empty(t, g.ExposureBySymbol())
}

func TestGovernorReserveRejectsNonPositiveNotional(t *testing.T) {
	g, _ := newTestGovernor()

	assert.False(t, g.ReserveExposure("s1", "EURUSD", 0, time.Minute))
	assert.False(t, g.ReserveExposure("s2", "EURUSD", -100, time.Minute))
}

func TestGovernorApplyExecutionCanceledContext(t *testing.T) {
	g, now := newTestGovernor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.ApplyExecution(ctx, execReport("s1", -1000, *now))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 100_000.0, g.Snapshot().Equity)
}
