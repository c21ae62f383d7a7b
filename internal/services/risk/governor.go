package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/cache"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

const governorStateKey = "vprop:governor"

// GovernorConfig seeds the state machine. Limits are fractions of
// starting equity (daily loss) and peak equity (drawdown).
type GovernorConfig struct {
	StartingEquity float64
	Limits         models.RiskLimits
}

// governorState is the persisted accounting core. Money stays decimal
// until the snapshot boundary.
type governorState struct {
	State       models.GovernorState        `json:"state"`
	Equity      decimal.Decimal             `json:"equity"`
	PeakEquity  decimal.Decimal             `json:"peak_equity"`
	DailyPnL    decimal.Decimal             `json:"daily_pnl"`
	Day         string                      `json:"day"`
	Transitions []models.GovernorTransition `json:"transitions"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

type exposureHold struct {
	symbol    string
	notional  float64
	expiresAt time.Time
}

// EquityGovernor enforces the prop-firm rules over execution accounting:
// soft limit at a fraction of the daily loss budget, suspension at the
// full budget with a midnight UTC re-arm, and a sticky lockdown on max
// drawdown. State survives restarts through the cache mirror and can be
// rebuilt from the execution store on cold start.
type EquityGovernor struct {
	mu      sync.Mutex
	cfg     GovernorConfig
	st      governorState
	holds   map[string]exposureHold
	mirror  cache.BytesCache
	metrics repository.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

type GovernorOption func(*EquityGovernor)

// WithMirror persists governor state to the cache after every mutation.
func WithMirror(c cache.BytesCache) GovernorOption {
	return func(g *EquityGovernor) { g.mirror = c }
}

func WithGovernorMetrics(m repository.Metrics) GovernorOption {
	return func(g *EquityGovernor) { g.metrics = m }
}

// WithClock overrides the time source, used by tests to cross midnight.
func WithClock(now func() time.Time) GovernorOption {
	return func(g *EquityGovernor) { g.now = now }
}

func NewEquityGovernor(cfg GovernorConfig, opts ...GovernorOption) *EquityGovernor {
	g := &EquityGovernor{
		cfg:   cfg,
		holds: make(map[string]exposureHold),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	eq := decimal.NewFromFloat(cfg.StartingEquity)
	g.st = governorState{
		State:      models.GovernorActive,
		Equity:     eq,
		PeakEquity: eq,
		Day:        dayKey(g.now()),
		UpdatedAt:  g.now(),
	}
	return g
}

func (g *EquityGovernor) SetLogger(l *logger.Logger) {
	g.logger = l
}

// Restore loads the mirrored state. It reports false when the mirror is
// empty or unavailable, in which case the caller should Rebuild.
func (g *EquityGovernor) Restore(ctx context.Context) (bool, error) {
	if g.mirror == nil {
		return false, nil
	}
	b, ok, err := g.mirror.GetBytes(governorStateKey)
	if err != nil {
		return false, fmt.Errorf("restore governor: %w", err)
	}
	if !ok {
		return false, nil
	}
	var st governorState
	if err := json.Unmarshal(b, &st); err != nil {
		return false, fmt.Errorf("restore governor: decode: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st = st
	g.rollDayLocked(g.now())
	if g.logger != nil {
		g.logger.Info("governor state restored",
			logger.String("state", string(g.st.State)),
			logger.String("equity", g.st.Equity.String()),
			logger.String("day", g.st.Day),
		)
	}
	return true, nil
}

// Rebuild replays the full execution history to reconstruct equity, peak
// and today's PnL, then re-derives the state from the current numbers.
func (g *EquityGovernor) Rebuild(ctx context.Context, store repository.ExecutionStore) error {
	now := g.now()
	execs, err := store.Range(ctx, time.Time{}, now)
	if err != nil {
		return fmt.Errorf("rebuild governor: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	eq := decimal.NewFromFloat(g.cfg.StartingEquity)
	peak := eq
	daily := decimal.Zero
	today := dayKey(now)
	for i := range execs {
		net := execs[i].NetProfit()
		eq = eq.Add(net)
		if eq.GreaterThan(peak) {
			peak = eq
		}
		if dayKey(execs[i].ExitTime.UTC()) == today {
			daily = daily.Add(net)
		}
	}
	g.st = governorState{
		State:      models.GovernorActive,
		Equity:     eq,
		PeakEquity: peak,
		DailyPnL:   daily,
		Day:        today,
		UpdatedAt:  now,
	}
	g.evaluateLocked(now)
	g.persistLocked()
	if g.logger != nil {
		g.logger.Info("governor state rebuilt from executions",
			logger.Int("executions", len(execs)),
			logger.String("state", string(g.st.State)),
			logger.String("equity", g.st.Equity.String()),
		)
	}
	return nil
}

func (g *EquityGovernor) Limits() models.RiskLimits {
	return g.cfg.Limits
}

func (g *EquityGovernor) Snapshot() models.RiskSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.rollDayLocked(now)
	g.pruneHoldsLocked(now)

	equity, _ := g.st.Equity.Float64()
	peak, _ := g.st.PeakEquity.Float64()
	daily, _ := g.st.DailyPnL.Float64()
	limit := g.cfg.Limits.DailyLossLimit * g.cfg.StartingEquity
	used := 0.0
	if limit > 0 {
		used = g.dailyLossLocked() / limit
	}
	exposure := 0.0
	if equity > 0 {
		exposure = g.openNotionalLocked() / equity
	}
	return models.RiskSnapshot{
		State:          g.st.State,
		Equity:         equity,
		PeakEquity:     peak,
		DailyPnL:       daily,
		DailyLossUsed:  used,
		Drawdown:       g.drawdownLocked(),
		OpenExposure:   exposure,
		SizeMultiplier: g.st.State.SizeMultiplier(),
		Day:            g.st.Day,
		UpdatedAt:      g.st.UpdatedAt,
	}
}

func (g *EquityGovernor) ApplyExecution(ctx context.Context, e *models.ExecutionReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.rollDayLocked(now)

	net := e.NetProfit()
	g.st.Equity = g.st.Equity.Add(net)
	if g.st.Equity.GreaterThan(g.st.PeakEquity) {
		g.st.PeakEquity = g.st.Equity
	}
	if dayKey(e.ExitTime.UTC()) == g.st.Day {
		g.st.DailyPnL = g.st.DailyPnL.Add(net)
	}
	delete(g.holds, e.SignalID)

	g.evaluateLocked(now)
	g.st.UpdatedAt = now
	g.persistLocked()
	return nil
}

func (g *EquityGovernor) ReserveExposure(signalID, symbol string, notional float64, ttl time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.pruneHoldsLocked(now)

	equity, _ := g.st.Equity.Float64()
	if equity <= 0 || notional <= 0 {
		return false
	}
	limit := g.cfg.Limits.ExposureCap * equity
	if limit > 0 && g.openNotionalLocked()+notional > limit {
		if g.logger != nil {
			g.logger.Debug("exposure reservation rejected",
				logger.String("symbol", symbol),
				logger.Float64("notional", notional),
				logger.Float64("open", g.openNotionalLocked()),
				logger.Float64("limit", limit),
			)
		}
		return false
	}
	g.holds[signalID] = exposureHold{symbol: symbol, notional: notional, expiresAt: now.Add(ttl)}
	return true
}

// ExposureBySymbol sums live reserved notional per symbol.
func (g *EquityGovernor) ExposureBySymbol() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneHoldsLocked(g.now())
	out := make(map[string]float64, len(g.holds))
	for _, h := range g.holds {
		out[h.symbol] += h.notional
	}
	return out
}

func (g *EquityGovernor) TransitionsToday() []models.GovernorTransition {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked(g.now())
	out := make([]models.GovernorTransition, len(g.st.Transitions))
	copy(out, g.st.Transitions)
	return out
}

// Reset is the operator escape hatch for lockdown. It re-arms the
// governor and re-anchors the high-water mark at current equity.
func (g *EquityGovernor) Reset(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.transitionLocked(models.GovernorActive, reason, now)
	g.st.PeakEquity = g.st.Equity
	g.st.UpdatedAt = now
	g.persistLocked()
}

func (g *EquityGovernor) rollDayLocked(now time.Time) {
	day := dayKey(now)
	if day == g.st.Day {
		return
	}
	g.st.Day = day
	g.st.DailyPnL = decimal.Zero
	g.st.Transitions = nil
	if g.st.State == models.GovernorSuspended || g.st.State == models.GovernorSoftLimit {
		g.transitionLocked(models.GovernorActive, "daily re-arm at midnight UTC", now)
	}
}

func (g *EquityGovernor) evaluateLocked(now time.Time) {
	if g.st.State == models.GovernorLockdown {
		return
	}
	dd := g.drawdownLocked()
	if g.cfg.Limits.MaxDrawdown > 0 && dd >= g.cfg.Limits.MaxDrawdown {
		g.transitionLocked(models.GovernorLockdown,
			fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", dd*100, g.cfg.Limits.MaxDrawdown*100), now)
		return
	}
	limit := g.cfg.Limits.DailyLossLimit * g.cfg.StartingEquity
	if limit <= 0 {
		return
	}
	loss := g.dailyLossLocked()
	switch {
	case loss >= limit && g.st.State != models.GovernorSuspended:
		g.transitionLocked(models.GovernorSuspended,
			fmt.Sprintf("daily loss %.2f hit limit %.2f", loss, limit), now)
	case loss >= g.cfg.Limits.SoftLimitFrac*limit && g.st.State == models.GovernorActive:
		g.transitionLocked(models.GovernorSoftLimit,
			fmt.Sprintf("daily loss %.2f over soft threshold %.2f", loss, g.cfg.Limits.SoftLimitFrac*limit), now)
	}
}

func (g *EquityGovernor) transitionLocked(to models.GovernorState, reason string, now time.Time) {
	from := g.st.State
	if from == to {
		return
	}
	g.st.State = to
	g.st.Transitions = append(g.st.Transitions, models.GovernorTransition{
		From: from, To: to, Reason: reason, At: now,
	})
	if g.metrics != nil {
		g.metrics.RecordGovernorState(string(to))
	}
	if g.logger != nil {
		g.logger.Warn("governor transition",
			logger.String("from", string(from)),
			logger.String("to", string(to)),
			logger.String("reason", reason),
		)
	}
}

func (g *EquityGovernor) dailyLossLocked() float64 {
	if g.st.DailyPnL.IsNegative() {
		loss, _ := g.st.DailyPnL.Neg().Float64()
		return loss
	}
	return 0
}

func (g *EquityGovernor) drawdownLocked() float64 {
	if !g.st.PeakEquity.IsPositive() {
		return 0
	}
	dd, _ := g.st.PeakEquity.Sub(g.st.Equity).Div(g.st.PeakEquity).Float64()
	if dd < 0 {
		return 0
	}
	return dd
}

func (g *EquityGovernor) openNotionalLocked() float64 {
	var sum float64
	for _, h := range g.holds {
		sum += h.notional
	}
	return sum
}

func (g *EquityGovernor) pruneHoldsLocked(now time.Time) {
	for id, h := range g.holds {
		if now.After(h.expiresAt) {
			delete(g.holds, id)
		}
	}
}

func (g *EquityGovernor) persistLocked() {
	if g.mirror == nil {
		return
	}
	b, err := json.Marshal(g.st)
	if err != nil {
		return
	}
	if err := g.mirror.SetBytes(governorStateKey, b, 0); err != nil && g.logger != nil {
		g.logger.Warn("governor state mirror write failed", logger.Error(err))
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

var _ domsvc.Governor = (*EquityGovernor)(nil)
