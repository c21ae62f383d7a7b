package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	svcmetrics "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/metrics"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/risk"
	pkgcache "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/cache"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

const (
	analyticsKeyPrefix  = "analytics:"
	defaultSnapshotTTL  = 15 * time.Second
	alphaWindowDays     = 30
	overviewByDayLimit  = 30
	analyticsTimeout    = 10 * time.Second
	maxOverviewPF       = 1000 // JSON cannot carry +Inf
	analyticsWindowBars = 300
)

var analyticsViews = []string{"overview", "compliance", "alphas", "risk"}

// SnapshotCache is the slice of the layered cache the reporting views
// need. Misses surface as pkg/cache.ErrCacheMiss.
type SnapshotCache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// AnalyticsConfig shapes the reporting views.
type AnalyticsConfig struct {
	StartingEquity float64
	Symbols        []string
	PrimaryTF      models.Timeframe
	WindowBars     int
	SnapshotTTL    time.Duration
}

// AnalyticsUseCase assembles the four reporting views. Each view is
// cached for a short TTL in the layered snapshot cache; the execution
// worker invalidates after accounting so reports never lag a closed
// trade for long.
type AnalyticsUseCase struct {
	cfg      AnalyticsConfig
	execs    domrepo.ExecutionStore
	sigs     domrepo.SignalEventStore
	bars     domrepo.BarStore
	governor domsvc.Governor
	regime   domsvc.RegimeDetector
	vol      domsvc.VolatilityForecaster
	es       *risk.ES95Estimator
	cache    SnapshotCache
	logger   *logger.Logger
}

func NewAnalyticsUseCase(
	cfg AnalyticsConfig,
	execs domrepo.ExecutionStore,
	sigs domrepo.SignalEventStore,
	bars domrepo.BarStore,
	governor domsvc.Governor,
	regime domsvc.RegimeDetector,
	vol domsvc.VolatilityForecaster,
	es *risk.ES95Estimator,
	c SnapshotCache,
	l *logger.Logger,
) *AnalyticsUseCase {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = defaultSnapshotTTL
	}
	if cfg.WindowBars <= 0 {
		cfg.WindowBars = analyticsWindowBars
	}
	if cfg.PrimaryTF == "" {
		cfg.PrimaryTF = models.DefaultTimeframe()
	}
	return &AnalyticsUseCase{
		cfg:      cfg,
		execs:    execs,
		sigs:     sigs,
		bars:     bars,
		governor: governor,
		regime:   regime,
		vol:      vol,
		es:       es,
		cache:    c,
		logger:   l,
	}
}

// Invalidate drops all cached views from both cache layers. Called by
// the execution worker after accounting lands.
func (uc *AnalyticsUseCase) Invalidate(ctx context.Context) {
	keys := make([]string, 0, len(analyticsViews))
	for _, view := range analyticsViews {
		keys = append(keys, analyticsKeyPrefix+view)
	}
	if err := uc.cache.Delete(ctx, keys...); err != nil {
		uc.logger.Debug("analytics invalidate failed", logger.Error(err))
	}
}

func (uc *AnalyticsUseCase) Overview(ctx context.Context) (*models.OverviewReport, error) {
	return cachedView(ctx, uc, "overview", uc.buildOverview)
}

func (uc *AnalyticsUseCase) Compliance(ctx context.Context) (*models.ComplianceReport, error) {
	return cachedView(ctx, uc, "compliance", uc.buildCompliance)
}

func (uc *AnalyticsUseCase) Alphas(ctx context.Context) (*models.AlphaReport, error) {
	return cachedView(ctx, uc, "alphas", uc.buildAlphas)
}

func (uc *AnalyticsUseCase) Risk(ctx context.Context) (*models.RiskReport, error) {
	return cachedView(ctx, uc, "risk", uc.buildRisk)
}

// Bundle assembles all four views in parallel with per-section error
// isolation: a failing section records its error and the rest stay
// usable.
func (uc *AnalyticsUseCase) Bundle(ctx context.Context) (*models.AnalyticsBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, analyticsTimeout)
	defer cancel()

	res := &models.AnalyticsBundle{Errors: map[string]string{}}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 4)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.Overview(ctx)
		ch <- item{"overview", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.Compliance(ctx)
		ch <- item{"compliance", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.Alphas(ctx)
		ch <- item{"alphas", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := uc.Risk(ctx)
		ch <- item{"risk", v, err}
	}()

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.name] = it.err.Error()
			continue
		}
		switch it.name {
		case "overview":
			res.Overview = it.val.(*models.OverviewReport)
		case "compliance":
			res.Compliance = it.val.(*models.ComplianceReport)
		case "alphas":
			res.Alphas = it.val.(*models.AlphaReport)
		case "risk":
			res.Risk = it.val.(*models.RiskReport)
		}
	}

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}

// cachedView wraps a builder with the snapshot cache.
func cachedView[T any](ctx context.Context, uc *AnalyticsUseCase, view string, build func(context.Context) (*T, error)) (*T, error) {
	key := analyticsKeyPrefix + view

	var cached T
	err := uc.cache.Get(ctx, key, &cached)
	if err == nil {
		svcmetrics.AnalyticsCacheHits.WithLabelValues(view, "hit").Inc()
		return &cached, nil
	}
	if !errors.Is(err, pkgcache.ErrCacheMiss) {
		uc.logger.Debug("analytics snapshot read failed",
			logger.String("view", view),
			logger.Error(err),
		)
	}
	svcmetrics.AnalyticsCacheHits.WithLabelValues(view, "miss").Inc()

	out, err := build(ctx)
	if err != nil {
		svcmetrics.AnalyticsErrors.WithLabelValues(view).Inc()
		return nil, err
	}
	if err := uc.cache.Set(ctx, key, out, uc.cfg.SnapshotTTL); err != nil {
		uc.logger.Debug("analytics snapshot cache failed",
			logger.String("view", view),
			logger.Error(err),
		)
	}
	return out, nil
}

func (uc *AnalyticsUseCase) buildOverview(ctx context.Context) (*models.OverviewReport, error) {
	now := time.Now().UTC()
	execs, err := uc.execs.Range(ctx, time.Time{}, now)
	if err != nil {
		return nil, fmt.Errorf("overview executions: %w", err)
	}

	total := decimal.Zero
	daily := decimal.Zero
	today := now.Format("2006-01-02")
	wins := 0
	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	byDay := map[string]*models.DailyPnL{}

	for i := range execs {
		net := execs[i].NetProfit()
		total = total.Add(net)
		day := execs[i].ExitTime.UTC().Format("2006-01-02")
		if day == today {
			daily = daily.Add(net)
		}
		if net.IsPositive() {
			wins++
			grossWin = grossWin.Add(net)
		} else {
			grossLoss = grossLoss.Add(net.Neg())
		}
		d, ok := byDay[day]
		if !ok {
			d = &models.DailyPnL{Day: day}
			byDay[day] = d
		}
		d.PnL = d.PnL.Add(net)
		d.Trades++
	}

	days := make([]models.DailyPnL, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	if len(days) > overviewByDayLimit {
		days = days[len(days)-overviewByDayLimit:]
	}

	trades := len(execs)
	winRate := 0.0
	expectancy := 0.0
	if trades > 0 {
		winRate = float64(wins) / float64(trades)
		avg, _ := total.Div(decimal.NewFromInt(int64(trades))).Float64()
		expectancy = avg
	}
	pf := 0.0
	if grossLoss.IsPositive() {
		pf, _ = grossWin.Div(grossLoss).Float64()
		if pf > maxOverviewPF {
			pf = maxOverviewPF
		}
	} else if grossWin.IsPositive() {
		pf = maxOverviewPF
	}

	snap := uc.governor.Snapshot()
	return &models.OverviewReport{
		Equity:       snap.Equity,
		DailyPnL:     daily,
		TotalPnL:     total,
		Trades:       trades,
		WinRate:      winRate,
		ProfitFactor: pf,
		Expectancy:   expectancy,
		ByDay:        days,
		GeneratedAt:  now,
	}, nil
}

func (uc *AnalyticsUseCase) buildCompliance(ctx context.Context) (*models.ComplianceReport, error) {
	snap := uc.governor.Snapshot()
	limits := uc.governor.Limits()

	ddUsage := 0.0
	if limits.MaxDrawdown > 0 {
		ddUsage = snap.Drawdown / limits.MaxDrawdown
	}
	expUsage := 0.0
	if limits.ExposureCap > 0 {
		expUsage = snap.OpenExposure / limits.ExposureCap
	}
	return &models.ComplianceReport{
		Snapshot:        snap,
		Limits:          limits,
		DailyLossUsage:  snap.DailyLossUsed,
		DrawdownUsage:   ddUsage,
		ExposureUsage:   expUsage,
		ViolationsToday: uc.governor.TransitionsToday(),
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

func (uc *AnalyticsUseCase) buildAlphas(ctx context.Context) (*models.AlphaReport, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -alphaWindowDays)

	byAlpha, err := uc.execs.ByAlpha(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("alpha executions: %w", err)
	}
	avgQ, err := uc.sigs.AvgQStarByAlpha(ctx, from, now)
	if err != nil {
		// Q* averages are decoration; the trade stats still stand.
		uc.logger.Debug("avg qstar lookup failed", logger.Error(err))
		avgQ = map[string]float64{}
	}

	alphas := make([]models.AlphaPerformance, 0, len(byAlpha))
	for alpha, execs := range byAlpha {
		perf := models.AlphaPerformance{Alpha: alpha, Trades: len(execs), AvgQStar: avgQ[alpha]}
		wins := 0
		grossWin := decimal.Zero
		grossLoss := decimal.Zero
		for i := range execs {
			net := execs[i].NetProfit()
			perf.PnL = perf.PnL.Add(net)
			if net.IsPositive() {
				wins++
				grossWin = grossWin.Add(net)
			} else {
				grossLoss = grossLoss.Add(net.Neg())
			}
			if execs[i].ExitTime.After(perf.LastTradeAt) {
				perf.LastTradeAt = execs[i].ExitTime
			}
		}
		if perf.Trades > 0 {
			perf.WinRate = float64(wins) / float64(perf.Trades)
		}
		if grossLoss.IsPositive() {
			perf.ProfitFactor, _ = grossWin.Div(grossLoss).Float64()
			if perf.ProfitFactor > maxOverviewPF {
				perf.ProfitFactor = maxOverviewPF
			}
		} else if grossWin.IsPositive() {
			perf.ProfitFactor = maxOverviewPF
		}
		alphas = append(alphas, perf)
	}
	sort.Slice(alphas, func(i, j int) bool {
		return alphas[i].PnL.GreaterThan(alphas[j].PnL)
	})

	return &models.AlphaReport{Alphas: alphas, GeneratedAt: now}, nil
}

func (uc *AnalyticsUseCase) buildRisk(ctx context.Context) (*models.RiskReport, error) {
	now := time.Now().UTC()
	snap := uc.governor.Snapshot()
	expBySymbol := uc.governor.ExposureBySymbol()

	symbols := make([]models.SymbolRisk, 0, len(uc.cfg.Symbols))
	totalES := 0.0
	for _, sym := range uc.cfg.Symbols {
		sr := models.SymbolRisk{Symbol: sym, Exposure: expBySymbol[sym]}

		bars, err := uc.bars.Latest(ctx, sym, uc.cfg.PrimaryTF, uc.cfg.WindowBars)
		if err != nil || len(bars) == 0 {
			symbols = append(symbols, sr)
			continue
		}
		if es95, err := uc.es.Estimate(bars); err == nil {
			sr.ES95 = es95
		}
		if vf, err := uc.vol.Forecast(ctx, sym, uc.cfg.PrimaryTF, bars); err == nil {
			sr.RealizedVol = vf.Nowcast
			sr.VolScale = vf.VolScale
		}
		if reg, err := uc.regime.Detect(ctx, sym, bars); err == nil {
			sr.Regime = reg.State
		}
		if snap.Equity > 0 {
			totalES += sr.ES95 * sr.Exposure / snap.Equity
		}
		symbols = append(symbols, sr)
	}

	return &models.RiskReport{
		Symbols:      symbols,
		TotalES95:    totalES,
		ExposureUsed: snap.OpenExposure,
		GeneratedAt:  now,
	}, nil
}
