package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/inference"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/risk"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

// ScannerConfig carries the scan loop parameters.
type ScannerConfig struct {
	Symbols       []string
	Timeframes    []models.Timeframe
	Interval      time.Duration
	Workers       int
	WindowBars    int
	TrainBars     int
	RefitEvery    time.Duration
	MinQStar      float64
	CandidateTTL  time.Duration
	StopATRMult   float64
	TargetATRMult float64
	SignalsTopic  string
}

// AlphaScanner walks configured (symbol, timeframe) pairs on an interval,
// scores each window and books candidates that clear the Q* gate. Scans
// keep running while the governor is suspended or locked so analytics
// stay current; candidates booked in those states are marked
// non-tradable and never served.
type AlphaScanner struct {
	cfg      ScannerConfig
	bars     domrepo.BarStore
	book     domrepo.SignalBook
	events   domrepo.SignalEventStore
	feats    domrepo.FeatureStore
	pub      domrepo.Publisher
	registry *inference.Registry
	trainer  *inference.Trainer
	ex       *features.Extractor
	anomaly  domsvc.AnomalyDetector
	regime   domsvc.RegimeDetector
	vol      domsvc.VolatilityForecaster
	edge     domsvc.EdgeScorer
	es       *risk.ES95Estimator
	governor domsvc.Governor
	metrics  domrepo.Metrics
	logger   *logger.Logger

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	lastScan time.Time
}

// ScannerDeps bundles the scanner's collaborators.
type ScannerDeps struct {
	Bars     domrepo.BarStore
	Book     domrepo.SignalBook
	Events   domrepo.SignalEventStore
	Features domrepo.FeatureStore
	Pub      domrepo.Publisher
	Registry *inference.Registry
	Trainer  *inference.Trainer
	Extract  *features.Extractor
	Anomaly  domsvc.AnomalyDetector
	Regime   domsvc.RegimeDetector
	Vol      domsvc.VolatilityForecaster
	Edge     domsvc.EdgeScorer
	ES       *risk.ES95Estimator
	Governor domsvc.Governor
	Metrics  domrepo.Metrics
	Logger   *logger.Logger
}

func NewAlphaScanner(cfg ScannerConfig, d ScannerDeps) *AlphaScanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.WindowBars <= 0 {
		cfg.WindowBars = 300
	}
	if cfg.TrainBars <= 0 {
		cfg.TrainBars = 2000
	}
	if cfg.CandidateTTL <= 0 {
		cfg.CandidateTTL = 5 * time.Minute
	}
	return &AlphaScanner{
		cfg:      cfg,
		bars:     d.Bars,
		book:     d.Book,
		events:   d.Events,
		feats:    d.Features,
		pub:      d.Pub,
		registry: d.Registry,
		trainer:  d.Trainer,
		ex:       d.Extract,
		anomaly:  d.Anomaly,
		regime:   d.Regime,
		vol:      d.Vol,
		edge:     d.Edge,
		es:       d.ES,
		governor: d.Governor,
		metrics:  d.Metrics,
		logger:   d.Logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the scan loop. The first sweep runs immediately.
func (s *AlphaScanner) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		s.ScanOnce(ctx)
		tick := time.NewTicker(s.cfg.Interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-tick.C:
				s.ScanOnce(ctx)
			}
		}
	}()
}

// Stop halts the scan loop.
func (s *AlphaScanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	close(s.stopCh)
}

// LastScan returns the completion time of the most recent sweep. The
// health endpoint uses it as the scanner heartbeat.
func (s *AlphaScanner) LastScan() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

type scanTarget struct {
	symbol string
	tf     models.Timeframe
}

// ScanOnce sweeps all configured pairs through a bounded worker pool.
func (s *AlphaScanner) ScanOnce(ctx context.Context) {
	targets := make(chan scanTarget, len(s.cfg.Symbols)*len(s.cfg.Timeframes))
	for _, sym := range s.cfg.Symbols {
		for _, tf := range s.cfg.Timeframes {
			targets <- scanTarget{symbol: sym, tf: tf}
		}
	}
	close(targets)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range targets {
				if ctx.Err() != nil {
					return
				}
				s.scanGuarded(ctx, t.symbol, t.tf)
			}
		}()
	}
	wg.Wait()

	s.mu.Lock()
	s.lastScan = time.Now().UTC()
	s.mu.Unlock()
}

// scanGuarded isolates worker panics so one bad window cannot take the
// loop down.
func (s *AlphaScanner) scanGuarded(ctx context.Context, symbol string, tf models.Timeframe) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError("scan_panic")
			s.logger.Error("scan worker panic",
				logger.String("symbol", symbol),
				logger.String("tf", tf.String()),
				logger.Any("panic", r),
			)
		}
	}()
	if err := s.scanPair(ctx, symbol, tf); err != nil {
		s.metrics.RecordError("scan")
		s.logger.Warn("scan failed",
			logger.String("symbol", symbol),
			logger.String("tf", tf.String()),
			logger.Error(err),
		)
	}
}

func (s *AlphaScanner) scanPair(ctx context.Context, symbol string, tf models.Timeframe) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordScan(symbol, tf.String(), time.Since(start).Seconds())
	}()

	bars, err := s.bars.Latest(ctx, symbol, tf, s.cfg.WindowBars)
	if err != nil {
		return fmt.Errorf("load window: %w", err)
	}
	if len(bars) < features.MinBars {
		s.logger.Debug("window too short",
			logger.String("symbol", symbol),
			logger.String("tf", tf.String()),
			logger.Int("bars", len(bars)),
		)
		return nil
	}

	anomalies, err := s.anomaly.Detect(ctx, symbol, bars)
	if err != nil {
		return fmt.Errorf("anomaly detect: %w", err)
	}
	if len(anomalies) > 0 {
		s.metrics.RecordError("scan_anomalous")
		s.logger.Info("window rejected as anomalous",
			logger.String("symbol", symbol),
			logger.String("tf", tf.String()),
			logger.String("type", anomalies[0].Type),
			logger.Int("flags", len(anomalies)),
		)
		return nil
	}

	if err := s.ensureModel(ctx, symbol, tf); err != nil {
		return err
	}

	fv, err := s.ex.Extract(bars)
	if err != nil {
		return fmt.Errorf("extract features: %w", err)
	}
	if s.feats != nil {
		if err := s.feats.PutFeatures(ctx, fv); err != nil {
			s.metrics.RecordError("feature_cache")
		}
	}

	reg, err := s.regime.Detect(ctx, symbol, bars)
	if err != nil {
		return fmt.Errorf("regime detect: %w", err)
	}
	vf, err := s.vol.Forecast(ctx, symbol, tf, bars)
	if err != nil {
		return fmt.Errorf("vol forecast: %w", err)
	}

	score, err := s.edge.Score(ctx, fv, reg)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// no fitted model yet; wait for history to grow
			return nil
		}
		return fmt.Errorf("edge score: %w", err)
	}
	if score.QStar < s.cfg.MinQStar {
		return nil
	}

	es95, err := s.es.Estimate(bars)
	if err != nil {
		return fmt.Errorf("es95: %w", err)
	}

	cand := s.buildCandidate(symbol, tf, fv, reg, vf, score, es95)
	if cand == nil {
		return nil
	}

	if err := s.book.Put(ctx, cand, s.cfg.CandidateTTL); err != nil {
		return fmt.Errorf("book candidate: %w", err)
	}
	if s.events != nil {
		if err := s.events.Insert(ctx, &models.SignalEvent{Candidate: *cand, EmittedAt: cand.GeneratedAt}); err != nil {
			s.metrics.RecordError("signal_event")
		}
	}
	if s.pub != nil && s.cfg.SignalsTopic != "" {
		if err := s.pub.PublishMessage(ctx, s.cfg.SignalsTopic, cand); err != nil {
			s.metrics.RecordError("signal_publish")
		}
	}

	s.metrics.RecordCandidate(symbol, cand.Alpha)
	s.logger.Info("alpha candidate booked",
		logger.String("symbol", symbol),
		logger.String("tf", tf.String()),
		logger.String("alpha", cand.Alpha),
		logger.String("direction", string(cand.Direction)),
		logger.Float64("qstar", cand.QStar),
		logger.Float64("proba", cand.Probability),
		logger.Bool("tradable", cand.Tradable),
	)
	return nil
}

// ensureModel refits the pair's ensemble when the registry marks it
// stale. Refit failures on thin history are logged, not fatal; scoring
// then skips the pair until history grows.
func (s *AlphaScanner) ensureModel(ctx context.Context, symbol string, tf models.Timeframe) error {
	if !s.registry.NeedsRefit(symbol, tf, s.cfg.RefitEvery) {
		return nil
	}
	trainBars, err := s.bars.Latest(ctx, symbol, tf, s.cfg.TrainBars)
	if err != nil {
		return fmt.Errorf("load train window: %w", err)
	}
	start := time.Now()
	ens, err := s.trainer.Train(ctx, trainBars)
	if err != nil {
		s.logger.Debug("refit skipped",
			logger.String("symbol", symbol),
			logger.String("tf", tf.String()),
			logger.Int("bars", len(trainBars)),
			logger.Error(err),
		)
		return nil
	}
	s.metrics.RecordInferenceLatency(time.Since(start).Seconds())
	s.registry.Put(symbol, tf, ens, len(trainBars))
	s.logger.Info("ensemble refit",
		logger.String("symbol", symbol),
		logger.String("tf", tf.String()),
		logger.Int("bars", len(trainBars)),
		logger.Duration("took_ms", time.Since(start)),
	)
	return nil
}

func (s *AlphaScanner) buildCandidate(
	symbol string,
	tf models.Timeframe,
	fv *models.FeatureVector,
	reg models.Regime,
	vf models.VolatilityForecast,
	score models.EdgeScore,
	es95 float64,
) *models.AlphaCandidate {
	entry := fv.LastClose
	atr := fv.ATR
	if entry <= 0 || atr <= 0 || es95 <= 0 {
		return nil
	}

	dir := models.DirectionLong
	if score.ProbaUp < 0.5 {
		dir = models.DirectionShort
	}
	stop := entry - s.cfg.StopATRMult*atr
	target := entry + s.cfg.TargetATRMult*atr
	if dir == models.DirectionShort {
		stop = entry + s.cfg.StopATRMult*atr
		target = entry - s.cfg.TargetATRMult*atr
	}

	now := time.Now().UTC()
	return &models.AlphaCandidate{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Timeframe:   tf,
		Direction:   dir,
		Alpha:       alphaLabel(reg.State),
		EntryPrice:  entry,
		StopLoss:    stop,
		TakeProfit:  target,
		Probability: score.ProbaUp,
		QStar:       score.QStar,
		ES95:        es95,
		VolScale:    vf.VolScale,
		Regime:      reg.State,
		Tradable:    s.governor.Snapshot().State.Tradable(),
		GeneratedAt: now,
		ExpiresAt:   now.Add(s.cfg.CandidateTTL),
	}
}

// alphaLabel names the strategy bucket a candidate came from so
// analytics can break performance down per alpha.
func alphaLabel(regimeState string) string {
	switch regimeState {
	case "trend_up", "trend_down":
		return "qstar_trend"
	case "volatile":
		return "qstar_volatile"
	default:
		return "qstar_range"
	}
}
