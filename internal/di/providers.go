package di

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/handler/api"
	mid "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/middleware"
	internalrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/repository"
	icache "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/cache"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/marketdata"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/backtest"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/inference"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/risk"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/scoring"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/usecase"
	pkgcache "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/cache"
	pkgch "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/clickhouse"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/config"
	pkgkafka "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/kafka"
	applogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
	pkgmetrics "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/metrics"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/queue"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/server"
)

// liveSeed keeps model refits reproducible across restarts.
const liveSeed = 1

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideClickHouseClient creates a ClickHouse client. Table DDL is
// owned by the stores and runs during App boot.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRedisClient creates the shared Redis client used by the cache,
// the queue and the governor mirror.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideRedisCache wraps the shared client as a byte cache.
func ProvideRedisCache(cli *redis.Client) *icache.RedisCache {
	return icache.NewRedisCacheFromClient(cli)
}

// ProvideSnapshotCache layers an in-process cache over the shared
// Redis client for the reporting read path. It also serves as the
// cross-replica lock provider.
func ProvideSnapshotCache(cli *redis.Client) *pkgcache.LayeredCache {
	return pkgcache.NewLayeredCache(
		pkgcache.NewRedisCache(cli, "vprop"),
		pkgcache.WithLayeredMemorySize(64),
	)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled; the publisher degrades to a no-op on a nil producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the bars consumer, or nil when Kafka is
// disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.OffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return pkgmetrics.New()
}

// ProvideBarStore creates the ClickHouse bar store.
func ProvideBarStore(ch *pkgch.Client, l *applogger.Logger) domrepo.BarStore {
	s := internalrepo.NewCHBarStore(ch)
	s.SetLogger(l)
	return s
}

// ProvideExecutionStore creates the ClickHouse execution store.
func ProvideExecutionStore(ch *pkgch.Client, l *applogger.Logger) domrepo.ExecutionStore {
	s := internalrepo.NewCHExecutionStore(ch)
	s.SetLogger(l)
	return s
}

// ProvideSignalEventStore creates the ClickHouse signal audit store.
func ProvideSignalEventStore(ch *pkgch.Client, l *applogger.Logger) domrepo.SignalEventStore {
	s := internalrepo.NewCHSignalStore(ch)
	s.SetLogger(l)
	return s
}

// ProvideSignalBook creates the Redis-backed live candidate book.
func ProvideSignalBook(c *icache.RedisCache) domrepo.SignalBook {
	return internalrepo.NewCacheSignalBook(c)
}

// ProvideFeatureStore creates the Redis-backed feature vector cache.
func ProvideFeatureStore(c *icache.RedisCache) domrepo.FeatureStore {
	return internalrepo.NewCacheFeatureStore(c)
}

// ProvideBacktestStore creates the Redis-backed backtest run store.
func ProvideBacktestStore(c *icache.RedisCache) usecase.BacktestStore {
	return internalrepo.NewCacheBacktestStore(c)
}

// ProvidePublisher creates the Kafka event publisher.
func ProvidePublisher(producer *pkgkafka.Producer) domrepo.Publisher {
	return internalrepo.NewKafkaPublisher(producer)
}

// ProvideExtractor creates the feature extractor.
func ProvideExtractor() *features.Extractor {
	return features.NewExtractor()
}

// ProvideRegistry creates the fitted model registry.
func ProvideRegistry() *inference.Registry {
	return inference.NewRegistry()
}

// ProvideTrainerConfig maps inference config onto the trainer.
func ProvideTrainerConfig(cfg *config.Config) inference.TrainerConfig {
	return inference.TrainerConfig{
		LearningRate:   cfg.Inference.LearningRate,
		Epochs:         cfg.Inference.Epochs,
		BatchSize:      cfg.Inference.BatchSize,
		L2Penalty:      cfg.Inference.L2Penalty,
		BoostRounds:    cfg.Inference.BoostRounds,
		BoostShrinkage: cfg.Inference.BoostShrinkage,
		LogitWeight:    cfg.Inference.LogitWeight,
		BoostWeight:    cfg.Inference.BoostWeight,
		PriorWeight:    cfg.Inference.PriorWeight,
		Seed:           liveSeed,
	}
}

// ProvideTrainer creates the ensemble trainer.
func ProvideTrainer(trainCfg inference.TrainerConfig, ex *features.Extractor) *inference.Trainer {
	return inference.NewTrainer(trainCfg, ex)
}

// ProvideAnomalyDetector creates the window anomaly detector.
func ProvideAnomalyDetector() domsvc.AnomalyDetector {
	return scoring.NewWindowAnomalyDetector()
}

// ProvideRegimeDetector creates the slope regime detector.
func ProvideRegimeDetector() domsvc.RegimeDetector {
	return scoring.NewSlopeRegimeDetector()
}

// ProvideVolForecaster creates the EWMA volatility forecaster.
func ProvideVolForecaster() domsvc.VolatilityForecaster {
	return scoring.NewEWMAVolForecaster()
}

// ProvideEdgeScorer creates the Q* edge scorer.
func ProvideEdgeScorer(registry *inference.Registry) domsvc.EdgeScorer {
	return scoring.NewQStarScorer(registry)
}

// ProvideES95 creates the expected shortfall estimator.
func ProvideES95(cfg *config.Config) *risk.ES95Estimator {
	return risk.NewES95Estimator(cfg.Risk.ESLookback, cfg.Risk.ESHorizonBars)
}

// ProvideGovernor creates the equity governor with its Redis mirror.
func ProvideGovernor(cfg *config.Config, c *icache.RedisCache, m domrepo.Metrics, l *applogger.Logger) *risk.EquityGovernor {
	g := risk.NewEquityGovernor(risk.GovernorConfig{
		StartingEquity: cfg.Risk.StartingEquity,
		Limits: models.RiskLimits{
			DailyLossLimit: cfg.Risk.DailyLossLimit,
			SoftLimitFrac:  cfg.Risk.SoftLimitFrac,
			MaxDrawdown:    cfg.Risk.MaxDrawdown,
			ExposureCap:    cfg.Risk.ExposureCap,
		},
	}, risk.WithMirror(c), risk.WithGovernorMetrics(m))
	g.SetLogger(l)
	return g
}

// ProvideGovernorService exposes the governor to its consumers.
func ProvideGovernorService(g *risk.EquityGovernor) domsvc.Governor {
	return g
}

// ProvideSizer creates the expected-shortfall position sizer.
func ProvideSizer(cfg *config.Config, governor domsvc.Governor, l *applogger.Logger) domsvc.Sizer {
	s := risk.NewESSizer(risk.SizerConfig{
		RiskPerTrade: cfg.Risk.RiskPerTrade,
		MinPosition:  cfg.Risk.MinPosition,
		MaxPosition:  cfg.Risk.MaxPosition,
	}, governor)
	s.SetLogger(l)
	return s
}

// ProvideBacktestEngine creates the walk-forward engine with the same
// entry parameters the live scanner uses.
func ProvideBacktestEngine(cfg *config.Config, trainCfg inference.TrainerConfig, ex *features.Extractor, regime domsvc.RegimeDetector, l *applogger.Logger) *backtest.Engine {
	e := backtest.NewEngine(backtest.EngineConfig{
		TrainFrac:     cfg.Backtest.TrainFrac,
		CostPerUnit:   cfg.Backtest.CostPerUnit,
		MaxHoldBars:   cfg.Backtest.MaxHoldBars,
		MinQStar:      cfg.Scanner.MinQStar,
		StopATRMult:   cfg.Scanner.StopATRMult,
		TargetATRMult: cfg.Scanner.TargetATRMult,
		Gates: backtest.Gates{
			MinTrades: cfg.Backtest.MinTrades,
			MinPF:     cfg.Backtest.MinPF,
			MaxDD:     cfg.Backtest.MaxDD,
		},
	}, trainCfg, ex, regime)
	e.SetLogger(l)
	return e
}

// ProvideCandleProvider creates the REST candle client for backfills.
func ProvideCandleProvider(cfg *config.Config, l *applogger.Logger) usecase.CandleProvider {
	c := marketdata.NewRESTClient(cfg.MarketData.APIKey, cfg.MarketData.RESTBaseURL, float64(cfg.MarketData.RateLimit))
	c.SetLogger(l)
	return c
}

// ProvideMarketStream creates the tick WebSocket stream, or nil when
// streaming is disabled.
func ProvideMarketStream(cfg *config.Config, l *applogger.Logger) domrepo.MarketStream {
	if !cfg.MarketData.StreamEnabled {
		return nil
	}
	s := marketdata.NewStream(
		cfg.MarketData.APIKey,
		cfg.MarketData.WebSocketURL,
		cfg.Scanner.Symbols,
		cfg.MarketData.ReconnectDelay,
		cfg.MarketData.PingInterval,
	)
	s.SetLogger(l)
	return s
}

// ProvideBarPipeline creates the tick-to-bar aggregation pipeline.
func ProvideBarPipeline(bars domrepo.BarStore, m domrepo.Metrics) *mid.BarPipeline {
	return mid.NewBarPipeline(bars, m,
		mid.WithMaxTPS(20),
		mid.WithBufferSize(1000),
	)
}

// ProvideCollector creates the tick collector, or nil when the stream
// is disabled.
func ProvideCollector(stream domrepo.MarketStream, pipe *mid.BarPipeline, m domrepo.Metrics) *usecase.TickCollector {
	if stream == nil {
		return nil
	}
	return usecase.NewTickCollector(stream, pipe, m)
}

// ProvideScanner creates the alpha scanner.
func ProvideScanner(
	cfg *config.Config,
	bars domrepo.BarStore,
	book domrepo.SignalBook,
	events domrepo.SignalEventStore,
	feats domrepo.FeatureStore,
	pub domrepo.Publisher,
	registry *inference.Registry,
	trainer *inference.Trainer,
	ex *features.Extractor,
	anomaly domsvc.AnomalyDetector,
	regime domsvc.RegimeDetector,
	vol domsvc.VolatilityForecaster,
	edge domsvc.EdgeScorer,
	es *risk.ES95Estimator,
	governor domsvc.Governor,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.AlphaScanner {
	return usecase.NewAlphaScanner(usecase.ScannerConfig{
		Symbols:       cfg.Scanner.Symbols,
		Timeframes:    scannerTimeframes(cfg),
		Interval:      cfg.Scanner.Interval,
		Workers:       cfg.Scanner.Workers,
		WindowBars:    cfg.Scanner.WindowBars,
		TrainBars:     cfg.Inference.TrainBars,
		RefitEvery:    cfg.Inference.RefitEvery,
		MinQStar:      cfg.Scanner.MinQStar,
		CandidateTTL:  cfg.Scanner.CandidateTTL,
		StopATRMult:   cfg.Scanner.StopATRMult,
		TargetATRMult: cfg.Scanner.TargetATRMult,
		SignalsTopic:  cfg.Kafka.SignalsTopic,
	}, usecase.ScannerDeps{
		Bars:     bars,
		Book:     book,
		Events:   events,
		Features: feats,
		Pub:      pub,
		Registry: registry,
		Trainer:  trainer,
		Extract:  ex,
		Anomaly:  anomaly,
		Regime:   regime,
		Vol:      vol,
		Edge:     edge,
		ES:       es,
		Governor: governor,
		Metrics:  m,
		Logger:   l,
	})
}

// ProvideBackfiller creates the historical backfiller, or nil when no
// REST endpoint is configured.
func ProvideBackfiller(cfg *config.Config, provider usecase.CandleProvider, bars domrepo.BarStore, snap *pkgcache.LayeredCache, m domrepo.Metrics, l *applogger.Logger) *usecase.Backfiller {
	if cfg.MarketData.RESTBaseURL == "" {
		return nil
	}
	return usecase.NewBackfiller(usecase.BackfillConfig{
		Symbols:        cfg.Scanner.Symbols,
		Timeframes:     scannerTimeframes(cfg),
		Bars:           cfg.Scanner.BackfillBars,
		Every:          cfg.Scanner.BackfillEvery,
		MaxGapFillBars: cfg.Scanner.MaxGapFillBars,
	}, provider, bars, snap, m, l)
}

// ProvideBarsHandler creates the Kafka bars topic handler.
func ProvideBarsHandler(cfg *config.Config, bars domrepo.BarStore, m domrepo.Metrics) pkgkafka.MessageHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, bars, m)
}

// ProvideAnalytics creates the reporting use case.
func ProvideAnalytics(
	cfg *config.Config,
	execs domrepo.ExecutionStore,
	sigs domrepo.SignalEventStore,
	bars domrepo.BarStore,
	governor domsvc.Governor,
	regime domsvc.RegimeDetector,
	vol domsvc.VolatilityForecaster,
	es *risk.ES95Estimator,
	snap *pkgcache.LayeredCache,
	l *applogger.Logger,
) *usecase.AnalyticsUseCase {
	return usecase.NewAnalyticsUseCase(usecase.AnalyticsConfig{
		StartingEquity: cfg.Risk.StartingEquity,
		Symbols:        cfg.Scanner.Symbols,
		PrimaryTF:      primaryTimeframe(cfg),
		WindowBars:     cfg.Scanner.WindowBars,
	}, execs, sigs, bars, governor, regime, vol, es, snap, l)
}

// ProvideExecutionJob creates the execution intake worker.
func ProvideExecutionJob(
	cfg *config.Config,
	execs domrepo.ExecutionStore,
	governor domsvc.Governor,
	pub domrepo.Publisher,
	analytics *usecase.AnalyticsUseCase,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.ExecutionJob {
	return usecase.NewExecutionJob(execs, governor, pub, cfg.Kafka.AuditTopic, analytics, m, l)
}

// ProvideBacktestJob creates the backtest runner worker.
func ProvideBacktestJob(store usecase.BacktestStore, bars domrepo.BarStore, engine *backtest.Engine, m domrepo.Metrics, l *applogger.Logger) *usecase.BacktestJob {
	return usecase.NewBacktestJob(store, bars, engine, m, l)
}

// ProvideQueue creates the Redis work queue with both jobs registered.
// The same instance serves the HTTP submit paths as producer.
func ProvideQueue(cfg *config.Config, l *applogger.Logger, cli *redis.Client, execJob *usecase.ExecutionJob, btJob *usecase.BacktestJob) *queue.RedisQueue {
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryBackoff,
	}, cli, queue.ModeProducerConsumer)
	q.RegisterJobs([]queue.Job{execJob, btJob})
	return q
}

// ProvideExecutionQueue exposes the queue to the submit use cases.
func ProvideExecutionQueue(q *queue.RedisQueue) usecase.ExecutionQueue {
	return q
}

// ProvideHealthHandler creates the health probe. The scanner heartbeat
// is considered stale after ten scan intervals.
func ProvideHealthHandler(
	cfg *config.Config,
	l *applogger.Logger,
	bars domrepo.BarStore,
	c *icache.RedisCache,
	scanner *usecase.AlphaScanner,
	collector *usecase.TickCollector,
) *api.HealthHandler {
	return api.NewHealthHandler(l, bars, c, scanner, collector, 10*cfg.Scanner.Interval)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	bars domrepo.BarStore,
	execs domrepo.ExecutionStore,
	sigs domrepo.SignalEventStore,
	governor *risk.EquityGovernor,
	collector *usecase.TickCollector,
	scanner *usecase.AlphaScanner,
	backfiller *usecase.Backfiller,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	barsHandler pkgkafka.MessageHandler,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	redisCli *redis.Client,
	pub domrepo.Publisher,
	m domrepo.Metrics,
	router *api.Router,
) *server.App {
	return server.New(cfg, server.Deps{
		Logger:      l,
		Bars:        bars,
		Execs:       execs,
		Signals:     sigs,
		Governor:    governor,
		Collector:   collector,
		Scanner:     scanner,
		Backfiller:  backfiller,
		Queue:       q,
		Consumer:    consumer,
		BarsHandler: barsHandler,
		Producer:    producer,
		CHClient:    chClient,
		RedisCli:    redisCli,
		Publisher:   pub,
		Metrics:     m,
		HTTP:        router,
	})
}

func scannerTimeframes(cfg *config.Config) []models.Timeframe {
	tfs := make([]models.Timeframe, 0, len(cfg.Scanner.Timeframes))
	for _, s := range cfg.Scanner.Timeframes {
		tfs = append(tfs, models.NormalizeTimeframe(s))
	}
	return tfs
}

func primaryTimeframe(cfg *config.Config) models.Timeframe {
	if len(cfg.Scanner.Timeframes) > 0 {
		return models.NormalizeTimeframe(cfg.Scanner.Timeframes[0])
	}
	return models.DefaultTimeframe()
}
