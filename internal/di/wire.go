//go:build wireinject
// +build wireinject

package di

import (
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/handler/api"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/usecase"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/config"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideLogger,
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideRedisCache,
		ProvideSnapshotCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideMetrics,

		// Stores
		ProvideBarStore,
		ProvideExecutionStore,
		ProvideSignalEventStore,
		ProvideSignalBook,
		ProvideFeatureStore,
		ProvideBacktestStore,
		ProvidePublisher,

		// Quant services
		ProvideExtractor,
		ProvideRegistry,
		ProvideTrainerConfig,
		ProvideTrainer,
		ProvideAnomalyDetector,
		ProvideRegimeDetector,
		ProvideVolForecaster,
		ProvideEdgeScorer,
		ProvideES95,
		ProvideGovernor,
		ProvideGovernorService,
		ProvideSizer,
		ProvideBacktestEngine,

		// Market data
		ProvideCandleProvider,
		ProvideMarketStream,

		// Pipelines and loops
		ProvideBarPipeline,
		ProvideCollector,
		ProvideScanner,
		ProvideBackfiller,
		ProvideBarsHandler,

		// Use cases and queue workers
		ProvideAnalytics,
		ProvideExecutionJob,
		ProvideBacktestJob,
		ProvideQueue,
		ProvideExecutionQueue,
		usecase.NewSignalsUseCase,
		usecase.NewExecutionsUseCase,
		usecase.NewBacktestsUseCase,

		// HTTP layer
		api.NewSignalsHandler,
		api.NewExecutionsHandler,
		api.NewAnalyticsHandler,
		api.NewBacktestsHandler,
		ProvideHealthHandler,
		api.NewRouter,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
