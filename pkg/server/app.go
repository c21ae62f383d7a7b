package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/risk"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/usecase"
	pkgch "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/clickhouse"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/config"
	xhttp "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/http"
	pkgkafka "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/kafka"
	applogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/queue"
)

const (
	storeInitTimeout      = 30 * time.Second
	defaultReconnectDelay = 5 * time.Second
	slowHandleThreshold   = 2 * time.Second

	logFlushInterval  = 30 * time.Second
	logBatchThreshold = 100
)

// Deps bundles everything the application lifecycle owns. Collector,
// consumer and producer may be nil when the stream or Kafka is disabled
// in config; the remaining components are required.
type Deps struct {
	Logger      *applogger.Logger
	Bars        domrepo.BarStore
	Execs       domrepo.ExecutionStore
	Signals     domrepo.SignalEventStore
	Governor    *risk.EquityGovernor
	Collector   *usecase.TickCollector
	Scanner     *usecase.AlphaScanner
	Backfiller  *usecase.Backfiller
	Queue       *queue.RedisQueue
	Consumer    *pkgkafka.Consumer
	BarsHandler pkgkafka.MessageHandler
	Producer    *pkgkafka.Producer
	CHClient    *pkgch.Client
	RedisCli    *redis.Client
	Publisher   domrepo.Publisher
	Metrics     domrepo.Metrics
	HTTP        xhttp.Handler
}

// App encapsulates the entire application lifecycle: schema init,
// governor state recovery, background loops, HTTP serving and ordered
// shutdown.
type App struct {
	cfg        *config.Config
	d          Deps
	httpServer *xhttp.Server
}

// New creates the application from its wired dependencies.
func New(cfg *config.Config, d Deps) *App {
	return &App{cfg: cfg, d: d}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.d.Logger

	if a.cfg.Kafka.Enabled && a.cfg.Kafka.LogsTopic != "" && a.d.Publisher != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   logFlushInterval,
			CountThreshold: logBatchThreshold,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      a.d.Publisher,
		})
		l.Info("log collector attached", applogger.String("topic", a.cfg.Kafka.LogsTopic))
	}

	if err := a.initStores(ctx); err != nil {
		return err
	}
	a.recoverGovernor(ctx)

	// Queue before any intake so submissions can enqueue immediately.
	if err := a.d.Queue.Start(); err != nil {
		return fmt.Errorf("queue start: %w", err)
	}

	if a.d.Consumer != nil && a.d.BarsHandler != nil {
		a.d.Consumer.WithConsumerHook(a.consumerHook())
		a.d.Consumer.RegisterHandler(a.d.BarsHandler)
		go func() {
			if err := a.d.Consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.d.BarsHandler.Topic()))
	}

	if a.d.Backfiller != nil {
		a.d.Backfiller.Start(ctx)
		l.Info("backfiller started",
			applogger.Int("bars", a.cfg.Scanner.BackfillBars),
			applogger.Duration("every", a.cfg.Scanner.BackfillEvery))
	}

	if a.d.Collector != nil {
		a.startCollector(ctx)
	}

	a.d.Scanner.Start(ctx)
	l.Info("alpha scanner started",
		applogger.Strings("symbols", a.cfg.Scanner.Symbols),
		applogger.Strings("timeframes", a.cfg.Scanner.Timeframes),
		applogger.Duration("interval", a.cfg.Scanner.Interval))

	a.httpServer = xhttp.NewServer(a.d.HTTP,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsLogger(l, 2*time.Second),
		xhttp.WithMetricsEndpoint(a.cfg.Metrics.Enabled, a.cfg.Metrics.Path),
	)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown()
}

// initStores creates ClickHouse tables on a bounded context so a dead
// database fails the boot instead of hanging it.
func (a *App) initStores(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, storeInitTimeout)
	defer cancel()

	if err := a.d.Bars.Init(initCtx); err != nil {
		return fmt.Errorf("bar store init: %w", err)
	}
	if err := a.d.Execs.Init(initCtx); err != nil {
		return fmt.Errorf("execution store init: %w", err)
	}
	if err := a.d.Signals.Init(initCtx); err != nil {
		return fmt.Errorf("signal event store init: %w", err)
	}
	return nil
}

// recoverGovernor restores risk state from the Redis mirror, falling
// back to a rebuild from execution history on a cold start. Neither
// path is allowed to fail the boot; worst case the governor starts
// pristine and re-learns from the next executions.
func (a *App) recoverGovernor(ctx context.Context) {
	l := a.d.Logger

	restored, err := a.d.Governor.Restore(ctx)
	if err != nil {
		l.Warn("governor mirror restore failed", applogger.Error(err))
	}
	if restored {
		snap := a.d.Governor.Snapshot()
		l.Info("governor state restored",
			applogger.String("state", string(snap.State)),
			applogger.Float64("equity", snap.Equity))
		return
	}

	if err := a.d.Governor.Rebuild(ctx, a.d.Execs); err != nil {
		l.Warn("governor rebuild failed, starting pristine", applogger.Error(err))
		return
	}
	snap := a.d.Governor.Snapshot()
	l.Info("governor state rebuilt from execution history",
		applogger.String("state", string(snap.State)),
		applogger.Float64("equity", snap.Equity))
}

// consumerHook tags each bars message with its start time and trace id,
// then flags slow handling and counts handler failures on the way out.
func (a *App) consumerHook() pkgkafka.ConsumerHook {
	l := a.d.Logger

	tag := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, msg kafka.Message, payload []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = pkgkafka.WithHandleStart(ctx, time.Now())
			ctx = pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(msg))
			return ctx, msg, payload, nil
		},
	}
	watch := pkgkafka.HookFuncs{
		After: func(ctx context.Context, topic string, _ kafka.Message, _ []byte, err error) {
			if err != nil {
				return
			}
			start, ok := pkgkafka.HandleStart(ctx)
			if !ok {
				return
			}
			if elapsed := time.Since(start); elapsed >= slowHandleThreshold {
				l.Warn("slow message handling",
					applogger.String("topic", topic),
					applogger.String("trace_id", pkgkafka.TraceID(ctx)),
					applogger.Int64("elapsed_ms", elapsed.Milliseconds()))
			}
		},
		Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, _ error) {
			if a.d.Metrics != nil {
				a.d.Metrics.RecordError("bars_consumer")
			}
		},
	}
	return pkgkafka.NewHookChain(tag, watch)
}

// startCollector connects the market stream, retrying in the background
// so a broker outage at boot does not kill the sidecar. Once connected
// the collector handles its own reconnects.
func (a *App) startCollector(ctx context.Context) {
	l := a.d.Logger
	delay := a.cfg.MarketData.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	go func() {
		for {
			err := a.d.Collector.Start(ctx)
			if err == nil {
				l.Info("tick collector started",
					applogger.Strings("symbols", a.cfg.Scanner.Symbols))
				return
			}
			l.Error("collector start failed, retrying",
				applogger.Error(err),
				applogger.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}()
}

// shutdown stops intake first (stream, scanner, backfiller, consumer,
// HTTP), then drains the queue workers, then closes the infrastructure
// clients. Everything shares one shutdown budget.
func (a *App) shutdown() error {
	l := a.d.Logger
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.d.Collector != nil {
		if err := a.d.Collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}

	a.d.Scanner.Stop()

	if a.d.Backfiller != nil {
		a.d.Backfiller.Stop()
	}

	if a.d.Consumer != nil {
		if err := a.d.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	// Queue last among the loops so in-flight submissions drain.
	if err := a.d.Queue.Stop(ctx); err != nil {
		l.Warn("queue stop error", applogger.Error(err))
	}

	// The log collector flushes through the producer; detach first.
	l.RemoveCollector()

	if a.d.Producer != nil {
		if err := a.d.Producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.d.CHClient != nil {
		if err := a.d.CHClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.d.RedisCli != nil {
		if err := a.d.RedisCli.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
