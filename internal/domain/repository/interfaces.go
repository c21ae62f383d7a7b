package repository

import (
	"context"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher fans domain events (signals, execution audits) out to the bus.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
	Close() error
}

// BarStore is the system of record for historical bars. Implementations
// must keep at most one visible bar per (symbol, timeframe, timestamp).
type BarStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	InsertBars(ctx context.Context, bars []*models.Bar) error
	Range(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time, limit int) ([]models.Bar, error)
	Latest(ctx context.Context, symbol string, tf models.Timeframe, n int) ([]models.Bar, error)
	LastTimestamp(ctx context.Context, symbol string, tf models.Timeframe) (time.Time, error)
	Health(ctx context.Context) error
	Close() error
}

// ExecutionStore persists execution reports and serves analytics reads.
type ExecutionStore interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, e *models.ExecutionReport) error
	Exists(ctx context.Context, ticket string) (bool, error)
	Range(ctx context.Context, from, to time.Time) ([]models.ExecutionReport, error)
	ByAlpha(ctx context.Context, from, to time.Time) (map[string][]models.ExecutionReport, error)
	Close() error
}

// SignalEventStore keeps the audit trail of emitted candidates.
type SignalEventStore interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, ev *models.SignalEvent) error
	AvgQStarByAlpha(ctx context.Context, from, to time.Time) (map[string]float64, error)
	Close() error
}

// SignalBook holds live candidates between scans and serves them to the
// signals endpoint. Entries expire on their own.
type SignalBook interface {
	Put(ctx context.Context, c *models.AlphaCandidate, ttl time.Duration) error
	List(ctx context.Context) ([]models.AlphaCandidate, error)
	Remove(ctx context.Context, id string) error
}

type Metrics interface {
	RecordTick(symbol string)
	RecordBarStored(symbol string, tf string, synthetic bool)
	RecordPipelineDepth(n int)
	RecordScan(symbol string, tf string, seconds float64)
	RecordCandidate(symbol string, alpha string)
	RecordSignalServed(symbol string)
	RecordExecution(symbol string, win bool)
	RecordGovernorState(state string)
	RecordInferenceLatency(seconds float64)
	RecordError(kind string)
}
