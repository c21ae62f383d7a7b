package repository

// ClickHouse DDL, applied idempotently at startup. Bar uniqueness on
// (symbol, timeframe, timestamp) is the ReplacingMergeTree sorting key;
// readers collapse replaced rows with argMax(created_at) so a late real
// bar wins over the synthetic filler it replaces.

const ddlDatabase = `CREATE DATABASE IF NOT EXISTS vprop`

const ddlHistoricalBars = `
CREATE TABLE IF NOT EXISTS vprop.historical_bars (
    id           UUID DEFAULT generateUUIDv4(),
    symbol       LowCardinality(String),
    timeframe    LowCardinality(String),
    timestamp    DateTime('UTC'),
    open         Float64,
    high         Float64,
    low          Float64,
    close        Float64,
    volume       Float64,
    is_synthetic UInt8 DEFAULT 0,
    created_at   DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(created_at)
PARTITION BY toYYYYMM(timestamp)
ORDER BY (symbol, timeframe, timestamp)
`

const ddlExecutions = `
CREATE TABLE IF NOT EXISTS vprop.executions (
    ticket      String,
    signal_id   String,
    alpha       LowCardinality(String),
    symbol      LowCardinality(String),
    timeframe   LowCardinality(String),
    direction   LowCardinality(String),
    lots        Float64,
    entry_price Float64,
    exit_price  Float64,
    entry_time  DateTime('UTC'),
    exit_time   DateTime('UTC'),
    profit      Decimal(18, 6),
    commission  Decimal(18, 6),
    swap        Decimal(18, 6),
    created_at  DateTime('UTC') DEFAULT now()
) ENGINE = ReplacingMergeTree(created_at)
ORDER BY (ticket)
`

const ddlSignalEvents = `
CREATE TABLE IF NOT EXISTS vprop.signal_events (
    id           String,
    symbol       LowCardinality(String),
    timeframe    LowCardinality(String),
    direction    LowCardinality(String),
    alpha        LowCardinality(String),
    entry_price  Float64,
    stop_loss    Float64,
    take_profit  Float64,
    probability  Float64,
    qstar        Float64,
    es95         Float64,
    regime       LowCardinality(String),
    tradable     UInt8,
    generated_at DateTime('UTC'),
    emitted_at   DateTime('UTC')
) ENGINE = MergeTree
PARTITION BY toYYYYMM(emitted_at)
ORDER BY (symbol, emitted_at)
`

// SchemaStatements returns all DDL in apply order.
func SchemaStatements() []string {
	return []string{ddlDatabase, ddlHistoricalBars, ddlExecutions, ddlSignalEvents}
}
