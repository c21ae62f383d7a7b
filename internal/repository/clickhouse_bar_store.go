package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	pkgch "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/clickhouse"
	applogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

const barsTable = "vprop.historical_bars"

// barSelect collapses replaced rows so at most one bar per
// (symbol, timeframe, timestamp) is visible regardless of merge state.
const barSelect = `
    SELECT symbol, timeframe, timestamp,
           argMax(open, created_at)         AS open,
           argMax(high, created_at)         AS high,
           argMax(low, created_at)          AS low,
           argMax(close, created_at)        AS close,
           argMax(volume, created_at)       AS volume,
           argMax(is_synthetic, created_at) AS is_synthetic
    FROM ` + barsTable + `
`

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client) *CHBarStore {
	return &CHBarStore{ch: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHBarStore) Init(ctx context.Context) error {
	if err := s.ch.InitSchema(ctx, SchemaStatements()); err != nil {
		return fmt.Errorf("bar store schema: %w", err)
	}
	return s.ch.Health(ctx)
}

func (s *CHBarStore) InsertBars(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, b := range bars[start:end] {
			if b == nil || b.Symbol == "" || b.Timestamp.IsZero() {
				continue
			}
			synthetic := uint8(0)
			if b.IsSynthetic {
				synthetic = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				b.Symbol,
				string(b.Timeframe),
				b.Timestamp.UTC(),
				b.Open,
				b.High,
				b.Low,
				b.Close,
				b.Volume,
				synthetic,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (symbol, timeframe, timestamp, open, high, low, close, volume, is_synthetic) VALUES %s",
			barsTable, strings.Join(values, ","),
		)
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse insert_bars error",
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	return nil
}

func (s *CHBarStore) Range(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	start := time.Now()
	q := barSelect + `
    WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
    GROUP BY symbol, timeframe, timestamp
    ORDER BY timestamp ASC
    `
	args := []interface{}{symbol, string(tf), from.UTC(), to.UTC()}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse bars_range query error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("bars range: %w", err)
	}
	defer rows.Close()

	out, err := s.scanBars(rows)
	if err != nil {
		return nil, err
	}
	if s.l != nil {
		s.l.Debug("clickhouse bars_range ok",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHBarStore) Latest(ctx context.Context, symbol string, tf models.Timeframe, n int) ([]models.Bar, error) {
	start := time.Now()
	q := barSelect + `
    WHERE symbol = ? AND timeframe = ?
    GROUP BY symbol, timeframe, timestamp
    ORDER BY timestamp DESC
    LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_bars query error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("latest bars: %w", err)
	}
	defer rows.Close()

	tmp, err := s.scanBars(rows)
	if err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Debug("clickhouse latest_bars ok",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

func (s *CHBarStore) LastTimestamp(ctx context.Context, symbol string, tf models.Timeframe) (time.Time, error) {
	q := fmt.Sprintf("SELECT max(timestamp) FROM %s WHERE symbol = ? AND timeframe = ?", barsTable)
	var ts time.Time
	if err := s.db.QueryRowContext(ctx, q, symbol, string(tf)).Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("last timestamp: %w", err)
	}
	return ts, nil
}

func (s *CHBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHBarStore) Close() error {
	return nil // Managed by pkg
}

func (s *CHBarStore) scanBars(rows *sql.Rows) ([]models.Bar, error) {
	out := make([]models.Bar, 0, 512)
	for rows.Next() {
		var (
			b         models.Bar
			tf        string
			synthetic uint8
		)
		if err := rows.Scan(&b.Symbol, &tf, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &synthetic); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse bar scan error", applogger.Error(err))
			}
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timeframe = models.Timeframe(tf)
		b.IsSynthetic = synthetic == 1
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
