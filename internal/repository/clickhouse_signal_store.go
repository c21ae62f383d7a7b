package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	pkgch "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/clickhouse"
	applogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

const signalEventsTable = "vprop.signal_events"

// CHSignalStore implements SignalEventStore backed by ClickHouse.
type CHSignalStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSignalStore(ch *pkgch.Client) *CHSignalStore {
	return &CHSignalStore{ch: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHSignalStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSignalStore) Init(ctx context.Context) error {
	if err := s.ch.InitSchema(ctx, SchemaStatements()); err != nil {
		return fmt.Errorf("signal store schema: %w", err)
	}
	return nil
}

func (s *CHSignalStore) Insert(ctx context.Context, ev *models.SignalEvent) error {
	c := ev.Candidate
	tradable := uint8(0)
	if c.Tradable {
		tradable = 1
	}
	q := fmt.Sprintf(`INSERT INTO %s
        (id, symbol, timeframe, direction, alpha, entry_price, stop_loss, take_profit,
         probability, qstar, es95, regime, tradable, generated_at, emitted_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, signalEventsTable)
	_, err := s.db.ExecContext(ctx, q,
		c.ID,
		c.Symbol,
		string(c.Timeframe),
		string(c.Direction),
		c.Alpha,
		c.EntryPrice,
		c.StopLoss,
		c.TakeProfit,
		c.Probability,
		c.QStar,
		c.ES95,
		c.Regime,
		tradable,
		c.GeneratedAt.UTC(),
		ev.EmittedAt.UTC(),
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse insert_signal_event error",
				applogger.String("symbol", c.Symbol),
				applogger.String("alpha", c.Alpha),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert signal event: %w", err)
	}
	return nil
}

func (s *CHSignalStore) AvgQStarByAlpha(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	q := fmt.Sprintf(`SELECT alpha, avg(qstar)
        FROM %s
        WHERE emitted_at >= ? AND emitted_at <= ?
        GROUP BY alpha`, signalEventsTable)
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("avg qstar by alpha: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			alpha string
			avg   float64
		)
		if err := rows.Scan(&alpha, &avg); err != nil {
			return nil, fmt.Errorf("scan avg qstar: %w", err)
		}
		out[alpha] = avg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHSignalStore) Close() error {
	return nil // Managed by pkg
}
