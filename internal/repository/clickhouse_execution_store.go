package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	pkgch "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/clickhouse"
	applogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

const executionsTable = "vprop.executions"

// executionSelect collapses ticket replays; the earliest write wins.
const executionSelect = `
    SELECT ticket,
           argMin(signal_id, created_at)   AS signal_id,
           argMin(alpha, created_at)       AS alpha,
           argMin(symbol, created_at)      AS symbol,
           argMin(timeframe, created_at)   AS timeframe,
           argMin(direction, created_at)   AS direction,
           argMin(lots, created_at)        AS lots,
           argMin(entry_price, created_at) AS entry_price,
           argMin(exit_price, created_at)  AS exit_price,
           argMin(entry_time, created_at)  AS entry_time,
           argMin(exit_time, created_at)   AS exit_time,
           argMin(profit, created_at)      AS profit,
           argMin(commission, created_at)  AS commission,
           argMin(swap, created_at)        AS swap
    FROM ` + executionsTable + `
`

// CHExecutionStore implements ExecutionStore backed by ClickHouse.
type CHExecutionStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHExecutionStore(ch *pkgch.Client) *CHExecutionStore {
	return &CHExecutionStore{ch: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHExecutionStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHExecutionStore) Init(ctx context.Context) error {
	if err := s.ch.InitSchema(ctx, SchemaStatements()); err != nil {
		return fmt.Errorf("execution store schema: %w", err)
	}
	return nil
}

func (s *CHExecutionStore) Insert(ctx context.Context, e *models.ExecutionReport) error {
	q := fmt.Sprintf(`INSERT INTO %s
        (ticket, signal_id, alpha, symbol, timeframe, direction, lots,
         entry_price, exit_price, entry_time, exit_time, profit, commission, swap)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, executionsTable)
	_, err := s.db.ExecContext(ctx, q,
		e.Ticket,
		e.SignalID,
		e.Alpha,
		e.Symbol,
		string(e.Timeframe),
		string(e.Direction),
		e.Lots,
		e.EntryPrice,
		e.ExitPrice,
		e.EntryTime.UTC(),
		e.ExitTime.UTC(),
		e.Profit,
		e.Commission,
		e.Swap,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse insert_execution error",
				applogger.String("ticket", e.Ticket),
				applogger.String("symbol", e.Symbol),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (s *CHExecutionStore) Exists(ctx context.Context, ticket string) (bool, error) {
	q := fmt.Sprintf("SELECT count() FROM %s WHERE ticket = ?", executionsTable)
	var n uint64
	if err := s.db.QueryRowContext(ctx, q, ticket).Scan(&n); err != nil {
		return false, fmt.Errorf("execution exists: %w", err)
	}
	return n > 0, nil
}

func (s *CHExecutionStore) Range(ctx context.Context, from, to time.Time) ([]models.ExecutionReport, error) {
	q := executionSelect + `
    WHERE exit_time >= ? AND exit_time <= ?
    GROUP BY ticket
    ORDER BY exit_time ASC
    `
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse executions_range query error", applogger.Error(err))
		}
		return nil, fmt.Errorf("executions range: %w", err)
	}
	defer rows.Close()
	return s.scanExecutions(rows)
}

func (s *CHExecutionStore) ByAlpha(ctx context.Context, from, to time.Time) (map[string][]models.ExecutionReport, error) {
	all, err := s.Range(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]models.ExecutionReport)
	for _, e := range all {
		out[e.Alpha] = append(out[e.Alpha], e)
	}
	return out, nil
}

func (s *CHExecutionStore) Close() error {
	return nil // Managed by pkg
}

func (s *CHExecutionStore) scanExecutions(rows *sql.Rows) ([]models.ExecutionReport, error) {
	out := make([]models.ExecutionReport, 0, 256)
	for rows.Next() {
		var (
			e                        models.ExecutionReport
			tf, direction            string
			profit, commission, swap decimal.Decimal
		)
		if err := rows.Scan(&e.Ticket, &e.SignalID, &e.Alpha, &e.Symbol, &tf, &direction,
			&e.Lots, &e.EntryPrice, &e.ExitPrice, &e.EntryTime, &e.ExitTime,
			&profit, &commission, &swap); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse execution scan error", applogger.Error(err))
			}
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Timeframe = models.Timeframe(tf)
		e.Direction = models.Direction(direction)
		e.Profit = profit
		e.Commission = commission
		e.Swap = swap
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
