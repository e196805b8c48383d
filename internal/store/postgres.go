package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"score-trader/internal/types"
)

// Postgres persists the position ledger and alert history so portfolio
// state survives a process restart without replaying quotes.
type Postgres struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id            TEXT PRIMARY KEY,
	symbol        TEXT NOT NULL,
	instrument    TEXT NOT NULL,
	side          TEXT NOT NULL,
	qty           DOUBLE PRECISION NOT NULL,
	entry_price   DOUBLE PRECISION NOT NULL,
	stop_loss     DOUBLE PRECISION NOT NULL,
	take_profit   DOUBLE PRECISION NOT NULL,
	opened_at     TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	close_reason  TEXT,
	exit_price    DOUBLE PRECISION,
	closed_at     TIMESTAMPTZ,
	realized_pnl  DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS positions_status_idx ON positions (status);

CREATE TABLE IF NOT EXISTS alerts (
	id          BIGSERIAL PRIMARY KEY,
	severity    TEXT NOT NULL,
	position_id TEXT,
	symbol      TEXT,
	message     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
`

// NewPostgres connects, verifies the connection and ensures the schema.
// The schema statements run in one transaction so a failure partway
// through never leaves half the tables behind.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, schema)
		return err
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// querier abstracts the pool and an open transaction so the read paths
// can run standalone or inside InTx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// SavePosition inserts a freshly opened position.
func (s *Postgres) SavePosition(ctx context.Context, p types.Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions
			(id, symbol, instrument, side, qty, entry_price, stop_loss, take_profit, opened_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Symbol, string(p.Type), string(p.Side), p.Qty,
		p.EntryPrice, p.StopLoss, p.TakeProfit, p.OpenedAt, string(p.Status))
	if err != nil {
		return fmt.Errorf("save position %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePosition rewrites mutable fields: status, stops, close details.
func (s *Postgres) UpdatePosition(ctx context.Context, p types.Position) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET
			stop_loss = $2, take_profit = $3, status = $4,
			close_reason = NULLIF($5, ''), exit_price = $6, closed_at = $7, realized_pnl = $8
		WHERE id = $1`,
		p.ID, p.StopLoss, p.TakeProfit, string(p.Status),
		string(p.CloseReason), p.ExitPrice, nullTime(p), p.RealizedPnL)
	if err != nil {
		return fmt.Errorf("update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update position %s: no row", p.ID)
	}
	return nil
}

func nullTime(p types.Position) interface{} {
	if p.ClosedAt.IsZero() {
		return nil
	}
	return p.ClosedAt
}

// LoadOpenPositions returns every OPEN position for restart rehydration.
func (s *Postgres) LoadOpenPositions(ctx context.Context) ([]types.Position, error) {
	return loadOpen(ctx, s.pool)
}

func loadOpen(ctx context.Context, q querier) ([]types.Position, error) {
	rows, err := q.Query(ctx, `
		SELECT id, symbol, instrument, side, qty, entry_price, stop_loss, take_profit, opened_at, status
		FROM positions WHERE status = 'OPEN' ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var p types.Position
		var instrument, side, status string
		if err := rows.Scan(&p.ID, &p.Symbol, &instrument, &side, &p.Qty,
			&p.EntryPrice, &p.StopLoss, &p.TakeProfit, &p.OpenedAt, &status); err != nil {
			return nil, err
		}
		p.Type = types.InstrumentType(instrument)
		p.Side = types.Side(side)
		p.Status = types.PositionStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoadClosedPositions returns closed history, newest first, up to limit.
func (s *Postgres) LoadClosedPositions(ctx context.Context, limit int) ([]types.Position, error) {
	return loadClosed(ctx, s.pool, limit)
}

func loadClosed(ctx context.Context, q querier, limit int) ([]types.Position, error) {
	rows, err := q.Query(ctx, `
		SELECT id, symbol, instrument, side, qty, entry_price, stop_loss, take_profit,
		       opened_at, status, COALESCE(close_reason, ''), COALESCE(exit_price, 0),
		       COALESCE(closed_at, 'epoch'::timestamptz), COALESCE(realized_pnl, 0)
		FROM positions WHERE status = 'CLOSED' ORDER BY closed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load closed positions: %w", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var p types.Position
		var instrument, side, status, reason string
		if err := rows.Scan(&p.ID, &p.Symbol, &instrument, &side, &p.Qty,
			&p.EntryPrice, &p.StopLoss, &p.TakeProfit, &p.OpenedAt, &status,
			&reason, &p.ExitPrice, &p.ClosedAt, &p.RealizedPnL); err != nil {
			return nil, err
		}
		p.Type = types.InstrumentType(instrument)
		p.Side = types.Side(side)
		p.Status = types.PositionStatus(status)
		p.CloseReason = types.CloseReason(reason)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveAlert appends one alert to the durable history.
func (s *Postgres) SaveAlert(ctx context.Context, a types.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (severity, position_id, symbol, message, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5)`,
		string(a.Severity), a.PositionID, a.Symbol, a.Message, a.Time)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

// LoadAlerts returns recent alerts, newest first.
func (s *Postgres) LoadAlerts(ctx context.Context, limit int) ([]types.Alert, error) {
	return loadAlerts(ctx, s.pool, limit)
}

func loadAlerts(ctx context.Context, q querier, limit int) ([]types.Alert, error) {
	rows, err := q.Query(ctx, `
		SELECT severity, COALESCE(position_id, ''), COALESCE(symbol, ''), message, created_at
		FROM alerts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		var a types.Alert
		var severity string
		if err := rows.Scan(&severity, &a.PositionID, &a.Symbol, &a.Message, &a.Time); err != nil {
			return nil, err
		}
		a.Severity = types.Severity(severity)
		out = append(out, a)
	}
	return out, rows.Err()
}

// LoadState reads open positions, recent closed history and recent
// alerts in a single transaction, so restart rehydration sees one view
// of the ledger rather than three independent reads.
func (s *Postgres) LoadState(ctx context.Context, closedLimit, alertLimit int) (open, closed []types.Position, history []types.Alert, err error) {
	err = s.InTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		if open, txErr = loadOpen(ctx, tx); txErr != nil {
			return txErr
		}
		if closed, txErr = loadClosed(ctx, tx, closedLimit); txErr != nil {
			return txErr
		}
		history, txErr = loadAlerts(ctx, tx, alertLimit)
		return txErr
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load state: %w", err)
	}
	return open, closed, history, nil
}

// InTx runs fn inside a read-committed transaction, rolling back on error
// or panic.
func (s *Postgres) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
