package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database at dbPath.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// initSchema creates all required tables and indexes.
func (j *SQLiteJournal) initSchema() error {
	schema := `
	-- One row per realtime signal pass
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		strategy TEXT,
		action TEXT,
		quantity INTEGER NOT NULL,
		confidence REAL,
		status TEXT NOT NULL,
		order_id TEXT,
		risk_check TEXT,
		reason TEXT,
		failure TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Terminal orders seen by reconciliation
	CREATE TABLE IF NOT EXISTS order_updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		strategy TEXT,
		status TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		filled_quantity INTEGER NOT NULL,
		filled_price REAL NOT NULL,
		equity REAL,
		cash REAL,
		daily_pnl REAL,
		drawdown REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(order_id, status)
	);

	CREATE INDEX IF NOT EXISTS idx_executions_symbol ON executions(symbol, timestamp);
	CREATE INDEX IF NOT EXISTS idx_order_updates_symbol ON order_updates(symbol, timestamp);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// RecordExecution saves an execution record.
func (j *SQLiteJournal) RecordExecution(ctx context.Context, rec ExecutionRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO executions (timestamp, symbol, strategy, action, quantity, confidence, status, order_id, risk_check, reason, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Timestamp, rec.Symbol, rec.Strategy, rec.Action, rec.Quantity, rec.Confidence, rec.Status, rec.OrderID, rec.RiskCheck, rec.Reason, rec.Failure)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// RecordOrderUpdate saves an order update. A repeated (order, status) pair
// is ignored.
func (j *SQLiteJournal) RecordOrderUpdate(ctx context.Context, rec OrderUpdateRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO order_updates (timestamp, order_id, symbol, side, strategy, status, quantity, filled_quantity, filled_price, equity, cash, daily_pnl, drawdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Timestamp, rec.OrderID, rec.Symbol, rec.Side, rec.Strategy, rec.Status, rec.Quantity, rec.FilledQty, rec.FilledPrice, rec.Equity, rec.Cash, rec.DailyPnL, rec.Drawdown)
	if err != nil {
		return fmt.Errorf("failed to record order update: %w", err)
	}
	return nil
}

// Executions retrieves execution records, newest first.
func (j *SQLiteJournal) Executions(ctx context.Context, filter ExecutionFilter) ([]ExecutionRecord, error) {
	query := "SELECT timestamp, symbol, strategy, action, quantity, confidence, status, order_id, risk_check, reason, failure FROM executions WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since)
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var r ExecutionRecord
		if err := rows.Scan(&r.Timestamp, &r.Symbol, &r.Strategy, &r.Action, &r.Quantity, &r.Confidence, &r.Status, &r.OrderID, &r.RiskCheck, &r.Reason, &r.Failure); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// OrderUpdates retrieves order updates, newest first.
func (j *SQLiteJournal) OrderUpdates(ctx context.Context, filter UpdateFilter) ([]OrderUpdateRecord, error) {
	query := "SELECT timestamp, order_id, symbol, side, strategy, status, quantity, filled_quantity, filled_price, equity, cash, daily_pnl, drawdown FROM order_updates WHERE 1=1"
	args := []interface{}{}

	if filter.OrderID != "" {
		query += " AND order_id = ?"
		args = append(args, filter.OrderID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order updates: %w", err)
	}
	defer rows.Close()

	var records []OrderUpdateRecord
	for rows.Next() {
		var r OrderUpdateRecord
		if err := rows.Scan(&r.Timestamp, &r.OrderID, &r.Symbol, &r.Side, &r.Strategy, &r.Status, &r.Quantity, &r.FilledQty, &r.FilledPrice, &r.Equity, &r.Cash, &r.DailyPnL, &r.Drawdown); err != nil {
			return nil, fmt.Errorf("failed to scan order update: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
