package store

import (
	"database/sql"
	"fmt"
	"time"
)

// FillStore is the audit trail of handled fills. The order_id uniqueness
// constraint backs the exactly-once guarantee across restarts.
type FillStore struct {
	db *sql.DB
}

// Fill is one handled order fill
type Fill struct {
	ID             int64     `json:"id"`
	Symbol         string    `json:"symbol"`
	OrderID        string    `json:"order_id"`
	ClientID       string    `json:"client_id"`
	Side           string    `json:"side"`
	Price          float64   `json:"price"`
	Quantity       float64   `json:"quantity"`
	CounterOrderID string    `json:"counter_order_id"`
	FilledAt       time.Time `json:"filled_at"`
}

func (s *FillStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			order_id TEXT NOT NULL UNIQUE,
			client_id TEXT,
			side TEXT NOT NULL,
			price REAL NOT NULL,
			quantity REAL NOT NULL,
			counter_order_id TEXT,
			filled_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_symbol_time ON fills(symbol, filled_at DESC)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Record inserts a fill. Returns false when the order was already
// recorded, which callers treat as a duplicate fill event.
func (s *FillStore) Record(f *Fill) (bool, error) {
	if f.FilledAt.IsZero() {
		f.FilledAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO fills (symbol, order_id, client_id, side, price, quantity, counter_order_id, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Symbol, f.OrderID, f.ClientID, f.Side, f.Price, f.Quantity, f.CounterOrderID, f.FilledAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record fill: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Recent returns the latest fills for a symbol, newest first
func (s *FillStore) Recent(symbol string, limit int) ([]Fill, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, order_id, client_id, side, price, quantity, counter_order_id, filled_at
		FROM fills WHERE symbol = ? ORDER BY filled_at DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []Fill
	for rows.Next() {
		var f Fill
		if err := rows.Scan(&f.ID, &f.Symbol, &f.OrderID, &f.ClientID, &f.Side,
			&f.Price, &f.Quantity, &f.CounterOrderID, &f.FilledAt); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// CountSince returns the number of fills for a symbol since t
func (s *FillStore) CountSince(symbol string, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM fills WHERE symbol = ? AND filled_at >= ?`,
		symbol, t.UTC()).Scan(&n)
	return n, err
}
