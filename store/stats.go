package store

import (
	"database/sql"
	"fmt"
	"time"
)

// StatsStore keeps per-symbol lifetime trading aggregates, updated by the
// grid controllers as fills are handled.
type StatsStore struct {
	db *sql.DB
}

// TradeStats is the running aggregate for one symbol
type TradeStats struct {
	Symbol         string    `json:"symbol"`
	Fills          int       `json:"fills"`
	CounterFills   int       `json:"counter_fills"`
	RealizedProfit float64   `json:"realized_profit"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *StatsStore) initTables() error {
	query := `CREATE TABLE IF NOT EXISTS trade_stats (
		symbol TEXT PRIMARY KEY,
		fills INTEGER NOT NULL DEFAULT 0,
		counter_fills INTEGER NOT NULL DEFAULT 0,
		realized_profit REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// RecordFill bumps the counters for one handled fill. profit is zero for
// entry fills and the round-trip gain for counter fills.
func (s *StatsStore) RecordFill(symbol string, counter bool, profit float64) error {
	fills, counterFills := 1, 0
	if counter {
		fills, counterFills = 0, 1
	}
	_, err := s.db.Exec(`
		INSERT INTO trade_stats (symbol, fills, counter_fills, realized_profit, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			fills = fills + excluded.fills,
			counter_fills = counter_fills + excluded.counter_fills,
			realized_profit = realized_profit + excluded.realized_profit,
			updated_at = excluded.updated_at`,
		symbol, fills, counterFills, profit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record trade stats: %w", err)
	}
	return nil
}

// Get returns the aggregate for symbol, nil when it has never traded
func (s *StatsStore) Get(symbol string) (*TradeStats, error) {
	row := s.db.QueryRow(`
		SELECT symbol, fills, counter_fills, realized_profit, updated_at
		FROM trade_stats WHERE symbol = ?`, symbol)

	var ts TradeStats
	err := row.Scan(&ts.Symbol, &ts.Fills, &ts.CounterFills, &ts.RealizedProfit, &ts.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trade stats: %w", err)
	}
	return &ts, nil
}
