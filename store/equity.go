package store

import (
	"database/sql"
	"fmt"
	"time"
)

// EquityStore keeps the equity history that drawdown checks and the
// hourly report are computed from
type EquityStore struct {
	db *sql.DB
}

// EquityPoint is one equity observation
type EquityPoint struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	TotalEquity   float64   `json:"total_equity"`
	Balance       float64   `json:"balance"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	PositionCount int       `json:"position_count"`
	DrawdownPct   float64   `json:"drawdown_pct"`
}

func (s *EquityStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS equity_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			total_equity REAL NOT NULL DEFAULT 0,
			balance REAL NOT NULL DEFAULT 0,
			unrealized_pnl REAL NOT NULL DEFAULT 0,
			position_count INTEGER DEFAULT 0,
			drawdown_pct REAL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_timestamp ON equity_points(timestamp DESC)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Save stores an equity point
func (s *EquityStore) Save(p *EquityPoint) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO equity_points (timestamp, total_equity, balance, unrealized_pnl, position_count, drawdown_pct)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Timestamp.UTC(), p.TotalEquity, p.Balance, p.UnrealizedPnL, p.PositionCount, p.DrawdownPct)
	if err != nil {
		return fmt.Errorf("failed to save equity point: %w", err)
	}
	return nil
}

// Range returns equity points between from and to, oldest first
func (s *EquityStore) Range(from, to time.Time) ([]EquityPoint, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, total_equity, balance, unrealized_pnl, position_count, drawdown_pct
		FROM equity_points WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query equity points: %w", err)
	}
	defer rows.Close()

	var points []EquityPoint
	for rows.Next() {
		var p EquityPoint
		if err := rows.Scan(&p.ID, &p.Timestamp, &p.TotalEquity, &p.Balance,
			&p.UnrealizedPnL, &p.PositionCount, &p.DrawdownPct); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Latest returns the newest equity point, nil when history is empty
func (s *EquityStore) Latest() (*EquityPoint, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, total_equity, balance, unrealized_pnl, position_count, drawdown_pct
		FROM equity_points ORDER BY timestamp DESC LIMIT 1`)

	var p EquityPoint
	err := row.Scan(&p.ID, &p.Timestamp, &p.TotalEquity, &p.Balance,
		&p.UnrealizedPnL, &p.PositionCount, &p.DrawdownPct)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest equity point: %w", err)
	}
	return &p, nil
}
