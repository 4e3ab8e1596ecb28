package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AllocationStore keeps one row per rebalance pass
type AllocationStore struct {
	db *sql.DB
}

// AllocationRecord is a persisted rebalance snapshot
type AllocationRecord struct {
	ID             int64              `json:"id"`
	Timestamp      time.Time          `json:"timestamp"`
	TotalCapital   float64            `json:"total_capital"`
	WorkingCapital float64            `json:"working_capital"`
	Tier           string             `json:"tier"`
	UsedFallback   bool               `json:"used_fallback"`
	Allocations    map[string]float64 `json:"allocations"`
}

func (s *AllocationStore) initTables() error {
	query := `CREATE TABLE IF NOT EXISTS allocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		total_capital REAL NOT NULL,
		working_capital REAL NOT NULL,
		tier TEXT NOT NULL,
		used_fallback INTEGER NOT NULL DEFAULT 0,
		allocations_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Save persists a rebalance snapshot
func (s *AllocationStore) Save(r *AllocationRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	blob, err := json.Marshal(r.Allocations)
	if err != nil {
		return fmt.Errorf("failed to marshal allocations: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO allocations (timestamp, total_capital, working_capital, tier, used_fallback, allocations_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC(), r.TotalCapital, r.WorkingCapital, r.Tier, boolToInt(r.UsedFallback), string(blob))
	if err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, nil when none exists
func (s *AllocationStore) Latest() (*AllocationRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, timestamp, total_capital, working_capital, tier, used_fallback, allocations_json
		FROM allocations ORDER BY timestamp DESC LIMIT 1`)

	var r AllocationRecord
	var fallback int
	var blob string
	err := row.Scan(&r.ID, &r.Timestamp, &r.TotalCapital, &r.WorkingCapital, &r.Tier, &fallback, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest allocation: %w", err)
	}
	r.UsedFallback = fallback != 0
	if err := json.Unmarshal([]byte(blob), &r.Allocations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allocations: %w", err)
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
