package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InstanceStore holds the single heartbeat row external supervision polls
// to tell a healthy instance from a wedged one.
type InstanceStore struct {
	db *sql.DB
}

// InstanceStatus is the latest supervision view of this process
type InstanceStatus struct {
	Status      string    `json:"status"` // running or halted
	KillSwitch  bool      `json:"kill_switch"`
	ActivePairs int       `json:"active_pairs"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

func (s *InstanceStore) initTables() error {
	query := `CREATE TABLE IF NOT EXISTS instance_status (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		status TEXT NOT NULL,
		kill_switch INTEGER NOT NULL DEFAULT 0,
		active_pairs INTEGER NOT NULL DEFAULT 0,
		heartbeat_at DATETIME NOT NULL
	)`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Heartbeat overwrites the supervision row with the current state
func (s *InstanceStore) Heartbeat(status string, killSwitch bool, activePairs int) error {
	_, err := s.db.Exec(`
		INSERT INTO instance_status (id, status, kill_switch, active_pairs, heartbeat_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			kill_switch = excluded.kill_switch,
			active_pairs = excluded.active_pairs,
			heartbeat_at = excluded.heartbeat_at`,
		status, killSwitch, activePairs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// Latest returns the supervision row, nil before the first heartbeat
func (s *InstanceStore) Latest() (*InstanceStatus, error) {
	row := s.db.QueryRow(`
		SELECT status, kill_switch, active_pairs, heartbeat_at
		FROM instance_status WHERE id = 1`)

	var is InstanceStatus
	err := row.Scan(&is.Status, &is.KillSwitch, &is.ActivePairs, &is.HeartbeatAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query instance status: %w", err)
	}
	return &is, nil
}
