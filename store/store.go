// Package store provides the unified database storage layer.
// All database operations go through this package.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"gridpilot/logger"
)

// Store is the root of all persistence
type Store struct {
	db *sql.DB

	// Sub-stores (lazy initialization)
	fill       *FillStore
	allocation *AllocationStore
	equity     *EquityStore
	stats      *StatsStore
	instance   *InstanceStore

	mu sync.RWMutex
}

// New opens (or creates) the SQLite database at dbPath
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; WAL keeps readers unblocked
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("✅ Database initialized at %s", dbPath)
	return s, nil
}

// initTables initializes all database tables
func (s *Store) initTables() error {
	if err := s.Fill().initTables(); err != nil {
		return fmt.Errorf("failed to initialize fill tables: %w", err)
	}
	if err := s.Allocation().initTables(); err != nil {
		return fmt.Errorf("failed to initialize allocation tables: %w", err)
	}
	if err := s.Equity().initTables(); err != nil {
		return fmt.Errorf("failed to initialize equity tables: %w", err)
	}
	if err := s.Stats().initTables(); err != nil {
		return fmt.Errorf("failed to initialize stats tables: %w", err)
	}
	if err := s.Instance().initTables(); err != nil {
		return fmt.Errorf("failed to initialize instance tables: %w", err)
	}
	return nil
}

// Fill returns the fill sub-store
func (s *Store) Fill() *FillStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fill == nil {
		s.fill = &FillStore{db: s.db}
	}
	return s.fill
}

// Allocation returns the allocation sub-store
func (s *Store) Allocation() *AllocationStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocation == nil {
		s.allocation = &AllocationStore{db: s.db}
	}
	return s.allocation
}

// Equity returns the equity sub-store
func (s *Store) Equity() *EquityStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.equity == nil {
		s.equity = &EquityStore{db: s.db}
	}
	return s.equity
}

// Stats returns the trade statistics sub-store
func (s *Store) Stats() *StatsStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats == nil {
		s.stats = &StatsStore{db: s.db}
	}
	return s.stats
}

// Instance returns the supervision heartbeat sub-store
func (s *Store) Instance() *InstanceStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instance == nil {
		s.instance = &InstanceStore{db: s.db}
	}
	return s.instance
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
