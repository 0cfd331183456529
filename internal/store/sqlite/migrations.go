package sqlite

import (
	"context"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			token_hash TEXT PRIMARY KEY,
			token_prefix TEXT NOT NULL DEFAULT '',
			idx INTEGER NOT NULL DEFAULT 0,
			proxy TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL DEFAULT '',
			points REAL NOT NULL DEFAULT 0,
			quality INTEGER NOT NULL DEFAULT 0,
			missions_completed INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sweeps (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			accounts INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			shared INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			refreshed INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS shares (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sweep_id TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			quality INTEGER NOT NULL,
			points REAL NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS mission_completions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sweep_id TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			mission_id TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_shares_token ON shares(token_hash, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_missions_token ON mission_completions(token_hash, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
