package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS learning_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL,
			action TEXT NOT NULL,
			approved BOOLEAN NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			setting_key TEXT PRIMARY KEY,
			setting_value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sender_profiles (
			address TEXT PRIMARY KEY,
			delivered INTEGER NOT NULL,
			read_count INTEGER NOT NULL,
			interactions INTEGER NOT NULL,
			last_interaction INTEGER NOT NULL,
			total_response_ns INTEGER NOT NULL,
			responses INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dispatch_claims (
			claim_key TEXT PRIMARY KEY,
			claimed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claimed_at ON dispatch_claims(claimed_at)`,
		`CREATE TABLE IF NOT EXISTS mailbox_state (
			message_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			until_ns INTEGER NOT NULL,
			note TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	},
	claim: `INSERT OR IGNORE INTO dispatch_claims (claim_key, claimed_at) VALUES (?, ?)`,
}

// NewSQLiteStore opens (creating if needed) a SQLite store at dbPath
func NewSQLiteStore(dbPath string, opts Options, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	return newSQLStore(db, sqliteDialect, opts, logger)
}
