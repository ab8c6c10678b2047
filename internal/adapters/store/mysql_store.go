package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS learning_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			action VARCHAR(64) NOT NULL,
			approved BOOLEAN NOT NULL,
			recorded_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			setting_key VARCHAR(255) PRIMARY KEY,
			setting_value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sender_profiles (
			address VARCHAR(255) PRIMARY KEY,
			delivered INT NOT NULL,
			read_count INT NOT NULL,
			interactions INT NOT NULL,
			last_interaction BIGINT NOT NULL,
			total_response_ns BIGINT NOT NULL,
			responses INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dispatch_claims (
			claim_key CHAR(64) PRIMARY KEY,
			claimed_at BIGINT NOT NULL,
			INDEX idx_claimed_at (claimed_at)
		)`,
		`CREATE TABLE IF NOT EXISTS mailbox_state (
			message_id VARCHAR(255) PRIMARY KEY,
			state VARCHAR(32) NOT NULL,
			until_ns BIGINT NOT NULL,
			note TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
	},
	claim: `INSERT IGNORE INTO dispatch_claims (claim_key, claimed_at) VALUES (?, ?)`,
}

// NewMySQLStore connects to MySQL and prepares the schema
func NewMySQLStore(dsn string, opts Options, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	return newSQLStore(db, mysqlDialect, opts, logger)
}
