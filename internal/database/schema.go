package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// SchemaVersion is the version of the local schema. Bundles exported by a
// build with a different version are rejected on import.
const SchemaVersion = 8

var tables = []string{
	"accounts", "transactions", "customers", "vendors",
	"documents", "notifications", "backups", "meta",
}

var schema = []string{
	`CREATE TABLE accounts (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		type      TEXT NOT NULL,
		balance   TEXT NOT NULL,
		currency  TEXT NOT NULL,
		last_sync TEXT NOT NULL
	)`,
	`CREATE TABLE transactions (
		id          TEXT PRIMARY KEY,
		account_id  TEXT NOT NULL,
		date        TEXT NOT NULL,
		amount      TEXT NOT NULL,
		type        TEXT NOT NULL,
		category    TEXT NOT NULL,
		description TEXT NOT NULL,
		tags        TEXT NOT NULL DEFAULT '[]',
		customer_id TEXT,
		vendor_id   TEXT,
		reversal_of TEXT,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX idx_transactions_account ON transactions (account_id)`,
	`CREATE INDEX idx_transactions_date ON transactions (date)`,
	`CREATE INDEX idx_transactions_category ON transactions (category)`,
	`CREATE INDEX idx_transactions_type ON transactions (type)`,
	`CREATE UNIQUE INDEX idx_transactions_reversal ON transactions (reversal_of) WHERE reversal_of IS NOT NULL`,
	`CREATE TABLE customers (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		email            TEXT NOT NULL DEFAULT '',
		phone            TEXT NOT NULL DEFAULT '',
		total_revenue    TEXT NOT NULL,
		last_transaction TEXT
	)`,
	`CREATE TABLE vendors (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		email            TEXT NOT NULL DEFAULT '',
		phone            TEXT NOT NULL DEFAULT '',
		total_expense    TEXT NOT NULL,
		last_transaction TEXT
	)`,
	`CREATE TABLE documents (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		mime_type   TEXT NOT NULL,
		size        INTEGER NOT NULL,
		category    TEXT NOT NULL,
		uploaded_at TEXT NOT NULL,
		tags        TEXT NOT NULL DEFAULT '[]',
		url         TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX idx_documents_category ON documents (category)`,
	`CREATE TABLE notifications (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		title      TEXT NOT NULL,
		content    TEXT NOT NULL,
		payload    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		read       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX idx_notifications_created ON notifications (created_at)`,
	`CREATE INDEX idx_notifications_kind ON notifications (kind)`,
	`CREATE INDEX idx_notifications_read ON notifications (read)`,
	`CREATE TABLE backups (
		name       TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		data       BLOB NOT NULL
	)`,
	`CREATE TABLE meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Migrate creates the local schema. A database left by a build with a different
// SchemaVersion is wiped and recreated; the local store is a replica, not the
// source of truth, so upgrades are destructive.
func Migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version == SchemaVersion {
		return nil
	}

	if version != 0 {
		slog.Warn("local schema version mismatch, recreating tables", "found", version, "want", SchemaVersion)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("dropping %s: %w", t, err)
		}
	}

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}
