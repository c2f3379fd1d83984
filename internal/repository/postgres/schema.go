package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// InitializeDatabase creates the necessary tables
func InitializeDatabase(ctx context.Context, db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS spreadsheets (
			id VARCHAR(255) PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS sheets (
			spreadsheet_id VARCHAR(255) NOT NULL REFERENCES spreadsheets(id),
			name VARCHAR(255) NOT NULL,
			PRIMARY KEY (spreadsheet_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS sheet_rows (
			id BIGSERIAL PRIMARY KEY,
			spreadsheet_id VARCHAR(255) NOT NULL,
			sheet_name VARCHAR(255) NOT NULL,
			cells TEXT[] NOT NULL,
			FOREIGN KEY (spreadsheet_id, sheet_name) REFERENCES sheets(spreadsheet_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sheet_rows_sheet ON sheet_rows(spreadsheet_id, sheet_name, id)`,
		`CREATE TABLE IF NOT EXISTS ingest_runs (
			id VARCHAR(255) PRIMARY KEY,
			label VARCHAR(255) NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			threads_seen INTEGER NOT NULL DEFAULT 0,
			messages_seen INTEGER NOT NULL DEFAULT 0,
			rows_added INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at DESC)`,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
