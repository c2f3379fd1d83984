// Package sqlite provides a single-file SheetStore backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"labelsync/internal/model"
	"labelsync/internal/repository"

	_ "modernc.org/sqlite"
)

// Schema is the DDL for the sheet store.
const Schema = `
CREATE TABLE IF NOT EXISTS spreadsheets (
    id          TEXT PRIMARY KEY,
    created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sheets (
    spreadsheet_id  TEXT NOT NULL REFERENCES spreadsheets(id),
    name            TEXT NOT NULL,
    PRIMARY KEY (spreadsheet_id, name)
);

CREATE TABLE IF NOT EXISTS sheet_rows (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    spreadsheet_id  TEXT NOT NULL,
    sheet_name      TEXT NOT NULL,
    cells           TEXT NOT NULL,
    FOREIGN KEY (spreadsheet_id, sheet_name) REFERENCES sheets(spreadsheet_id, name)
);

CREATE INDEX IF NOT EXISTS idx_sheet_rows_sheet ON sheet_rows(spreadsheet_id, sheet_name, id);
`

// SheetStore wraps a SQLite connection.
type SheetStore struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) a sheet store database at the given path.
func Open(dbPath string) (*SheetStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SheetStore{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (s *SheetStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *SheetStore) Path() string {
	return s.path
}

// CreateSpreadsheet provisions a spreadsheet and its sheets, ignoring ones that exist.
func (s *SheetStore) CreateSpreadsheet(ctx context.Context, id string, sheetNames ...string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return model.NewBackendError("sqlite.begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO spreadsheets (id) VALUES (?)`, id); err != nil {
		return model.NewBackendError("sqlite.spreadsheets.insert", err)
	}
	for _, name := range sheetNames {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO sheets (spreadsheet_id, name) VALUES (?, ?)`, id, name); err != nil {
			return model.NewBackendError("sqlite.sheets.insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.NewBackendError("sqlite.commit", err)
	}
	return nil
}

func (s *SheetStore) Open(ctx context.Context, spreadsheetID string) (repository.Spreadsheet, error) {
	var id string
	err := s.conn.QueryRowContext(ctx, `SELECT id FROM spreadsheets WHERE id = ?`, spreadsheetID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewConfigurationError("spreadsheet", spreadsheetID, nil)
		}
		return nil, model.NewBackendError("sqlite.spreadsheets.select", err)
	}
	return &spreadsheet{conn: s.conn, id: id}, nil
}

type spreadsheet struct {
	conn *sql.DB
	id   string
}

func (s *spreadsheet) ID() string {
	return s.id
}

func (s *spreadsheet) SheetByName(ctx context.Context, name string) (repository.Table, error) {
	var found string
	err := s.conn.QueryRowContext(ctx,
		`SELECT name FROM sheets WHERE spreadsheet_id = ? AND name = ?`, s.id, name).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewConfigurationError("sheet", name, nil)
		}
		return nil, model.NewBackendError("sqlite.sheets.select", err)
	}
	return &table{conn: s.conn, spreadsheetID: s.id, name: found}, nil
}

type table struct {
	conn          *sql.DB
	spreadsheetID string
	name          string
}

func (t *table) Name() string {
	return t.name
}

func (t *table) LastRowIndex(ctx context.Context) (int, error) {
	var n int
	err := t.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sheet_rows WHERE spreadsheet_id = ? AND sheet_name = ?`,
		t.spreadsheetID, t.name).Scan(&n)
	if err != nil {
		return 0, model.NewBackendError("sqlite.sheet_rows.count", err)
	}
	return n, nil
}

func (t *table) AllRows(ctx context.Context) ([]model.Record, error) {
	rows, err := t.conn.QueryContext(ctx,
		`SELECT cells FROM sheet_rows WHERE spreadsheet_id = ? AND sheet_name = ? ORDER BY id ASC`,
		t.spreadsheetID, t.name)
	if err != nil {
		return nil, model.NewBackendError("sqlite.sheet_rows.select", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, model.NewBackendError("sqlite.sheet_rows.scan", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decode row cells: %w", err)
		}
		records = append(records, model.Record(cells))
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewBackendError("sqlite.sheet_rows.select", err)
	}
	return records, nil
}

func (t *table) AppendRow(ctx context.Context, record model.Record) error {
	cells, err := json.Marshal([]string(record))
	if err != nil {
		return fmt.Errorf("encode row cells: %w", err)
	}
	if _, err := t.conn.ExecContext(ctx,
		`INSERT INTO sheet_rows (spreadsheet_id, sheet_name, cells) VALUES (?, ?, ?)`,
		t.spreadsheetID, t.name, string(cells)); err != nil {
		return model.NewBackendError("sqlite.sheet_rows.insert", err)
	}
	return nil
}
