package postgres

import (
	"context"
	"database/sql"
	"errors"

	"labelsync/internal/model"
	"labelsync/internal/repository"

	"github.com/lib/pq"
)

// PostgresSheetStore keeps spreadsheet rows in PostgreSQL, one TEXT[] per row.
type PostgresSheetStore struct {
	db *sql.DB
}

func NewPostgresSheetStore(db *sql.DB) *PostgresSheetStore {
	return &PostgresSheetStore{db: db}
}

// CreateSpreadsheet provisions a spreadsheet and its sheets. Existing ones are left alone.
func (s *PostgresSheetStore) CreateSpreadsheet(ctx context.Context, id string, sheetNames ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewBackendError("postgres.begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO spreadsheets (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return model.NewBackendError("postgres.spreadsheets.insert", err)
	}
	for _, name := range sheetNames {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sheets (spreadsheet_id, name) VALUES ($1, $2) ON CONFLICT (spreadsheet_id, name) DO NOTHING`,
			id, name); err != nil {
			return model.NewBackendError("postgres.sheets.insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.NewBackendError("postgres.commit", err)
	}
	return nil
}

func (s *PostgresSheetStore) Open(ctx context.Context, spreadsheetID string) (repository.Spreadsheet, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM spreadsheets WHERE id = $1`, spreadsheetID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewConfigurationError("spreadsheet", spreadsheetID, nil)
		}
		return nil, model.NewBackendError("postgres.spreadsheets.select", err)
	}
	return &postgresSpreadsheet{db: s.db, id: id}, nil
}

type postgresSpreadsheet struct {
	db *sql.DB
	id string
}

func (s *postgresSpreadsheet) ID() string {
	return s.id
}

func (s *postgresSpreadsheet) SheetByName(ctx context.Context, name string) (repository.Table, error) {
	var found string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sheets WHERE spreadsheet_id = $1 AND name = $2`, s.id, name).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewConfigurationError("sheet", name, nil)
		}
		return nil, model.NewBackendError("postgres.sheets.select", err)
	}
	return &postgresTable{db: s.db, spreadsheetID: s.id, name: found}, nil
}

type postgresTable struct {
	db            *sql.DB
	spreadsheetID string
	name          string
}

func (t *postgresTable) Name() string {
	return t.name
}

func (t *postgresTable) LastRowIndex(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sheet_rows WHERE spreadsheet_id = $1 AND sheet_name = $2`,
		t.spreadsheetID, t.name).Scan(&n)
	if err != nil {
		return 0, model.NewBackendError("postgres.sheet_rows.count", err)
	}
	return n, nil
}

func (t *postgresTable) AllRows(ctx context.Context) ([]model.Record, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT cells FROM sheet_rows WHERE spreadsheet_id = $1 AND sheet_name = $2 ORDER BY id ASC`,
		t.spreadsheetID, t.name)
	if err != nil {
		return nil, model.NewBackendError("postgres.sheet_rows.select", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var cells []string
		if err := rows.Scan(pq.Array(&cells)); err != nil {
			return nil, model.NewBackendError("postgres.sheet_rows.scan", err)
		}
		records = append(records, model.Record(cells))
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewBackendError("postgres.sheet_rows.select", err)
	}
	return records, nil
}

func (t *postgresTable) AppendRow(ctx context.Context, record model.Record) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO sheet_rows (spreadsheet_id, sheet_name, cells) VALUES ($1, $2, $3)`,
		t.spreadsheetID, t.name, pq.Array([]string(record)))
	if err != nil {
		return model.NewBackendError("postgres.sheet_rows.insert", err)
	}
	return nil
}
