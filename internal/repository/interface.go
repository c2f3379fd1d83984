package repository

import (
	"context"
	"errors"

	"labelsync/internal/model"
)

// ErrRunNotFound is returned by RunRepository lookups and updates for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// SheetStore opens destination spreadsheets by identifier.
type SheetStore interface {
	Open(ctx context.Context, spreadsheetID string) (Spreadsheet, error)
}

// Spreadsheet resolves named tables within one store.
type Spreadsheet interface {
	ID() string
	SheetByName(ctx context.Context, name string) (Table, error)
}

// Table is an append-only sequence of records.
type Table interface {
	Name() string
	// LastRowIndex returns the 1-based index of the last row, 0 when empty.
	LastRowIndex(ctx context.Context) (int, error)
	AllRows(ctx context.Context) ([]model.Record, error)
	AppendRow(ctx context.Context, record model.Record) error
}

// RunRepository keeps the diagnostic history of ingestion runs.
type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	Update(ctx context.Context, run *model.Run) error
	FindByID(ctx context.Context, id string) (*model.Run, error)
	// FindRecent returns up to limit runs, newest first.
	FindRecent(ctx context.Context, limit int) ([]*model.Run, error)
}
