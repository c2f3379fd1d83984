package memory

import (
	"context"
	"sync"

	"labelsync/internal/model"
	"labelsync/internal/repository"
)

// InMemorySheetStore holds spreadsheets in process memory. Spreadsheets and
// sheets must be created up front, mirroring stores that are provisioned
// outside the service.
type InMemorySheetStore struct {
	spreadsheets map[string]*InMemorySpreadsheet
	mutex        sync.RWMutex
}

func NewInMemorySheetStore() *InMemorySheetStore {
	return &InMemorySheetStore{
		spreadsheets: make(map[string]*InMemorySpreadsheet),
	}
}

// CreateSpreadsheet registers a spreadsheet with the given empty sheets.
// Existing sheets are kept.
func (s *InMemorySheetStore) CreateSpreadsheet(id string, sheetNames ...string) *InMemorySpreadsheet {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	spreadsheet, exists := s.spreadsheets[id]
	if !exists {
		spreadsheet = &InMemorySpreadsheet{id: id, sheets: make(map[string]*InMemoryTable)}
		s.spreadsheets[id] = spreadsheet
	}
	for _, name := range sheetNames {
		spreadsheet.AddSheet(name)
	}
	return spreadsheet
}

func (s *InMemorySheetStore) Open(ctx context.Context, spreadsheetID string) (repository.Spreadsheet, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	spreadsheet, exists := s.spreadsheets[spreadsheetID]
	if !exists {
		return nil, model.NewConfigurationError("spreadsheet", spreadsheetID, nil)
	}
	return spreadsheet, nil
}

type InMemorySpreadsheet struct {
	id     string
	sheets map[string]*InMemoryTable
	mutex  sync.RWMutex
}

func (s *InMemorySpreadsheet) ID() string {
	return s.id
}

// AddSheet creates an empty sheet unless one with that name already exists.
func (s *InMemorySpreadsheet) AddSheet(name string) *InMemoryTable {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	table, exists := s.sheets[name]
	if !exists {
		table = &InMemoryTable{name: name}
		s.sheets[name] = table
	}
	return table
}

func (s *InMemorySpreadsheet) SheetByName(ctx context.Context, name string) (repository.Table, error) {
	table, err := s.Sheet(name)
	if err != nil {
		return nil, err
	}
	return table, nil
}

// Sheet is SheetByName with the concrete type, for tests that inspect rows.
func (s *InMemorySpreadsheet) Sheet(name string) (*InMemoryTable, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	table, exists := s.sheets[name]
	if !exists {
		return nil, model.NewConfigurationError("sheet", name, nil)
	}
	return table, nil
}

type InMemoryTable struct {
	name  string
	rows  []model.Record
	mutex sync.RWMutex
}

func (t *InMemoryTable) Name() string {
	return t.name
}

func (t *InMemoryTable) LastRowIndex(ctx context.Context) (int, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.rows), nil
}

func (t *InMemoryTable) AllRows(ctx context.Context) ([]model.Record, error) {
	return t.Rows(), nil
}

func (t *InMemoryTable) AppendRow(ctx context.Context, record model.Record) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.rows = append(t.rows, append(model.Record(nil), record...))
	return nil
}

// Rows returns a copy of every record.
func (t *InMemoryTable) Rows() []model.Record {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	rows := make([]model.Record, len(t.rows))
	for i, row := range t.rows {
		rows[i] = append(model.Record(nil), row...)
	}
	return rows
}
