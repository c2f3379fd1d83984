package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"labelsync/internal/logger"
	"labelsync/internal/model"
	"labelsync/internal/repository"
)

// Cells are written verbatim so message ids are never reinterpreted as numbers or dates.
const valueInputOption = "RAW"

type googleSheetStore struct {
	client *sheets.Service
	logger *logger.Logger
}

// NewGoogleSheetStore builds a store on the Sheets API using an already
// authorized HTTP client.
func NewGoogleSheetStore(ctx context.Context, httpClient *http.Client, logger *logger.Logger, opts ...option.ClientOption) (repository.SheetStore, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	sheetsService, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	return &googleSheetStore{
		client: sheetsService,
		logger: logger,
	}, nil
}

func (s *googleSheetStore) Open(ctx context.Context, spreadsheetID string) (repository.Spreadsheet, error) {
	spreadsheet, err := s.client.Spreadsheets.Get(spreadsheetID).
		Fields("spreadsheetId", "sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, model.NewConfigurationError("spreadsheet", spreadsheetID, err)
		}
		return nil, model.NewBackendError("sheets.spreadsheets.get", err)
	}

	titles := make([]string, 0, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil {
			titles = append(titles, sheet.Properties.Title)
		}
	}

	s.logger.Debug("Opened spreadsheet", spreadsheetID, "with sheets", titles)
	return &googleSpreadsheet{
		client: s.client,
		id:     spreadsheetID,
		titles: titles,
	}, nil
}

type googleSpreadsheet struct {
	client *sheets.Service
	id     string
	titles []string
}

func (s *googleSpreadsheet) ID() string {
	return s.id
}

func (s *googleSpreadsheet) SheetByName(ctx context.Context, name string) (repository.Table, error) {
	for _, title := range s.titles {
		if title == name {
			return &googleTable{client: s.client, spreadsheetID: s.id, name: name}, nil
		}
	}
	return nil, model.NewConfigurationError("sheet", name, nil)
}

type googleTable struct {
	client        *sheets.Service
	spreadsheetID string
	name          string
}

func (t *googleTable) Name() string {
	return t.name
}

func (t *googleTable) LastRowIndex(ctx context.Context) (int, error) {
	values, err := t.values(ctx)
	if err != nil {
		return 0, err
	}
	return len(values), nil
}

func (t *googleTable) AllRows(ctx context.Context) ([]model.Record, error) {
	values, err := t.values(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, len(values))
	for _, row := range values {
		records = append(records, toRecord(row))
	}
	return records, nil
}

func (t *googleTable) AppendRow(ctx context.Context, record model.Record) error {
	row := make([]interface{}, len(record))
	for i, cell := range record {
		row[i] = cell
	}

	_, err := t.client.Spreadsheets.Values.Append(t.spreadsheetID, A1Range(t.name, "A:E"), &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).
		ValueInputOption(valueInputOption).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return model.NewBackendError("sheets.values.append", err)
	}
	return nil
}

func (t *googleTable) values(ctx context.Context) ([][]interface{}, error) {
	resp, err := t.client.Spreadsheets.Values.Get(t.spreadsheetID, A1Range(t.name, "")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, model.NewBackendError("sheets.values.get", err)
	}
	return resp.Values, nil
}

// A1Range quotes a sheet name for use in A1 notation, optionally followed by
// a cell range such as "A:E".
func A1Range(sheetName, cells string) string {
	quoted := "'" + strings.ReplaceAll(sheetName, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

func toRecord(row []interface{}) model.Record {
	record := make(model.Record, len(row))
	for i, cell := range row {
		if cell == nil {
			continue
		}
		record[i] = fmt.Sprint(cell)
	}
	return record
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
