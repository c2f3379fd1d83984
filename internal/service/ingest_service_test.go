package service_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"labelsync/internal/logger"
	"labelsync/internal/mailbox"
	"labelsync/internal/model"
	"labelsync/internal/repository"
	"labelsync/internal/repository/memory"
	"labelsync/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSpreadsheet = "sheet-123"
	testSheet       = "Sheet1"
	testLabel       = "Receipts"
)

var (
	ingestedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d1         = time.Date(2024, 5, 30, 8, 15, 0, 0, time.UTC)
	d2         = time.Date(2024, 5, 31, 9, 30, 0, 0, time.UTC)
)

func fixedClock() time.Time { return ingestedAt }

type fixture struct {
	store   *memory.InMemorySheetStore
	table   *memory.InMemoryTable
	mailbox *mailbox.MockMailboxClient
	runs    *memory.InMemoryRunRepository
}

func newFixture(t *testing.T, threads ...*model.Thread) *fixture {
	t.Helper()
	store := memory.NewInMemorySheetStore()
	table := store.CreateSpreadsheet(testSpreadsheet).AddSheet(testSheet)
	return &fixture{
		store:   store,
		table:   table,
		mailbox: mailbox.NewMockMailboxClient(threads...),
		runs:    memory.NewInMemoryRunRepository(),
	}
}

func (f *fixture) service(indexed bool) service.IngestService {
	return service.NewIngestService(service.IngestOptions{
		LabelName:     testLabel,
		SpreadsheetID: testSpreadsheet,
		SheetName:     testSheet,
		IndexedDedup:  indexed,
	}, f.mailbox, f.store, logger.Discard(), service.WithClock(fixedClock), service.WithRunRepository(f.runs))
}

func messageIDs(rows []model.Record) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows[1:] {
		ids = append(ids, row.MessageID())
	}
	return ids
}

func TestRunEmptyStoreSingleMessage(t *testing.T) {
	// Setup
	m1 := model.NewMessage("m1", "t1", "a@x.com", "Hi", d1)
	f := newFixture(t, model.NewThread("t1", m1))

	// Execute
	err := f.service(false).Run(context.Background())

	// Verify
	require.NoError(t, err)
	rows := f.table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, model.Header, rows[0])
	assert.Equal(t, model.Record{"2024-06-01T12:00:00Z", "m1", "a@x.com", "Hi", "2024-05-30T08:15:00Z"}, rows[1])
	assert.Equal(t, []string{"m1"}, f.mailbox.Starred())
}

func TestRunSkipsRecordedMessage(t *testing.T) {
	// Setup
	m1 := model.NewMessage("m1", "t1", "a@x.com", "Hi", d1)
	f := newFixture(t, model.NewThread("t1", m1))
	existing := model.Record{"2024-05-30T09:00:00Z", "m1", "a@x.com", "Hi", "2024-05-30T08:15:00Z"}
	require.NoError(t, f.table.AppendRow(context.Background(), model.Header))
	require.NoError(t, f.table.AppendRow(context.Background(), existing))

	// Execute
	err := f.service(false).Run(context.Background())

	// Verify
	require.NoError(t, err)
	assert.Equal(t, []model.Record{model.Header, existing}, f.table.Rows())
	assert.Empty(t, f.mailbox.Starred())
}

func TestRunAppendsOnlyNewMessageOfThread(t *testing.T) {
	// Setup
	m1 := model.NewMessage("m1", "t1", "a@x.com", "Hi", d1)
	m2 := model.NewMessage("m2", "t1", "b@x.com", "Re: Hi", d2)
	f := newFixture(t, model.NewThread("t1", m1, m2))
	existing := model.Record{"2024-05-30T09:00:00Z", "m1", "a@x.com", "Hi", "2024-05-30T08:15:00Z"}
	require.NoError(t, f.table.AppendRow(context.Background(), model.Header))
	require.NoError(t, f.table.AppendRow(context.Background(), existing))

	// Execute
	err := f.service(false).Run(context.Background())

	// Verify
	require.NoError(t, err)
	rows := f.table.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, existing, rows[1])
	assert.Equal(t, "m2", rows[2].MessageID())
	assert.Equal(t, []string{"m2"}, f.mailbox.Starred())
}

func TestRunIsIdempotent(t *testing.T) {
	for _, indexed := range []bool{false, true} {
		// Setup
		f := newFixture(t,
			model.NewThread("t1", model.NewMessage("m1", "t1", "a@x.com", "Hi", d1), model.NewMessage("m2", "t1", "b@x.com", "Re: Hi", d2)),
			model.NewThread("t2", model.NewMessage("m3", "t2", "", "", time.Time{})),
		)
		svc := f.service(indexed)

		// Execute
		require.NoError(t, svc.Run(context.Background()))
		first := f.table.Rows()
		require.NoError(t, svc.Run(context.Background()))

		// Verify
		assert.Equal(t, first, f.table.Rows())
		assert.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(first))
		assert.Equal(t, model.Record{"2024-06-01T12:00:00Z", "m3", "", "", ""}, first[3])
	}
}

func TestRunNeverDuplicatesIDs(t *testing.T) {
	// Setup: the same message is reachable through two threads and repeated
	shared := model.NewMessage("m1", "t1", "a@x.com", "Hi", d1)
	f := newFixture(t,
		model.NewThread("t1", shared, shared),
		model.NewThread("t2", shared, model.NewMessage("m2", "t2", "b@x.com", "Other", d2)),
	)

	// Execute
	for i := 0; i < 3; i++ {
		require.NoError(t, f.service(i%2 == 1).Run(context.Background()))
	}

	// Verify
	rows := f.table.Rows()
	seen := make(map[string]bool)
	for _, id := range messageIDs(rows) {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, rows, 3)
}

func TestRunWritesHeaderOnce(t *testing.T) {
	// Setup
	f := newFixture(t)
	svc := f.service(false)

	// Execute
	require.NoError(t, svc.Run(context.Background()))
	require.NoError(t, svc.Run(context.Background()))
	f.mailbox.Threads = []*model.Thread{model.NewThread("t1", model.NewMessage("m1", "t1", "a@x.com", "Hi", d1))}
	require.NoError(t, svc.Run(context.Background()))

	// Verify
	rows := f.table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, model.Header, rows[0])
}

func TestRunOrderIndependent(t *testing.T) {
	messages := []*model.Message{
		model.NewMessage("m1", "t1", "a@x.com", "One", d1),
		model.NewMessage("m2", "t2", "b@x.com", "Two", d2),
		model.NewMessage("m3", "t3", "c@x.com", "Three", d1),
	}

	runWith := func(order []int) []model.Record {
		threads := make([]*model.Thread, 0, len(order))
		for _, i := range order {
			threads = append(threads, model.NewThread(messages[i].ThreadID, messages[i]))
		}
		f := newFixture(t, threads...)
		require.NoError(t, f.service(false).Run(context.Background()))

		rows := f.table.Rows()[1:]
		sort.Slice(rows, func(i, j int) bool { return rows[i].MessageID() < rows[j].MessageID() })
		return rows
	}

	assert.Equal(t, runWith([]int{0, 1, 2}), runWith([]int{2, 0, 1}))
	assert.Equal(t, runWith([]int{0, 1, 2}), runWith([]int{1, 2, 0}))
}

func TestIndexedDedupMatchesScan(t *testing.T) {
	threads := []*model.Thread{
		model.NewThread("t1", model.NewMessage("m1", "t1", "a@x.com", "Hi", d1), model.NewMessage("m2", "t1", "b@x.com", "Re: Hi", d2)),
		model.NewThread("t2", model.NewMessage("m2", "t1", "b@x.com", "Re: Hi", d2), model.NewMessage("m4", "t2", "d@x.com", "New", d2)),
	}
	seed := model.Record{"2024-05-30T09:00:00Z", "m1", "a@x.com", "Hi", "2024-05-30T08:15:00Z"}

	var results [][]model.Record
	for _, indexed := range []bool{false, true} {
		f := newFixture(t, threads...)
		require.NoError(t, f.table.AppendRow(context.Background(), model.Header))
		require.NoError(t, f.table.AppendRow(context.Background(), seed))

		require.NoError(t, f.service(indexed).Run(context.Background()))
		results = append(results, f.table.Rows())
		assert.Equal(t, []string{"m2", "m4"}, f.mailbox.Starred())
	}

	assert.Equal(t, results[0], results[1])
}

func TestRunUnknownLabel(t *testing.T) {
	// Setup
	f := newFixture(t)
	f.mailbox.ThreadsByLabelFunc = func(ctx context.Context, labelName string) ([]*model.Thread, error) {
		return nil, model.NewConfigurationError("label", labelName, nil)
	}

	// Execute
	err := f.service(false).Run(context.Background())

	// Verify
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfiguration))
	assert.Empty(t, f.table.Rows())
}

func TestRunUnknownSpreadsheetOrSheet(t *testing.T) {
	f := newFixture(t, model.NewThread("t1", model.NewMessage("m1", "t1", "a@x.com", "Hi", d1)))

	svc := service.NewIngestService(service.IngestOptions{
		LabelName: testLabel, SpreadsheetID: "missing", SheetName: testSheet,
	}, f.mailbox, f.store, logger.Discard())
	err := svc.Run(context.Background())
	assert.True(t, errors.Is(err, model.ErrConfiguration))

	svc = service.NewIngestService(service.IngestOptions{
		LabelName: testLabel, SpreadsheetID: testSpreadsheet, SheetName: "Responses",
	}, f.mailbox, f.store, logger.Discard())
	err = svc.Run(context.Background())
	assert.True(t, errors.Is(err, model.ErrConfiguration))

	assert.Empty(t, f.table.Rows())
	assert.Empty(t, f.mailbox.Starred())
}

// flakyStore fails the Nth AppendRow call of its table.
type flakyStore struct {
	repository.SheetStore
	failOn  int
	appends int
}

func (s *flakyStore) Open(ctx context.Context, id string) (repository.Spreadsheet, error) {
	spreadsheet, err := s.SheetStore.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	return &flakySpreadsheet{Spreadsheet: spreadsheet, store: s}, nil
}

type flakySpreadsheet struct {
	repository.Spreadsheet
	store *flakyStore
}

func (s *flakySpreadsheet) SheetByName(ctx context.Context, name string) (repository.Table, error) {
	table, err := s.Spreadsheet.SheetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return &flakyTable{Table: table, store: s.store}, nil
}

type flakyTable struct {
	repository.Table
	store *flakyStore
}

func (t *flakyTable) AppendRow(ctx context.Context, record model.Record) error {
	t.store.appends++
	if t.store.appends == t.store.failOn {
		return model.NewBackendError("append", errors.New("quota exceeded"))
	}
	return t.Table.AppendRow(ctx, record)
}

func TestRunAbortsOnAppendFailureAndNextRunCompletes(t *testing.T) {
	// Setup: header is append 1, m1 is append 2, m2 fails as append 3
	f := newFixture(t, model.NewThread("t1",
		model.NewMessage("m1", "t1", "a@x.com", "One", d1),
		model.NewMessage("m2", "t1", "b@x.com", "Two", d2),
		model.NewMessage("m3", "t1", "c@x.com", "Three", d2),
	))
	flaky := &flakyStore{SheetStore: f.store, failOn: 3}
	opts := service.IngestOptions{LabelName: testLabel, SpreadsheetID: testSpreadsheet, SheetName: testSheet}

	// Execute
	err := service.NewIngestService(opts, f.mailbox, flaky, logger.Discard()).Run(context.Background())

	// Verify: the prefix stays, nothing after the failure is touched
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrBackendUnavailable))
	assert.Equal(t, []string{"m1"}, messageIDs(f.table.Rows()))
	assert.Equal(t, []string{"m1"}, f.mailbox.Starred())

	// Execute again with a healthy backend
	require.NoError(t, service.NewIngestService(opts, f.mailbox, f.store, logger.Discard()).Run(context.Background()))
	assert.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(f.table.Rows()))
	assert.Equal(t, []string{"m1", "m2", "m3"}, f.mailbox.Starred())
}

func TestRunAbortsOnStarFailure(t *testing.T) {
	// Setup
	f := newFixture(t, model.NewThread("t1",
		model.NewMessage("m1", "t1", "a@x.com", "One", d1),
		model.NewMessage("m2", "t1", "b@x.com", "Two", d2),
	))
	f.mailbox.StarFunc = func(ctx context.Context, msg *model.Message) error {
		return model.NewBackendError("star", errors.New("rate limited"))
	}

	// Execute
	err := f.service(false).Run(context.Background())

	// Verify: the row was appended before the star failed; the next run does not repeat it
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrBackendUnavailable))
	assert.Equal(t, []string{"m1"}, messageIDs(f.table.Rows()))

	f.mailbox.StarFunc = nil
	require.NoError(t, f.service(false).Run(context.Background()))
	assert.Equal(t, []string{"m1", "m2"}, messageIDs(f.table.Rows()))
	assert.Equal(t, []string{"m2"}, f.mailbox.Starred())
}

func TestShouldProcess(t *testing.T) {
	f := newFixture(t)
	svc := f.service(false)
	ctx := context.Background()
	require.NoError(t, f.table.AppendRow(ctx, model.Header))
	require.NoError(t, f.table.AppendRow(ctx, model.Record{"2024-05-30T09:00:00Z", "m1"}))

	process, err := svc.ShouldProcess(ctx, &model.Message{ID: "m1"}, f.table)
	require.NoError(t, err)
	assert.False(t, process)

	process, err = svc.ShouldProcess(ctx, &model.Message{ID: "m2"}, f.table)
	require.NoError(t, err)
	assert.True(t, process)

	assert.Len(t, f.table.Rows(), 2)
}

func TestExtract(t *testing.T) {
	svc := newFixture(t).service(false)

	row := svc.Extract(model.NewMessage("m1", "t1", "a@x.com", "Hi", d1))

	assert.Equal(t, model.Row{IngestedAt: ingestedAt, MessageID: "m1", From: "a@x.com", Subject: "Hi", Date: d1}, row)
}

func TestRunHistoryRecorded(t *testing.T) {
	// Setup
	f := newFixture(t, model.NewThread("t1",
		model.NewMessage("m1", "t1", "a@x.com", "One", d1),
		model.NewMessage("m2", "t1", "b@x.com", "Two", d2),
	))
	svc := f.service(false)

	// Execute
	require.NoError(t, svc.Run(context.Background()))
	f.mailbox.ThreadsByLabelFunc = func(ctx context.Context, labelName string) ([]*model.Thread, error) {
		return nil, model.NewBackendError("threads", errors.New("timeout"))
	}
	require.Error(t, svc.Run(context.Background()))

	// Verify
	runs, err := f.runs.FindRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	var ok, failed *model.Run
	for _, run := range runs {
		if run.Succeeded() {
			ok = run
		} else {
			failed = run
		}
	}
	require.NotNil(t, ok)
	require.NotNil(t, failed)
	assert.Equal(t, testLabel, ok.Label)
	assert.Equal(t, 1, ok.ThreadsSeen)
	assert.Equal(t, 2, ok.MessagesSeen)
	assert.Equal(t, 2, ok.RowsAdded)
	assert.Contains(t, failed.Error, "timeout")
	assert.Equal(t, 0, failed.RowsAdded)
}
