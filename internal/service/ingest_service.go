package service

import (
	"context"
	"fmt"
	"time"

	"labelsync/internal/logger"
	"labelsync/internal/model"
	"labelsync/internal/repository"
)

// IngestOptions names the label to poll and the table rows are appended to.
type IngestOptions struct {
	LabelName     string
	SpreadsheetID string
	SheetName     string
	// IndexedDedup loads the recorded ids once per run instead of scanning the
	// table for every message. Both modes append the same rows.
	IndexedDedup bool
}

type Option func(*ingestService)

// WithClock replaces time.Now as the source of ingestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ingestService) {
		s.now = now
	}
}

// WithRunRepository records every run for the status API.
func WithRunRepository(runs repository.RunRepository) Option {
	return func(s *ingestService) {
		s.runs = runs
	}
}

type ingestService struct {
	opts    IngestOptions
	mailbox MailboxClient
	store   repository.SheetStore
	runs    repository.RunRepository
	logger  *logger.Logger
	now     func() time.Time
}

func NewIngestService(
	opts IngestOptions,
	mailbox MailboxClient,
	store repository.SheetStore,
	logger *logger.Logger,
	options ...Option,
) IngestService {
	s := &ingestService{
		opts:    opts,
		mailbox: mailbox,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *ingestService) Run(ctx context.Context) (err error) {
	run := model.NewRun(s.opts.LabelName, s.now())
	s.recordStart(ctx, run)
	defer func() {
		run.Finish(s.now(), err)
		s.recordFinish(ctx, run)
	}()

	threads, err := s.mailbox.ThreadsByLabel(ctx, s.opts.LabelName)
	if err != nil {
		return fmt.Errorf("failed to get threads for label %q: %w", s.opts.LabelName, err)
	}
	run.ThreadsSeen = len(threads)
	s.logger.Info("Processing", len(threads), "threads")

	table, err := s.openTable(ctx)
	if err != nil {
		return err
	}

	if err := s.ensureHeader(ctx, table); err != nil {
		return err
	}

	var recorded map[string]struct{}
	if s.opts.IndexedDedup {
		recorded, err = recordedIDs(ctx, table)
		if err != nil {
			return err
		}
	}

	for _, thread := range threads {
		for _, msg := range thread.Messages {
			run.MessagesSeen++

			var process bool
			if recorded != nil {
				_, exists := recorded[msg.ID]
				process = !exists
			} else {
				process, err = s.ShouldProcess(ctx, msg, table)
				if err != nil {
					return err
				}
			}
			if !process {
				continue
			}

			row := s.Extract(msg)
			if err := table.AppendRow(ctx, row.Record()); err != nil {
				return fmt.Errorf("failed to append row for message %s: %w", msg.ID, err)
			}
			run.RowsAdded++
			if recorded != nil {
				recorded[msg.ID] = struct{}{}
			}
			s.logger.Info("Added new row for message:", msg.ID)

			if err := s.mailbox.Star(ctx, msg); err != nil {
				return fmt.Errorf("failed to star message %s: %w", msg.ID, err)
			}
		}
	}

	s.logger.Infof("Added %d new rows to sheet %s", run.RowsAdded, table.Name())
	return nil
}

// ShouldProcess reports whether no row of table carries the message id. The
// table is read in full on every call.
func (s *ingestService) ShouldProcess(ctx context.Context, msg *model.Message, table repository.Table) (bool, error) {
	rows, err := table.AllRows(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read rows of sheet %s: %w", table.Name(), err)
	}

	for _, row := range rows {
		if row.MessageID() == msg.ID {
			s.logger.Debug("Message", msg.ID, "already processed, skipping")
			return false, nil
		}
	}

	s.logger.Debug("Message", msg.ID, "is new, will be processed")
	return true, nil
}

func (s *ingestService) Extract(msg *model.Message) model.Row {
	return model.NewRow(s.now(), msg)
}

func (s *ingestService) openTable(ctx context.Context) (repository.Table, error) {
	spreadsheet, err := s.store.Open(ctx, s.opts.SpreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}

	table, err := spreadsheet.SheetByName(ctx, s.opts.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sheet: %w", err)
	}
	return table, nil
}

func (s *ingestService) ensureHeader(ctx context.Context, table repository.Table) error {
	last, err := table.LastRowIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last row of sheet %s: %w", table.Name(), err)
	}
	if last > 0 {
		return nil
	}

	if err := table.AppendRow(ctx, model.Header); err != nil {
		return fmt.Errorf("failed to write header to sheet %s: %w", table.Name(), err)
	}
	s.logger.Info("Wrote header to empty sheet", table.Name())
	return nil
}

func recordedIDs(ctx context.Context, table repository.Table) (map[string]struct{}, error) {
	rows, err := table.AllRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of sheet %s: %w", table.Name(), err)
	}

	ids := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		ids[row.MessageID()] = struct{}{}
	}
	return ids, nil
}

// History is diagnostic only; failing to record it never fails the run.
func (s *ingestService) recordStart(ctx context.Context, run *model.Run) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Warn("Failed to record run start:", err)
	}
}

func (s *ingestService) recordFinish(ctx context.Context, run *model.Run) {
	if run.Error != "" {
		s.logger.Error("Run", run.ID, "for label", run.Label, "aborted:", run.Error)
	}
	if s.runs == nil {
		return
	}
	if err := s.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("Failed to record run result:", err)
	}
}
