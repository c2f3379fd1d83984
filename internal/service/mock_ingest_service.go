package service

import (
	"context"
	"sync/atomic"

	"labelsync/internal/model"
	"labelsync/internal/repository"
)

// MockIngestService is a mock implementation of IngestService for testing
type MockIngestService struct {
	RunFunc           func(ctx context.Context) error
	ShouldProcessFunc func(ctx context.Context, msg *model.Message, table repository.Table) (bool, error)
	ExtractFunc       func(msg *model.Message) model.Row

	runs atomic.Int64
}

func NewMockIngestService() *MockIngestService {
	return &MockIngestService{}
}

func (m *MockIngestService) Run(ctx context.Context) error {
	m.runs.Add(1)
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

func (m *MockIngestService) ShouldProcess(ctx context.Context, msg *model.Message, table repository.Table) (bool, error) {
	if m.ShouldProcessFunc != nil {
		return m.ShouldProcessFunc(ctx, msg, table)
	}
	return true, nil
}

func (m *MockIngestService) Extract(msg *model.Message) model.Row {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(msg)
	}
	return model.Row{MessageID: msg.ID, From: msg.From, Subject: msg.Subject, Date: msg.Date}
}

// Runs returns how many times Run was called
func (m *MockIngestService) Runs() int {
	return int(m.runs.Load())
}
