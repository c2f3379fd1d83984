package mailbox

import (
	"context"
	"sync"

	"labelsync/internal/model"
)

// MockMailboxClient is a mock implementation of MailboxClient for testing.
// Without overrides it serves Threads for every label and records starred ids.
type MockMailboxClient struct {
	ThreadsByLabelFunc func(ctx context.Context, labelName string) ([]*model.Thread, error)
	StarFunc           func(ctx context.Context, msg *model.Message) error

	Threads []*model.Thread

	mu      sync.Mutex
	starred []string
}

func NewMockMailboxClient(threads ...*model.Thread) *MockMailboxClient {
	return &MockMailboxClient{Threads: threads}
}

func (m *MockMailboxClient) ThreadsByLabel(ctx context.Context, labelName string) ([]*model.Thread, error) {
	if m.ThreadsByLabelFunc != nil {
		return m.ThreadsByLabelFunc(ctx, labelName)
	}

	// Default mock behavior: the configured threads
	return m.Threads, nil
}

func (m *MockMailboxClient) Star(ctx context.Context, msg *model.Message) error {
	if m.StarFunc != nil {
		if err := m.StarFunc(ctx, msg); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starred = append(m.starred, msg.ID)
	return nil
}

// Starred returns the ids passed to Star, in call order.
func (m *MockMailboxClient) Starred() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.starred...)
}
