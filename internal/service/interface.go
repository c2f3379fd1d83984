package service

import (
	"context"

	"labelsync/internal/model"
	"labelsync/internal/repository"
)

// IngestService copies messages carrying a label into a table, once each.
type IngestService interface {
	Run(ctx context.Context) error
	ShouldProcess(ctx context.Context, msg *model.Message, table repository.Table) (bool, error)
	Extract(msg *model.Message) model.Row
}

// MailboxClient interface for reading a label and marking messages
type MailboxClient interface {
	ThreadsByLabel(ctx context.Context, labelName string) ([]*model.Thread, error)
	Star(ctx context.Context, msg *model.Message) error
}
