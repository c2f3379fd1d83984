package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"labelsync/internal/logger"
	"labelsync/internal/model"
	"labelsync/internal/service"
)

const (
	gmailUser    = "me" // Use 'me' to refer to the authenticated user
	starredLabel = "STARRED"
	threadsPage  = 100
)

type gmailClient struct {
	client *gmail.Service
	logger *logger.Logger
}

// NewGmailClient builds a label source on the Gmail API using an already
// authorized HTTP client.
func NewGmailClient(ctx context.Context, httpClient *http.Client, logger *logger.Logger, opts ...option.ClientOption) (service.MailboxClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	gmailService, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &gmailClient{
		client: gmailService,
		logger: logger,
	}, nil
}

func (g *gmailClient) ThreadsByLabel(ctx context.Context, labelName string) ([]*model.Thread, error) {
	labelID, err := g.resolveLabel(ctx, labelName)
	if err != nil {
		return nil, err
	}

	var threadIDs []string
	pageToken := ""
	for {
		call := g.client.Users.Threads.List(gmailUser).
			LabelIds(labelID).
			MaxResults(threadsPage).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return nil, model.NewBackendError("gmail.threads.list", err)
		}
		for _, thread := range list.Threads {
			threadIDs = append(threadIDs, thread.Id)
		}
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}

	threads := make([]*model.Thread, 0, len(threadIDs))
	for _, threadID := range threadIDs {
		thread, err := g.client.Users.Threads.Get(gmailUser, threadID).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			return nil, model.NewBackendError("gmail.threads.get", err)
		}
		threads = append(threads, toThread(thread))
	}

	g.logger.Debug("Fetched", len(threads), "threads for label", labelName)
	return threads, nil
}

// Star adds the STARRED system label. Starring a starred message is a no-op.
func (g *gmailClient) Star(ctx context.Context, msg *model.Message) error {
	modifyRequest := &gmail.ModifyMessageRequest{
		AddLabelIds: []string{starredLabel},
	}

	_, err := g.client.Users.Messages.Modify(gmailUser, msg.ID, modifyRequest).Context(ctx).Do()
	if err != nil {
		return model.NewBackendError("gmail.messages.modify", err)
	}

	g.logger.Debug("Starred message:", msg.ID)
	return nil
}

// resolveLabel maps a user-visible label name to its id. Exact matches win
// over case-insensitive ones.
func (g *gmailClient) resolveLabel(ctx context.Context, labelName string) (string, error) {
	labels, err := g.client.Users.Labels.List(gmailUser).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return "", model.NewConfigurationError("label", labelName, err)
		}
		return "", model.NewBackendError("gmail.labels.list", err)
	}

	fallback := ""
	for _, label := range labels.Labels {
		if label.Name == labelName {
			return label.Id, nil
		}
		if fallback == "" && strings.EqualFold(label.Name, labelName) {
			fallback = label.Id
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", model.NewConfigurationError("label", labelName, nil)
}

func toThread(thread *gmail.Thread) *model.Thread {
	messages := make([]*model.Message, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		messages = append(messages, toMessage(msg))
	}
	return model.NewThread(thread.Id, messages...)
}

func toMessage(msg *gmail.Message) *model.Message {
	var headers map[string]string
	if msg.Payload != nil {
		headers = headerMap(msg.Payload.Headers)
	}
	return model.NewMessage(msg.Id, msg.ThreadId, headers["from"], headers["subject"], messageDate(msg.InternalDate, headers["date"]))
}

// headerMap indexes headers by lower-cased name; the first occurrence wins.
func headerMap(headers []*gmail.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		key := strings.ToLower(h.Name)
		if _, exists := m[key]; !exists {
			m[key] = h.Value
		}
	}
	return m
}

// messageDate prefers Gmail's internal timestamp (milliseconds since epoch)
// and falls back to the Date header.
func messageDate(internalDate int64, dateHeader string) time.Time {
	if internalDate > 0 {
		return time.UnixMilli(internalDate).UTC()
	}
	if dateHeader != "" {
		if t, err := mail.ParseDate(dateHeader); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
