package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"labelsync/internal/logger"
	"labelsync/internal/model"
)

const (
	fetchGmailThreadID  imap.FetchItem = "X-GM-THRID"
	fetchGmailMessageID imap.FetchItem = "X-GM-MSGID"
)

type IMAPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	// UseTLS dials with implicit TLS (port 993 style).
	UseTLS bool
	// GmailExtensions fetches X-GM-MSGID/X-GM-THRID so ids match the Gmail API
	// and messages are grouped into real threads.
	GmailExtensions bool
}

type messageLocation struct {
	mailbox string
	uid     uint32
}

// IMAPClient reads a label exposed as an IMAP folder and stars messages with
// the \Flagged flag. It keeps one connection open between calls.
type IMAPClient struct {
	opts   IMAPOptions
	logger *logger.Logger

	mu        sync.Mutex
	conn      *client.Client
	selected  string
	readOnly  bool
	locations map[string]messageLocation
}

func NewIMAPClient(opts IMAPOptions, logger *logger.Logger) *IMAPClient {
	return &IMAPClient{
		opts:      opts,
		logger:    logger,
		locations: make(map[string]messageLocation),
	}
}

func (c *IMAPClient) ThreadsByLabel(ctx context.Context, labelName string) ([]*model.Thread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := c.connect()
	if err != nil {
		return nil, err
	}

	exists, err := mailboxExists(conn, labelName)
	if err != nil {
		c.drop()
		return nil, model.NewBackendError("imap.list", err)
	}
	if !exists {
		return nil, model.NewConfigurationError("label", labelName, nil)
	}

	status, err := c.selectMailbox(labelName, true)
	if err != nil {
		return nil, err
	}
	c.locations = make(map[string]messageLocation)

	uids, err := conn.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		c.drop()
		return nil, model.NewBackendError("imap.uid_search", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate}
	if c.opts.GmailExtensions {
		items = append(items, fetchGmailMessageID, fetchGmailThreadID)
	}

	messages := make(chan *imap.Message, len(uids)+8)
	done := make(chan error, 1)
	go func() {
		done <- conn.UidFetch(seqSet, items, messages)
	}()

	var fetched []*imap.Message
	for msg := range messages {
		fetched = append(fetched, msg)
	}
	if err := <-done; err != nil {
		c.drop()
		return nil, model.NewBackendError("imap.uid_fetch", err)
	}
	sort.Slice(fetched, func(i, j int) bool { return fetched[i].Uid < fetched[j].Uid })

	var threads []*model.Thread
	byThread := make(map[string]*model.Thread)
	for _, raw := range fetched {
		msg := c.toMessage(raw, status.UidValidity)
		c.locations[msg.ID] = messageLocation{mailbox: labelName, uid: raw.Uid}

		thread, exists := byThread[msg.ThreadID]
		if !exists {
			thread = model.NewThread(msg.ThreadID)
			byThread[msg.ThreadID] = thread
			threads = append(threads, thread)
		}
		thread.Messages = append(thread.Messages, msg)
	}

	c.logger.Debug("Fetched", len(fetched), "messages in", len(threads), "threads from IMAP folder", labelName)
	return threads, nil
}

// Star sets \Flagged on a message returned by the last ThreadsByLabel call.
func (c *IMAPClient) Star(ctx context.Context, msg *model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	location, known := c.locations[msg.ID]
	if !known {
		return fmt.Errorf("message %s was not fetched from any IMAP folder", msg.ID)
	}

	conn, err := c.connect()
	if err != nil {
		return err
	}
	if _, err := c.selectMailbox(location.mailbox, false); err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(location.uid)
	storeItem := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := conn.UidStore(seqSet, storeItem, []interface{}{imap.FlaggedFlag}, nil); err != nil {
		c.drop()
		return model.NewBackendError("imap.uid_store", err)
	}

	c.logger.Debug("Flagged message:", msg.ID)
	return nil
}

// Close logs out and releases the connection.
func (c *IMAPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout()
	c.conn = nil
	c.selected = ""
	return err
}

func (c *IMAPClient) connect() (*client.Client, error) {
	if c.conn != nil {
		if c.alive() {
			return c.conn, nil
		}
		c.logger.Warn("IMAP connection lost, reconnecting to", c.opts.Host)
		c.drop()
	}

	address := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	var (
		conn *client.Client
		err  error
	)
	if c.opts.UseTLS {
		conn, err = client.DialTLS(address, &tls.Config{ServerName: c.opts.Host})
	} else {
		conn, err = client.Dial(address)
	}
	if err != nil {
		return nil, model.NewBackendError("imap.dial", err)
	}

	if err := conn.Login(c.opts.Username, c.opts.Password); err != nil {
		conn.Logout()
		return nil, model.NewBackendError("imap.login", err)
	}

	c.logger.Debug("IMAP connection established", address, "user", c.opts.Username)
	c.conn = conn
	c.selected = ""
	return conn, nil
}

func (c *IMAPClient) selectMailbox(name string, readOnly bool) (*imap.MailboxStatus, error) {
	if c.selected == name && (readOnly || !c.readOnly) {
		return c.conn.Mailbox(), nil
	}

	status, err := c.conn.Select(name, readOnly)
	if err != nil {
		c.drop()
		return nil, model.NewBackendError("imap.select", err)
	}
	c.selected = name
	c.readOnly = readOnly
	return status, nil
}

// alive reports whether the cached session can still carry commands. Servers
// close idle sessions, so a NOOP round trip confirms it before reuse.
func (c *IMAPClient) alive() bool {
	if c.conn.State() == imap.LogoutState {
		return false
	}
	return c.conn.Noop() == nil
}

// drop abandons a connection that returned an error so the next call redials.
func (c *IMAPClient) drop() {
	if c.conn == nil {
		return
	}
	c.conn.Logout()
	c.conn = nil
	c.selected = ""
}

func (c *IMAPClient) toMessage(raw *imap.Message, uidValidity uint32) *model.Message {
	id := ""
	threadID := ""
	if c.opts.GmailExtensions {
		id = gmailHexID(raw.Items[fetchGmailMessageID])
		threadID = gmailHexID(raw.Items[fetchGmailThreadID])
	}
	if id == "" {
		id = fmt.Sprintf("%d-%d", uidValidity, raw.Uid)
	}
	if threadID == "" {
		threadID = id
	}

	from, subject := "", ""
	date := raw.InternalDate
	if env := raw.Envelope; env != nil {
		from = formatAddresses(env.From)
		subject = strings.TrimSpace(env.Subject)
		if date.IsZero() {
			date = env.Date
		}
	}
	if !date.IsZero() {
		date = date.UTC()
	}

	return model.NewMessage(id, threadID, from, subject, date)
}

func mailboxExists(conn *client.Client, name string) (bool, error) {
	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- conn.List("", name, mailboxes)
	}()

	found := false
	for info := range mailboxes {
		if info.Name == name {
			found = true
		}
	}
	if err := <-done; err != nil {
		return false, err
	}
	return found, nil
}

// gmailHexID renders an X-GM-MSGID/X-GM-THRID value the way the Gmail API
// prints message and thread ids.
func gmailHexID(v interface{}) string {
	if v == nil {
		return ""
	}
	raw := strings.TrimSpace(fmt.Sprint(v))
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(n, 16)
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr == nil {
			continue
		}
		email := strings.TrimSpace(addr.Address())
		name := strings.TrimSpace(addr.PersonalName)
		if name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", name, email))
		} else if email != "" {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
