package model

import "time"

// Record is the cell content of one table row as held by a store backend.
type Record []string

// MessageIDColumn is the position of the message id within a Record.
const MessageIDColumn = 1

// TimeLayout is used to render timestamps into cells.
const TimeLayout = time.RFC3339

// Header is written as the first row of an empty table.
var Header = Record{"Timestamp", "Message ID", "From", "Subject", "Date"}

// Row is one ingested message.
type Row struct {
	IngestedAt time.Time `json:"ingested_at"`
	MessageID  string    `json:"message_id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Date       time.Time `json:"date"`
}

func NewRow(ingestedAt time.Time, msg *Message) Row {
	return Row{
		IngestedAt: ingestedAt,
		MessageID:  msg.ID,
		From:       msg.From,
		Subject:    msg.Subject,
		Date:       msg.Date,
	}
}

// Record renders the row in header column order.
func (r Row) Record() Record {
	return Record{
		formatTime(r.IngestedAt),
		r.MessageID,
		r.From,
		r.Subject,
		formatTime(r.Date),
	}
}

// MessageID returns the message id cell, or "" for records too short to hold one.
func (r Record) MessageID() string {
	if len(r) <= MessageIDColumn {
		return ""
	}
	return r[MessageIDColumn]
}

// Equal reports whether both records hold the same cells.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}
