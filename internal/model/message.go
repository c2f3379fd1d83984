package model

import "time"

// Message is a mail message as seen by the label source. It is owned by the
// mail backend and never modified here.
type Message struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Date     time.Time `json:"date"`
}

// Thread groups messages of one conversation in arrival order.
type Thread struct {
	ID       string     `json:"id"`
	Messages []*Message `json:"messages"`
}

func NewMessage(id, threadID, from, subject string, date time.Time) *Message {
	return &Message{
		ID:       id,
		ThreadID: threadID,
		From:     from,
		Subject:  subject,
		Date:     date,
	}
}

func NewThread(id string, messages ...*Message) *Thread {
	return &Thread{
		ID:       id,
		Messages: messages,
	}
}
