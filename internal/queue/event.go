// Package queue moves outbound mail through RabbitMQ: the publisher
// enqueues messages from request handlers and the scheduler, and the
// consumer hands them to an SMTP sender.
package queue

import (
	"time"

	"github.com/iliyamo/project-tracker/internal/model"
)

// MailQueuedEvent is the payload published for every outbound message.
type MailQueuedEvent struct {
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	From       string   `json:"from"`
	Recipients []string `json:"recipients"`
	QueuedAt   string   `json:"queued_at"` // RFC3339, UTC
}

func newMailQueuedEvent(m model.Mail, now time.Time) MailQueuedEvent {
	return MailQueuedEvent{
		Subject:    m.Subject,
		Body:       m.Body,
		From:       m.From,
		Recipients: m.Recipients,
		QueuedAt:   now.UTC().Format(time.RFC3339),
	}
}

// Mail converts the event back to the message handed to a sender.
func (e MailQueuedEvent) Mail() model.Mail {
	return model.Mail{Subject: e.Subject, Body: e.Body, From: e.From, Recipients: e.Recipients}
}
