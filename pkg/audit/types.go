// Package audit records domain events (contact-form activity, mail
// delivery, admin access, token lifecycle) to a structured log and
// optionally to a Kafka topic.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of domain event.
type EventType string

const (
	EventContactSubmitted    EventType = "contact.submitted"
	EventContactRead         EventType = "contact.read"
	EventContactUnread       EventType = "contact.unread"
	EventContactNotesUpdated EventType = "contact.notes_updated"

	EventMailSent   EventType = "mail.sent"
	EventMailFailed EventType = "mail.failed"

	EventAdminLogin       EventType = "admin.login"
	EventAdminLoginDenied EventType = "admin.login_denied"

	EventTokenAcquired EventType = "token.acquired"
	EventTokenRejected EventType = "token.rejected"
)

// Event is one audit record.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	// Actor is the admin username for authenticated actions, empty for
	// anonymous website visitors.
	Actor    string         `json:"actor,omitempty"`
	SourceIP string         `json:"sourceIP,omitempty"`
	// Subject identifies the affected entity, e.g. a contact id or an
	// SMTP host.
	Subject string         `json:"subject,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(t EventType) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// WithActor sets the acting admin user.
func (e *Event) WithActor(actor string) *Event {
	e.Actor = actor
	return e
}

// WithSourceIP sets the client address.
func (e *Event) WithSourceIP(ip string) *Event {
	e.SourceIP = ip
	return e
}

// WithSubject sets the affected entity.
func (e *Event) WithSubject(subject string) *Event {
	e.Subject = subject
	return e
}

// WithDetail adds one key to the details map.
func (e *Event) WithDetail(key string, value any) *Event {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}
