package eventbroker

import (
	"errors"
	"time"
)

// EventType names what happened to a session
type EventType string

const (
	// EventSessionChanged carries the new compiled query of a session
	EventSessionChanged EventType = "session.changed"
	// EventSessionDeleted tells every instance to disconnect the session's watchers
	EventSessionDeleted EventType = "session.deleted"
)

// Event is published after a session changes so that watchers connected to
// any instance see it
type Event struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	Query      string    `json:"query,omitempty"`
	URL        string    `json:"url,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEvent creates an event of type t for sessionID
func NewEvent(t EventType, sessionID string) *Event {
	return &Event{
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks the fields every provider relies on
func (e *Event) Validate() error {
	if e.SessionID == "" {
		return errors.New("event session_id is required")
	}
	switch e.Type {
	case EventSessionChanged, EventSessionDeleted:
		return nil
	default:
		return errors.New("unknown event type: " + string(e.Type))
	}
}
