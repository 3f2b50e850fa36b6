package host

import "time"

// EventKind is a notification the hub fans out to subscribers.
type EventKind int

const (
	// EventTrigger carries a workflow trigger.
	EventTrigger EventKind = iota
	// EventNotification carries a builder notification.
	EventNotification
)

// Event is sent to subscribers to describe what happened in the host.
type Event struct {
	Kind         EventKind
	Trigger      *Trigger      // non-nil for EventTrigger
	Notification *Notification // non-nil for EventNotification
	At           time.Time
}

// Trigger is a workflow trigger execution request.
type Trigger struct {
	Key        string
	Event      any
	Conditions any
}

// Notification is a message for the application builder.
type Notification struct {
	Level Level
	Text  string
}
