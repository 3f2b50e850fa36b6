package store

import (
	"context"
	"time"
)

// Message represents a persisted channel message.
type Message struct {
	Seq          int64
	ID           string
	Channel      string
	Name         string
	ClientID     string
	ConnectionID string
	// Data holds the JSON encoding of the message payload.
	Data      []byte
	CreatedAt time.Time
}

// Direction orders history queries.
type Direction string

const (
	DirectionBackwards Direction = "backwards"
	DirectionForwards  Direction = "forwards"
)

// HistoryQuery selects a page of messages from a channel.
type HistoryQuery struct {
	Limit     int
	Direction Direction
	// Start and End are inclusive bounds on CreatedAt; zero means unbounded.
	Start time.Time
	End   time.Time
}

// HistoryStore handles channel message persistence.
type HistoryStore interface {
	// SaveMessage persists a message and assigns its sequence number.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns a page of channel messages ordered per query direction.
	ListMessages(ctx context.Context, channel string, q HistoryQuery) ([]*Message, error)

	// Close closes the underlying database connection.
	Close() error
}
