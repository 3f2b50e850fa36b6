// Package realtime describes the client library the adapter drives: a
// connection with observable state, named channels with presence and history,
// and collaborative spaces with members, cursors, locations and locks.
//
// Drivers live in sub-packages. ablyrt binds the contract to ably-go; memory
// is a single-process service used for development and tests.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrSpacesUnsupported is returned by drivers without a spaces layer.
	ErrSpacesUnsupported = errors.New("spaces are not supported by this driver")
	// ErrLockHeld is returned when another member holds the requested lock.
	ErrLockHeld = errors.New("lock is held by another member")
	// ErrLockNotHeld is returned when releasing a lock the caller does not hold.
	ErrLockNotHeld = errors.New("lock is not held by this member")
	// ErrNotEntered is returned for space operations before Enter.
	ErrNotEntered = errors.New("member has not entered the space")
	// ErrNotConnected is returned for operations that need a live connection.
	ErrNotConnected = errors.New("connection is not established")
)

// ConnectionState mirrors the connection states reported by the client library.
type ConnectionState string

const (
	StateInitialized  ConnectionState = "initialized"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateSuspended    ConnectionState = "suspended"
	StateClosing      ConnectionState = "closing"
	StateClosed       ConnectionState = "closed"
	StateFailed       ConnectionState = "failed"
)

// ConnectionStateChange is delivered to connection listeners on every transition.
type ConnectionStateChange struct {
	Previous ConnectionState
	Current  ConnectionState
	// Reason is set when the transition was caused by an error.
	Reason error
}

// Token is the credential returned by the token endpoint. Either Token is set
// (token details) or Raw holds a signed token request understood by the driver.
type Token struct {
	Token      string `json:"token,omitempty"`
	KeyName    string `json:"keyName,omitempty"`
	Issued     int64  `json:"issued,omitempty"`
	Expires    int64  `json:"expires,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
	Capability string `json:"capability,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ExpiresAt returns the expiry as time, zero when unknown.
func (t *Token) ExpiresAt() time.Time {
	if t == nil || t.Expires == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.Expires)
}

// TokenParams are passed to the auth callback by the driver.
type TokenParams struct {
	ClientID string
}

// AuthCallback obtains a fresh credential. Drivers call it on connect and
// whenever the current credential needs renewal.
type AuthCallback func(ctx context.Context, params TokenParams) (*Token, error)

// ClientOptions configure a new client.
type ClientOptions struct {
	ClientID     string
	EchoMessages bool
	AutoConnect  bool
	AuthCallback AuthCallback
}

// Dialer constructs a client for the configured driver.
type Dialer func(opts ClientOptions) (Client, error)

// Client is a realtime connection handle.
type Client interface {
	// Connect starts connecting. It does not block; progress is reported
	// through OnConnectionChange.
	Connect()
	// Close closes the connection and releases every channel.
	Close()
	State() ConnectionState
	OnConnectionChange(fn func(ConnectionStateChange)) (off func())
	Channel(name string) Channel
	Spaces() (Spaces, error)
}

// Message is a channel message.
type Message struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ClientID     string `json:"clientId,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
	Data         any    `json:"data,omitempty"`
	// Timestamp is in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// PresenceAction describes a presence message.
type PresenceAction string

const (
	PresenceAbsent  PresenceAction = "absent"
	PresencePresent PresenceAction = "present"
	PresenceEnter   PresenceAction = "enter"
	PresenceLeave   PresenceAction = "leave"
	PresenceUpdate  PresenceAction = "update"
)

// PresenceMessage is a presence event or a presence set member.
type PresenceMessage struct {
	Message
	Action PresenceAction `json:"action"`
}

// Direction orders history pages.
type Direction string

const (
	Backwards Direction = "backwards"
	Forwards  Direction = "forwards"
)

// HistoryParams select a page of channel history.
type HistoryParams struct {
	Limit     int
	Direction Direction
	// Start and End bound the page by message timestamp; zero means unbounded.
	Start time.Time
	End   time.Time
}

// Channel is a named pub/sub channel.
type Channel interface {
	Name() string
	Subscribe(ctx context.Context, fn func(*Message)) (unsubscribe func(), err error)
	Publish(ctx context.Context, name string, data any) error
	Detach(ctx context.Context) error
	History(ctx context.Context, params HistoryParams) ([]*Message, error)
	Presence() Presence
}

// Presence is the presence set of a channel.
type Presence interface {
	Subscribe(ctx context.Context, action PresenceAction, fn func(*PresenceMessage)) (unsubscribe func(), err error)
	Enter(ctx context.Context, data any) error
	Leave(ctx context.Context, data any) error
	Get(ctx context.Context, waitForSync bool) ([]*PresenceMessage, error)
}
