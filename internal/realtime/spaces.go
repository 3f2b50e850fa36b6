package realtime

import "context"

// Spaces gives access to collaborative spaces.
type Spaces interface {
	// Get returns the named space, creating it when it does not exist.
	Get(ctx context.Context, name string) (Space, error)
}

// ProfileData is the member profile supplied on enter.
type ProfileData struct {
	Name   string `json:"name" mapstructure:"name"`
	Avatar string `json:"avatar" mapstructure:"avatar"`
	Color  string `json:"color" mapstructure:"color"`
}

// MemberEvent names a member stream.
type MemberEvent string

const (
	MemberEnter  MemberEvent = "enter"
	MemberLeave  MemberEvent = "leave"
	MemberUpdate MemberEvent = "update"
)

// LastEvent records the latest member event.
type LastEvent struct {
	Name      MemberEvent `json:"name"`
	Timestamp int64       `json:"timestamp"`
}

// SpaceMember is a member of a space.
type SpaceMember struct {
	ClientID         string      `json:"clientId"`
	ConnectionID     string      `json:"connectionId"`
	ProfileData      ProfileData `json:"profileData"`
	Location         any         `json:"location"`
	PreviousLocation any         `json:"previousLocation,omitempty"`
	IsConnected      bool        `json:"isConnected"`
	LastEvent        LastEvent   `json:"lastEvent"`
}

// Position is a cursor position.
type Position struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
}

// CursorUpdate is a cursor move by a member.
type CursorUpdate struct {
	ClientID     string   `json:"clientId"`
	ConnectionID string   `json:"connectionId"`
	Position     Position `json:"position"`
	Data         any      `json:"data,omitempty"`
}

// LockStatus is the state of a component lock.
type LockStatus string

const (
	LockPending  LockStatus = "pending"
	LockLocked   LockStatus = "locked"
	LockUnlocked LockStatus = "unlocked"
)

// Lock is a component lock. Member is nil once the lock is released.
type Lock struct {
	ID         string         `json:"id"`
	Status     LockStatus     `json:"status"`
	Member     *SpaceMember   `json:"member"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

// Space is a joined collaborative space.
type Space interface {
	Name() string
	Enter(ctx context.Context, profile ProfileData) error
	Leave(ctx context.Context) error

	SubscribeMembers(event MemberEvent, fn func(*SpaceMember)) (unsubscribe func())
	Members(ctx context.Context) ([]*SpaceMember, error)
	SetLocation(ctx context.Context, location any) error

	SubscribeCursors(fn func(*CursorUpdate)) (unsubscribe func())
	SetCursor(ctx context.Context, position Position, data any) error
	Cursors(ctx context.Context) ([]*CursorUpdate, error)

	SubscribeLocks(fn func(*Lock)) (unsubscribe func())
	AcquireLock(ctx context.Context, id string, attributes map[string]any) (*Lock, error)
	ReleaseLock(ctx context.Context, id string) error
	Locks(ctx context.Context) ([]*Lock, error)
}
