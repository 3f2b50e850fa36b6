package plugin

import "github.com/robceliesius/plugin-ably/internal/realtime"

// Trigger names emitted to the host.
const (
	EventConnectionStatus    = "connection_status"
	EventMessage             = "message"
	EventPresenceEnter       = "presence_enter"
	EventPresenceLeave       = "presence_leave"
	EventPresenceUpdate      = "presence_update"
	EventSpaceMemberEnter    = "space_member_enter"
	EventSpaceMemberLeave    = "space_member_leave"
	EventSpaceLocationUpdate = "space_location_update"
	EventSpaceCursorMove     = "space_cursor_move"
	EventSpaceLockAcquired   = "space_lock_acquired"
	EventSpaceLockReleased   = "space_lock_released"
)

type ConnectionStatusEvent struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type MessageEvent struct {
	ChannelName string `json:"channelName"`
	MessageName string `json:"messageName"`
	Data        any    `json:"data"`
	Timestamp   int64  `json:"timestamp"`
	ClientID    string `json:"clientId"`
}

type PresenceEvent struct {
	ChannelName string `json:"channelName"`
	ClientID    string `json:"clientId"`
	Data        any    `json:"data"`
	Timestamp   int64  `json:"timestamp"`
}

// MemberRef identifies a space member in event payloads.
type MemberRef struct {
	ClientID string `json:"clientId"`
}

type EnteredMember struct {
	ClientID    string               `json:"clientId"`
	ProfileData realtime.ProfileData `json:"profileData"`
	Location    any                  `json:"location"`
	LastEvent   realtime.LastEvent   `json:"lastEvent"`
}

type MemberEnterEvent struct {
	SpaceName string        `json:"spaceName"`
	Member    EnteredMember `json:"member"`
}

type LeftMember struct {
	ClientID    string               `json:"clientId"`
	ProfileData realtime.ProfileData `json:"profileData"`
}

type MemberLeaveEvent struct {
	SpaceName string     `json:"spaceName"`
	Member    LeftMember `json:"member"`
}

type LocatedMember struct {
	ClientID string `json:"clientId"`
	Location any    `json:"location"`
}

type LocationUpdateEvent struct {
	SpaceName        string        `json:"spaceName"`
	Member           LocatedMember `json:"member"`
	PreviousLocation any           `json:"previousLocation"`
}

type CursorMoveEvent struct {
	SpaceName string            `json:"spaceName"`
	Member    MemberRef         `json:"member"`
	Position  realtime.Position `json:"position"`
	Data      any               `json:"data"`
}

// LockEvent reports a lock change. Member is nil for releases.
type LockEvent struct {
	SpaceName   string         `json:"spaceName"`
	ComponentID string         `json:"componentId"`
	Member      *MemberRef     `json:"member"`
	Metadata    map[string]any `json:"metadata"`
	Timestamp   int64          `json:"timestamp"`
}
