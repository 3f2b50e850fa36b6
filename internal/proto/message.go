// Package proto defines the websocket envelope between the server and host UIs.
package proto

import "encoding/json"

const (
	InboundTypeAction = "action"

	OutboundTypeTrigger      = "trigger"
	OutboundTypeNotification = "notification"
	OutboundTypeResult       = "result"
	OutboundTypeError        = "error"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

// ActionData asks the server to run a plugin action.
type ActionData struct {
	Code   string         `json:"code"`
	Params map[string]any `json:"params,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type string `json:"type"`
	// ID echoes the inbound action id on result and error messages.
	ID    string `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// TriggerData is the payload of a trigger message.
type TriggerData struct {
	Event      any   `json:"event"`
	Conditions any   `json:"conditions,omitempty"`
	At         int64 `json:"at"`
}

// NotificationData is the payload of a notification message.
type NotificationData struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Protocol error codes that do not come from the plugin.
const (
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
)
