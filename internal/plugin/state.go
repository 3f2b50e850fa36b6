package plugin

import "slices"

// Projected connection statuses.
const (
	StatusDisconnected = "disconnected"
	StatusConnected    = "connected"
	StatusFailed       = "failed"
	StatusSuspended    = "suspended"
)

// State is the read-only view of the plugin exposed to the host.
type State struct {
	IsConnected     bool     `json:"isConnected"`
	ConnectionState string   `json:"connectionState"`
	ActiveChannels  []string `json:"activeChannels"`
	ActiveSpaces    []string `json:"activeSpaces"`
	CurrentSpace    string   `json:"currentSpace,omitempty"`
}

// State returns a copy of the current state.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state
	s.ActiveChannels = slices.Clone(p.state.ActiveChannels)
	s.ActiveSpaces = slices.Clone(p.state.ActiveSpaces)
	if s.ActiveChannels == nil {
		s.ActiveChannels = []string{}
	}
	if s.ActiveSpaces == nil {
		s.ActiveSpaces = []string{}
	}
	return s
}
