package plugin

import (
	"context"

	"github.com/robceliesius/plugin-ably/internal/metrics"
	"github.com/robceliesius/plugin-ably/internal/realtime"
)

// ConnectResult is returned by Connect and Disconnect.
type ConnectResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// projectState maps a client state onto the states the host observes.
// Transitional states are not projected.
func projectState(s realtime.ConnectionState) (string, bool) {
	switch s {
	case realtime.StateConnected:
		return StatusConnected, true
	case realtime.StateDisconnected, realtime.StateClosed:
		return StatusDisconnected, true
	case realtime.StateFailed:
		return StatusFailed, true
	case realtime.StateSuspended:
		return StatusSuspended, true
	}
	return "", false
}

func (p *Plugin) onConnectionChange(change realtime.ConnectionStateChange) {
	status, ok := projectState(change.Current)
	if !ok {
		return
	}
	reason := ""
	if status == StatusFailed {
		reason = "Connection failed"
		if change.Reason != nil {
			reason = change.Reason.Error()
		}
	}
	p.project(status, reason, change.Previous != change.Current)
}

// project records status and emits connection_status. A repeated status is
// only emitted when always is set, so every client transition is reported
// while a locally projected status is reported once.
func (p *Plugin) project(status, reason string, always bool) {
	p.mu.Lock()
	changed := p.state.ConnectionState != status
	p.state.ConnectionState = status
	p.state.IsConnected = status == StatusConnected
	p.mu.Unlock()

	if !changed && !always {
		return
	}
	metrics.SetConnectionState(status)

	switch status {
	case StatusFailed:
		p.log.Error().Str("error", reason).Msg("connection failed")
	case StatusSuspended:
		p.log.Warn().Msg("connection suspended")
	default:
		p.log.Info().Str("status", status).Msg("connection status changed")
	}

	p.emit(EventConnectionStatus, ConnectionStatusEvent{
		Status:    status,
		Error:     reason,
		Timestamp: p.millis(),
	})
}

// Connect connects the client and waits until it is connected or failed.
func (p *Plugin) Connect(ctx context.Context) (*ConnectResult, error) {
	client := p.currentClient()
	if client == nil {
		return nil, ErrNotInitialized
	}
	if client.State() == realtime.StateConnected {
		p.log.Info().Msg("already connected")
		return &ConnectResult{Status: StatusConnected, Message: "Already connected"}, nil
	}

	done := make(chan realtime.ConnectionStateChange, 1)
	off := client.OnConnectionChange(func(change realtime.ConnectionStateChange) {
		if change.Current != realtime.StateConnected && change.Current != realtime.StateFailed {
			return
		}
		select {
		case done <- change:
		default:
		}
	})
	defer off()

	if client.State() == realtime.StateConnected {
		return &ConnectResult{Status: StatusConnected, Message: "Connected successfully"}, nil
	}
	client.Connect()

	select {
	case change := <-done:
		if change.Current == realtime.StateFailed {
			reason := ""
			if change.Reason != nil {
				reason = change.Reason.Error()
			}
			return nil, &ConnectionError{Reason: reason}
		}
		return &ConnectResult{Status: StatusConnected, Message: "Connected successfully"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect unsubscribes every channel, leaves every space and closes the
// client. Teardown failures are logged. It is safe to call repeatedly.
func (p *Plugin) Disconnect(ctx context.Context) *ConnectResult {
	p.mu.Lock()
	client := p.client
	channels := p.channels
	spaces := p.entered
	p.channels = make(map[string]*channelEntry)
	p.entered = make(map[string]*spaceEntry)
	p.state.ActiveChannels = nil
	p.state.ActiveSpaces = nil
	p.state.CurrentSpace = ""
	p.recordRegistries()
	p.mu.Unlock()

	if client == nil {
		return &ConnectResult{Status: StatusDisconnected, Message: "Not connected"}
	}

	for name, entry := range channels {
		if err := entry.teardown(ctx); err != nil {
			p.log.Warn().Err(err).Str("channel", name).Msg("channel teardown failed")
		}
	}
	for name, entry := range spaces {
		if err := entry.teardown(ctx); err != nil {
			p.log.Warn().Err(err).Str("space", name).Msg("space teardown failed")
		}
	}

	client.Close()
	// Skipped when the client already reported closed.
	p.project(StatusDisconnected, "", false)

	p.log.Info().Msg("disconnected")
	return &ConnectResult{Status: StatusDisconnected, Message: "Disconnected successfully"}
}
