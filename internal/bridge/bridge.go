// Package bridge forwards realtime callbacks to host workflow triggers.
package bridge

import (
	"github.com/robceliesius/plugin-ably/internal/host"
	"github.com/robceliesius/plugin-ably/internal/metrics"
)

// Bridge emits events under the plugin's trigger namespace.
type Bridge struct {
	pluginID string
	host     host.Host
}

// New creates a bridge. A nil host makes Emit a no-op.
func New(pluginID string, h host.Host) *Bridge {
	return &Bridge{pluginID: pluginID, host: h}
}

// Key returns the namespaced trigger key for event.
func (b *Bridge) Key(event string) string {
	return b.pluginID + "-" + event
}

// Emit triggers workflows listening on event. payload is used both as the
// workflow event and as the filter condition context.
func (b *Bridge) Emit(event string, payload any) {
	if b == nil || b.host == nil {
		return
	}
	metrics.RecordTrigger(event)
	b.host.Trigger(b.Key(event), payload, payload)
}
