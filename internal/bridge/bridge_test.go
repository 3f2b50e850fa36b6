package bridge

import (
	"testing"

	"github.com/robceliesius/plugin-ably/internal/host"
)

type recordingHost struct {
	keys       []string
	events     []any
	conditions []any
}

func (r *recordingHost) Trigger(key string, event, conditions any) {
	r.keys = append(r.keys, key)
	r.events = append(r.events, event)
	r.conditions = append(r.conditions, conditions)
}

func (r *recordingHost) Notify(host.Level, string) {}

func (r *recordingHost) User() *host.User { return nil }

func TestEmitNamespacesKey(t *testing.T) {
	h := &recordingHost{}
	b := New("plugin-1", h)

	payload := map[string]any{"channelName": "general"}
	b.Emit("message", payload)

	if len(h.keys) != 1 || h.keys[0] != "plugin-1-message" {
		t.Fatalf("unexpected keys: %v", h.keys)
	}
	if h.events[0].(map[string]any)["channelName"] != "general" {
		t.Fatalf("unexpected event payload: %#v", h.events[0])
	}
	if h.conditions[0].(map[string]any)["channelName"] != "general" {
		t.Fatalf("expected payload to be used as conditions: %#v", h.conditions[0])
	}
}

func TestEmitWithoutHostIsNoop(t *testing.T) {
	New("plugin-1", nil).Emit("message", nil)

	var b *Bridge
	b.Emit("message", nil)
}
