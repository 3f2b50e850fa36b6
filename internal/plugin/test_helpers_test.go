package plugin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/host"
	"github.com/robceliesius/plugin-ably/internal/realtime/memory"
	"github.com/robceliesius/plugin-ably/internal/store/sqlite"
)

type recordedTrigger struct {
	key   string
	event any
}

type recordingHost struct {
	mu       sync.Mutex
	triggers []recordedTrigger
	notes    []host.Level
	user     *host.User
}

func (h *recordingHost) Trigger(key string, event, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.triggers = append(h.triggers, recordedTrigger{key: key, event: event})
}

func (h *recordingHost) Notify(level host.Level, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notes = append(h.notes, level)
}

func (h *recordingHost) User() *host.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.user
}

func (h *recordingHost) events(key string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []any
	for _, tr := range h.triggers {
		if tr.key == key {
			out = append(out, tr.event)
		}
	}
	return out
}

func (h *recordingHost) notifications() []host.Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]host.Level(nil), h.notes...)
}

// tokenServer issues a token for whatever client id is posted.
func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ClientID string `json:"clientId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":    "tok-" + req.ClientID,
			"clientId": req.ClientID,
			"expires":  time.Now().Add(time.Hour).UnixMilli(),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T) *memory.Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return memory.NewService(st)
}

func testSettings(endpoint, clientID string) Settings {
	s := DefaultSettings()
	s.TokenEndpoint = endpoint
	s.ClientID = clientID
	return s
}

// newConnectedPlugin loads a plugin against svc and waits for the connection.
func newConnectedPlugin(t *testing.T, svc *memory.Service, clientID string) (*Plugin, *recordingHost) {
	t.Helper()

	logger := zerolog.New(nil)
	h := &recordingHost{}
	p := New(Options{Dialer: svc.Dial, Host: h, Logger: &logger})

	ctx := context.Background()
	if err := p.Load(ctx, testSettings(tokenServer(t).URL, clientID)); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := p.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "connected state", func() bool { return p.State().IsConnected })
	t.Cleanup(func() { p.Destroy(context.Background()) })
	return p, h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
