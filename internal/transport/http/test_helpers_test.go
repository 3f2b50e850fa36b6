package http

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/host"
	"github.com/robceliesius/plugin-ably/internal/plugin"
	"github.com/robceliesius/plugin-ably/internal/realtime"
)

// fakeAdapter answers actions by code, failing with the error class the code names.
type fakeAdapter struct {
	mu    sync.Mutex
	calls []string
	last  map[string]any
}

func (f *fakeAdapter) Manifest() plugin.Manifest {
	return plugin.Manifest{Datasource: true, Actions: []plugin.Action{{Code: "publishMessage"}}}
}

func (f *fakeAdapter) State() plugin.State {
	return plugin.State{ConnectionState: plugin.StatusConnected, IsConnected: true, ActiveChannels: []string{"news"}, ActiveSpaces: []string{}}
}

func (f *fakeAdapter) Execute(_ context.Context, code string, params map[string]any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, code)
	f.last = params
	f.mu.Unlock()

	switch code {
	case "validation":
		return nil, &plugin.ValidationError{Field: "channelName", Message: "Channel name is required"}
	case "notInSpace":
		return nil, &plugin.NotInSpaceError{Space: "board"}
	case "configuration":
		return nil, plugin.ErrNotInitialized
	case "connection":
		return nil, &plugin.ConnectionError{Reason: "token rejected"}
	case "internal":
		return nil, errors.New("boom")
	case "echo":
		return map[string]any{"status": "ok", "params": params}, nil
	}
	return nil, fmt.Errorf("%w: %s", plugin.ErrUnknownAction, code)
}

func (f *fakeAdapter) FetchCollection(_ context.Context, c plugin.Collection) plugin.CollectionResult {
	if c.Config.ChannelName == "" {
		return plugin.CollectionResult{Error: &plugin.CollectionError{Message: "Channel name is required"}}
	}
	return plugin.CollectionResult{Data: []plugin.HistoryMessage{}}
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(clientID string) (*realtime.Token, error) {
	return &realtime.Token{Token: "signed-" + clientID, ClientID: clientID}, nil
}

type testServer struct {
	*httptest.Server
	adapter *fakeAdapter
	hub     *host.Hub
}

func startTestServer(t *testing.T, issuer TokenIssuer, actionLimit int) *testServer {
	t.Helper()

	logger := zerolog.New(nil)
	hub := host.NewHub(nil, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	adapter := &fakeAdapter{}
	server := NewServer(Deps{Adapter: adapter, Hub: hub, Issuer: issuer}, ServerConfig{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		WSActionLimit:     actionLimit,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return &testServer{Server: ts, adapter: adapter, hub: hub}
}
