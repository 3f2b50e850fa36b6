package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

func TestSubscribeTwiceKeepsOneListener(t *testing.T) {
	svc := newTestService(t)
	p, h := newConnectedPlugin(t, svc, "alice")
	ctx := context.Background()

	first, err := p.SubscribeChannel(ctx, SubscribeChannelParams{ChannelName: "news"})
	if err != nil || first.Status != "subscribed" {
		t.Fatalf("unexpected first subscribe: %#v, %v", first, err)
	}
	second, err := p.SubscribeChannel(ctx, SubscribeChannelParams{ChannelName: "news"})
	if err != nil || second.Status != "already_subscribed" {
		t.Fatalf("unexpected second subscribe: %#v, %v", second, err)
	}

	if _, err := p.PublishMessage(ctx, PublishMessageParams{ChannelName: "news", MessageName: "headline", Data: map[string]any{"title": "hi"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	events := h.events("ably-message")
	if len(events) != 1 {
		t.Fatalf("expected exactly one message event, got %d", len(events))
	}
	ev := events[0].(MessageEvent)
	if ev.ChannelName != "news" || ev.MessageName != "headline" || ev.ClientID != "alice" {
		t.Fatalf("unexpected message event: %#v", ev)
	}

	if got := p.State().ActiveChannels; len(got) != 1 || got[0] != "news" {
		t.Fatalf("unexpected active channels: %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	p, h := newConnectedPlugin(t, newTestService(t), "alice")
	ctx := context.Background()

	res, err := p.UnsubscribeChannel(ctx, UnsubscribeChannelParams{ChannelName: "never"})
	if err != nil || res.Status != "not_subscribed" {
		t.Fatalf("unexpected result: %#v, %v", res, err)
	}

	_, _ = p.SubscribeChannel(ctx, SubscribeChannelParams{ChannelName: "news"})
	res, err = p.UnsubscribeChannel(ctx, UnsubscribeChannelParams{ChannelName: "news"})
	if err != nil || res.Status != "unsubscribed" {
		t.Fatalf("unexpected result: %#v, %v", res, err)
	}

	_, _ = p.PublishMessage(ctx, PublishMessageParams{ChannelName: "news", MessageName: "late"})
	if n := len(h.events("ably-message")); n != 0 {
		t.Fatalf("expected no events after unsubscribe, got %d", n)
	}
	if len(p.State().ActiveChannels) != 0 {
		t.Fatalf("expected no active channels")
	}
}

func TestChannelValidation(t *testing.T) {
	p, _ := newConnectedPlugin(t, newTestService(t), "alice")
	ctx := context.Background()

	tests := []struct {
		name  string
		call  func() error
		field string
	}{
		{"subscribe without name", func() error {
			_, err := p.SubscribeChannel(ctx, SubscribeChannelParams{})
			return err
		}, "channelName"},
		{"unsubscribe without name", func() error {
			_, err := p.UnsubscribeChannel(ctx, UnsubscribeChannelParams{})
			return err
		}, "channelName"},
		{"publish without channel", func() error {
			_, err := p.PublishMessage(ctx, PublishMessageParams{MessageName: "x"})
			return err
		}, "channelName"},
		{"publish without message name", func() error {
			_, err := p.PublishMessage(ctx, PublishMessageParams{ChannelName: "news"})
			return err
		}, "messageName"},
		{"history with bad direction", func() error {
			_, err := p.GetChannelHistory(ctx, ChannelHistoryParams{ChannelName: "news", Direction: "sideways"})
			return err
		}, "direction"},
		{"history with bad start", func() error {
			_, err := p.GetChannelHistory(ctx, ChannelHistoryParams{ChannelName: "news", Start: "yesterday"})
			return err
		}, "start"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var valErr *ValidationError
			if err := tt.call(); !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if valErr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, valErr.Field)
			}
		})
	}
}

func TestHistoryBackwardsReturnsNewestFirst(t *testing.T) {
	p, _ := newConnectedPlugin(t, newTestService(t), "alice")
	ctx := context.Background()

	for _, name := range []string{"A", "B"} {
		if _, err := p.PublishMessage(ctx, PublishMessageParams{ChannelName: "log", MessageName: name}); err != nil {
			t.Fatalf("publish %s: %v", name, err)
		}
	}

	history, err := p.GetChannelHistory(ctx, ChannelHistoryParams{ChannelName: "log", Direction: "backwards"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Name != "B" || history[1].Name != "A" {
		t.Fatalf("expected [B, A], got %#v", history)
	}

	forwards, err := p.GetChannelHistory(ctx, ChannelHistoryParams{ChannelName: "log", Direction: "forwards", Limit: 1})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(forwards) != 1 || forwards[0].Name != "A" {
		t.Fatalf("expected [A], got %#v", forwards)
	}
}

func TestPresenceEventsAndQuery(t *testing.T) {
	svc := newTestService(t)
	alice, aliceHost := newConnectedPlugin(t, svc, "alice")
	bob, _ := newConnectedPlugin(t, svc, "bob")
	ctx := context.Background()

	if _, err := alice.SubscribeChannel(ctx, SubscribeChannelParams{ChannelName: "lobby", EnablePresence: true}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := bob.SubscribeChannel(ctx, SubscribeChannelParams{ChannelName: "lobby", EnablePresence: true}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	members, err := alice.GetChannelPresence(ctx, ChannelPresenceParams{ChannelName: "lobby"})
	if err != nil {
		t.Fatalf("presence: %v", err)
	}
	if len(members) != 2 || members[0].ClientID != "alice" || members[1].ClientID != "bob" {
		t.Fatalf("unexpected members: %#v", members)
	}

	if _, err := bob.UnsubscribeChannel(ctx, UnsubscribeChannelParams{ChannelName: "lobby"}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	enters := aliceHost.events("ably-presence_enter")
	if len(enters) != 2 {
		t.Fatalf("expected 2 enter events, got %d", len(enters))
	}
	leaves := aliceHost.events("ably-presence_leave")
	if len(leaves) != 1 || leaves[0].(PresenceEvent).ClientID != "bob" {
		t.Fatalf("unexpected leave events: %#v", leaves)
	}
}

func TestFetchCollection(t *testing.T) {
	p, _ := newConnectedPlugin(t, newTestService(t), "alice")
	ctx := context.Background()
	_, _ = p.PublishMessage(ctx, PublishMessageParams{ChannelName: "feed", MessageName: "post"})

	if res := p.FetchCollection(ctx, Collection{Mode: "static"}); res.Data != nil || res.Error != nil {
		t.Fatalf("expected empty result for static mode, got %#v", res)
	}

	res := p.FetchCollection(ctx, Collection{Mode: CollectionModeDynamic})
	if res.Error == nil || res.Error.Message != "Channel name is required" {
		t.Fatalf("expected channel name error, got %#v", res)
	}

	res = p.FetchCollection(ctx, Collection{Mode: CollectionModeDynamic, Config: CollectionConfig{ChannelName: "feed"}})
	if res.Error != nil {
		t.Fatalf("unexpected error: %#v", res.Error)
	}
	if items := res.Data.([]HistoryMessage); len(items) != 1 || items[0].Name != "post" {
		t.Fatalf("unexpected data: %#v", res.Data)
	}

	res = p.FetchCollection(ctx, Collection{Mode: CollectionModeDynamic, Config: CollectionConfig{ChannelName: "feed", Direction: "up"}})
	if res.Error == nil || res.Data != nil {
		t.Fatalf("expected error result, got %#v", res)
	}
}

// hookedClient runs afterSubscribe once a channel subscription is in place.
type hookedClient struct {
	realtime.Client
	afterSubscribe func()
}

func (c *hookedClient) Channel(name string) realtime.Channel {
	return &hookedChannel{Channel: c.Client.Channel(name), afterSubscribe: c.afterSubscribe}
}

type hookedChannel struct {
	realtime.Channel
	afterSubscribe func()
}

func (c *hookedChannel) Subscribe(ctx context.Context, fn func(*realtime.Message)) (func(), error) {
	off, err := c.Channel.Subscribe(ctx, fn)
	if err == nil && c.afterSubscribe != nil {
		c.afterSubscribe()
	}
	return off, err
}

func TestSubscribeRacingDisconnectLeavesNoListener(t *testing.T) {
	svc := newTestService(t)
	p, h := newConnectedPlugin(t, svc, "alice")
	bob, _ := newConnectedPlugin(t, svc, "bob")
	ctx := context.Background()

	// Clears the registry the way Disconnect does, but keeps the client
	// open so a leftover listener would still receive messages.
	dropRegistry := func() {
		p.mu.Lock()
		p.channels = make(map[string]*channelEntry)
		p.state.ActiveChannels = nil
		p.mu.Unlock()
	}
	p.mu.Lock()
	p.client = &hookedClient{Client: p.client, afterSubscribe: dropRegistry}
	p.mu.Unlock()

	_, err := p.SubscribeChannel(ctx, SubscribeChannelParams{ChannelName: "news"})
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if got := p.State().ActiveChannels; len(got) != 0 {
		t.Fatalf("expected no active channels, got %v", got)
	}

	if _, err := bob.PublishMessage(ctx, PublishMessageParams{ChannelName: "news", MessageName: "late"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n := len(h.events("ably-message")); n != 0 {
		t.Fatalf("expected no message events, got %d", n)
	}
}
