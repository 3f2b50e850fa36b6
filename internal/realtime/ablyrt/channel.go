package ablyrt

import (
	"context"

	"github.com/ably/ably-go/ably"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

// Channel wraps *ably.RealtimeChannel.
type Channel struct {
	ch *ably.RealtimeChannel
}

func (c *Channel) Name() string { return c.ch.Name }

func (c *Channel) Subscribe(ctx context.Context, fn func(*realtime.Message)) (func(), error) {
	return c.ch.SubscribeAll(ctx, func(m *ably.Message) {
		fn(message(m))
	})
}

func (c *Channel) Publish(ctx context.Context, name string, data any) error {
	return c.ch.Publish(ctx, name, data)
}

func (c *Channel) Detach(ctx context.Context) error {
	return c.ch.Detach(ctx)
}

// History reads pages until params.Limit messages are collected.
func (c *Channel) History(ctx context.Context, params realtime.HistoryParams) ([]*realtime.Message, error) {
	var opts []ably.HistoryOption
	if params.Limit > 0 {
		opts = append(opts, ably.HistoryWithLimit(params.Limit))
	}
	switch params.Direction {
	case realtime.Forwards:
		opts = append(opts, ably.HistoryWithDirection(ably.Forwards))
	default:
		opts = append(opts, ably.HistoryWithDirection(ably.Backwards))
	}
	if !params.Start.IsZero() {
		opts = append(opts, ably.HistoryWithStart(params.Start))
	}
	if !params.End.IsZero() {
		opts = append(opts, ably.HistoryWithEnd(params.End))
	}

	pages, err := c.ch.History(opts...).Pages(ctx)
	if err != nil {
		return nil, err
	}

	out := []*realtime.Message{}
	for pages.Next(ctx) {
		for _, m := range pages.Items() {
			out = append(out, message(m))
			if params.Limit > 0 && len(out) >= params.Limit {
				return out, nil
			}
		}
	}
	if err := pages.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Channel) Presence() realtime.Presence {
	return &Presence{p: c.ch.Presence}
}

// Presence wraps *ably.RealtimePresence.
type Presence struct {
	p *ably.RealtimePresence
}

// Subscribe registers fn for action. An empty action receives every action.
func (p *Presence) Subscribe(ctx context.Context, action realtime.PresenceAction, fn func(*realtime.PresenceMessage)) (func(), error) {
	handler := func(m *ably.PresenceMessage) { fn(presenceMessage(m)) }
	if action == "" {
		return p.p.SubscribeAll(ctx, handler)
	}
	return p.p.Subscribe(ctx, presenceAction(action), handler)
}

func (p *Presence) Enter(ctx context.Context, data any) error {
	return p.p.Enter(ctx, data)
}

func (p *Presence) Leave(ctx context.Context, data any) error {
	return p.p.Leave(ctx, data)
}

// Get returns the presence set. The library always waits for sync, so
// waitForSync is not forwarded.
func (p *Presence) Get(ctx context.Context, _ bool) ([]*realtime.PresenceMessage, error) {
	members, err := p.p.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*realtime.PresenceMessage, 0, len(members))
	for _, m := range members {
		out = append(out, presenceMessage(m))
	}
	return out, nil
}

func message(m *ably.Message) *realtime.Message {
	return &realtime.Message{
		ID:           m.ID,
		Name:         m.Name,
		ClientID:     m.ClientID,
		ConnectionID: m.ConnectionID,
		Data:         m.Data,
		Timestamp:    m.Timestamp,
	}
}

func presenceMessage(m *ably.PresenceMessage) *realtime.PresenceMessage {
	return &realtime.PresenceMessage{
		Message: *message(&m.Message),
		Action:  fromPresenceAction(m.Action),
	}
}

func presenceAction(a realtime.PresenceAction) ably.PresenceAction {
	switch a {
	case realtime.PresenceAbsent:
		return ably.PresenceActionAbsent
	case realtime.PresencePresent:
		return ably.PresenceActionPresent
	case realtime.PresenceLeave:
		return ably.PresenceActionLeave
	case realtime.PresenceUpdate:
		return ably.PresenceActionUpdate
	}
	return ably.PresenceActionEnter
}

func fromPresenceAction(a ably.PresenceAction) realtime.PresenceAction {
	switch a {
	case ably.PresenceActionAbsent:
		return realtime.PresenceAbsent
	case ably.PresenceActionPresent:
		return realtime.PresencePresent
	case ably.PresenceActionLeave:
		return realtime.PresenceLeave
	case ably.PresenceActionUpdate:
		return realtime.PresenceUpdate
	}
	return realtime.PresenceEnter
}

var (
	_ realtime.Channel  = (*Channel)(nil)
	_ realtime.Presence = (*Presence)(nil)
)
