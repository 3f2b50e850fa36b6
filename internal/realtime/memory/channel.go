package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/robceliesius/plugin-ably/internal/realtime"
	"github.com/robceliesius/plugin-ably/internal/store"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type messageSub struct {
	connID string
	fn     func(*realtime.Message)
}

type presenceSub struct {
	connID string
	action realtime.PresenceAction
	fn     func(*realtime.PresenceMessage)
}

// channelState is shared by every client attached to a channel.
type channelState struct {
	name        string
	subs        map[int]messageSub
	presenceSub map[int]presenceSub
	// members is keyed by connection id.
	members map[string]*realtime.PresenceMessage
}

func newChannelState(name string) *channelState {
	return &channelState{
		name:        name,
		subs:        make(map[int]messageSub),
		presenceSub: make(map[int]presenceSub),
		members:     make(map[string]*realtime.PresenceMessage),
	}
}

// presenceEvent collects callbacks interested in msg.
func (cs *channelState) presenceEvent(msg *realtime.PresenceMessage) []func() {
	var notify []func()
	for _, sub := range cs.presenceSub {
		if sub.action != "" && sub.action != msg.Action {
			continue
		}
		fn := sub.fn
		ev := *msg
		notify = append(notify, func() { fn(&ev) })
	}
	return notify
}

// dropConnection removes subscriptions and presence owned by connID.
func (cs *channelState) dropConnection(connID string, now int64) []func() {
	for id, sub := range cs.subs {
		if sub.connID == connID {
			delete(cs.subs, id)
		}
	}
	for id, sub := range cs.presenceSub {
		if sub.connID == connID {
			delete(cs.presenceSub, id)
		}
	}
	return cs.leave(connID, nil, now)
}

func (cs *channelState) leave(connID string, data any, now int64) []func() {
	member, ok := cs.members[connID]
	if !ok {
		return nil
	}
	delete(cs.members, connID)

	ev := &realtime.PresenceMessage{Message: member.Message, Action: realtime.PresenceLeave}
	ev.ID = uuid.NewString()
	ev.Timestamp = now
	if data != nil {
		ev.Data = data
	}
	return cs.presenceEvent(ev)
}

// Channel is a client's handle on a shared channel.
type Channel struct {
	client *Client
	name   string
}

func (ch *Channel) Name() string { return ch.name }

func (ch *Channel) Subscribe(_ context.Context, fn func(*realtime.Message)) (func(), error) {
	svc := ch.client.svc
	svc.mu.Lock()
	id := svc.subID()
	svc.channel(ch.name).subs[id] = messageSub{connID: ch.client.connID, fn: fn}
	svc.mu.Unlock()

	return func() {
		svc.mu.Lock()
		delete(svc.channel(ch.name).subs, id)
		svc.mu.Unlock()
	}, nil
}

func (ch *Channel) Publish(ctx context.Context, name string, data any) error {
	if err := ch.client.requireConnected(); err != nil {
		return err
	}
	svc := ch.client.svc

	msg := &realtime.Message{
		ID:           uuid.NewString(),
		Name:         name,
		ClientID:     ch.client.opts.ClientID,
		ConnectionID: ch.client.connID,
		Data:         data,
		Timestamp:    svc.nowMillis(),
	}

	if svc.history != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode message data: %w", err)
		}
		err = svc.history.SaveMessage(ctx, &store.Message{
			ID:           msg.ID,
			Channel:      ch.name,
			Name:         msg.Name,
			ClientID:     msg.ClientID,
			ConnectionID: msg.ConnectionID,
			Data:         encoded,
			CreatedAt:    time.UnixMilli(msg.Timestamp),
		})
		if err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
	}

	svc.mu.Lock()
	var notify []func()
	for _, sub := range svc.channel(ch.name).subs {
		if sub.connID == ch.client.connID && !ch.client.opts.EchoMessages {
			continue
		}
		fn := sub.fn
		delivered := *msg
		notify = append(notify, func() { fn(&delivered) })
	}
	svc.mu.Unlock()

	run(notify)
	return nil
}

// Detach stops delivery to this client and leaves the presence set.
func (ch *Channel) Detach(_ context.Context) error {
	svc := ch.client.svc
	svc.mu.Lock()
	notify := svc.channel(ch.name).dropConnection(ch.client.connID, svc.nowMillis())
	svc.mu.Unlock()

	run(notify)
	return nil
}

func (ch *Channel) History(ctx context.Context, params realtime.HistoryParams) ([]*realtime.Message, error) {
	svc := ch.client.svc
	if svc.history == nil {
		return []*realtime.Message{}, nil
	}

	q := store.HistoryQuery{
		Limit:     params.Limit,
		Direction: store.DirectionBackwards,
		Start:     params.Start,
		End:       params.End,
	}
	if q.Limit <= 0 {
		q.Limit = defaultHistoryLimit
	}
	if q.Limit > maxHistoryLimit {
		q.Limit = maxHistoryLimit
	}
	switch params.Direction {
	case "", realtime.Backwards:
	case realtime.Forwards:
		q.Direction = store.DirectionForwards
	default:
		return nil, fmt.Errorf("invalid history direction %q", params.Direction)
	}

	rows, err := svc.history.ListMessages(ctx, ch.name, q)
	if err != nil {
		return nil, err
	}

	out := make([]*realtime.Message, 0, len(rows))
	for _, row := range rows {
		msg := &realtime.Message{
			ID:           row.ID,
			Name:         row.Name,
			ClientID:     row.ClientID,
			ConnectionID: row.ConnectionID,
			Timestamp:    row.CreatedAt.UnixMilli(),
		}
		if len(row.Data) > 0 {
			if err := json.Unmarshal(row.Data, &msg.Data); err != nil {
				return nil, fmt.Errorf("decode message %s: %w", row.ID, err)
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func (ch *Channel) Presence() realtime.Presence {
	return &presence{ch: ch}
}

type presence struct {
	ch *Channel
}

// Subscribe registers fn for action. An empty action receives every action.
func (p *presence) Subscribe(_ context.Context, action realtime.PresenceAction, fn func(*realtime.PresenceMessage)) (func(), error) {
	svc := p.ch.client.svc
	svc.mu.Lock()
	id := svc.subID()
	svc.channel(p.ch.name).presenceSub[id] = presenceSub{connID: p.ch.client.connID, action: action, fn: fn}
	svc.mu.Unlock()

	return func() {
		svc.mu.Lock()
		delete(svc.channel(p.ch.name).presenceSub, id)
		svc.mu.Unlock()
	}, nil
}

// Enter adds the client to the presence set. Entering again updates the
// member data and is reported as an update.
func (p *presence) Enter(_ context.Context, data any) error {
	c := p.ch.client
	if err := c.requireConnected(); err != nil {
		return err
	}
	if c.opts.ClientID == "" {
		return fmt.Errorf("presence requires a client id")
	}
	svc := c.svc

	svc.mu.Lock()
	cs := svc.channel(p.ch.name)
	action := realtime.PresenceEnter
	if _, ok := cs.members[c.connID]; ok {
		action = realtime.PresenceUpdate
	}
	member := &realtime.PresenceMessage{
		Message: realtime.Message{
			ID:           uuid.NewString(),
			ClientID:     c.opts.ClientID,
			ConnectionID: c.connID,
			Data:         data,
			Timestamp:    svc.nowMillis(),
		},
		Action: realtime.PresencePresent,
	}
	cs.members[c.connID] = member
	notify := cs.presenceEvent(&realtime.PresenceMessage{Message: member.Message, Action: action})
	svc.mu.Unlock()

	run(notify)
	return nil
}

// Leave removes the client from the presence set. Leaving when absent is a no-op.
func (p *presence) Leave(_ context.Context, data any) error {
	c := p.ch.client
	if err := c.requireConnected(); err != nil {
		return err
	}
	svc := c.svc

	svc.mu.Lock()
	notify := svc.channel(p.ch.name).leave(c.connID, data, svc.nowMillis())
	svc.mu.Unlock()

	run(notify)
	return nil
}

// Get returns the current members ordered by client id. The set is always
// in sync, so waitForSync has no effect.
func (p *presence) Get(_ context.Context, _ bool) ([]*realtime.PresenceMessage, error) {
	svc := p.ch.client.svc
	svc.mu.Lock()
	cs := svc.channel(p.ch.name)
	out := make([]*realtime.PresenceMessage, 0, len(cs.members))
	for _, m := range cs.members {
		cp := *m
		out = append(out, &cp)
	}
	svc.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out, nil
}

var (
	_ realtime.Channel  = (*Channel)(nil)
	_ realtime.Presence = (*presence)(nil)
)
