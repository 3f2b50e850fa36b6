package plugin

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

const defaultHistoryLimit = 50

// ChannelResult is returned by subscribe and unsubscribe.
type ChannelResult struct {
	ChannelName string `json:"channelName"`
	Status      string `json:"status"`
}

type PublishResult struct {
	ChannelName string `json:"channelName"`
	MessageName string `json:"messageName"`
	Status      string `json:"status"`
	Timestamp   int64  `json:"timestamp"`
}

type PresenceMember struct {
	ClientID  string                  `json:"clientId"`
	Data      any                     `json:"data"`
	Action    realtime.PresenceAction `json:"action"`
	Timestamp int64                   `json:"timestamp"`
}

type HistoryMessage struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
	ClientID  string `json:"clientId"`
}

type SubscribeChannelParams struct {
	ChannelName    string `mapstructure:"channelName"`
	EnablePresence bool   `mapstructure:"enablePresence"`
}

type UnsubscribeChannelParams struct {
	ChannelName string `mapstructure:"channelName"`
}

type PublishMessageParams struct {
	ChannelName string `mapstructure:"channelName"`
	MessageName string `mapstructure:"messageName"`
	Data        any    `mapstructure:"data"`
}

type ChannelPresenceParams struct {
	ChannelName string `mapstructure:"channelName"`
	// WaitForSync defaults to true.
	WaitForSync *bool `mapstructure:"waitForSync"`
}

// ChannelHistoryParams select a page of history. Start and End accept unix
// milliseconds or an RFC 3339 string.
type ChannelHistoryParams struct {
	ChannelName string `mapstructure:"channelName"`
	Limit       int    `mapstructure:"limit"`
	Direction   string `mapstructure:"direction"`
	Start       any    `mapstructure:"start"`
	End         any    `mapstructure:"end"`
}

// channelEntry is a subscribed channel and the listeners attached to it.
type channelEntry struct {
	name string
	ch   realtime.Channel

	mu     sync.Mutex
	unsubs []func()
}

func (e *channelEntry) add(unsubscribe func()) {
	e.mu.Lock()
	e.unsubs = append(e.unsubs, unsubscribe)
	e.mu.Unlock()
}

func (e *channelEntry) removeListeners() {
	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

// teardown removes every listener and detaches the channel.
func (e *channelEntry) teardown(ctx context.Context) error {
	e.removeListeners()
	if e.ch == nil {
		return nil
	}
	return e.ch.Detach(ctx)
}

// SubscribeChannel forwards channel messages, and optionally presence
// events, to the host.
func (p *Plugin) SubscribeChannel(ctx context.Context, params SubscribeChannelParams) (*ChannelResult, error) {
	client := p.currentClient()
	if client == nil {
		return nil, ErrNotInitialized
	}
	name := params.ChannelName
	if name == "" {
		return nil, required("channelName", "Channel name")
	}

	p.mu.Lock()
	if _, ok := p.channels[name]; ok {
		p.mu.Unlock()
		p.log.Warn().Str("channel", name).Msg("already subscribed to channel")
		return &ChannelResult{ChannelName: name, Status: "already_subscribed"}, nil
	}
	entry := &channelEntry{name: name, ch: client.Channel(name)}
	p.channels[name] = entry
	p.mu.Unlock()

	p.log.Info().Str("channel", name).Bool("presence", params.EnablePresence).Msg("subscribing to channel")

	if err := p.attachChannel(ctx, entry, params.EnablePresence); err != nil {
		entry.removeListeners()
		p.mu.Lock()
		if p.channels[name] == entry {
			delete(p.channels, name)
		}
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	current := p.channels[name] == entry
	if current {
		p.state.ActiveChannels = append(p.state.ActiveChannels, name)
		p.recordRegistries()
	}
	p.mu.Unlock()

	// A disconnect during attach already dropped the entry.
	if !current {
		if err := entry.teardown(ctx); err != nil {
			p.log.Debug().Err(err).Str("channel", name).Msg("detach after disconnect failed")
		}
		p.log.Warn().Str("channel", name).Msg("disconnected while subscribing")
		return nil, &ConnectionError{Reason: "disconnected while subscribing to " + name}
	}

	return &ChannelResult{ChannelName: name, Status: "subscribed"}, nil
}

func (p *Plugin) attachChannel(ctx context.Context, entry *channelEntry, enablePresence bool) error {
	name := entry.name

	off, err := entry.ch.Subscribe(ctx, func(m *realtime.Message) {
		p.emit(EventMessage, MessageEvent{
			ChannelName: name,
			MessageName: m.Name,
			Data:        m.Data,
			Timestamp:   m.Timestamp,
			ClientID:    m.ClientID,
		})
	})
	if err != nil {
		return err
	}
	entry.add(off)

	if !enablePresence {
		return nil
	}

	presence := entry.ch.Presence()
	for action, event := range map[realtime.PresenceAction]string{
		realtime.PresenceEnter:  EventPresenceEnter,
		realtime.PresenceLeave:  EventPresenceLeave,
		realtime.PresenceUpdate: EventPresenceUpdate,
	} {
		off, err := presence.Subscribe(ctx, action, func(m *realtime.PresenceMessage) {
			p.emit(event, PresenceEvent{
				ChannelName: name,
				ClientID:    m.ClientID,
				Data:        m.Data,
				Timestamp:   m.Timestamp,
			})
		})
		if err != nil {
			return err
		}
		entry.add(off)
	}

	return presence.Enter(ctx, nil)
}

// UnsubscribeChannel removes listeners and detaches. It reports
// not_subscribed for unknown channels.
func (p *Plugin) UnsubscribeChannel(ctx context.Context, params UnsubscribeChannelParams) (*ChannelResult, error) {
	name := params.ChannelName
	if name == "" {
		return nil, required("channelName", "Channel name")
	}

	p.mu.Lock()
	entry, ok := p.channels[name]
	if ok {
		delete(p.channels, name)
		p.state.ActiveChannels = removeName(p.state.ActiveChannels, name)
		p.recordRegistries()
	}
	p.mu.Unlock()

	if !ok {
		p.log.Warn().Str("channel", name).Msg("not subscribed to channel")
		return &ChannelResult{ChannelName: name, Status: "not_subscribed"}, nil
	}

	p.log.Info().Str("channel", name).Msg("unsubscribing from channel")
	if err := entry.teardown(ctx); err != nil {
		p.log.Warn().Err(err).Str("channel", name).Msg("channel detach failed")
	}
	return &ChannelResult{ChannelName: name, Status: "unsubscribed"}, nil
}

func (p *Plugin) PublishMessage(ctx context.Context, params PublishMessageParams) (*PublishResult, error) {
	client := p.currentClient()
	if client == nil {
		return nil, ErrNotInitialized
	}
	if params.ChannelName == "" {
		return nil, required("channelName", "Channel name")
	}
	if params.MessageName == "" {
		return nil, required("messageName", "Message name")
	}

	p.log.Info().Str("channel", params.ChannelName).Str("message", params.MessageName).Msg("publishing message")

	if err := client.Channel(params.ChannelName).Publish(ctx, params.MessageName, params.Data); err != nil {
		return nil, err
	}
	return &PublishResult{
		ChannelName: params.ChannelName,
		MessageName: params.MessageName,
		Status:      "published",
		Timestamp:   p.millis(),
	}, nil
}

func (p *Plugin) GetChannelPresence(ctx context.Context, params ChannelPresenceParams) ([]PresenceMember, error) {
	client := p.currentClient()
	if client == nil {
		return nil, ErrNotInitialized
	}
	if params.ChannelName == "" {
		return nil, required("channelName", "Channel name")
	}
	waitForSync := true
	if params.WaitForSync != nil {
		waitForSync = *params.WaitForSync
	}

	members, err := client.Channel(params.ChannelName).Presence().Get(ctx, waitForSync)
	if err != nil {
		return nil, err
	}

	out := make([]PresenceMember, 0, len(members))
	for _, m := range members {
		out = append(out, PresenceMember{
			ClientID:  m.ClientID,
			Data:      m.Data,
			Action:    m.Action,
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

// GetChannelHistory returns a page of history, newest first unless the
// direction is forwards.
func (p *Plugin) GetChannelHistory(ctx context.Context, params ChannelHistoryParams) ([]HistoryMessage, error) {
	client := p.currentClient()
	if client == nil {
		return nil, ErrNotInitialized
	}
	if params.ChannelName == "" {
		return nil, required("channelName", "Channel name")
	}

	hp := realtime.HistoryParams{Limit: params.Limit, Direction: realtime.Backwards}
	if hp.Limit <= 0 {
		hp.Limit = defaultHistoryLimit
	}
	switch realtime.Direction(params.Direction) {
	case "", realtime.Backwards:
	case realtime.Forwards:
		hp.Direction = realtime.Forwards
	default:
		return nil, &ValidationError{Field: "direction", Message: "Direction must be \"backwards\" or \"forwards\""}
	}

	var err error
	if hp.Start, err = parseTime("start", params.Start); err != nil {
		return nil, err
	}
	if hp.End, err = parseTime("end", params.End); err != nil {
		return nil, err
	}

	p.log.Info().Str("channel", params.ChannelName).Int("limit", hp.Limit).Str("direction", string(hp.Direction)).Msg("getting channel history")

	messages, err := client.Channel(params.ChannelName).History(ctx, hp)
	if err != nil {
		return nil, err
	}

	out := make([]HistoryMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, HistoryMessage{
			ID:        m.ID,
			Name:      m.Name,
			Data:      m.Data,
			Timestamp: m.Timestamp,
			ClientID:  m.ClientID,
		})
	}
	return out, nil
}

// parseTime accepts unix milliseconds or RFC 3339. Empty values are zero.
func parseTime(field string, v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case int:
		return time.UnixMilli(int64(t)), nil
	case int64:
		return time.UnixMilli(t), nil
	case float64:
		return time.UnixMilli(int64(t)), nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &ValidationError{Field: field, Message: fmt.Sprintf("%s must be a timestamp in milliseconds or RFC 3339", field)}
}
