package host

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub is a Host that fans triggers and notifications out to subscribers.
type Hub struct {
	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan *Event
	done       chan struct{}

	subscribers map[*Subscriber]struct{}

	mu   sync.RWMutex
	user *User

	log *zerolog.Logger
}

// NewHub creates a hub. user may be nil for anonymous sessions.
func NewHub(user *User, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan *Event, 256),
		done:        make(chan struct{}),
		subscribers: make(map[*Subscriber]struct{}),
		user:        user,
		log:         logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case s := <-h.register:
			h.subscribers[s] = struct{}{}
			h.log.Debug().Str("subscriber", s.ID).Int("subscribers", len(h.subscribers)).Msg("subscriber registered")
		case s := <-h.unregister:
			if _, ok := h.subscribers[s]; ok {
				delete(h.subscribers, s)
				close(s.Events)
				h.log.Debug().Str("subscriber", s.ID).Msg("subscriber unregistered")
			}
		case ev := <-h.broadcast:
			for s := range h.subscribers {
				select {
				case s.Events <- ev:
				default:
					// Drop if slow consumer.
					h.log.Warn().Str("subscriber", s.ID).Msg("dropping host event for slow subscriber")
				}
			}
		case <-ctx.Done():
			for s := range h.subscribers {
				delete(h.subscribers, s)
				close(s.Events)
			}
			return
		}
	}
}

// RegisterClient adds a subscriber. It blocks until the hub loop accepts it.
// Once the hub has stopped the subscriber's event channel is closed instead.
func (h *Hub) RegisterClient(s *Subscriber) {
	select {
	case h.register <- s:
	case <-h.done:
		close(s.Events)
	}
}

// UnregisterClient removes a subscriber and closes its event channel.
func (h *Hub) UnregisterClient(s *Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Trigger implements Host.
func (h *Hub) Trigger(key string, event, conditions any) {
	h.publish(&Event{
		Kind:    EventTrigger,
		Trigger: &Trigger{Key: key, Event: event, Conditions: conditions},
		At:      time.Now(),
	})
}

// Notify implements Host.
func (h *Hub) Notify(level Level, text string) {
	h.publish(&Event{
		Kind:         EventNotification,
		Notification: &Notification{Level: level, Text: text},
		At:           time.Now(),
	})
}

// User implements Host.
func (h *Hub) User() *User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return nil
	}
	u := *h.user
	return &u
}

// SetUser replaces the authenticated user; nil signs the session out.
func (h *Hub) SetUser(u *User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.user = u
}

func (h *Hub) publish(ev *Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.log.Warn().Int("kind", int(ev.Kind)).Msg("host event queue full, dropping event")
	}
}

var _ Host = (*Hub)(nil)
