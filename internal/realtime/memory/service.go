// Package memory is a single-process realtime service. Clients dialled from
// the same Service share channels, presence sets and spaces, which makes it a
// drop-in driver for development and tests.
//
// Delivery is synchronous: subscriber callbacks run on the goroutine that
// published, after the service lock is released.
package memory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/realtime"
	"github.com/robceliesius/plugin-ably/internal/store"
)

// ErrClientIDMismatch is returned when a credential is bound to another client id.
var ErrClientIDMismatch = errors.New("token client id does not match connection client id")

// Verifier validates a credential and returns the client id it is bound to.
// An empty client id means the credential is not bound.
type Verifier func(token string) (clientID string, err error)

// Option configures a Service.
type Option func(*Service)

// WithVerifier makes connections verify their credential.
func WithVerifier(v Verifier) Option {
	return func(s *Service) { s.verify = v }
}

// WithLogger sets the service logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Service) { s.log = logger }
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service holds the shared state of every channel and space.
type Service struct {
	mu       sync.Mutex
	channels map[string]*channelState
	spaces   map[string]*spaceState
	nextSub  int

	history store.HistoryStore
	verify  Verifier
	now     func() time.Time
	log     *zerolog.Logger
}

// NewService creates a service. history may be nil, in which case channel
// history is not retained.
func NewService(history store.HistoryStore, opts ...Option) *Service {
	nop := zerolog.Nop()
	s := &Service{
		channels: make(map[string]*channelState),
		spaces:   make(map[string]*spaceState),
		history:  history,
		now:      time.Now,
		log:      &nop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial creates a client. It satisfies realtime.Dialer.
func (s *Service) Dial(opts realtime.ClientOptions) (realtime.Client, error) {
	c := newClient(s, opts)
	if opts.AutoConnect {
		c.Connect()
	}
	return c, nil
}

func (s *Service) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *Service) subID() int {
	s.nextSub++
	return s.nextSub
}

func (s *Service) authorize(tok *realtime.Token, clientID string) error {
	if s.verify == nil {
		return nil
	}
	if tok == nil || tok.Token == "" {
		return fmt.Errorf("no token presented")
	}
	bound, err := s.verify(tok.Token)
	if err != nil {
		return err
	}
	if bound != "" && clientID != "" && bound != clientID {
		return ErrClientIDMismatch
	}
	return nil
}

// channel returns the shared state for name. Callers hold s.mu.
func (s *Service) channel(name string) *channelState {
	ch, ok := s.channels[name]
	if !ok {
		ch = newChannelState(name)
		s.channels[name] = ch
	}
	return ch
}

// space returns the shared state for name. Callers hold s.mu.
func (s *Service) space(name string) *spaceState {
	sp, ok := s.spaces[name]
	if !ok {
		sp = newSpaceState(name)
		s.spaces[name] = sp
	}
	return sp
}

// dropConnection removes everything a closing connection owns and returns
// the callbacks to run once the lock is released.
func (s *Service) dropConnection(c *Client) []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var notify []func()
	for _, ch := range s.channels {
		notify = append(notify, ch.dropConnection(c.connID, s.nowMillis())...)
	}
	for _, sp := range s.spaces {
		notify = append(notify, sp.dropConnection(c.connID, s.nowMillis())...)
	}
	return notify
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
