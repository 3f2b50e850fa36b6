package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

const authTimeout = 15 * time.Second

// Client is a connection to a Service.
type Client struct {
	svc    *Service
	opts   realtime.ClientOptions
	connID string

	mu        sync.Mutex
	state     realtime.ConnectionState
	listeners map[int]func(realtime.ConnectionStateChange)
	nextID    int
	channels  map[string]*Channel
	spaces    *Spaces
}

func newClient(svc *Service, opts realtime.ClientOptions) *Client {
	return &Client{
		svc:       svc,
		opts:      opts,
		connID:    uuid.NewString(),
		state:     realtime.StateInitialized,
		listeners: make(map[int]func(realtime.ConnectionStateChange)),
		channels:  make(map[string]*Channel),
	}
}

// ConnectionID identifies this connection within the service.
func (c *Client) ConnectionID() string { return c.connID }

func (c *Client) State() realtime.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) OnConnectionChange(fn func(realtime.ConnectionStateChange)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Connect starts authentication in the background. It is a no-op while
// connecting or connected.
func (c *Client) Connect() {
	c.mu.Lock()
	switch c.state {
	case realtime.StateConnecting, realtime.StateConnected:
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = realtime.StateConnecting
	c.mu.Unlock()

	c.emit(realtime.ConnectionStateChange{Previous: prev, Current: realtime.StateConnecting})
	go c.authenticate()
}

func (c *Client) authenticate() {
	var err error
	if c.opts.AuthCallback != nil {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		var tok *realtime.Token
		tok, err = c.opts.AuthCallback(ctx, realtime.TokenParams{ClientID: c.opts.ClientID})
		cancel()
		if err == nil {
			err = c.svc.authorize(tok, c.opts.ClientID)
		}
	}

	c.mu.Lock()
	if c.state != realtime.StateConnecting {
		// closed while authenticating
		c.mu.Unlock()
		return
	}
	change := realtime.ConnectionStateChange{Previous: realtime.StateConnecting, Current: realtime.StateConnected}
	if err != nil {
		change.Current = realtime.StateFailed
		change.Reason = err
	}
	c.state = change.Current
	c.mu.Unlock()

	if err != nil {
		c.svc.log.Warn().Err(err).Str("client_id", c.opts.ClientID).Msg("connection failed")
	} else {
		c.svc.log.Debug().Str("client_id", c.opts.ClientID).Str("connection_id", c.connID).Msg("connected")
	}
	c.emit(change)
}

// Close leaves every presence set and space and moves to closed.
func (c *Client) Close() {
	c.mu.Lock()
	switch c.state {
	case realtime.StateClosed, realtime.StateClosing:
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = realtime.StateClosing
	c.mu.Unlock()

	c.emit(realtime.ConnectionStateChange{Previous: prev, Current: realtime.StateClosing})
	run(c.svc.dropConnection(c))

	c.mu.Lock()
	c.state = realtime.StateClosed
	c.mu.Unlock()
	c.emit(realtime.ConnectionStateChange{Previous: realtime.StateClosing, Current: realtime.StateClosed})
}

func (c *Client) Channel(name string) realtime.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[name]
	if !ok {
		ch = &Channel{client: c, name: name}
		c.channels[name] = ch
	}
	return ch
}

func (c *Client) Spaces() (realtime.Spaces, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spaces == nil {
		c.spaces = &Spaces{client: c}
	}
	return c.spaces, nil
}

func (c *Client) emit(change realtime.ConnectionStateChange) {
	c.mu.Lock()
	fns := make([]func(realtime.ConnectionStateChange), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func (c *Client) requireConnected() error {
	if c.State() != realtime.StateConnected {
		return realtime.ErrNotConnected
	}
	return nil
}

var _ realtime.Client = (*Client)(nil)
