// Package ablyrt binds the realtime contract to the Ably Go client library.
//
// The Go library has no spaces layer, so Spaces always reports
// realtime.ErrSpacesUnsupported.
package ablyrt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ably/ably-go/ably"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

// Dial creates an Ably realtime client. It satisfies realtime.Dialer.
func Dial(opts realtime.ClientOptions) (realtime.Client, error) {
	clientOpts := []ably.ClientOption{
		ably.WithEchoMessages(opts.EchoMessages),
		ably.WithAutoConnect(opts.AutoConnect),
	}
	if opts.ClientID != "" {
		clientOpts = append(clientOpts, ably.WithClientID(opts.ClientID))
	}
	if opts.AuthCallback != nil {
		clientOpts = append(clientOpts, ably.WithAuthCallback(authCallback(opts.AuthCallback)))
	}

	rt, err := ably.NewRealtime(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create ably client: %w", err)
	}
	return &Client{rt: rt}, nil
}

func authCallback(cb realtime.AuthCallback) func(context.Context, ably.TokenParams) (ably.Tokener, error) {
	return func(ctx context.Context, params ably.TokenParams) (ably.Tokener, error) {
		tok, err := cb(ctx, realtime.TokenParams{ClientID: params.ClientID})
		if err != nil {
			return nil, err
		}
		return toTokener(tok)
	}
}

// toTokener converts endpoint output to token details, or to a signed token
// request when the endpoint returned one.
func toTokener(tok *realtime.Token) (ably.Tokener, error) {
	if tok == nil {
		return nil, errors.New("token endpoint returned no token")
	}
	if tok.Token != "" {
		return &ably.TokenDetails{
			Token:      tok.Token,
			KeyName:    tok.KeyName,
			Issued:     tok.Issued,
			Expires:    tok.Expires,
			ClientID:   tok.ClientID,
			Capability: tok.Capability,
		}, nil
	}
	if len(tok.Raw) > 0 {
		var req ably.TokenRequest
		if err := json.Unmarshal(tok.Raw, &req); err != nil {
			return nil, fmt.Errorf("decode token request: %w", err)
		}
		if req.MAC == "" {
			return nil, errors.New("token response carries neither a token nor a signed request")
		}
		return &req, nil
	}
	return nil, errors.New("token endpoint returned an empty token")
}

// Client wraps *ably.Realtime.
type Client struct {
	rt *ably.Realtime
}

func (c *Client) Connect() { c.rt.Connect() }

func (c *Client) Close() { c.rt.Close() }

func (c *Client) State() realtime.ConnectionState {
	return connectionState(c.rt.Connection.State())
}

func (c *Client) OnConnectionChange(fn func(realtime.ConnectionStateChange)) func() {
	return c.rt.Connection.OnAll(func(change ably.ConnectionStateChange) {
		out := realtime.ConnectionStateChange{
			Previous: connectionState(change.Previous),
			Current:  connectionState(change.Current),
		}
		if change.Reason != nil {
			out.Reason = change.Reason
		}
		fn(out)
	})
}

func (c *Client) Channel(name string) realtime.Channel {
	return &Channel{ch: c.rt.Channels.Get(name)}
}

func (c *Client) Spaces() (realtime.Spaces, error) {
	return nil, realtime.ErrSpacesUnsupported
}

func connectionState(s ably.ConnectionState) realtime.ConnectionState {
	switch s {
	case ably.ConnectionStateInitialized:
		return realtime.StateInitialized
	case ably.ConnectionStateConnecting:
		return realtime.StateConnecting
	case ably.ConnectionStateConnected:
		return realtime.StateConnected
	case ably.ConnectionStateDisconnected:
		return realtime.StateDisconnected
	case ably.ConnectionStateSuspended:
		return realtime.StateSuspended
	case ably.ConnectionStateClosing:
		return realtime.StateClosing
	case ably.ConnectionStateClosed:
		return realtime.StateClosed
	case ably.ConnectionStateFailed:
		return realtime.StateFailed
	}
	return realtime.StateInitialized
}

var _ realtime.Client = (*Client)(nil)
