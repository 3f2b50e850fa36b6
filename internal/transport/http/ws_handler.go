package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/host"
	"github.com/robceliesius/plugin-ably/internal/proto"
)

// Broadcaster hands host events to websocket subscribers.
type Broadcaster interface {
	RegisterClient(s *host.Subscriber)
	UnregisterClient(s *host.Subscriber)
}

// WSHandler upgrades HTTP connections, streams host events to them and runs
// actions they send.
type WSHandler struct {
	adapter     Adapter
	hub         Broadcaster
	actionLimit int
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. actionLimit caps actions per
// minute per connection; zero disables the limit.
func NewWSHandler(adapter Adapter, hub Broadcaster, actionLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{adapter: adapter, hub: hub, actionLimit: actionLimit, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sub := host.NewSubscriber(uuid.NewString())
	h.hub.RegisterClient(sub)
	defer h.hub.UnregisterClient(sub)

	h.log.Debug().Str("subscriber", sub.ID).Msg("ws connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.actionLimit, time.Minute)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sub, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sub)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("subscriber", sub.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sub *host.Subscriber, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		action, protoErr, err := decodeAction(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("subscriber", sub.ID).Msg("failed to decode inbound")
			protoErr = &proto.Error{Code: proto.CodeBadRequest, Msg: "invalid action payload"}
		}
		if protoErr == nil && !limiter.allow() {
			protoErr = &proto.Error{Code: proto.CodeRateLimited, Msg: "too many actions"}
		}
		if protoErr != nil {
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				ID:    inbound.ID,
				Error: protoErr,
			}); err != nil {
				return err
			}
			continue
		}

		result, err := h.adapter.Execute(ctx, action.Code, action.Params)
		out := proto.Outbound{Type: proto.OutboundTypeResult, ID: inbound.ID, Data: result}
		if err != nil {
			h.log.Debug().Err(err).Str("action", action.Code).Str("subscriber", sub.ID).Msg("ws action failed")
			out = proto.Outbound{Type: proto.OutboundTypeError, ID: inbound.ID, Error: protoError(err)}
		}
		if err := wsjson.Write(ctx, conn, out); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *host.Subscriber) error {
	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("subscriber", sub.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
