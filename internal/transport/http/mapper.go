package http

import (
	"encoding/json"
	"net/http"

	"github.com/robceliesius/plugin-ably/internal/host"
	"github.com/robceliesius/plugin-ably/internal/plugin"
	"github.com/robceliesius/plugin-ably/internal/proto"
)

// statusFor maps a plugin error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case plugin.ErrCodeValidation:
		return http.StatusBadRequest
	case plugin.ErrCodeNotInSpace:
		return http.StatusConflict
	case plugin.ErrCodeUnknownAction:
		return http.StatusNotFound
	case plugin.ErrCodeConfiguration:
		return http.StatusServiceUnavailable
	case plugin.ErrCodeConnection, plugin.ErrCodeTokenFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func protoError(err error) *proto.Error {
	return &proto.Error{Code: plugin.ErrorCode(err), Msg: err.Error()}
}

// decodeAction reads an action request. A non-nil *proto.Error means the
// message was well formed JSON but not a usable action.
func decodeAction(inbound proto.Inbound) (*proto.ActionData, *proto.Error, error) {
	if inbound.Type != proto.InboundTypeAction {
		return nil, &proto.Error{Code: proto.CodeBadRequest, Msg: "unknown message type"}, nil
	}
	var action proto.ActionData
	if len(inbound.Data) > 0 {
		if err := json.Unmarshal(inbound.Data, &action); err != nil {
			return nil, nil, err
		}
	}
	if action.Code == "" {
		return nil, &proto.Error{Code: proto.CodeBadRequest, Msg: "action code is required"}, nil
	}
	return &action, nil, nil
}

func outboundFromEvent(event *host.Event) proto.Outbound {
	switch event.Kind {
	case host.EventTrigger:
		if event.Trigger == nil {
			break
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeTrigger,
			Event: event.Trigger.Key,
			Data: proto.TriggerData{
				Event:      event.Trigger.Event,
				Conditions: event.Trigger.Conditions,
				At:         event.At.UnixMilli(),
			},
		}
	case host.EventNotification:
		if event.Notification == nil {
			break
		}
		return proto.Outbound{
			Type: proto.OutboundTypeNotification,
			Data: proto.NotificationData{
				Level: string(event.Notification.Level),
				Text:  event.Notification.Text,
			},
		}
	}
	return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: plugin.ErrCodeInternal, Msg: "unknown event"}}
}
