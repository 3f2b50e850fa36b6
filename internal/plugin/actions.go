package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/robceliesius/plugin-ably/internal/metrics"
	"github.com/robceliesius/plugin-ably/internal/token"
)

// Parameter describes an action parameter.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Action describes a host workflow action.
type Action struct {
	Name       string      `json:"name"`
	Code       string      `json:"code"`
	Parameters []Parameter `json:"parameters,omitempty"`
	IsAsync    bool        `json:"isAsync"`
}

// Condition is a trigger filter the host evaluates against the event payload.
type Condition struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	Type string `json:"type"`
}

// Trigger describes a host workflow trigger.
type Trigger struct {
	Label      string      `json:"label"`
	Value      string      `json:"value"`
	Conditions []Condition `json:"conditions"`
}

// Manifest declares what the plugin offers to the host.
type Manifest struct {
	Datasource bool      `json:"datasource"`
	Actions    []Action  `json:"actions"`
	Triggers   []Trigger `json:"triggers"`
}

func params(pairs ...string) []Parameter {
	out := make([]Parameter, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Parameter{Name: pairs[i], Type: pairs[i+1]})
	}
	return out
}

var (
	channelCondition   = Condition{Name: "Channel Name", Key: "channelName", Type: "Text"}
	spaceCondition     = Condition{Name: "Space Name", Key: "spaceName", Type: "Text"}
	componentCondition = Condition{Name: "Component ID", Key: "componentId", Type: "Text"}
)

var manifest = Manifest{
	Datasource: true,
	Actions: []Action{
		{Name: "Connect to Ably", Code: "connect", IsAsync: true},
		{Name: "Disconnect from Ably", Code: "disconnect"},
		{Name: "Subscribe to Channel", Code: "subscribeChannel", Parameters: params("channelName", "string", "enablePresence", "boolean"), IsAsync: true},
		{Name: "Unsubscribe from Channel", Code: "unsubscribeChannel", Parameters: params("channelName", "string")},
		{Name: "Publish Message", Code: "publishMessage", Parameters: params("channelName", "string", "messageName", "string", "data", "object"), IsAsync: true},
		{Name: "Get Channel Presence", Code: "getChannelPresence", Parameters: params("channelName", "string", "waitForSync", "boolean"), IsAsync: true},
		{Name: "Get Channel History", Code: "getChannelHistory", Parameters: params("channelName", "string", "limit", "number", "direction", "string", "start", "number", "end", "number"), IsAsync: true},
		{Name: "Spaces | Enter Space", Code: "enterSpace", Parameters: params("spaceName", "string", "memberName", "string", "memberAvatar", "string", "memberColor", "string"), IsAsync: true},
		{Name: "Spaces | Leave Space", Code: "leaveSpace", Parameters: params("spaceName", "string"), IsAsync: true},
		{Name: "Spaces | Update Location", Code: "updateLocation", Parameters: params("spaceName", "string", "location", "object"), IsAsync: true},
		{Name: "Spaces | Update Cursor", Code: "updateCursor", Parameters: params("spaceName", "string", "position", "object", "data", "object"), IsAsync: true},
		{Name: "Spaces | Lock Component", Code: "lockComponent", Parameters: params("spaceName", "string", "componentId", "string", "metadata", "object"), IsAsync: true},
		{Name: "Spaces | Unlock Component", Code: "unlockComponent", Parameters: params("spaceName", "string", "componentId", "string"), IsAsync: true},
		{Name: "Spaces | Get Members", Code: "getSpaceMembers", Parameters: params("spaceName", "string"), IsAsync: true},
		{Name: "Spaces | Get Space State", Code: "getSpaceState", Parameters: params("spaceName", "string"), IsAsync: true},
	},
	Triggers: []Trigger{
		{Label: "On Connection Status Change", Value: EventConnectionStatus, Conditions: []Condition{{Name: "Status", Key: "status", Type: "TextSelect"}}},
		{Label: "On Message Received", Value: EventMessage, Conditions: []Condition{channelCondition, {Name: "Message Name", Key: "messageName", Type: "Text"}}},
		{Label: "On Presence Enter", Value: EventPresenceEnter, Conditions: []Condition{channelCondition}},
		{Label: "On Presence Leave", Value: EventPresenceLeave, Conditions: []Condition{channelCondition}},
		{Label: "On Presence Update", Value: EventPresenceUpdate, Conditions: []Condition{channelCondition}},
		{Label: "Spaces | On Member Enter", Value: EventSpaceMemberEnter, Conditions: []Condition{spaceCondition}},
		{Label: "Spaces | On Member Leave", Value: EventSpaceMemberLeave, Conditions: []Condition{spaceCondition}},
		{Label: "Spaces | On Location Update", Value: EventSpaceLocationUpdate, Conditions: []Condition{spaceCondition}},
		{Label: "Spaces | On Cursor Move", Value: EventSpaceCursorMove, Conditions: []Condition{spaceCondition}},
		{Label: "Spaces | On Lock Acquired", Value: EventSpaceLockAcquired, Conditions: []Condition{spaceCondition, componentCondition}},
		{Label: "Spaces | On Lock Released", Value: EventSpaceLockReleased, Conditions: []Condition{spaceCondition, componentCondition}},
	},
}

// Manifest returns the action and trigger declarations.
func (p *Plugin) Manifest() Manifest {
	return manifest
}

// decodeParams decodes loosely typed host parameters into out.
func decodeParams(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return &ValidationError{Message: "invalid parameters: " + err.Error()}
	}
	return nil
}

func run[P, R any](ctx context.Context, in map[string]any, fn func(context.Context, P) (R, error)) (any, error) {
	var params P
	if err := decodeParams(in, &params); err != nil {
		return nil, err
	}
	return fn(ctx, params)
}

// Execute runs the action named by code with host-supplied parameters.
func (p *Plugin) Execute(ctx context.Context, code string, in map[string]any) (any, error) {
	result, err := p.dispatch(ctx, code, in)
	metrics.RecordAction(code, Outcome(err))
	if err != nil {
		p.log.Debug().Err(err).Str("action", code).Msg("action failed")
	}
	return result, err
}

func (p *Plugin) dispatch(ctx context.Context, code string, in map[string]any) (any, error) {
	switch code {
	case "connect":
		return p.Connect(ctx)
	case "disconnect":
		return p.Disconnect(ctx), nil
	case "subscribeChannel":
		return run(ctx, in, p.SubscribeChannel)
	case "unsubscribeChannel":
		return run(ctx, in, p.UnsubscribeChannel)
	case "publishMessage":
		return run(ctx, in, p.PublishMessage)
	case "getChannelPresence":
		return run(ctx, in, p.GetChannelPresence)
	case "getChannelHistory":
		return run(ctx, in, p.GetChannelHistory)
	case "enterSpace":
		return run(ctx, in, p.EnterSpace)
	case "leaveSpace":
		return run(ctx, in, p.LeaveSpace)
	case "updateLocation":
		return run(ctx, in, p.UpdateLocation)
	case "updateCursor":
		return run(ctx, in, p.UpdateCursor)
	case "lockComponent":
		return run(ctx, in, p.LockComponent)
	case "unlockComponent":
		return run(ctx, in, p.UnlockComponent)
	case "getSpaceMembers":
		return run(ctx, in, p.GetSpaceMembers)
	case "getSpaceState":
		return run(ctx, in, p.GetSpaceState)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAction, code)
}

// ErrorCode classifies err for the host.
func ErrorCode(err error) string {
	var (
		cfgErr   *ConfigurationError
		valErr   *ValidationError
		spaceErr *NotInSpaceError
		connErr  *ConnectionError
		fetchErr *token.TokenFetchError
	)
	switch {
	case errors.As(err, &cfgErr):
		return ErrCodeConfiguration
	case errors.As(err, &valErr):
		return ErrCodeValidation
	case errors.As(err, &spaceErr):
		return ErrCodeNotInSpace
	case errors.As(err, &fetchErr):
		return ErrCodeTokenFetch
	case errors.As(err, &connErr):
		return ErrCodeConnection
	case errors.Is(err, ErrUnknownAction):
		return ErrCodeUnknownAction
	}
	return ErrCodeInternal
}

// Outcome is the metrics label for an action result.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return ErrorCode(err)
}
