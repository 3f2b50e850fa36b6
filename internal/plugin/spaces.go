package plugin

import (
	"context"
	"sync"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

var palette = []string{
	"#FF5733",
	"#33FF57",
	"#3357FF",
	"#FF33F5",
	"#F5FF33",
	"#33FFF5",
	"#FF8C33",
	"#8C33FF",
}

type SpaceResult struct {
	SpaceName string `json:"spaceName"`
	Status    string `json:"status"`
	ClientID  string `json:"clientId,omitempty"`
}

type LocationResult struct {
	SpaceName string `json:"spaceName"`
	Location  any    `json:"location"`
	Status    string `json:"status"`
}

type CursorResult struct {
	SpaceName string            `json:"spaceName"`
	Position  realtime.Position `json:"position"`
	Data      any               `json:"data"`
	Status    string            `json:"status"`
}

type LockResult struct {
	SpaceName   string `json:"spaceName"`
	ComponentID string `json:"componentId"`
	Status      string `json:"status"`
	LockID      string `json:"lockId,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

type SpaceMemberView struct {
	ClientID    string               `json:"clientId"`
	ProfileData realtime.ProfileData `json:"profileData"`
	Location    any                  `json:"location"`
	IsConnected bool                 `json:"isConnected"`
	LastEvent   *realtime.LastEvent  `json:"lastEvent,omitempty"`
}

type CursorView struct {
	ClientID string            `json:"clientId"`
	Position realtime.Position `json:"position"`
	Data     any               `json:"data"`
}

type LockView struct {
	ID         string         `json:"id"`
	Member     *MemberRef     `json:"member"`
	Attributes map[string]any `json:"attributes"`
	Timestamp  int64          `json:"timestamp"`
}

// SpaceState aggregates members, cursors and locks of a space.
type SpaceState struct {
	SpaceName string            `json:"spaceName"`
	Members   []SpaceMemberView `json:"members"`
	Cursors   []CursorView      `json:"cursors"`
	Locks     []LockView        `json:"locks"`
}

type EnterSpaceParams struct {
	SpaceName    string `mapstructure:"spaceName"`
	MemberName   string `mapstructure:"memberName"`
	MemberAvatar string `mapstructure:"memberAvatar"`
	MemberColor  string `mapstructure:"memberColor"`
}

type SpaceParams struct {
	SpaceName string `mapstructure:"spaceName"`
}

type UpdateLocationParams struct {
	SpaceName string `mapstructure:"spaceName"`
	Location  any    `mapstructure:"location"`
}

type UpdateCursorParams struct {
	SpaceName string `mapstructure:"spaceName"`
	Position  any    `mapstructure:"position"`
	Data      any    `mapstructure:"data"`
}

type LockComponentParams struct {
	SpaceName   string         `mapstructure:"spaceName"`
	ComponentID string         `mapstructure:"componentId"`
	Metadata    map[string]any `mapstructure:"metadata"`
}

type UnlockComponentParams struct {
	SpaceName   string `mapstructure:"spaceName"`
	ComponentID string `mapstructure:"componentId"`
}

// spaceEntry is an entered space and the listeners attached to it.
type spaceEntry struct {
	name  string
	space realtime.Space

	mu      sync.Mutex
	unsubs  []func()
	present bool
}

func (e *spaceEntry) add(unsubscribe func()) {
	e.mu.Lock()
	e.unsubs = append(e.unsubs, unsubscribe)
	e.mu.Unlock()
}

func (e *spaceEntry) removeListeners() {
	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

// leave leaves the space and then removes the listeners. On failure the
// entry stays entered and wired.
func (e *spaceEntry) leave(ctx context.Context) error {
	e.mu.Lock()
	space := e.space
	e.mu.Unlock()

	if space != nil {
		if err := space.Leave(ctx); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.present = false
	e.mu.Unlock()
	e.removeListeners()
	return nil
}

// teardown is leave for an entry already dropped from the registry: the
// listeners are removed even when leaving fails.
func (e *spaceEntry) teardown(ctx context.Context) error {
	err := e.leave(ctx)
	if err != nil {
		e.mu.Lock()
		e.present = false
		e.mu.Unlock()
		e.removeListeners()
	}
	return err
}

func (p *Plugin) randomColor() string {
	return palette[p.rand(len(palette))]
}

// EnterSpace joins a space and forwards its member, cursor and lock events
// to the host.
func (p *Plugin) EnterSpace(ctx context.Context, params EnterSpaceParams) (*SpaceResult, error) {
	p.mu.Lock()
	spaces := p.spaces
	clientID := p.clientID
	p.mu.Unlock()

	if spaces == nil {
		return nil, &ConfigurationError{Message: "spaces client not initialized"}
	}
	name := params.SpaceName
	if name == "" {
		return nil, required("spaceName", "Space name")
	}

	p.mu.Lock()
	if _, ok := p.entered[name]; ok {
		p.mu.Unlock()
		p.log.Warn().Str("space", name).Msg("already in space")
		return &SpaceResult{SpaceName: name, Status: "already_in_space", ClientID: clientID}, nil
	}
	entry := &spaceEntry{name: name}
	p.entered[name] = entry
	p.mu.Unlock()

	p.log.Info().Str("space", name).Str("member", params.MemberName).Msg("entering space")

	if err := p.joinSpace(ctx, spaces, entry, params, clientID); err != nil {
		entry.removeListeners()
		p.mu.Lock()
		if p.entered[name] == entry {
			delete(p.entered, name)
		}
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	if p.entered[name] == entry {
		p.state.ActiveSpaces = append(p.state.ActiveSpaces, name)
		p.state.CurrentSpace = name
	}
	p.recordRegistries()
	p.mu.Unlock()

	return &SpaceResult{SpaceName: name, Status: "entered", ClientID: clientID}, nil
}

func (p *Plugin) joinSpace(ctx context.Context, spaces realtime.Spaces, entry *spaceEntry, params EnterSpaceParams, clientID string) error {
	space, err := spaces.Get(ctx, entry.name)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	entry.space = space
	entry.mu.Unlock()

	p.wireSpace(entry)

	profile := realtime.ProfileData{
		Name:   params.MemberName,
		Avatar: params.MemberAvatar,
		Color:  params.MemberColor,
	}
	if profile.Name == "" {
		profile.Name = clientID
	}
	if profile.Color == "" {
		profile.Color = p.randomColor()
	}

	if err := space.Enter(ctx, profile); err != nil {
		return err
	}
	entry.mu.Lock()
	entry.present = true
	entry.mu.Unlock()
	return nil
}

func (p *Plugin) wireSpace(entry *spaceEntry) {
	name := entry.name
	space := entry.space

	entry.add(space.SubscribeMembers(realtime.MemberEnter, func(m *realtime.SpaceMember) {
		p.emit(EventSpaceMemberEnter, MemberEnterEvent{
			SpaceName: name,
			Member: EnteredMember{
				ClientID:    m.ClientID,
				ProfileData: m.ProfileData,
				Location:    m.Location,
				LastEvent:   m.LastEvent,
			},
		})
	}))

	entry.add(space.SubscribeMembers(realtime.MemberLeave, func(m *realtime.SpaceMember) {
		p.emit(EventSpaceMemberLeave, MemberLeaveEvent{
			SpaceName: name,
			Member:    LeftMember{ClientID: m.ClientID, ProfileData: m.ProfileData},
		})
	}))

	entry.add(space.SubscribeMembers(realtime.MemberUpdate, func(m *realtime.SpaceMember) {
		p.emit(EventSpaceLocationUpdate, LocationUpdateEvent{
			SpaceName:        name,
			Member:           LocatedMember{ClientID: m.ClientID, Location: m.Location},
			PreviousLocation: m.PreviousLocation,
		})
	}))

	entry.add(space.SubscribeCursors(func(u *realtime.CursorUpdate) {
		p.emit(EventSpaceCursorMove, CursorMoveEvent{
			SpaceName: name,
			Member:    MemberRef{ClientID: u.ClientID},
			Position:  u.Position,
			Data:      u.Data,
		})
	}))

	entry.add(space.SubscribeLocks(func(l *realtime.Lock) {
		ev := LockEvent{
			SpaceName:   name,
			ComponentID: l.ID,
			Metadata:    l.Attributes,
			Timestamp:   l.Timestamp,
		}
		event := EventSpaceLockReleased
		if l.Member != nil {
			event = EventSpaceLockAcquired
			ev.Member = &MemberRef{ClientID: l.Member.ClientID}
		}
		p.emit(event, ev)
	}))
}

// LeaveSpace leaves a space. It reports not_in_space for unknown spaces.
func (p *Plugin) LeaveSpace(ctx context.Context, params SpaceParams) (*SpaceResult, error) {
	name := params.SpaceName
	if name == "" {
		return nil, required("spaceName", "Space name")
	}

	p.mu.Lock()
	entry, ok := p.entered[name]
	p.mu.Unlock()
	if !ok {
		p.log.Warn().Str("space", name).Msg("not in space")
		return &SpaceResult{SpaceName: name, Status: "not_in_space"}, nil
	}

	p.log.Info().Str("space", name).Msg("leaving space")
	if err := entry.leave(ctx); err != nil {
		p.log.Error().Err(err).Str("space", name).Msg("failed to leave space")
		return nil, err
	}

	p.mu.Lock()
	if p.entered[name] == entry {
		delete(p.entered, name)
		p.state.ActiveSpaces = removeName(p.state.ActiveSpaces, name)
		if p.state.CurrentSpace == name {
			p.state.CurrentSpace = ""
		}
		p.recordRegistries()
	}
	p.mu.Unlock()

	return &SpaceResult{SpaceName: name, Status: "left"}, nil
}

// enteredSpace returns the joined space or a NotInSpaceError.
func (p *Plugin) enteredSpace(name string) (realtime.Space, error) {
	if name == "" {
		return nil, required("spaceName", "Space name")
	}
	p.mu.Lock()
	entry, ok := p.entered[name]
	p.mu.Unlock()
	if !ok {
		return nil, &NotInSpaceError{Space: name}
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.present {
		return nil, &NotInSpaceError{Space: name}
	}
	return entry.space, nil
}

func (p *Plugin) UpdateLocation(ctx context.Context, params UpdateLocationParams) (*LocationResult, error) {
	space, err := p.enteredSpace(params.SpaceName)
	if err != nil {
		return nil, err
	}
	switch params.Location.(type) {
	case map[string]any, []any:
	default:
		return nil, required("location", "Location object or array")
	}

	p.log.Info().Str("space", params.SpaceName).Interface("location", params.Location).Msg("updating location")
	if err := space.SetLocation(ctx, params.Location); err != nil {
		return nil, err
	}
	return &LocationResult{SpaceName: params.SpaceName, Location: params.Location, Status: "updated"}, nil
}

func (p *Plugin) UpdateCursor(ctx context.Context, params UpdateCursorParams) (*CursorResult, error) {
	space, err := p.enteredSpace(params.SpaceName)
	if err != nil {
		return nil, err
	}
	position, ok := toPosition(params.Position)
	if !ok {
		return nil, &ValidationError{Field: "position", Message: "Position object with x and y coordinates is required"}
	}
	data := params.Data
	if data == nil {
		data = map[string]any{}
	}

	if err := space.SetCursor(ctx, position, data); err != nil {
		return nil, err
	}
	return &CursorResult{SpaceName: params.SpaceName, Position: position, Data: data, Status: "updated"}, nil
}

func (p *Plugin) LockComponent(ctx context.Context, params LockComponentParams) (*LockResult, error) {
	if params.SpaceName == "" {
		return nil, required("spaceName", "Space name")
	}
	if params.ComponentID == "" {
		return nil, required("componentId", "Component ID")
	}
	space, err := p.enteredSpace(params.SpaceName)
	if err != nil {
		return nil, err
	}
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	p.log.Info().Str("space", params.SpaceName).Str("component", params.ComponentID).Msg("locking component")
	lock, err := space.AcquireLock(ctx, params.ComponentID, metadata)
	if err != nil {
		return nil, err
	}
	return &LockResult{
		SpaceName:   params.SpaceName,
		ComponentID: params.ComponentID,
		Status:      "locked",
		LockID:      lock.ID,
		Timestamp:   p.millis(),
	}, nil
}

func (p *Plugin) UnlockComponent(ctx context.Context, params UnlockComponentParams) (*LockResult, error) {
	if params.SpaceName == "" {
		return nil, required("spaceName", "Space name")
	}
	if params.ComponentID == "" {
		return nil, required("componentId", "Component ID")
	}
	space, err := p.enteredSpace(params.SpaceName)
	if err != nil {
		return nil, err
	}

	p.log.Info().Str("space", params.SpaceName).Str("component", params.ComponentID).Msg("unlocking component")
	if err := space.ReleaseLock(ctx, params.ComponentID); err != nil {
		return nil, err
	}
	return &LockResult{
		SpaceName:   params.SpaceName,
		ComponentID: params.ComponentID,
		Status:      "unlocked",
		Timestamp:   p.millis(),
	}, nil
}

func (p *Plugin) GetSpaceMembers(ctx context.Context, params SpaceParams) ([]SpaceMemberView, error) {
	space, err := p.enteredSpace(params.SpaceName)
	if err != nil {
		return nil, err
	}
	members, err := space.Members(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SpaceMemberView, 0, len(members))
	for _, m := range members {
		last := m.LastEvent
		out = append(out, SpaceMemberView{
			ClientID:    m.ClientID,
			ProfileData: m.ProfileData,
			Location:    m.Location,
			IsConnected: m.IsConnected,
			LastEvent:   &last,
		})
	}
	return out, nil
}

func (p *Plugin) GetSpaceState(ctx context.Context, params SpaceParams) (*SpaceState, error) {
	space, err := p.enteredSpace(params.SpaceName)
	if err != nil {
		return nil, err
	}

	members, err := space.Members(ctx)
	if err != nil {
		return nil, err
	}
	cursors, err := space.Cursors(ctx)
	if err != nil {
		return nil, err
	}
	locks, err := space.Locks(ctx)
	if err != nil {
		return nil, err
	}

	state := &SpaceState{
		SpaceName: params.SpaceName,
		Members:   make([]SpaceMemberView, 0, len(members)),
		Cursors:   make([]CursorView, 0, len(cursors)),
		Locks:     make([]LockView, 0, len(locks)),
	}
	for _, m := range members {
		state.Members = append(state.Members, SpaceMemberView{
			ClientID:    m.ClientID,
			ProfileData: m.ProfileData,
			Location:    m.Location,
			IsConnected: m.IsConnected,
		})
	}
	for _, c := range cursors {
		state.Cursors = append(state.Cursors, CursorView{ClientID: c.ClientID, Position: c.Position, Data: c.Data})
	}
	for _, l := range locks {
		view := LockView{ID: l.ID, Attributes: l.Attributes, Timestamp: l.Timestamp}
		if l.Member != nil {
			view.Member = &MemberRef{ClientID: l.Member.ClientID}
		}
		state.Locks = append(state.Locks, view)
	}
	return state, nil
}

// toPosition accepts a Position or an object with numeric x and y.
func toPosition(v any) (realtime.Position, bool) {
	switch pos := v.(type) {
	case realtime.Position:
		return pos, true
	case *realtime.Position:
		if pos == nil {
			return realtime.Position{}, false
		}
		return *pos, true
	case map[string]any:
		x, okX := number(pos["x"])
		y, okY := number(pos["y"])
		return realtime.Position{X: x, Y: y}, okX && okY
	}
	return realtime.Position{}, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
