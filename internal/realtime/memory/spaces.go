package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

type memberSub struct {
	connID string
	event  realtime.MemberEvent
	fn     func(*realtime.SpaceMember)
}

type cursorSub struct {
	connID string
	fn     func(*realtime.CursorUpdate)
}

type lockSub struct {
	connID string
	fn     func(*realtime.Lock)
}

// spaceState is shared by every client in a space. Maps are keyed by
// connection id except locks, which are keyed by component id.
type spaceState struct {
	name    string
	members map[string]*realtime.SpaceMember
	cursors map[string]*realtime.CursorUpdate
	locks   map[string]*realtime.Lock

	memberSubs map[int]memberSub
	cursorSubs map[int]cursorSub
	lockSubs   map[int]lockSub
}

func newSpaceState(name string) *spaceState {
	return &spaceState{
		name:       name,
		members:    make(map[string]*realtime.SpaceMember),
		cursors:    make(map[string]*realtime.CursorUpdate),
		locks:      make(map[string]*realtime.Lock),
		memberSubs: make(map[int]memberSub),
		cursorSubs: make(map[int]cursorSub),
		lockSubs:   make(map[int]lockSub),
	}
}

func copyMember(m *realtime.SpaceMember) *realtime.SpaceMember {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

func copyLock(l *realtime.Lock) *realtime.Lock {
	cp := *l
	cp.Member = copyMember(l.Member)
	cp.Attributes = maps.Clone(l.Attributes)
	return &cp
}

func (ss *spaceState) memberEvent(event realtime.MemberEvent, m *realtime.SpaceMember) []func() {
	var notify []func()
	for _, sub := range ss.memberSubs {
		if sub.event != event {
			continue
		}
		fn := sub.fn
		ev := copyMember(m)
		notify = append(notify, func() { fn(ev) })
	}
	return notify
}

func (ss *spaceState) lockEvent(l *realtime.Lock) []func() {
	var notify []func()
	for _, sub := range ss.lockSubs {
		fn := sub.fn
		ev := copyLock(l)
		notify = append(notify, func() { fn(ev) })
	}
	return notify
}

// releaseLocks releases every lock held by connID.
func (ss *spaceState) releaseLocks(connID string, now int64) []func() {
	var notify []func()
	for id, l := range ss.locks {
		if l.Member == nil || l.Member.ConnectionID != connID {
			continue
		}
		delete(ss.locks, id)
		notify = append(notify, ss.lockEvent(&realtime.Lock{
			ID:         id,
			Status:     realtime.LockUnlocked,
			Attributes: l.Attributes,
			Timestamp:  now,
		})...)
	}
	return notify
}

func (ss *spaceState) leave(connID string, now int64) []func() {
	member, ok := ss.members[connID]
	if !ok {
		return nil
	}
	notify := ss.releaseLocks(connID, now)
	delete(ss.members, connID)
	delete(ss.cursors, connID)

	member.IsConnected = false
	member.LastEvent = realtime.LastEvent{Name: realtime.MemberLeave, Timestamp: now}
	return append(notify, ss.memberEvent(realtime.MemberLeave, member)...)
}

func (ss *spaceState) dropConnection(connID string, now int64) []func() {
	notify := ss.leave(connID, now)
	for id, sub := range ss.memberSubs {
		if sub.connID == connID {
			delete(ss.memberSubs, id)
		}
	}
	for id, sub := range ss.cursorSubs {
		if sub.connID == connID {
			delete(ss.cursorSubs, id)
		}
	}
	for id, sub := range ss.lockSubs {
		if sub.connID == connID {
			delete(ss.lockSubs, id)
		}
	}
	return notify
}

// Spaces resolves space handles for a client.
type Spaces struct {
	client *Client
}

func (s *Spaces) Get(_ context.Context, name string) (realtime.Space, error) {
	if name == "" {
		return nil, fmt.Errorf("space name is required")
	}
	svc := s.client.svc
	svc.mu.Lock()
	svc.space(name)
	svc.mu.Unlock()
	return &Space{client: s.client, name: name}, nil
}

// Space is a client's handle on a shared space.
type Space struct {
	client *Client
	name   string
}

func (sp *Space) Name() string { return sp.name }

// locked runs fn with the service lock held and the space state resolved,
// then runs the collected callbacks.
func (sp *Space) locked(fn func(ss *spaceState, now int64) ([]func(), error)) error {
	svc := sp.client.svc
	svc.mu.Lock()
	notify, err := fn(svc.space(sp.name), svc.nowMillis())
	svc.mu.Unlock()

	run(notify)
	return err
}

// entered returns the caller's member record. Callers hold the service lock.
func (sp *Space) entered(ss *spaceState) (*realtime.SpaceMember, error) {
	m, ok := ss.members[sp.client.connID]
	if !ok {
		return nil, realtime.ErrNotEntered
	}
	return m, nil
}

// Enter joins the space. Entering again replaces the profile and is
// reported as an update.
func (sp *Space) Enter(_ context.Context, profile realtime.ProfileData) error {
	if err := sp.client.requireConnected(); err != nil {
		return err
	}
	if sp.client.opts.ClientID == "" {
		return fmt.Errorf("entering a space requires a client id")
	}
	return sp.locked(func(ss *spaceState, now int64) ([]func(), error) {
		if m, ok := ss.members[sp.client.connID]; ok {
			m.ProfileData = profile
			m.LastEvent = realtime.LastEvent{Name: realtime.MemberUpdate, Timestamp: now}
			return ss.memberEvent(realtime.MemberUpdate, m), nil
		}
		m := &realtime.SpaceMember{
			ClientID:     sp.client.opts.ClientID,
			ConnectionID: sp.client.connID,
			ProfileData:  profile,
			IsConnected:  true,
			LastEvent:    realtime.LastEvent{Name: realtime.MemberEnter, Timestamp: now},
		}
		ss.members[sp.client.connID] = m
		return ss.memberEvent(realtime.MemberEnter, m), nil
	})
}

// Leave leaves the space, releasing the member's locks. Leaving when not
// entered is a no-op.
func (sp *Space) Leave(_ context.Context) error {
	return sp.locked(func(ss *spaceState, now int64) ([]func(), error) {
		return ss.leave(sp.client.connID, now), nil
	})
}

func (sp *Space) SubscribeMembers(event realtime.MemberEvent, fn func(*realtime.SpaceMember)) func() {
	svc := sp.client.svc
	svc.mu.Lock()
	id := svc.subID()
	svc.space(sp.name).memberSubs[id] = memberSub{connID: sp.client.connID, event: event, fn: fn}
	svc.mu.Unlock()

	return func() {
		svc.mu.Lock()
		delete(svc.space(sp.name).memberSubs, id)
		svc.mu.Unlock()
	}
}

func (sp *Space) Members(_ context.Context) ([]*realtime.SpaceMember, error) {
	var out []*realtime.SpaceMember
	_ = sp.locked(func(ss *spaceState, _ int64) ([]func(), error) {
		out = make([]*realtime.SpaceMember, 0, len(ss.members))
		for _, m := range ss.members {
			out = append(out, copyMember(m))
		}
		return nil, nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out, nil
}

// SetLocation moves the member. Location changes are delivered as member
// update events carrying PreviousLocation.
func (sp *Space) SetLocation(_ context.Context, location any) error {
	if err := sp.client.requireConnected(); err != nil {
		return err
	}
	return sp.locked(func(ss *spaceState, now int64) ([]func(), error) {
		m, err := sp.entered(ss)
		if err != nil {
			return nil, err
		}
		m.PreviousLocation = m.Location
		m.Location = location
		m.LastEvent = realtime.LastEvent{Name: realtime.MemberUpdate, Timestamp: now}
		return ss.memberEvent(realtime.MemberUpdate, m), nil
	})
}

func (sp *Space) SubscribeCursors(fn func(*realtime.CursorUpdate)) func() {
	svc := sp.client.svc
	svc.mu.Lock()
	id := svc.subID()
	svc.space(sp.name).cursorSubs[id] = cursorSub{connID: sp.client.connID, fn: fn}
	svc.mu.Unlock()

	return func() {
		svc.mu.Lock()
		delete(svc.space(sp.name).cursorSubs, id)
		svc.mu.Unlock()
	}
}

func (sp *Space) SetCursor(_ context.Context, position realtime.Position, data any) error {
	if err := sp.client.requireConnected(); err != nil {
		return err
	}
	return sp.locked(func(ss *spaceState, _ int64) ([]func(), error) {
		m, err := sp.entered(ss)
		if err != nil {
			return nil, err
		}
		update := &realtime.CursorUpdate{
			ClientID:     m.ClientID,
			ConnectionID: m.ConnectionID,
			Position:     position,
			Data:         data,
		}
		ss.cursors[sp.client.connID] = update

		var notify []func()
		for _, sub := range ss.cursorSubs {
			fn := sub.fn
			ev := *update
			notify = append(notify, func() { fn(&ev) })
		}
		return notify, nil
	})
}

func (sp *Space) Cursors(_ context.Context) ([]*realtime.CursorUpdate, error) {
	var out []*realtime.CursorUpdate
	_ = sp.locked(func(ss *spaceState, _ int64) ([]func(), error) {
		out = make([]*realtime.CursorUpdate, 0, len(ss.cursors))
		for _, c := range ss.cursors {
			cp := *c
			out = append(out, &cp)
		}
		return nil, nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (sp *Space) SubscribeLocks(fn func(*realtime.Lock)) func() {
	svc := sp.client.svc
	svc.mu.Lock()
	id := svc.subID()
	svc.space(sp.name).lockSubs[id] = lockSub{connID: sp.client.connID, fn: fn}
	svc.mu.Unlock()

	return func() {
		svc.mu.Lock()
		delete(svc.space(sp.name).lockSubs, id)
		svc.mu.Unlock()
	}
}

// AcquireLock takes an exclusive lock on a component. Acquiring a lock the
// member already holds returns it unchanged.
func (sp *Space) AcquireLock(_ context.Context, id string, attributes map[string]any) (*realtime.Lock, error) {
	if err := sp.client.requireConnected(); err != nil {
		return nil, err
	}
	var acquired *realtime.Lock
	err := sp.locked(func(ss *spaceState, now int64) ([]func(), error) {
		m, err := sp.entered(ss)
		if err != nil {
			return nil, err
		}
		if existing, ok := ss.locks[id]; ok {
			if existing.Member != nil && existing.Member.ConnectionID == sp.client.connID {
				acquired = copyLock(existing)
				return nil, nil
			}
			return nil, realtime.ErrLockHeld
		}
		l := &realtime.Lock{
			ID:         id,
			Status:     realtime.LockLocked,
			Member:     copyMember(m),
			Attributes: maps.Clone(attributes),
			Timestamp:  now,
		}
		ss.locks[id] = l
		acquired = copyLock(l)
		return ss.lockEvent(l), nil
	})
	if err != nil {
		return nil, err
	}
	return acquired, nil
}

func (sp *Space) ReleaseLock(_ context.Context, id string) error {
	if err := sp.client.requireConnected(); err != nil {
		return err
	}
	return sp.locked(func(ss *spaceState, now int64) ([]func(), error) {
		l, ok := ss.locks[id]
		if !ok || l.Member == nil || l.Member.ConnectionID != sp.client.connID {
			return nil, realtime.ErrLockNotHeld
		}
		delete(ss.locks, id)
		return ss.lockEvent(&realtime.Lock{
			ID:         id,
			Status:     realtime.LockUnlocked,
			Attributes: l.Attributes,
			Timestamp:  now,
		}), nil
	})
}

func (sp *Space) Locks(_ context.Context) ([]*realtime.Lock, error) {
	var out []*realtime.Lock
	_ = sp.locked(func(ss *spaceState, _ int64) ([]func(), error) {
		out = make([]*realtime.Lock, 0, len(ss.locks))
		for _, l := range ss.locks {
			out = append(out, copyLock(l))
		}
		return nil, nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ realtime.Spaces = (*Spaces)(nil)
	_ realtime.Space  = (*Space)(nil)
)
