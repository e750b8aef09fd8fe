package entity

import (
	"maps"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the published state of one entity.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
	// Context identifies the write that produced this state.
	Context string `json:"context_id,omitempty"`
}

// Event describes a state transition. New is nil when the entity was
// removed; Old is nil when it first appeared.
type Event struct {
	EntityID string `json:"entity_id"`
	Old      *State `json:"old_state"`
	New      *State `json:"new_state"`
}

// StateMachine holds the current state of every entity and notifies
// subscribers when one changes.
//
// Writes are expected from the event loop. Callbacks run synchronously on
// the writer's goroutine, after the internal lock is released, so they may
// read or write states themselves.
type StateMachine struct {
	mu        sync.RWMutex
	states    map[string]*State
	trackers  map[string]map[uint64]func(Event)
	listeners map[uint64]func(Event)
	nextID    uint64
	now       func() time.Time
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		states:    make(map[string]*State),
		trackers:  make(map[string]map[uint64]func(Event)),
		listeners: make(map[uint64]func(Event)),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Set writes the state of entityID. A write identical in state and
// attributes to the current one is ignored and returns false.
func (sm *StateMachine) Set(entityID, state string, attributes map[string]any) bool {
	if attributes == nil {
		attributes = map[string]any{}
	}

	sm.mu.Lock()
	old := sm.states[entityID]
	if old != nil && old.State == state && reflect.DeepEqual(old.Attributes, attributes) {
		sm.mu.Unlock()
		return false
	}

	now := sm.now()
	next := &State{
		EntityID:    entityID,
		State:       state,
		Attributes:  maps.Clone(attributes),
		LastChanged: now,
		LastUpdated: now,
		Context:     uuid.NewString(),
	}
	if old != nil && old.State == state {
		next.LastChanged = old.LastChanged
	}
	sm.states[entityID] = next
	callbacks := sm.callbacksLocked(entityID)
	sm.mu.Unlock()

	sm.notify(callbacks, Event{EntityID: entityID, Old: old.clone(), New: next.clone()})
	return true
}

// Remove deletes the state of entityID and notifies subscribers with a
// nil New state.
func (sm *StateMachine) Remove(entityID string) bool {
	sm.mu.Lock()
	old, ok := sm.states[entityID]
	if !ok {
		sm.mu.Unlock()
		return false
	}
	delete(sm.states, entityID)
	callbacks := sm.callbacksLocked(entityID)
	sm.mu.Unlock()

	sm.notify(callbacks, Event{EntityID: entityID, Old: old.clone()})
	return true
}

// Get returns a copy of the current state of entityID.
func (sm *StateMachine) Get(entityID string) (*State, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.states[entityID]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// All returns copies of every state, ordered by entity id.
func (sm *StateMachine) All() []State {
	sm.mu.RLock()
	out := make([]State, 0, len(sm.states))
	for _, s := range sm.states {
		out = append(out, *s.clone())
	}
	sm.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Track calls fn for every change of entityID until untrack is called.
func (sm *StateMachine) Track(entityID string, fn func(Event)) (untrack func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.nextID++
	id := sm.nextID
	if sm.trackers[entityID] == nil {
		sm.trackers[entityID] = make(map[uint64]func(Event))
	}
	sm.trackers[entityID][id] = fn

	return func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		delete(sm.trackers[entityID], id)
		if len(sm.trackers[entityID]) == 0 {
			delete(sm.trackers, entityID)
		}
	}
}

// Listen calls fn for every change of any entity until unlisten is called.
func (sm *StateMachine) Listen(fn func(Event)) (unlisten func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.nextID++
	id := sm.nextID
	sm.listeners[id] = fn

	return func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		delete(sm.listeners, id)
	}
}

type subscription struct {
	id uint64
	fn func(Event)
}

// callbacksLocked snapshots the subscribers for entityID in registration
// order: trackers first, then global listeners.
func (sm *StateMachine) callbacksLocked(entityID string) []func(Event) {
	var subs []subscription
	for id, fn := range sm.trackers[entityID] {
		subs = append(subs, subscription{id, fn})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	tracked := len(subs)

	for id, fn := range sm.listeners {
		subs = append(subs, subscription{id, fn})
	}
	global := subs[tracked:]
	sort.Slice(global, func(i, j int) bool { return global[i].id < global[j].id })

	out := make([]func(Event), len(subs))
	for i, s := range subs {
		out[i] = s.fn
	}
	return out
}

func (sm *StateMachine) notify(callbacks []func(Event), ev Event) {
	for _, fn := range callbacks {
		fn(ev)
	}
}

func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Attributes = maps.Clone(s.Attributes)
	return &c
}
