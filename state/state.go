// Package state implements the player state machine (§4.2): an
// enumerated set of states with a whitelisted transition table, a
// should_stop/should_pause/wait_for_resume surface for worker loops,
// and synchronous multi-subscriber change notification.
//
// It generalizes the teacher's (erparts/go-avebi) PlaybackState enum
// (playback_state.go: Stopped/Playing/Paused) and the ad hoc
// state-guarding mutexes scattered across controller_yes_audio.go /
// controller_no_audio.go / controller_stream.go into one whitelisted
// table covering the richer state set §3 names.
package state

import (
	"fmt"
	"sync"
)

// State is one node of the player state machine.
type State uint8

const (
	Idle State = iota
	Opening
	Stopped
	Playing
	Paused
	Seeking
	Error
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Opening:
		return "Opening"
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	case Seeking:
		return "Seeking"
	case Error:
		return "Error"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// allowed is the whitelist table from §4.2. Row = current, values =
// requestable next states.
var allowed = map[State]map[State]bool{
	Idle:     {Opening: true, Error: true, Closing: true},
	Opening:  {Stopped: true, Error: true, Closing: true},
	Stopped:  {Opening: true, Playing: true, Seeking: true, Error: true, Closing: true},
	Playing:  {Stopped: true, Paused: true, Seeking: true, Error: true, Closing: true},
	Paused:   {Stopped: true, Playing: true, Seeking: true, Error: true, Closing: true},
	Seeking:  {Playing: true, Paused: true, Error: true, Closing: true},
	Error:    {Opening: true, Stopped: true, Closing: true},
	Closing:  {},
}

// SubscriberID identifies a registered change callback for Unsubscribe.
type SubscriberID uint64

// Machine is a thread-safe player state machine. The zero value is not
// usable; construct with [New].
type Machine struct {
	mu    sync.Mutex
	state State

	resumeCond *sync.Cond // broadcast whenever state leaves Paused

	nextSubID   SubscriberID
	subscribers map[SubscriberID]func(from, to State)
}

// New creates a machine starting in [Idle].
func New() *Machine {
	m := &Machine{
		state:       Idle,
		subscribers: make(map[SubscriberID]func(from, to State)),
	}
	m.resumeCond = sync.NewCond(&m.mu)
	return m
}

// Get returns the current state.
func (m *Machine) Get() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Request attempts a transition. Concurrent requesters serialize on
// m.mu; subscribers are invoked synchronously, after the transition
// commits, on the calling goroutine (§4.2 — subscribers must be
// non-blocking or re-dispatch).
func (m *Machine) Request(next State) error {
	m.mu.Lock()
	from := m.state
	if !allowed[from][next] {
		m.mu.Unlock()
		return fmt.Errorf("state: %s -> %s rejected", from, next)
	}
	m.state = next
	if from == Paused || next == Closing || next == Stopped {
		m.resumeCond.Broadcast()
	}
	subs := m.snapshotSubscribersLocked()
	m.mu.Unlock()

	for _, cb := range subs {
		cb(from, next)
	}
	return nil
}

func (m *Machine) snapshotSubscribersLocked() []func(from, to State) {
	out := make([]func(from, to State), 0, len(m.subscribers))
	for _, cb := range m.subscribers {
		out = append(out, cb)
	}
	return out
}

// ShouldStop reports whether worker loops should exit: true once the
// machine has entered [Closing].
func (m *Machine) ShouldStop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Closing
}

// ShouldPause reports whether worker loops should park in
// [WaitForResume].
func (m *Machine) ShouldPause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Paused
}

// WaitForResume blocks until the state leaves [Paused], or the machine
// enters [Closing]/[Stopped] (§4.2). It returns immediately if the
// machine is not currently paused.
func (m *Machine) WaitForResume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.state == Paused {
		m.resumeCond.Wait()
	}
}

// Subscribe registers cb to be invoked, synchronously and in commit
// order, after every accepted transition.
func (m *Machine) Subscribe(cb func(from, to State)) SubscriberID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = cb
	return id
}

// Unsubscribe removes a previously registered subscriber. It is a
// no-op for an unknown ID.
func (m *Machine) Unsubscribe(id SubscriberID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, id)
}
