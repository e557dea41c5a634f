package sidecar

import (
	"fmt"
	"sync"
)

// State is one node of the sidecar lifecycle.
type State string

const (
	StateUnstarted   State = "unstarted"
	StateHandshaking State = "handshaking"
	StateReady       State = "ready"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Transitions not listed are protocol violations; attempting one moves
// the machine to Failed.
var validTransitions = map[State][]State{
	StateUnstarted:   {StateHandshaking, StateFailed},
	StateHandshaking: {StateReady, StateFailed},
	StateReady:       {StateRunning, StateFailed},
	StateRunning:     {StateCompleted, StateFailed},
}

// StateMachine tracks a sidecar session lifecycle. Safe for concurrent
// use; the reader task and cancellation paths both advance it.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

// NewStateMachine starts in Unstarted.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateUnstarted}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to the target state. An invalid transition is an
// error and forces the machine to Failed.
func (m *StateMachine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range validTransitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	from := m.state
	m.state = StateFailed
	return fmt.Errorf("invalid sidecar state transition %s -> %s", from, to)
}

// Fail forces the terminal failed state from anywhere.
func (m *StateMachine) Fail() {
	m.mu.Lock()
	m.state = StateFailed
	m.mu.Unlock()
}
