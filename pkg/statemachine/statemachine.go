package statemachine

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is wrapped by every rejected transition.
var ErrInvalidTransition = errors.New("invalid state transition")

// Machine validates transitions between states of type S. Build it once
// at package init and share it; the zero value is not usable.
type Machine[S comparable] struct {
	transitions map[S]map[S]struct{}
}

// New creates an empty machine.
func New[S comparable]() *Machine[S] {
	return &Machine[S]{transitions: make(map[S]map[S]struct{})}
}

// Allow registers legal transitions from one state to each listed target.
// Returns the machine for chained construction.
func (m *Machine[S]) Allow(from S, to ...S) *Machine[S] {
	targets, ok := m.transitions[from]
	if !ok {
		targets = make(map[S]struct{}, len(to))
		m.transitions[from] = targets
	}
	for _, t := range to {
		targets[t] = struct{}{}
	}
	return m
}

// Can reports whether from -> to is a registered transition.
// Self-transitions are always allowed: redelivered events that restate
// the current state are no-ops, not violations.
func (m *Machine[S]) Can(from, to S) bool {
	if from == to {
		return true
	}
	targets, ok := m.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Transition validates from -> to, returning an error wrapping
// ErrInvalidTransition when the step is not registered.
func (m *Machine[S]) Transition(from, to S) error {
	if !m.Can(from, to) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminal reports whether no transitions leave the given state.
func (m *Machine[S]) IsTerminal(s S) bool {
	return len(m.transitions[s]) == 0
}
