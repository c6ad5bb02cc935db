// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm is a small, table-driven finite state machine.
package fsm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrInvalidTransition is returned when no edge exists for (state, event).
var ErrInvalidTransition = errors.New("invalid transition")

// Transition describes a single edge in the FSM.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

// Observer is called after every applied transition, under the machine lock.
// It must not call back into the machine.
type Observer[S ~string, E ~string] func(from, to S, event E)

type edge[S ~string, E ~string] struct {
	from  S
	event E
}

// Machine runs a static transition table. Unknown transitions are errors.
type Machine[S ~string, E ~string] struct {
	mu        sync.Mutex
	state     S
	since     time.Time
	now       func() time.Time
	edges     map[edge[S, E]]S
	observers []Observer[S, E]
}

// New builds a machine in the initial state. Duplicate edges are rejected.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	edges := make(map[edge[S, E]]S, len(transitions))
	for _, t := range transitions {
		k := edge[S, E]{from: t.From, event: t.Event}
		if _, exists := edges[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		edges[k] = t.To
	}
	return &Machine[S, E]{state: initial, since: time.Now(), now: time.Now, edges: edges}, nil
}

// OnTransition registers an observer.
func (m *Machine[S, E]) OnTransition(fn Observer[S, E]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Since returns when the current state was entered.
func (m *Machine[S, E]) Since() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.since
}

// Permitted reports whether event has an edge from the current state.
func (m *Machine[S, E]) Permitted(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.edges[edge[S, E]{from: m.state, event: event}]
	return ok
}

// Events lists the events accepted in the current state, sorted.
func (m *Machine[S, E]) Events() []E {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []E
	for k := range m.edges {
		if k.from == m.state {
			out = append(out, k.event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fire applies event atomically and returns the new state. On error the
// machine is unchanged and the current state is returned.
func (m *Machine[S, E]) Fire(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	to, ok := m.edges[edge[S, E]{from: from, event: event}]
	if !ok {
		return from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}
	m.state = to
	m.since = m.now()
	for _, fn := range m.observers {
		fn(from, to, event)
	}
	return to, nil
}
