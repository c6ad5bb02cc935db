// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"github.com/ManuGH/streamrelay/internal/fsm"
	"github.com/ManuGH/streamrelay/internal/metrics"
)

// State is the lifecycle state of the controller's session.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)

type trigger string

const (
	triggerStart   trigger = "start"   // start request accepted
	triggerConfirm trigger = "confirm" // transcoder proved it is running
	triggerStop    trigger = "stop"    // graceful stop requested
	triggerExit    trigger = "exit"    // transcoder exited on its own
	triggerFail    trigger = "fail"    // transcoder failed
	triggerRelease trigger = "release" // resources released
	triggerAbort   trigger = "abort"   // spawn error or forced replacement
)

var sessionTransitions = []fsm.Transition[State, trigger]{
	{From: StateIdle, Event: triggerStart, To: StateStarting},

	{From: StateStarting, Event: triggerConfirm, To: StateActive},
	{From: StateStarting, Event: triggerStop, To: StateStopping},
	{From: StateStarting, Event: triggerExit, To: StateStopping},
	{From: StateStarting, Event: triggerFail, To: StateFailed},
	{From: StateStarting, Event: triggerAbort, To: StateIdle},

	{From: StateActive, Event: triggerStop, To: StateStopping},
	{From: StateActive, Event: triggerExit, To: StateStopping},
	{From: StateActive, Event: triggerFail, To: StateFailed},
	{From: StateActive, Event: triggerAbort, To: StateIdle},

	{From: StateStopping, Event: triggerRelease, To: StateIdle},
	{From: StateStopping, Event: triggerAbort, To: StateIdle},

	{From: StateFailed, Event: triggerRelease, To: StateIdle},
}

func newSessionMachine() *fsm.Machine[State, trigger] {
	m, err := fsm.New(StateIdle, sessionTransitions)
	if err != nil {
		// The table is static; a duplicate edge is a programming error.
		panic(err)
	}
	m.OnTransition(func(_, to State, _ trigger) {
		metrics.SetSessionState(string(to))
	})
	return m
}
