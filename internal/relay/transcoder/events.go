// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

// Event is a lifecycle notification from a running transcoder.
// The concrete types are Started, Diagnostic, Failed and Ended. A process
// emits exactly one terminal event (Failed or Ended), always last.
type Event interface {
	isEvent()
}

// Started fires once, when the transcoder proves it is processing input.
type Started struct {
	Command string
}

// Diagnostic is one stderr line. Elevated marks lines mentioning "error";
// they never end the session on their own.
type Diagnostic struct {
	Line     string
	Elevated bool
}

// Failed is terminal: the process exited non-zero, was killed, or stalled.
type Failed struct {
	Message  string
	ExitCode int // -1 when killed by a signal or never exited
}

// Ended is terminal: the process exited with status 0.
type Ended struct{}

func (Started) isEvent()    {}
func (Diagnostic) isEvent() {}
func (Failed) isEvent()     {}
func (Ended) isEvent()      {}

// IsTerminal reports whether ev is the last event of a process.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Failed, Ended:
		return true
	default:
		return false
	}
}
