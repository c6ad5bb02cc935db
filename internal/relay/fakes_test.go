// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/streamrelay/internal/relay/transcoder"
)

// fakeLauncher hands out fakeProcesses instead of spawning ffmpeg.
type fakeLauncher struct {
	mu    sync.Mutex
	procs []*fakeProcess
	err   error

	// autoStart emits Started right after launch.
	autoStart bool
	// ignoreInterrupt leaves the process running after Interrupt.
	ignoreInterrupt bool
}

func (l *fakeLauncher) Launch(_ context.Context, spec transcoder.Spec, input io.Reader) (transcoder.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(spec, input, l.ignoreInterrupt)
	if l.autoStart {
		p.emit(transcoder.Started{Command: "ffmpeg (fake)"})
	}
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) proc(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[i]
}

type fakeProcess struct {
	spec   transcoder.Spec
	events chan transcoder.Event
	done   chan struct{}
	once   sync.Once

	ignoreInterrupt bool
	interrupts      atomic.Int32
	kills           atomic.Int32
	abandoned       atomic.Bool

	inputMu   sync.Mutex
	input     bytes.Buffer
	inputDone chan struct{}
}

func newFakeProcess(spec transcoder.Spec, in io.Reader, ignoreInterrupt bool) *fakeProcess {
	p := &fakeProcess{
		spec:            spec,
		events:          make(chan transcoder.Event, 16),
		done:            make(chan struct{}),
		ignoreInterrupt: ignoreInterrupt,
		inputDone:       make(chan struct{}),
	}
	go func() {
		defer close(p.inputDone)
		buf := make([]byte, 4096)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				p.inputMu.Lock()
				p.input.Write(buf[:n])
				p.inputMu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return p
}

func (p *fakeProcess) emit(ev transcoder.Event) { p.events <- ev }

// exit closes Done and delivers the terminal event, once.
func (p *fakeProcess) exit(ev transcoder.Event) {
	p.once.Do(func() {
		close(p.done)
		p.events <- ev
		close(p.events)
	})
}

func (p *fakeProcess) received() string {
	p.inputMu.Lock()
	defer p.inputMu.Unlock()
	return p.input.String()
}

func (p *fakeProcess) Events() <-chan transcoder.Event { return p.events }

func (p *fakeProcess) Interrupt() error {
	p.interrupts.Add(1)
	if p.ignoreInterrupt {
		return nil
	}
	go func() {
		// ffmpeg finishes the queued input, then exits 255 on SIGINT.
		<-p.inputDone
		p.exit(transcoder.Failed{Message: "ffmpeg exited with code 255: Exiting normally, received signal 2.", ExitCode: 255})
	}()
	return nil
}

func (p *fakeProcess) Kill() error {
	p.kills.Add(1)
	go p.exit(transcoder.Failed{Message: "ffmpeg terminated by signal killed", ExitCode: -1})
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Abandon() { p.abandoned.Store(true) }

func (p *fakeProcess) LastLines(int) []string { return []string{"fake stderr"} }

func (p *fakeProcess) Pid() int { return 4242 }

var _ transcoder.Process = (*fakeProcess)(nil)
