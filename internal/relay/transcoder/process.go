// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
	"github.com/ManuGH/streamrelay/internal/procgroup"
	"github.com/ManuGH/streamrelay/internal/relay/ingress"
	"github.com/rs/zerolog"
)

// ErrSpawn wraps failures to start the transcoder binary.
var ErrSpawn = errors.New("transcoder spawn failed")

const (
	defaultRingLines = 50
	eventBuffer      = 64
	cancelGrace      = 5 * time.Second
	maxLineBytes     = 1 << 20
)

// Launcher starts transcoder processes.
type Launcher interface {
	// Launch spawns the transcoder for spec, feeding input to its stdin.
	// Spawn failures are returned synchronously and wrap ErrSpawn.
	// Cancelling ctx terminates the process.
	Launch(ctx context.Context, spec Spec, input io.Reader) (Process, error)
}

// Process is a running transcoder.
type Process interface {
	// Events delivers lifecycle events and is closed after the terminal one.
	Events() <-chan Event
	// Interrupt asks the transcoder to finish (SIGINT to its process group).
	Interrupt() error
	// Kill terminates the process group immediately.
	Kill() error
	// Done is closed once the OS process has exited.
	Done() <-chan struct{}
	// Abandon tells the process that nobody reads Events any more. Stderr
	// keeps being drained so the child never blocks on it.
	Abandon()
	// LastLines returns up to n recent non-progress stderr lines.
	LastLines(n int) []string
	Pid() int
}

// ExecLauncher runs the transcoder with os/exec in its own process group.
type ExecLauncher struct {
	// StartTimeout fails a process that shows no progress in time. Zero disables.
	StartTimeout time.Duration
	// StallTimeout fails a process whose progress stops advancing. Zero disables.
	StallTimeout time.Duration
	Logger       *zerolog.Logger

	clock clock
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(ctx context.Context, spec Spec, input io.Reader) (Process, error) {
	logger := xglog.WithComponent("transcoder")
	if l.Logger != nil {
		logger = *l.Logger
	}
	logger = logger.With().Str(xglog.FieldIngestURL, MaskIngestURL(spec.IngestURL)).Logger()

	if spec.Bin == "" {
		metrics.TranscoderStartTotal.WithLabelValues("spawn_error").Inc()
		return nil, fmt.Errorf("%w: empty binary path", ErrSpawn)
	}

	// #nosec G204 -- binary comes from operator config; args are built, not shell-interpolated
	cmd := exec.Command(spec.Bin, BuildArgs(spec)...)
	procgroup.Isolate(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		metrics.TranscoderStartTotal.WithLabelValues("spawn_error").Inc()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		metrics.TranscoderStartTotal.WithLabelValues("spawn_error").Inc()
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		metrics.TranscoderStartTotal.WithLabelValues("spawn_error").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, spec.Bin, err)
	}
	metrics.TranscoderStartTotal.WithLabelValues("ok").Inc()

	p := &execProcess{
		cmd:       cmd,
		command:   CommandLine(spec),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
		abandoned: make(chan struct{}),
		ring:      NewLineRing(defaultRingLines),
		progress:  newProgressTracker(l.StartTimeout, l.StallTimeout, l.clock),
		logger:    logger.With().Int(xglog.FieldPID, cmd.Process.Pid).Logger(),
	}

	p.logger.Info().
		Str(xglog.FieldEvent, "transcoder.spawned").
		Str("cmd", p.command).
		Msg("ffmpeg process started")

	go p.feed(stdin, input)
	go p.monitor(stderr)
	go p.supervise(ctx)

	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	command string

	events    chan Event
	done      chan struct{}
	abandoned chan struct{}
	abandonMu sync.Once

	ring     *LineRing
	progress *progressTracker

	failMu     sync.Mutex
	failReason string // set when we killed the process on a timeout

	logger zerolog.Logger
}

func (p *execProcess) Events() <-chan Event  { return p.events }
func (p *execProcess) Done() <-chan struct{} { return p.done }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }

func (p *execProcess) LastLines(n int) []string { return p.ring.LastN(n) }

func (p *execProcess) Abandon() {
	p.abandonMu.Do(func() { close(p.abandoned) })
}

func (p *execProcess) Interrupt() error {
	if p.exited() {
		return nil
	}
	p.logger.Info().Str(xglog.FieldEvent, "transcoder.interrupt").Msg("sending SIGINT to ffmpeg")
	return procgroup.Signal(p.cmd, syscall.SIGINT)
}

func (p *execProcess) Kill() error {
	if p.exited() {
		return nil
	}
	p.logger.Warn().Str(xglog.FieldEvent, "transcoder.kill").Msg("sending SIGKILL to ffmpeg")
	return procgroup.Signal(p.cmd, syscall.SIGKILL)
}

func (p *execProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// feed copies input to the child's stdin and closes it at end of stream.
func (p *execProcess) feed(stdin io.WriteCloser, input io.Reader) {
	defer func() { _ = stdin.Close() }()

	n, err := io.Copy(stdin, input)
	switch {
	case err == nil:
		p.logger.Debug().Int64("bytes", n).Msg("input drained, closing ffmpeg stdin")
	case errors.Is(err, ingress.ErrAborted),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, os.ErrClosed):
		p.logger.Debug().Err(err).Int64("bytes", n).Msg("input copy ended early")
	default:
		p.logger.Warn().Err(err).Int64("bytes", n).Msg("input copy failed")
	}
}

// monitor maps stderr to events, then waits for the process and emits the
// terminal event.
func (p *execProcess) monitor(stderr io.Reader) {
	started := false
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	sc.Split(scanLines)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		isProgress, confirmed := p.progress.Observe(line)
		if !started && (confirmed || isStartLine(line)) {
			started = true
			p.logger.Info().Str(xglog.FieldEvent, "transcoder.started").Msg("ffmpeg confirmed running")
			p.emit(Started{Command: p.command})
		}
		if isProgress {
			continue
		}

		p.ring.Add(line)
		elevated := strings.Contains(strings.ToLower(line), "error")
		if elevated {
			metrics.TranscoderDiagnosticsTotal.WithLabelValues("elevated").Inc()
			p.logger.Warn().Str("line", line).Msg("ffmpeg diagnostic")
		} else {
			metrics.TranscoderDiagnosticsTotal.WithLabelValues("info").Inc()
			p.logger.Debug().Str("line", line).Msg("ffmpeg diagnostic")
		}
		p.emit(Diagnostic{Line: line, Elevated: elevated})
	}
	if err := sc.Err(); err != nil {
		p.logger.Warn().Err(err).Msg("stderr scan failed, discarding remaining output")
		_, _ = io.Copy(io.Discard, stderr)
	}

	waitErr := p.cmd.Wait()
	close(p.done)

	ev := p.terminalEvent(waitErr)
	p.emit(ev)
	close(p.events)
}

func (p *execProcess) terminalEvent(waitErr error) Event {
	p.failMu.Lock()
	reason := p.failReason
	p.failMu.Unlock()

	if reason != "" {
		metrics.TranscoderExitTotal.WithLabelValues("timeout").Inc()
		p.logger.Error().Str(xglog.FieldEvent, "transcoder.timeout").Msg(reason)
		return Failed{Message: reason, ExitCode: -1}
	}
	if waitErr == nil {
		metrics.TranscoderExitTotal.WithLabelValues("clean").Inc()
		p.logger.Info().Str(xglog.FieldEvent, "transcoder.exited").Int(xglog.FieldExitCode, 0).Msg("ffmpeg exited cleanly")
		return Ended{}
	}

	last := p.ring.Last()
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			metrics.TranscoderExitTotal.WithLabelValues("signal").Inc()
			msg := fmt.Sprintf("ffmpeg terminated by signal %s", ws.Signal())
			if last != "" {
				msg += ": " + last
			}
			p.logger.Warn().Str(xglog.FieldEvent, "transcoder.exited").Str("signal", ws.Signal().String()).Msg(msg)
			return Failed{Message: msg, ExitCode: -1}
		}
		code := exitErr.ExitCode()
		metrics.TranscoderExitTotal.WithLabelValues("error").Inc()
		msg := fmt.Sprintf("ffmpeg exited with code %d", code)
		if last != "" {
			msg += ": " + last
		}
		p.logger.Warn().Str(xglog.FieldEvent, "transcoder.exited").Int(xglog.FieldExitCode, code).Msg(msg)
		return Failed{Message: msg, ExitCode: code}
	}

	metrics.TranscoderExitTotal.WithLabelValues("error").Inc()
	return Failed{Message: fmt.Sprintf("ffmpeg wait failed: %v", waitErr), ExitCode: -1}
}

// supervise kills the process when ctx ends or a progress timeout fires.
func (p *execProcess) supervise(ctx context.Context) {
	var tick <-chan time.Time
	if p.progress.enabled() {
		t := p.progress.clock.NewTicker(time.Second)
		defer t.Stop()
		tick = t.C()
	}

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			p.logger.Info().Str(xglog.FieldEvent, "transcoder.cancelled").Msg("context cancelled, terminating ffmpeg")
			if err := procgroup.Terminate(p.cmd, p.done, syscall.SIGINT, cancelGrace); err != nil {
				p.logger.Error().Err(err).Msg("ffmpeg survived termination")
			}
			return
		case <-tick:
			if err := p.progress.check(); err != nil {
				p.failMu.Lock()
				p.failReason = err.Error()
				p.failMu.Unlock()
				_ = p.Kill()
				return
			}
		}
	}
}

// emit delivers ev unless the owner has abandoned the process.
func (p *execProcess) emit(ev Event) {
	select {
	case p.events <- ev:
	case <-p.abandoned:
	}
}

// isStartLine matches log lines printed once ffmpeg has opened its output.
func isStartLine(line string) bool {
	return strings.HasPrefix(line, "Output #0") || strings.HasPrefix(line, "Press [q]")
}

// scanLines splits on \n, \r\n and bare \r (ffmpeg rewrites stats lines with \r).
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		adv := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			adv++
		}
		return adv, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
