// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package relay owns the lifecycle of the single live-streaming session:
// it wires the ingress buffer to a transcoder process and reports progress
// as notifications.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/streamrelay/internal/bus"
	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/journal"
	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
	"github.com/ManuGH/streamrelay/internal/relay/ingress"
	"github.com/ManuGH/streamrelay/internal/relay/transcoder"
	"github.com/ManuGH/streamrelay/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultPublishTimeout = time.Second
	journalTimeout        = 5 * time.Second
	shutdownKillWait      = 2 * time.Second
)

// Options configures a Controller. Launcher is required.
type Options struct {
	Launcher transcoder.Launcher
	Bus      bus.Bus
	Journal  journal.Store
	// Settings is read on every Start so reloaded config applies to the next
	// session only.
	Settings       func() Settings
	Now            func() time.Time
	NewID          func() string
	Tracer         trace.Tracer
	Logger         *zerolog.Logger
	PublishTimeout time.Duration
}

// Controller runs at most one session at a time.
type Controller struct {
	launcher       transcoder.Launcher
	bus            bus.Bus
	journal        journal.Store
	settings       func() Settings
	now            func() time.Time
	newID          func() string
	tracer         trace.Tracer
	logger         zerolog.Logger
	publishTimeout time.Duration
	dropLog        *rate.Limiter

	// lifecycle serialises Start, Stop and Shutdown.
	lifecycle sync.Mutex

	mu   sync.Mutex
	cur  *session
	idle chan struct{} // closed while no session exists

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New builds a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Launcher == nil {
		return nil, errors.New("relay: launcher is required")
	}
	c := &Controller{
		launcher:       opts.Launcher,
		bus:            opts.Bus,
		journal:        opts.Journal,
		settings:       opts.Settings,
		now:            opts.Now,
		newID:          opts.NewID,
		tracer:         opts.Tracer,
		publishTimeout: opts.PublishTimeout,
		dropLog:        rate.NewLimiter(rate.Every(time.Second), 3),
		idle:           make(chan struct{}),
	}
	close(c.idle)

	if c.bus == nil {
		c.bus = bus.NewMemoryBus()
	}
	if c.journal == nil {
		c.journal = journal.NewMemoryStore(0)
	}
	if c.settings == nil {
		d := config.Defaults()
		c.settings = func() Settings { return SettingsFromConfig(d) }
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.tracer == nil {
		c.tracer = telemetry.Tracer("streamrelay/relay")
	}
	if c.publishTimeout <= 0 {
		c.publishTimeout = defaultPublishTimeout
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	} else {
		c.logger = xglog.WithComponent("relay")
	}
	c.baseCtx, c.cancel = context.WithCancel(context.Background())
	metrics.SetSessionState(string(StateIdle))
	return c, nil
}

// Bus returns the bus notifications are published on.
func (c *Controller) Bus() bus.Bus { return c.bus }

// Journal returns the session history store.
func (c *Controller) Journal() journal.Store { return c.journal }

// Start begins a new session. A running session is terminated first.
// It returns once the transcoder has been spawned; the "started"
// notification follows when the transcoder confirms it is processing.
func (c *Controller) Start(ctx context.Context, cfg SessionConfig) (SessionInfo, error) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	ctx, span := c.tracer.Start(ctx, "relay.start")
	defer span.End()

	settings := c.settings()
	// Validate before replacing: a rejected config leaves the live session running.
	res, err := cfg.resolve(settings.Relay.DefaultVideoBitrate, settings.Relay.DefaultAudioBitrate)
	if err != nil {
		metrics.SessionStartTotal.WithLabelValues("config_error").Inc()
		span.SetAttributes(telemetry.ErrorAttributes("config")...)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().Err(err).Str(xglog.FieldEvent, "relay.config_rejected").Msg("start rejected: invalid session config")
		c.publish(c.note(NotifyError, "", err.Error()))
		return SessionInfo{}, err
	}

	c.replaceCurrent(settings.Relay.ReplaceTimeout)

	id := c.newID()
	masked := transcoder.MaskIngestURL(res.IngestURL)
	ctx = xglog.ContextWithSessionID(ctx, id)
	logger := xglog.WithContext(ctx, c.logger).With().
		Str(xglog.FieldIngestURL, masked).
		Logger()

	s := &session{
		id:              id,
		cfg:             res,
		maskedURL:       masked,
		buffer:          ingress.New(ingress.Options{HighWaterBytes: settings.Relay.BufferHighWaterBytes, Logger: &logger}),
		machine:         newSessionMachine(),
		requestedAt:     c.now(),
		stopKillTimeout: settings.Relay.StopKillTimeout,
		logger:          logger,
	}
	_, s.span = c.tracer.Start(ctx, "relay.session",
		trace.WithNewRoot(),
		trace.WithLinks(trace.LinkFromContext(ctx)),
		trace.WithAttributes(telemetry.SessionAttributes(id, masked, s.resolution(), res.FrameRate)...),
		trace.WithAttributes(telemetry.TranscodeAttributes(settings.FFmpeg.VideoCodec, settings.FFmpeg.AudioCodec, res.VideoBitrate, res.AudioBitrate)...),
	)
	span.SetAttributes(attribute.String(telemetry.SessionIDKey, id))

	c.mu.Lock()
	c.cur = s
	c.idle = make(chan struct{})
	c.fire(s, triggerStart)
	c.mu.Unlock()

	proc, err := c.launcher.Launch(c.baseCtx, buildSpec(res, settings.FFmpeg), s.buffer)
	if err != nil {
		metrics.SessionStartTotal.WithLabelValues("spawn_error").Inc()
		span.SetAttributes(telemetry.ErrorAttributes("spawn")...)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str(xglog.FieldEvent, "relay.spawn_failed").Msg("failed to start transcoder")

		c.mu.Lock()
		c.fire(s, triggerAbort)
		eff := c.release(s, journal.OutcomeFailed, err.Error())
		c.mu.Unlock()

		eff.notes = append(eff.notes, c.note(NotifyError, id, err.Error()))
		c.apply(eff)
		return SessionInfo{}, fmt.Errorf("start session: %w", err)
	}

	c.mu.Lock()
	s.proc = proc
	info := s.info()
	c.mu.Unlock()

	logger.Info().
		Str(xglog.FieldEvent, "relay.session_starting").
		Str(xglog.FieldResolution, s.resolution()).
		Int(xglog.FieldFPS, res.FrameRate).
		Int(xglog.FieldPID, proc.Pid()).
		Msg("relay session starting")

	go c.pump(s)
	return info, nil
}

// PushChunk enqueues one media chunk for the current session. Without a
// starting or active session the chunk is dropped. It never blocks on the
// transcoder.
func (c *Controller) PushChunk(chunk []byte) {
	c.mu.Lock()
	s := c.cur
	if s == nil || (s.state() != StateStarting && s.state() != StateActive) {
		c.mu.Unlock()
		metrics.ChunksDroppedTotal.WithLabelValues("no_session").Inc()
		if c.dropLog.Allow() {
			c.logger.Debug().
				Str(xglog.FieldEvent, "relay.chunk_dropped").
				Int("bytes", len(chunk)).
				Msg("chunk received without an active session, dropping")
		}
		return
	}
	err := s.buffer.Push(chunk)
	c.mu.Unlock()

	if err != nil && c.dropLog.Allow() {
		s.logger.Debug().Err(err).Str(xglog.FieldEvent, "relay.chunk_dropped").Msg("chunk rejected by ingress buffer")
	}
}

// Stop ends the current session gracefully: the input is closed after the
// queued chunks and the transcoder is interrupted. "stopped" is published
// once the transcoder exit has been observed, or immediately when there is
// no session.
func (c *Controller) Stop(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	_, span := c.tracer.Start(ctx, "relay.stop")
	defer span.End()

	c.mu.Lock()
	s := c.cur
	if s == nil {
		c.mu.Unlock()
		c.logger.Debug().Str(xglog.FieldEvent, "relay.stop_idle").Msg("stop requested with no session")
		c.publish(c.note(NotifyStopped, "", ""))
		return nil
	}
	span.SetAttributes(attribute.String(telemetry.SessionIDKey, s.id))
	if s.state() == StateStopping {
		c.mu.Unlock()
		return nil
	}

	c.fire(s, triggerStop)
	s.buffer.SignalEnd()
	proc := s.proc
	if s.stopKillTimeout > 0 {
		logger := s.logger
		timeout := s.stopKillTimeout
		s.killTimer = time.AfterFunc(timeout, func() {
			logger.Warn().
				Str(xglog.FieldEvent, "relay.stop_timeout").
				Dur("timeout", timeout).
				Msg("transcoder did not exit after interrupt, killing")
			_ = proc.Kill()
		})
	}
	c.mu.Unlock()

	s.logger.Info().Str(xglog.FieldEvent, "relay.session_stopping").Msg("stopping relay session")
	if err := proc.Interrupt(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to interrupt transcoder")
	}
	return nil
}

// Shutdown stops the session and waits for it to be released until ctx
// expires, then kills the transcoder. The controller must not be used
// afterwards.
func (c *Controller) Shutdown(ctx context.Context) error {
	_ = c.Stop(ctx)

	var err error
	select {
	case <-c.Idle():
	case <-ctx.Done():
		err = ctx.Err()
		c.mu.Lock()
		s := c.cur
		c.mu.Unlock()
		if s != nil && s.proc != nil {
			c.logger.Warn().Str(xglog.FieldEvent, "relay.shutdown_kill").Msg("shutdown deadline reached, killing transcoder")
			_ = s.proc.Kill()
		}
		select {
		case <-c.Idle():
		case <-time.After(shutdownKillWait):
		}
	}
	c.cancel()
	return err
}

// Idle returns a channel that is closed while no session exists.
func (c *Controller) Idle() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idle
}

// Status returns the current state and session counters.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.cur
	if s == nil {
		return Status{State: StateIdle}
	}
	ss := &SessionStatus{
		SessionInfo: s.info(),
		StateSince:  s.machine.Since(),
		Buffer:      s.buffer.Stats(),
	}
	if !s.activeAt.IsZero() {
		t := s.activeAt
		ss.ActiveAt = &t
	}
	if s.proc != nil {
		ss.LastLines = s.proc.LastLines(5)
	}
	return Status{State: s.state(), Session: ss}
}

// effects are side effects computed under the lock and applied after it.
type effects struct {
	notes []Notification
	entry *journal.Entry
	span  trace.Span
}

func (c *Controller) pump(s *session) {
	for ev := range s.proc.Events() {
		c.apply(c.handleEvent(s, ev))
	}
}

func (c *Controller) handleEvent(s *session, ev transcoder.Event) effects {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur != s {
		// replaced; its events no longer matter
		return effects{}
	}

	switch e := ev.(type) {
	case transcoder.Started:
		if s.state() != StateStarting || !c.fire(s, triggerConfirm) {
			return effects{}
		}
		s.activeAt = c.now()
		metrics.SessionStartTotal.WithLabelValues("ok").Inc()
		metrics.ObserveSessionStartup(s.activeAt.Sub(s.requestedAt))
		s.span.AddEvent("transcoder.started")
		s.logger.Info().
			Str(xglog.FieldEvent, "relay.session_active").
			Str("cmd", e.Command).
			Dur("startup", s.activeAt.Sub(s.requestedAt)).
			Msg("relay session is live")
		return effects{notes: []Notification{c.note(NotifyStarted, s.id, "")}}

	case transcoder.Diagnostic:
		if e.Elevated {
			s.span.AddEvent("transcoder.diagnostic", trace.WithAttributes(attribute.String("line", e.Line)))
		}
		return effects{}

	case transcoder.Ended:
		return c.onExit(s, "")

	case transcoder.Failed:
		return c.onExit(s, e.Message)
	}
	return effects{}
}

// onExit handles the terminal event of the current session's process.
func (c *Controller) onExit(s *session, failure string) effects {
	var eff effects

	switch s.state() {
	case StateStopping:
		// Any exit after an interrupt is a graceful stop, whatever the status.
		c.fire(s, triggerRelease)
		eff = c.release(s, journal.OutcomeStopped, "")

	case StateStarting, StateActive:
		if failure == "" {
			c.fire(s, triggerExit)
			c.fire(s, triggerRelease)
			eff = c.release(s, journal.OutcomeStopped, "")
			break
		}
		if s.state() == StateStarting {
			metrics.SessionStartTotal.WithLabelValues("failed").Inc()
		}
		c.fire(s, triggerFail)
		s.lastError = failure
		s.span.SetStatus(codes.Error, failure)
		s.logger.Error().
			Str(xglog.FieldEvent, "relay.session_failed").
			Str("reason", failure).
			Msg("transcoder failed, tearing down session")
		notes := []Notification{c.note(NotifyError, s.id, failure)}
		c.fire(s, triggerRelease)
		eff = c.release(s, journal.OutcomeFailed, failure)
		eff.notes = append(notes, eff.notes...)

	default:
		return effects{}
	}

	eff.notes = append(eff.notes, c.note(NotifyStopped, s.id, ""))
	return eff
}

// release detaches s from the controller. Caller holds c.mu.
func (c *Controller) release(s *session, outcome journal.Outcome, errMsg string) effects {
	if s.killTimer != nil {
		s.killTimer.Stop()
	}
	stats := s.buffer.Stats()
	s.buffer.Abort()

	if c.cur == s {
		c.cur = nil
		close(c.idle)
	}
	metrics.SessionEndTotal.WithLabelValues(string(outcome)).Inc()
	metrics.SetSessionState(string(StateIdle))

	ended := c.now()
	s.logger.Info().
		Str(xglog.FieldEvent, "relay.session_released").
		Str("outcome", string(outcome)).
		Int64("bytes_pushed", stats.PushedBytes).
		Int64("chunks_pushed", stats.PushedChunks).
		Dur("duration", ended.Sub(s.requestedAt)).
		Msg("relay session released")

	s.span.SetAttributes(attribute.String(telemetry.SessionOutcomeKey, string(outcome)))
	return effects{
		span: s.span,
		entry: &journal.Entry{
			SessionID:     s.id,
			IngestURL:     s.maskedURL,
			Resolution:    s.resolution(),
			FrameRate:     s.cfg.FrameRate,
			Outcome:       outcome,
			Error:         errMsg,
			StartedAt:     s.requestedAt,
			EndedAt:       ended,
			BytesPushed:   stats.PushedBytes,
			ChunksPushed:  stats.PushedChunks,
			ChunksDropped: stats.DroppedChunks,
		},
	}
}

// replaceCurrent force-terminates the running session, if any, and waits
// for its process to exit.
func (c *Controller) replaceCurrent(timeout time.Duration) {
	c.mu.Lock()
	prev := c.cur
	if prev == nil {
		c.mu.Unlock()
		return
	}
	prev.logger.Warn().
		Str(xglog.FieldEvent, "relay.session_replaced").
		Str(xglog.FieldState, string(prev.state())).
		Msg("start requested while a session is running, terminating previous transcoder")
	c.fire(prev, triggerAbort)
	proc := prev.proc
	eff := c.release(prev, journal.OutcomeReplaced, "")
	c.mu.Unlock()

	if proc != nil {
		proc.Abandon()
		_ = proc.Kill()
		timer := time.NewTimer(timeout)
		select {
		case <-proc.Done():
		case <-timer.C:
			prev.logger.Error().
				Str(xglog.FieldEvent, "relay.replace_timeout").
				Dur("timeout", timeout).
				Msg("previous transcoder did not exit after SIGKILL")
		}
		timer.Stop()
	}
	c.apply(eff)
}

// fire applies a transition and logs it. Caller holds c.mu.
func (c *Controller) fire(s *session, t trigger) bool {
	from := s.state()
	to, err := s.machine.Fire(t)
	if err != nil {
		accepted := make([]string, 0, 4)
		for _, e := range s.machine.Events() {
			accepted = append(accepted, string(e))
		}
		s.logger.Debug().Err(err).
			Str("trigger", string(t)).
			Strs("accepted", accepted).
			Msg("session transition ignored")
		return false
	}
	s.logger.Debug().
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(to)).
		Str("trigger", string(t)).
		Msg("session state changed")
	return true
}

func (c *Controller) note(t NotificationType, sessionID, msg string) Notification {
	return Notification{Type: t, Message: msg, SessionID: sessionID, At: c.now()}
}

func (c *Controller) apply(eff effects) {
	if eff.entry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		if err := c.journal.Record(ctx, *eff.entry); err != nil {
			c.logger.Error().Err(err).Str(xglog.FieldSessionID, eff.entry.SessionID).Msg("failed to record session in journal")
		}
		cancel()
	}
	if eff.span != nil {
		eff.span.End()
	}
	for _, n := range eff.notes {
		c.publish(n)
	}
}

func (c *Controller) publish(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), c.publishTimeout)
	defer cancel()
	if err := c.bus.Publish(ctx, NotificationTopic, n); err != nil {
		c.logger.Warn().Err(err).Str("type", string(n.Type)).Msg("notification dropped")
	}
}
