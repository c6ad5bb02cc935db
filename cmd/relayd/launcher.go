// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"io"

	"github.com/ManuGH/streamrelay/internal/config"
	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/relay/transcoder"
	"github.com/rs/zerolog"
)

// configuredLauncher reads the watchdog timeouts from the live config on
// every launch, so a reload applies to the next session.
type configuredLauncher struct {
	holder *config.Holder
	logger zerolog.Logger
}

func newConfiguredLauncher(holder *config.Holder) *configuredLauncher {
	return &configuredLauncher{holder: holder, logger: xglog.WithComponent("transcoder")}
}

func (l *configuredLauncher) Launch(ctx context.Context, spec transcoder.Spec, input io.Reader) (transcoder.Process, error) {
	rc := l.holder.Get().Relay
	el := &transcoder.ExecLauncher{
		StartTimeout: rc.StartTimeout,
		StallTimeout: rc.StallTimeout,
		Logger:       &l.logger,
	}
	return el.Launch(ctx, spec, input)
}
