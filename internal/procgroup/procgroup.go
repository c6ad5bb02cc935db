// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts child processes in their own process group and
// signals the whole group, so helper children spawned by the transcoder are
// reaped together with it.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/streamrelay/internal/metrics"
)

// ErrKillFailed is returned when a process group survives SIGKILL.
var ErrKillFailed = errors.New("kill operation failed")

// Terminate sends sig to the process group of cmd and waits for done to be
// closed. If the group is still alive after grace it escalates to SIGKILL and
// waits up to grace again. A zero grace waits forever after the first signal.
// It is safe to call on nil commands.
func Terminate(cmd *exec.Cmd, done <-chan struct{}, sig syscall.Signal, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	recordSignal(sig, signalGroup(cmd, sig))

	if grace <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	recordSignal(syscall.SIGKILL, signalGroup(cmd, syscall.SIGKILL))

	timer.Reset(grace)
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrKillFailed
	}
}

// Signal sends sig to the process group of cmd and records the outcome.
func Signal(cmd *exec.Cmd, sig syscall.Signal) error {
	err := signalGroup(cmd, sig)
	recordSignal(sig, err)
	return err
}

func recordSignal(sig syscall.Signal, err error) {
	name := signalName(sig)
	if err != nil {
		metrics.IncProcSignal(name, "error")
		return
	}
	metrics.IncProcSignal(name, "sent")
}

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	default:
		return sig.String()
	}
}
