// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

// Isolate makes cmd the leader of a fresh process group, so a terminal
// Ctrl-C aimed at the daemon does not reach the transcoder first.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalGroup delivers sig to every process in the group led by cmd.
// A group that is already gone is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// Isolate made the leader's pid the group id.
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// Alive reports whether the group led by cmd still has a running member.
// Zombies awaiting a reaper do not count.
func Alive(cmd *exec.Cmd) bool {
	if cmd == nil || cmd.Process == nil {
		return false
	}
	pgid := cmd.Process.Pid
	if syscall.Kill(-pgid, syscall.Signal(0)) != nil {
		return false
	}
	if live, known := liveMembers(pgid); known {
		return live > 0
	}
	return true
}
