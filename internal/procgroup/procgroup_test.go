// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, chan struct{}) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
	cmd := exec.Command("sh", "-c", script)
	Isolate(cmd)
	require.NoError(t, cmd.Start())

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	return cmd, done
}

func TestProcessGroupKill(t *testing.T) {
	cmd, done := startGroup(t, "sleep 10 & sleep 10")
	pid := cmd.Process.Pid

	time.Sleep(100 * time.Millisecond)

	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "Process should be group leader")

	assert.True(t, Alive(cmd))
	require.NoError(t, Signal(cmd, syscall.SIGKILL))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process group did not exit after SIGKILL")
	}

	// The backgrounded sleep is reparented; it may linger as a zombie until
	// init reaps it, which Alive ignores.
	assert.Eventually(t, func() bool { return !Alive(cmd) }, 2*time.Second, 20*time.Millisecond)

	// Signalling a reaped group is not an error.
	assert.NoError(t, Signal(cmd, syscall.SIGINT))
}

func TestAlive_IgnoresZombieLeader(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not found")
	}
	cmd := exec.Command("sleep", "10")
	Isolate(cmd)
	require.NoError(t, cmd.Start())
	require.True(t, Alive(cmd))

	// Killed but not yet waited for: the leader is a zombie.
	require.NoError(t, cmd.Process.Kill())
	if _, known := liveMembers(cmd.Process.Pid); known {
		assert.Eventually(t, func() bool { return !Alive(cmd) }, 2*time.Second, 20*time.Millisecond)
	}
	_ = cmd.Wait()
	assert.False(t, Alive(cmd))
}

func TestSignalNilCommand(t *testing.T) {
	assert.NoError(t, Signal(nil, syscall.SIGINT))
	assert.NoError(t, Signal(&exec.Cmd{}, syscall.SIGINT))
	assert.False(t, Alive(nil))
}

func TestTerminateGracefulInterrupt(t *testing.T) {
	cmd, done := startGroup(t, "trap 'exit 0' INT; while true; do sleep 0.05; done")
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, Terminate(cmd, done, syscall.SIGINT, 2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTerminateEscalatesToKill(t *testing.T) {
	cmd, done := startGroup(t, "trap '' INT; while true; do sleep 0.05; done")
	time.Sleep(100 * time.Millisecond)

	grace := 200 * time.Millisecond
	start := time.Now()
	require.NoError(t, Terminate(cmd, done, syscall.SIGINT, grace))
	assert.GreaterOrEqual(t, time.Since(start), grace)
}
