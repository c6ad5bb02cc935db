// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"testing"

	"github.com/ManuGH/streamrelay/internal/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMachine_HappyPath(t *testing.T) {
	m := newSessionMachine()

	for _, step := range []struct {
		trig trigger
		want State
	}{
		{triggerStart, StateStarting},
		{triggerConfirm, StateActive},
		{triggerStop, StateStopping},
		{triggerRelease, StateIdle},
	} {
		got, err := m.Fire(step.trig)
		require.NoError(t, err, "trigger %s", step.trig)
		assert.Equal(t, step.want, got)
	}
}

func TestSessionMachine_FailureGoesThroughFailed(t *testing.T) {
	m := newSessionMachine()

	_, err := m.Fire(triggerStart)
	require.NoError(t, err)
	st, err := m.Fire(triggerFail)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st)

	assert.False(t, m.Permitted(triggerStart), "failed must release before a new start")
	st, err = m.Fire(triggerRelease)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st)
}

func TestSessionMachine_RejectsInvalidTriggers(t *testing.T) {
	m := newSessionMachine()

	for _, trig := range []trigger{triggerConfirm, triggerStop, triggerExit, triggerFail, triggerRelease, triggerAbort} {
		_, err := m.Fire(trig)
		assert.ErrorIs(t, err, fsm.ErrInvalidTransition, "trigger %s from idle", trig)
	}
	assert.Equal(t, StateIdle, m.State())
}

func TestSessionMachine_ConfirmIgnoredWhileStopping(t *testing.T) {
	m := newSessionMachine()

	_, _ = m.Fire(triggerStart)
	_, _ = m.Fire(triggerStop)
	assert.False(t, m.Permitted(triggerConfirm))
	assert.True(t, m.Permitted(triggerAbort))
}
