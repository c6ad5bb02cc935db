// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type light string
type press string

const (
	off    light = "off"
	on     light = "on"
	broken light = "broken"

	toggle press = "toggle"
	smash  press = "smash"
)

func newLight(t *testing.T) *Machine[light, press] {
	t.Helper()
	m, err := New(off, []Transition[light, press]{
		{From: off, Event: toggle, To: on},
		{From: on, Event: toggle, To: off},
		{From: on, Event: smash, To: broken},
	})
	require.NoError(t, err)
	return m
}

func TestMachineFire(t *testing.T) {
	m := newLight(t)
	to, err := m.Fire(toggle)
	require.NoError(t, err)
	assert.Equal(t, on, to)
	assert.Equal(t, on, m.State())
}

func TestMachineRejectsUnknownTransition(t *testing.T) {
	m := newLight(t)
	assert.False(t, m.Permitted(smash))

	from, err := m.Fire(smash)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, off, from)
	assert.Equal(t, off, m.State())
}

func TestMachineRejectsDuplicateEdges(t *testing.T) {
	_, err := New(off, []Transition[light, press]{
		{From: off, Event: toggle, To: on},
		{From: off, Event: toggle, To: off},
	})
	require.Error(t, err)
}

func TestMachineEvents(t *testing.T) {
	m := newLight(t)
	assert.Equal(t, []press{toggle}, m.Events())

	_, err := m.Fire(toggle)
	require.NoError(t, err)
	assert.Equal(t, []press{smash, toggle}, m.Events())

	_, err = m.Fire(smash)
	require.NoError(t, err)
	assert.Empty(t, m.Events())
}

func TestMachineObserversAndSince(t *testing.T) {
	m := newLight(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return at }

	type step struct {
		from, to light
		event    press
	}
	var seen []step
	m.OnTransition(func(from, to light, event press) {
		seen = append(seen, step{from, to, event})
	})

	_, err := m.Fire(toggle)
	require.NoError(t, err)
	_, err = m.Fire(smash)
	require.NoError(t, err)
	_, err = m.Fire(toggle)
	require.Error(t, err)

	assert.Equal(t, []step{{off, on, toggle}, {on, broken, smash}}, seen)
	assert.Equal(t, at, m.Since())
}

func TestMachineConcurrentFire(t *testing.T) {
	m := newLight(t)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Fire(toggle)
		}()
	}
	wg.Wait()
	// 100 toggles always land back where they started.
	assert.Equal(t, off, m.State())
}
