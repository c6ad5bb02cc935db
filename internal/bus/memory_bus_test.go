// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/streamrelay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testTopic = "relay.test"

func TestPublish_FanOutPreservesOrder(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	first, err := b.Subscribe(ctx, testTopic)
	require.NoError(t, err)
	defer first.Close()
	second, err := b.Subscribe(ctx, testTopic)
	require.NoError(t, err)
	defer second.Close()

	for _, state := range []string{"starting", "active", "stopping"} {
		require.NoError(t, b.Publish(ctx, testTopic, state))
	}
	for _, sub := range []Subscriber{first, second} {
		assert.Equal(t, "starting", <-sub.C())
		assert.Equal(t, "active", <-sub.C())
		assert.Equal(t, "stopping", <-sub.C())
	}
}

func TestPublish_OtherTopicsUnaffected(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "relay.other")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(context.Background(), testTopic, "x"))
	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected delivery %v", msg)
	default:
	}
}

func TestPublish_FullSubscriberCountsTimeoutDrop(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), testTopic)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), testTopic, i))
	}

	drops := metrics.BusDroppedTotal.WithLabelValues(testTopic, "timeout")
	before := testutil.ToFloat64(drops)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, testTopic, "overflow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, before+1, testutil.ToFloat64(drops))
}

func TestPublish_StuckSubscriberDoesNotStarveOthers(t *testing.T) {
	b := NewMemoryBus()
	stuck, err := b.Subscribe(context.Background(), testTopic)
	require.NoError(t, err)
	defer stuck.Close()
	healthy, err := b.Subscribe(context.Background(), testTopic)
	require.NoError(t, err)
	defer healthy.Close()

	for i := 0; i < cap(stuck.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), testTopic, i))
		<-healthy.C()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, testTopic, "error")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorContains(t, err, "1 of 2 subscribers")

	select {
	case msg := <-healthy.C():
		assert.Equal(t, "error", msg)
	default:
		t.Fatal("healthy subscriber did not receive the message")
	}
}

func TestClose_ReleasesBlockedPublish(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), testTopic)
	require.NoError(t, err)
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), testTopic, i))
	}

	published := make(chan error, 1)
	go func() { published <- b.Publish(context.Background(), testTopic, "late") }()

	closed := make(chan struct{})
	go func() {
		_ = sub.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a pending publish")
	}
	select {
	case err := <-published:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after Close")
	}
	assert.Zero(t, b.Subscribers(testTopic))
}

func TestPublish_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is rejected explicitly
	err := NewMemoryBus().Publish(nil, testTopic, "msg")
	require.ErrorContains(t, err, "context is nil")
}

func TestSubscribe_ClosesOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, testTopic)
	require.NoError(t, err)
	require.Equal(t, 1, b.Subscribers(testTopic))

	cancel()
	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription still open after cancel")
	}
	assert.Zero(t, b.Subscribers(testTopic))
	assert.NoError(t, sub.Close())
}
