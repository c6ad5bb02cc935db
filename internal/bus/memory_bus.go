// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
)

// MemoryBus is an in-memory pub/sub. It is not durable. Each subscriber
// is served independently: one that stops reading loses messages once the
// publisher's context expires, without holding up the others.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*memSub
}

const (
	dropLogEvery  = 100
	subscriberCap = 64
)

var dropCount atomic.Uint64

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// Publish delivers msg to every subscriber of topic, in subscription order.
// A subscriber whose buffer stays full until ctx ends misses msg; the
// remaining subscribers are still served and the drop is reported in the
// returned error.
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	subs := append([]*memSub(nil), b.subs[topic]...)
	b.mu.RUnlock()

	var first error
	dropped := 0
	for _, sub := range subs {
		err := sub.deliver(ctx, msg)
		if err == nil {
			continue
		}
		dropped++
		if first == nil {
			first = err
		}
		b.recordDrop(topic, publishDropReason(err))
	}
	if first != nil {
		return fmt.Errorf("publish topic %q: %d of %d subscribers missed the message: %w",
			topic, dropped, len(subs), first)
	}
	return nil
}

func (b *MemoryBus) recordDrop(topic, reason string) {
	metrics.IncBusDropReason(topic, reason)
	if count := dropCount.Add(1); count%dropLogEvery == 1 {
		logger := log.L()
		logger.Warn().
			Str("topic", topic).
			Str("reason", reason).
			Uint64("dropped", count).
			Msg("bus subscriber too slow, message dropped")
	}
}

// Subscribe registers a new subscriber. When ctx is cancelled the
// subscription is closed automatically.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	if ctx == nil {
		return nil, fmt.Errorf("subscribe context is nil")
	}
	sub := &memSub{
		b:     b,
		topic: topic,
		ch:    make(chan Message, subscriberCap),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}

// Subscribers returns the number of live subscribers for topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *MemoryBus) remove(s *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lst := b.subs[s.topic]
	out := lst[:0]
	for _, c := range lst {
		if c != s {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(b.subs, s.topic)
		return
	}
	b.subs[s.topic] = out
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once

	// mu keeps Close from closing ch while a send is in flight.
	mu     sync.RWMutex
	closed bool
}

func (s *memSub) C() <-chan Message {
	return s.ch
}

// deliver sends msg, waiting for buffer space until ctx ends or the
// subscription closes. A closed subscription is not a drop.
func (s *memSub) deliver(ctx context.Context, msg Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- msg:
		return nil
	default:
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memSub) Close() error {
	s.once.Do(func() {
		// done first so a blocked deliver releases the read lock.
		close(s.done)
		s.b.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

var _ Bus = (*MemoryBus)(nil)
