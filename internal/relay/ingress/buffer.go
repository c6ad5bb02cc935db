// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingress implements the unbounded chunk queue between the media
// producer and the transcoder's stdin.
package ingress

import (
	"errors"
	"io"
	"sync"

	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by Push after SignalEnd or Abort.
	ErrClosed = errors.New("ingress: buffer closed")
	// ErrAborted is returned by Read once the buffer has been aborted.
	ErrAborted = errors.New("ingress: buffer aborted")
)

// Options configures a Buffer.
type Options struct {
	// HighWaterBytes logs a warning once per crossing when the queue grows
	// past it. Zero disables the check. Data is never dropped.
	HighWaterBytes int64
	Logger         *zerolog.Logger
}

// Stats is a snapshot of buffer counters.
type Stats struct {
	PushedChunks  int64 `json:"pushedChunks"`
	PushedBytes   int64 `json:"pushedBytes"`
	DroppedChunks int64 `json:"droppedChunks"`
	QueuedBytes   int64 `json:"queuedBytes"`
	Ended         bool  `json:"ended"`
	Aborted       bool  `json:"aborted"`
}

// Buffer is an ordered FIFO of byte chunks. Push never blocks; Read blocks
// while the queue is empty and the end has not been signalled.
//
// Buffer implements io.Reader. Chunks are kept by reference and must not be
// modified by the producer after Push.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue  [][]byte
	head   []byte // unread remainder of the chunk at the front
	queued int64

	ended   bool
	aborted bool

	highWater  int64
	aboveWater bool

	pushedChunks  int64
	pushedBytes   int64
	droppedChunks int64

	logger zerolog.Logger
}

// New returns an empty, open buffer.
func New(opts Options) *Buffer {
	logger := xglog.WithComponent("ingress")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	b := &Buffer{
		highWater: opts.HighWaterBytes,
		logger:    logger,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends chunk to the tail of the queue.
func (b *Buffer) Push(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended || b.aborted {
		b.droppedChunks++
		reason := "ended"
		if b.aborted {
			reason = "aborted"
		}
		metrics.ChunksDroppedTotal.WithLabelValues(reason).Inc()
		b.logger.Debug().
			Str(xglog.FieldEvent, "ingress.push_after_close").
			Str("reason", reason).
			Int("bytes", len(chunk)).
			Msg("chunk pushed after end of stream, dropping")
		return ErrClosed
	}
	if len(chunk) == 0 {
		return nil
	}

	b.queue = append(b.queue, chunk)
	n := int64(len(chunk))
	b.queued += n
	b.pushedChunks++
	b.pushedBytes += n
	metrics.ChunksPushedTotal.Inc()
	metrics.BytesPushedTotal.Add(float64(n))
	metrics.IngressQueuedBytes.Add(float64(n))

	if b.highWater > 0 {
		switch {
		case !b.aboveWater && b.queued > b.highWater:
			b.aboveWater = true
			metrics.IngressHighWaterTotal.Inc()
			b.logger.Warn().
				Str(xglog.FieldEvent, "ingress.high_water").
				Int64("queued_bytes", b.queued).
				Int64("high_water_bytes", b.highWater).
				Msg("ingress buffer above high-water mark; transcoder is not keeping up")
		case b.aboveWater && b.queued <= b.highWater/2:
			b.aboveWater = false
		}
	}

	b.cond.Signal()
	return nil
}

// SignalEnd marks that no further chunks will be pushed. Readers drain the
// queue and then observe io.EOF. Calling it more than once is a no-op.
func (b *Buffer) SignalEnd() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return
	}
	b.ended = true
	b.cond.Broadcast()
}

// Abort discards queued data and wakes readers with ErrAborted.
func (b *Buffer) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aborted {
		return
	}
	b.aborted = true
	metrics.IngressQueuedBytes.Sub(float64(b.queued))
	b.queue = nil
	b.head = nil
	b.queued = 0
	b.cond.Broadcast()
}

// Read copies queued bytes into p in push order. It never returns (0, nil)
// for a non-empty p.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.aborted {
			return 0, ErrAborted
		}
		if len(b.head) == 0 && len(b.queue) > 0 {
			b.head = b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
		}
		if len(b.head) > 0 {
			break
		}
		if b.ended {
			return 0, io.EOF
		}
		b.cond.Wait()
	}

	n := copy(p, b.head)
	b.head = b.head[n:]
	b.consumed(n)
	return n, nil
}

// WriteTo drains the buffer into w chunk by chunk until end of stream.
// io.Copy uses it, which avoids the intermediate copy buffer.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		chunk, err := b.next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, werr := w.Write(chunk)
		total += int64(n)
		if werr != nil {
			return total, werr
		}
		if n < len(chunk) {
			return total, io.ErrShortWrite
		}
	}
}

// next pops the whole head chunk, blocking like Read.
func (b *Buffer) next() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.aborted {
			return nil, ErrAborted
		}
		if len(b.head) > 0 {
			chunk := b.head
			b.head = nil
			b.consumed(len(chunk))
			return chunk, nil
		}
		if len(b.queue) > 0 {
			chunk := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.consumed(len(chunk))
			return chunk, nil
		}
		if b.ended {
			return nil, io.EOF
		}
		b.cond.Wait()
	}
}

func (b *Buffer) consumed(n int) {
	b.queued -= int64(n)
	metrics.IngressQueuedBytes.Sub(float64(n))
	if b.aboveWater && b.queued <= b.highWater/2 {
		b.aboveWater = false
	}
}

// Len returns the number of queued, unread bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.queued)
}

// Ended reports whether SignalEnd has been called.
func (b *Buffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		PushedChunks:  b.pushedChunks,
		PushedBytes:   b.pushedBytes,
		DroppedChunks: b.droppedChunks,
		QueuedBytes:   b.queued,
		Ended:         b.ended,
		Aborted:       b.aborted,
	}
}
