package channel

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var channelIDs atomic.Uint64

// Result is the outcome of a single read.
//
// Ok reports whether Value was received. Done reports whether the channel
// will never produce another value; it may be set together with Ok when the
// value received was the last one.
type Result[T any] struct {
	Value T
	Ok    bool
	Done  bool
}

// Option configures a Channel.
type Option func(*options)

type options struct {
	name   string
	logger *slog.Logger
}

// WithName sets the name used in logs, stats and error messages.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Channel is a typed rendezvous point buffering up to Cap values.
//
// The zero value is not usable; create channels with New.
type Channel[T any] struct {
	id       uint64
	name     string
	capacity int
	logger   *slog.Logger

	mu                   sync.Mutex
	writes               []*pendingWrite[T]
	reads                []*pendingRead[T]
	closedWriting        bool
	closeErr             error
	doneWritingCallbacks []*doneWritingCallback

	written atomic.Int64
	read    atomic.Int64
	settled atomic.Int64
}

type doneWritingCallback struct {
	fn func(error)
}

// New creates an open channel buffering up to capacity values. A capacity
// of 0 creates an unbuffered channel. New panics on negative capacity.
func New[T any](capacity int, opts ...Option) *Channel[T] {
	if capacity < 0 {
		panic(fmt.Sprintf("channel: negative capacity %d", capacity))
	}

	id := channelIDs.Add(1)
	o := options{
		name:   fmt.Sprintf("chan-%d", id),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Channel[T]{
		id:       id,
		name:     o.name,
		capacity: capacity,
		logger:   o.logger,
	}
}

// Name returns the channel name.
func (c *Channel[T]) Name() string {
	return c.name
}

// Cap returns the channel capacity.
func (c *Channel[T]) Cap() int {
	return c.capacity
}

// PendingReads returns the number of registered readers.
func (c *Channel[T]) PendingReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reads)
}

// PendingWrites returns the number of values offered but not yet read,
// buffered or waiting for a slot.
func (c *Channel[T]) PendingWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// DoneWriting reports whether the channel no longer accepts writes.
func (c *Channel[T]) DoneWriting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedWriting
}

// Done reports whether the channel is closed for writing and drained.
func (c *Channel[T]) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneLocked()
}

// Stats contains statistics for a Channel.
type Stats struct {
	Name          string
	Capacity      int
	Buffered      int   // Admitted values waiting for a reader
	PendingReads  int   // Registered readers, including select hooks
	PendingWrites int   // Buffered values plus writers waiting for a slot
	Written       int64 // Values admitted
	Read          int64 // Values handed to readers
	Settled       int64 // Writes settled by a close
	DoneWriting   bool
	Done          bool
}

// Stats returns a snapshot of channel statistics.
func (c *Channel[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Name:          c.name,
		Capacity:      c.capacity,
		Buffered:      c.bufferedLocked(),
		PendingReads:  len(c.reads),
		PendingWrites: len(c.writes),
		Written:       c.written.Load(),
		Read:          c.read.Load(),
		Settled:       c.settled.Load(),
		DoneWriting:   c.closedWriting,
		Done:          c.doneLocked(),
	}
}

func (c *Channel[T]) doneLocked() bool {
	return c.closedWriting && len(c.writes) == 0
}

func (c *Channel[T]) bufferedLocked() int {
	n := 0
	for _, w := range c.writes {
		if w.admitted {
			n++
		}
	}
	return n
}

// lockID, lock and unlock let a select hold several channels at once.
// Channels are always locked in ascending lockID order.
func (c *Channel[T]) lockID() uint64 { return c.id }
func (c *Channel[T]) lock()          { c.mu.Lock() }
func (c *Channel[T]) unlock()        { c.mu.Unlock() }
