package channel

import (
	"context"
	"iter"
)

// Next takes the oldest value, waiting for one if none is pending.
//
// A drained, closed channel yields a Result with Done set and Ok unset; a
// value is returned with Ok set and Done reporting whether it was the last.
// The only error is ctx.Err(), returned after the pending read is
// withdrawn.
func (c *Channel[T]) Next(ctx context.Context) (Result[T], error) {
	c.mu.Lock()
	if c.doneLocked() {
		c.mu.Unlock()
		return Result[T]{Done: true}, nil
	}
	if v, done, ok := c.consumeLocked(); ok {
		c.mu.Unlock()
		return Result[T]{Value: v, Ok: true, Done: done}, nil
	}

	res := make(chan Result[T], 1)
	r := &pendingRead[T]{
		deliver: func(v T, ok, done bool) {
			res <- Result[T]{Value: v, Ok: ok, Done: done}
		},
	}
	c.reads = append(c.reads, r)
	c.mu.Unlock()

	select {
	case result := <-res:
		return result, nil
	case <-ctx.Done():
		if c.withdrawRead(r) {
			return Result[T]{}, ctx.Err()
		}
		return <-res, nil
	}
}

// Read is Next failing with ErrChannelClosed when the channel is done.
func (c *Channel[T]) Read(ctx context.Context) (T, error) {
	result, err := c.Next(ctx)
	if err != nil {
		return result.Value, err
	}
	if !result.Ok {
		return result.Value, ErrChannelClosed
	}
	return result.Value, nil
}

// MaybeRead is Next reporting closure and cancellation as a false ok.
func (c *Channel[T]) MaybeRead(ctx context.Context) (T, bool) {
	result, err := c.Next(ctx)
	if err != nil {
		return result.Value, false
	}
	return result.Value, result.Ok
}

// TryRead takes a pending value without waiting.
func (c *Channel[T]) TryRead() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, _, ok := c.consumeLocked()
	return v, ok
}

// ReadAllSync takes every value that can be read without waiting,
// including values offered by writers still waiting for a slot.
func (c *Channel[T]) ReadAllSync() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	var values []T
	for {
		v, _, ok := c.consumeLocked()
		if !ok {
			return values
		}
		values = append(values, v)
	}
}

// All returns a sequence of the channel's values that ends when the
// channel is done or ctx is cancelled. Stopping the iteration early closes
// the channel, discarding whatever is still pending.
func (c *Channel[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			result, err := c.Next(ctx)
			if err != nil || !result.Ok {
				return
			}
			if !yield(result.Value) {
				c.Close()
				return
			}
		}
	}
}

func (c *Channel[T]) withdrawRead(r *pendingRead[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeReadLocked(r)
}
