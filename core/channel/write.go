package channel

import "context"

// submit registers w, admitting it at once when possible. It fails with
// ErrChannelClosed when the channel no longer accepts writes.
func (c *Channel[T]) submit(w *pendingWrite[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closedWriting {
		return ErrChannelClosed
	}
	if !c.tryOfferLocked(w) {
		c.writes = append(c.writes, w)
	}
	return nil
}

// WriteAsync offers v without waiting. The returned channel receives
// exactly one value once the write completes: nil when v was admitted (for
// unbuffered channels, when a reader took it), ErrChannelClosed when the
// channel was already closed, or the error passed to the close that
// settled the write.
func (c *Channel[T]) WriteAsync(v T) <-chan error {
	res := make(chan error, 1)
	w := &pendingWrite[T]{
		value:    v,
		enqueued: func(err error) { res <- err },
	}
	if err := c.submit(w); err != nil {
		res <- err
	}
	return res
}

// Write offers v and blocks until it is admitted. Buffered channels admit
// immediately while a slot is free; unbuffered channels admit when a reader
// takes the value.
//
// Write returns ErrChannelClosed if the channel is closed for writing, the
// close error if a close settles the write while it waits, or ctx.Err()
// if ctx is cancelled first, in which case v is withdrawn.
func (c *Channel[T]) Write(ctx context.Context, v T) error {
	res := make(chan error, 1)
	w := &pendingWrite[T]{
		value:    v,
		enqueued: func(err error) { res <- err },
	}
	if err := c.submit(w); err != nil {
		return err
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		if c.withdrawWrite(w) {
			return ctx.Err()
		}
		return <-res
	}
}

// Deliver offers v and blocks until a reader has taken it, not merely
// until it is buffered. If ctx is cancelled after v was admitted, v stays
// buffered and ctx.Err() is returned.
func (c *Channel[T]) Deliver(ctx context.Context, v T) error {
	enqueued := make(chan error, 1)
	consumed := make(chan error, 1)
	w := &pendingWrite[T]{
		value:    v,
		enqueued: func(err error) { enqueued <- err },
		consumed: func(err error) { consumed <- err },
	}
	if err := c.submit(w); err != nil {
		return err
	}

	select {
	case err := <-enqueued:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		if c.withdrawWrite(w) {
			return ctx.Err()
		}
		if err := <-enqueued; err != nil {
			return err
		}
	}

	select {
	case err := <-consumed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MaybeWrite is Write reporting success as a bool.
func (c *Channel[T]) MaybeWrite(ctx context.Context, v T) bool {
	return c.Write(ctx, v) == nil
}

// WriteIgnore offers v and discards the outcome.
func (c *Channel[T]) WriteIgnore(v T) {
	_ = c.submit(&pendingWrite[T]{value: v})
}

// TryWrite admits v only if that needs no waiting. It reports whether v
// was admitted.
func (c *Channel[T]) TryWrite(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closedWriting {
		return false
	}
	return c.tryOfferLocked(&pendingWrite[T]{value: v})
}

func (c *Channel[T]) withdrawWrite(w *pendingWrite[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeWriteLocked(w)
}
