package channel

// CloseWriting stops the channel accepting writes. Buffered values stay
// readable. Writers waiting for a slot are released with a nil error.
func (c *Channel[T]) CloseWriting() {
	c.CloseWritingWithError(nil)
}

// CloseWritingWithError stops the channel accepting writes and settles
// every write beyond capacity with err, newest first. Buffered values stay
// readable until consumed. If nothing is buffered the channel is done and
// pending readers are released. Calls after the first are no-ops.
func (c *Channel[T]) CloseWritingWithError(err error) {
	c.mu.Lock()
	settled, callbacks, ok := c.closeWritingLocked(err)
	done := c.doneLocked()
	c.mu.Unlock()

	if !ok {
		return
	}
	c.logger.Debug("channel closed for writing",
		"channel", c.name,
		"settled", settled,
		"done", done,
		"error", err)
	runDoneWriting(callbacks, err)
}

// Close closes the channel for reading and writing. Every pending write,
// buffered or not, is settled with a nil error, newest first, and every
// pending read ends.
func (c *Channel[T]) Close() {
	c.CloseWithError(nil)
}

// CloseWithError is Close settling pending writes with err. Calls after
// the first are no-ops.
func (c *Channel[T]) CloseWithError(err error) {
	c.mu.Lock()
	settled, callbacks, closed := c.closeWritingLocked(err)

	drained := len(c.writes)
	for i := len(c.writes) - 1; i >= 0; i-- {
		c.settleLocked(c.writes[i], err)
	}
	clear(c.writes)
	c.writes = nil

	readers := len(c.reads)
	c.flushReadsLocked()
	c.mu.Unlock()

	if closed || drained+readers > 0 {
		c.logger.Debug("channel closed",
			"channel", c.name,
			"settled", settled+drained,
			"readers", readers,
			"error", err)
	}
	runDoneWriting(callbacks, err)
}

// OnceDoneWriting registers fn to run once the channel is closed for
// writing, receiving the close error. fn runs immediately if the channel is
// already closed. The returned func unregisters fn.
func (c *Channel[T]) OnceDoneWriting(fn func(error)) (undo func()) {
	c.mu.Lock()
	if c.closedWriting {
		err := c.closeErr
		c.mu.Unlock()
		fn(err)
		return func() {}
	}

	cb := &doneWritingCallback{fn: fn}
	c.doneWritingCallbacks = append(c.doneWritingCallbacks, cb)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, pending := range c.doneWritingCallbacks {
			if pending == cb {
				c.doneWritingCallbacks = append(c.doneWritingCallbacks[:i], c.doneWritingCallbacks[i+1:]...)
				return
			}
		}
	}
}

// closeWritingLocked reports how many excess writes it settled, the
// callbacks to run after unlocking, and whether this call closed the
// channel.
func (c *Channel[T]) closeWritingLocked(err error) (int, []*doneWritingCallback, bool) {
	if c.closedWriting {
		return 0, nil, false
	}
	c.closedWriting = true
	c.closeErr = err

	keep := min(c.capacity, len(c.writes))
	excess := c.writes[keep:]
	c.writes = c.writes[:keep:keep]
	for i := len(excess) - 1; i >= 0; i-- {
		c.settleLocked(excess[i], err)
	}
	clear(excess)

	if len(c.writes) == 0 {
		c.flushReadsLocked()
	}

	callbacks := c.doneWritingCallbacks
	c.doneWritingCallbacks = nil
	return len(excess), callbacks, true
}

func runDoneWriting(callbacks []*doneWritingCallback, err error) {
	for _, cb := range callbacks {
		cb.fn(err)
	}
}
