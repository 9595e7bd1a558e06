package channel

// Queue primitives shared by read, write, close and select. Every function
// here requires c.mu to be held.

// popReadLocked removes and returns the oldest reader that can still be
// delivered to. Select hooks whose select already committed elsewhere are
// dropped on the way.
func (c *Channel[T]) popReadLocked() *pendingRead[T] {
	for len(c.reads) > 0 {
		r := c.reads[0]
		c.reads[0] = nil
		c.reads = c.reads[1:]
		if r.claim() {
			return r
		}
	}
	return nil
}

func (c *Channel[T]) shiftWriteLocked() {
	c.writes[0] = nil
	c.writes = c.writes[1:]
}

func (c *Channel[T]) admitLocked(w *pendingWrite[T]) {
	if w.admitted {
		return
	}
	c.written.Add(1)
	w.fireEnqueued(nil)
}

// consumeLocked pops the oldest pending write and hands its value to the
// caller. An unbuffered writer is released on consumption; for buffered
// channels the write now sitting at the capacity boundary is admitted.
func (c *Channel[T]) consumeLocked() (v T, done, ok bool) {
	for len(c.writes) > 0 {
		w := c.writes[0]
		if c.capacity == 0 && !w.claim() {
			c.shiftWriteLocked()
			continue
		}
		c.shiftWriteLocked()

		if c.capacity == 0 {
			c.admitLocked(w)
		} else {
			c.promoteLocked()
		}
		w.fireConsumed(nil)
		c.read.Add(1)
		return w.value, c.doneLocked(), true
	}
	return v, false, false
}

// promoteLocked admits the write occupying the last buffer slot, if it is
// still waiting. A select write whose select committed elsewhere is removed
// instead and the next one is tried.
func (c *Channel[T]) promoteLocked() {
	for c.capacity > 0 && len(c.writes) >= c.capacity {
		i := c.capacity - 1
		w := c.writes[i]
		if w.admitted {
			return
		}
		if !w.claim() {
			c.writes = append(c.writes[:i], c.writes[i+1:]...)
			continue
		}
		c.admitLocked(w)
		return
	}
}

// tryOfferLocked admits w if that is possible without waiting: a waiting
// reader on an unbuffered channel, or a free buffer slot. It reports
// whether w was admitted. The caller checks closedWriting.
func (c *Channel[T]) tryOfferLocked(w *pendingWrite[T]) bool {
	if c.capacity == 0 {
		r := c.popReadLocked()
		if r == nil {
			return false
		}
		r.deliver(w.value, true, c.doneLocked())
		c.admitLocked(w)
		w.fireConsumed(nil)
		c.read.Add(1)
		return true
	}

	if len(c.writes) >= c.capacity {
		return false
	}
	c.writes = append(c.writes, w)
	c.admitLocked(w)
	c.matchLocked()
	return true
}

// matchLocked pairs waiting readers with buffered values.
func (c *Channel[T]) matchLocked() {
	for len(c.reads) > 0 && len(c.writes) > 0 {
		r := c.popReadLocked()
		if r == nil {
			return
		}
		v, done, ok := c.consumeLocked()
		invariant(ok, c.name, "match", "claimed a reader with no write to consume")
		r.deliver(v, true, done)
	}
}

// settleLocked resolves a write the channel will never deliver. Select
// hooks that are merely woken, or whose select already committed
// elsewhere, are not counted as settled.
func (c *Channel[T]) settleLocked(w *pendingWrite[T], err error) {
	if w.admitted {
		c.settled.Add(1)
		w.fireConsumed(err)
		return
	}
	if w.sel != nil {
		// A select is only resolved by an error; a clean close makes it
		// re-evaluate its attempts instead.
		if err != nil && w.sel.claim() {
			c.settled.Add(1)
			w.fireEnqueued(err)
			return
		}
		w.sel.poke()
		return
	}
	c.settled.Add(1)
	w.fireEnqueued(err)
	w.fireConsumed(err)
}

// flushReadsLocked ends every pending read. Only valid once the channel is
// done.
func (c *Channel[T]) flushReadsLocked() {
	reads := c.reads
	c.reads = nil
	var zero T
	for _, r := range reads {
		if r.sel != nil {
			r.sel.poke()
			continue
		}
		r.deliver(zero, false, true)
	}
}

func (c *Channel[T]) removeReadLocked(r *pendingRead[T]) bool {
	for i, pending := range c.reads {
		if pending == r {
			c.reads = append(c.reads[:i], c.reads[i+1:]...)
			return true
		}
	}
	return false
}

// removeWriteLocked withdraws w if it has not been admitted yet.
func (c *Channel[T]) removeWriteLocked(w *pendingWrite[T]) bool {
	if w.admitted {
		return false
	}
	for i, pending := range c.writes {
		if pending == w {
			c.writes = append(c.writes[:i], c.writes[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Channel[T]) removeSelectLocked(sel claimer) {
	reads := c.reads[:0]
	for _, r := range c.reads {
		if r.sel != sel {
			reads = append(reads, r)
		}
	}
	clear(c.reads[len(reads):])
	c.reads = reads

	writes := c.writes[:0]
	for _, w := range c.writes {
		if w.sel != sel || w.admitted {
			writes = append(writes, w)
		}
	}
	clear(c.writes[len(writes):])
	c.writes = writes
}
