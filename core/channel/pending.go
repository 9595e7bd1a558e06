package channel

// claimer is the select side of a provisional registration. Every hook of
// one pending select shares a claimer; only the first successful claim may
// deliver, the rest are discarded when they reach the head of a queue.
type claimer interface {
	claim() bool
	poke()
}

type pendingWrite[T any] struct {
	value    T
	enqueued func(error)
	consumed func(error)
	admitted bool
	sel      claimer
}

// claim reports whether the write may still be delivered.
func (w *pendingWrite[T]) claim() bool {
	return w.sel == nil || w.sel.claim()
}

func (w *pendingWrite[T]) fireEnqueued(err error) {
	if w.admitted {
		return
	}
	w.admitted = true
	if w.enqueued != nil {
		w.enqueued(err)
	}
}

func (w *pendingWrite[T]) fireConsumed(err error) {
	if w.consumed != nil {
		w.consumed(err)
	}
}

type pendingRead[T any] struct {
	// deliver receives a value (ok) or the end of the channel (!ok).
	// done reports whether the channel is drained after this delivery.
	deliver func(v T, ok, done bool)
	sel     claimer
}

func (r *pendingRead[T]) claim() bool {
	return r.sel == nil || r.sel.claim()
}
