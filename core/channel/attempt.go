package channel

// AttemptKind tags the variant of a select Attempt.
type AttemptKind uint8

const (
	// KindChannel is a plain receive from a channel.
	KindChannel AttemptKind = iota
	// KindRead is a receive followed by a transform.
	KindRead
	// KindWrite is an offered value followed by a transform.
	KindWrite
)

func (k AttemptKind) String() string {
	switch k {
	case KindChannel:
		return "channel"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// locker is a channel as seen by a select holding several channels.
type locker interface {
	lockID() uint64
	lock()
	unlock()
}

type finisher[R any] func() (Result[R], error)

// Attempt is a candidate of a select producing values of type R. It is
// created with Recv, ReadAttempt or WriteAttempt; attempts are immutable
// and may be shared between selections.
//
// Every method except Kind requires the target channel to be locked.
type Attempt[R any] interface {
	Kind() AttemptKind

	target() locker
	// exhausted reports whether the attempt can never become ready again.
	exhausted() bool
	// trySync performs the attempt if it is ready now.
	trySync() (finisher[R], bool)
	// observeDone reports the end of an exhausted attempt's channel, for
	// attempts that want to see it.
	observeDone() (finisher[R], bool)
	// register places a provisional hook resolving w.
	register(w *waiter[R])
	// unregister removes every hook of w still on the channel.
	unregister(w *waiter[R])
}

func received[T any](v T) finisher[T] {
	return func() (Result[T], error) {
		return Result[T]{Value: v, Ok: true}, nil
	}
}

func failed[R any](err error) finisher[R] {
	return func() (Result[R], error) {
		return Result[R]{}, err
	}
}

type recvAttempt[T any] struct {
	ch *Channel[T]
}

// Recv is an attempt receiving the next value of ch.
func Recv[T any](ch *Channel[T]) Attempt[T] {
	return recvAttempt[T]{ch: ch}
}

func (a recvAttempt[T]) Kind() AttemptKind { return KindChannel }
func (a recvAttempt[T]) target() locker    { return a.ch }
func (a recvAttempt[T]) exhausted() bool   { return a.ch.doneLocked() }

func (a recvAttempt[T]) trySync() (finisher[T], bool) {
	v, _, ok := a.ch.consumeLocked()
	if !ok {
		return nil, false
	}
	return received(v), true
}

func (a recvAttempt[T]) register(w *waiter[T]) {
	a.ch.reads = append(a.ch.reads, &pendingRead[T]{
		sel: w,
		deliver: func(v T, _, _ bool) {
			w.commit(received(v))
		},
	})
}

func (a recvAttempt[T]) unregister(w *waiter[T]) {
	a.ch.removeSelectLocked(w)
}

func (a recvAttempt[T]) observeDone() (finisher[T], bool) {
	return nil, false
}

type readAttempt[T, R any] struct {
	ch      *Channel[T]
	perform func(Result[T]) Result[R]
}

// ReadAttempt is an attempt receiving from ch and passing the value to
// perform. perform sees Ok set and Done reporting whether ch is now
// drained. Once ch is done, perform is called one last time per Selection
// with Done set and Ok unset, which makes closed channels usable as
// signals and timeouts.
//
// perform's result decides the outcome of the select: Ok yields a value,
// Done ends the selection, neither discards the value and keeps selecting.
func ReadAttempt[T, R any](ch *Channel[T], perform func(Result[T]) Result[R]) Attempt[R] {
	return readAttempt[T, R]{ch: ch, perform: perform}
}

func (a readAttempt[T, R]) Kind() AttemptKind { return KindRead }
func (a readAttempt[T, R]) target() locker    { return a.ch }
func (a readAttempt[T, R]) exhausted() bool   { return a.ch.doneLocked() }

func (a readAttempt[T, R]) finish(v T, done bool) finisher[R] {
	return func() (Result[R], error) {
		return a.perform(Result[T]{Value: v, Ok: true, Done: done}), nil
	}
}

func (a readAttempt[T, R]) trySync() (finisher[R], bool) {
	v, done, ok := a.ch.consumeLocked()
	if !ok {
		return nil, false
	}
	return a.finish(v, done), true
}

func (a readAttempt[T, R]) register(w *waiter[R]) {
	a.ch.reads = append(a.ch.reads, &pendingRead[T]{
		sel: w,
		deliver: func(v T, _, done bool) {
			w.commit(a.finish(v, done))
		},
	})
}

func (a readAttempt[T, R]) unregister(w *waiter[R]) {
	a.ch.removeSelectLocked(w)
}

func (a readAttempt[T, R]) observeDone() (finisher[R], bool) {
	return func() (Result[R], error) {
		return a.perform(Result[T]{Done: true}), nil
	}, true
}

type writeAttempt[T, R any] struct {
	ch      *Channel[T]
	value   T
	perform func(T) Result[R]
}

// WriteAttempt is an attempt offering value to ch and, once admitted,
// passing it to perform. perform's result is interpreted as for
// ReadAttempt. The attempt is exhausted once ch is closed for writing.
func WriteAttempt[T, R any](ch *Channel[T], value T, perform func(T) Result[R]) Attempt[R] {
	return writeAttempt[T, R]{ch: ch, value: value, perform: perform}
}

func (a writeAttempt[T, R]) Kind() AttemptKind { return KindWrite }
func (a writeAttempt[T, R]) target() locker    { return a.ch }
func (a writeAttempt[T, R]) exhausted() bool   { return a.ch.closedWriting }

func (a writeAttempt[T, R]) finish() (Result[R], error) {
	return a.perform(a.value), nil
}

func (a writeAttempt[T, R]) trySync() (finisher[R], bool) {
	if !a.ch.tryOfferLocked(&pendingWrite[T]{value: a.value}) {
		return nil, false
	}
	return a.finish, true
}

func (a writeAttempt[T, R]) register(w *waiter[R]) {
	a.ch.writes = append(a.ch.writes, &pendingWrite[T]{
		value: a.value,
		sel:   w,
		enqueued: func(err error) {
			if err != nil {
				w.commit(failed[R](err))
				return
			}
			w.commit(a.finish)
		},
	})
}

func (a writeAttempt[T, R]) unregister(w *waiter[R]) {
	a.ch.removeSelectLocked(w)
}

func (a writeAttempt[T, R]) observeDone() (finisher[R], bool) {
	return nil, false
}
