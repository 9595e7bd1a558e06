package channel

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync/atomic"
)

const (
	waiterPending int32 = iota
	waiterClaimed
	waiterCancelled
)

// waiter is shared by all hooks one select round registers. The first hook
// to claim it commits the select; poke wakes the select to re-evaluate
// without committing, as when a channel closes underneath it.
type waiter[R any] struct {
	state  atomic.Int32
	ready  chan struct{}
	poked  chan struct{}
	finish finisher[R]
}

func newWaiter[R any]() *waiter[R] {
	return &waiter[R]{
		ready: make(chan struct{}),
		poked: make(chan struct{}, 1),
	}
}

func (w *waiter[R]) claim() bool {
	return w.state.CompareAndSwap(waiterPending, waiterClaimed)
}

func (w *waiter[R]) cancel() bool {
	return w.state.CompareAndSwap(waiterPending, waiterCancelled)
}

func (w *waiter[R]) poke() {
	select {
	case w.poked <- struct{}{}:
	default:
	}
}

// commit is called once, by the claimant, under its channel's lock.
func (w *waiter[R]) commit(f finisher[R]) {
	w.finish = f
	close(w.ready)
}

// SelectOption configures a Selection.
type SelectOption func(*selectOptions)

type selectOptions struct {
	rand Rand
}

// WithRand sets the randomness used to pick among ready attempts.
func WithRand(r Rand) SelectOption {
	return func(o *selectOptions) {
		o.rand = r
	}
}

// Selection repeatedly selects among a fixed set of attempts. Each call to
// Next commits to exactly one attempt. A Selection is not safe for
// concurrent use; concurrent workers each create their own over the same
// attempts.
type Selection[R any] struct {
	attempts []Attempt[R]
	order    []int
	observed []bool
	locks    []locker
	rand     Rand

	done bool
	err  error
}

// Select creates a Selection over attempts.
func Select[R any](attempts ...Attempt[R]) *Selection[R] {
	return NewSelection(attempts)
}

// NewSelection creates a Selection over attempts with options.
func NewSelection[R any](attempts []Attempt[R], opts ...SelectOption) *Selection[R] {
	o := selectOptions{rand: globalRand{}}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Selection[R]{
		attempts: slices.Clone(attempts),
		order:    make([]int, len(attempts)),
		observed: make([]bool, len(attempts)),
		rand:     o.rand,
	}
	for i := range s.order {
		s.order[i] = i
	}

	seen := make(map[uint64]bool, len(attempts))
	for _, a := range attempts {
		l := a.target()
		if seen[l.lockID()] {
			continue
		}
		seen[l.lockID()] = true
		s.locks = append(s.locks, l)
	}
	slices.SortFunc(s.locks, func(a, b locker) int {
		return cmp.Compare(a.lockID(), b.lockID())
	})
	return s
}

// SelectNext performs a single select over attempts.
func SelectNext[R any](ctx context.Context, attempts ...Attempt[R]) (Result[R], error) {
	return Select(attempts...).Next(ctx)
}

// Next commits to one attempt, waiting until one is ready. It returns a
// Result with Done set once every attempt is exhausted or an attempt's
// transform ended the selection; after that it never yields a value again.
//
// Errors are ctx.Err(), returned after every provisional registration has
// been withdrawn, and close errors settling a write attempt.
func (s *Selection[R]) Next(ctx context.Context) (Result[R], error) {
	for !s.done {
		result, retry, err := s.round(ctx)
		if err != nil {
			return Result[R]{}, err
		}
		if retry {
			continue
		}
		if result.Done {
			s.done = true
		}
		if result.Ok || result.Done {
			return result, nil
		}
	}
	return Result[R]{Done: true}, nil
}

// All returns the selected values as a sequence ending when the selection
// is done or fails. The failure is available from Err.
func (s *Selection[R]) All(ctx context.Context) iter.Seq[R] {
	return func(yield func(R) bool) {
		for {
			result, err := s.Next(ctx)
			if err != nil {
				s.err = err
				return
			}
			if result.Ok && !yield(result.Value) {
				return
			}
			if result.Done {
				return
			}
		}
	}
}

// Err returns the error that ended the last All iteration.
func (s *Selection[R]) Err() error {
	return s.err
}

// round runs one synchronous scan and, if nothing was ready, one
// registration. retry reports that the select woke without committing.
func (s *Selection[R]) round(ctx context.Context) (result Result[R], retry bool, err error) {
	if err := ctx.Err(); err != nil {
		return result, false, err
	}

	s.lockAll()
	if finish, ok := s.scanLocked(); ok {
		s.unlockAll()
		result, err = finish()
		return result, false, err
	}
	if s.exhaustedLocked() {
		s.unlockAll()
		return Result[R]{Done: true}, false, nil
	}

	w := newWaiter[R]()
	for _, a := range s.attempts {
		if !a.exhausted() {
			a.register(w)
		}
	}
	s.unlockAll()

	select {
	case <-w.ready:
	case <-w.poked:
	case <-ctx.Done():
	}

	s.lockAll()
	for _, a := range s.attempts {
		a.unregister(w)
	}
	s.unlockAll()

	if w.cancel() {
		if err := ctx.Err(); err != nil {
			return result, false, err
		}
		return result, true, nil
	}

	<-w.ready
	result, err = w.finish()
	return result, false, err
}

// scanLocked visits the attempts in a fresh uniformly random order,
// shuffling in place as it goes, and performs the first ready one. An
// exhausted attempt that observes its channel's end is ready once.
func (s *Selection[R]) scanLocked() (finisher[R], bool) {
	n := len(s.order)
	for i := 0; i < n; i++ {
		j := i + s.rand.IntN(n-i)
		s.order[i], s.order[j] = s.order[j], s.order[i]

		idx := s.order[i]
		a := s.attempts[idx]
		if a.exhausted() {
			if s.observed[idx] {
				continue
			}
			if finish, ok := a.observeDone(); ok {
				s.observed[idx] = true
				return finish, true
			}
			continue
		}
		if finish, ok := a.trySync(); ok {
			return finish, true
		}
	}
	return nil, false
}

// exhaustedLocked must run right after a scan that found nothing ready, so
// every pending end observation has already been delivered.
func (s *Selection[R]) exhaustedLocked() bool {
	for _, a := range s.attempts {
		if !a.exhausted() {
			return false
		}
	}
	return true
}

func (s *Selection[R]) lockAll() {
	for _, l := range s.locks {
		l.lock()
	}
}

func (s *Selection[R]) unlockAll() {
	for i := len(s.locks) - 1; i >= 0; i-- {
		s.locks[i].unlock()
	}
}
