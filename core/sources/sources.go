// Package sources adapts producers to channels: sequences, native Go
// channels and timers.
package sources

import (
	"context"
	"iter"
	"time"

	"github.com/adalundhe/rendezvous/core/channel"
)

// FromSeq returns a channel fed from seq by a producer goroutine. The
// producer stops early when the channel is closed for writing or ctx is
// cancelled, and always finishes with CloseWriting.
func FromSeq[T any](ctx context.Context, seq iter.Seq[T], capacity int, opts ...channel.Option) *channel.Channel[T] {
	ch := channel.New[T](capacity, opts...)
	go func() {
		defer ch.CloseWriting()
		for v := range seq {
			if ch.DoneWriting() {
				return
			}
			if err := ch.Write(ctx, v); err != nil {
				return
			}
		}
	}()
	return ch
}

// FromSlice returns a channel producing values in order.
func FromSlice[T any](ctx context.Context, values []T, capacity int, opts ...channel.Option) *channel.Channel[T] {
	return FromSeq(ctx, func(yield func(T) bool) {
		for _, v := range values {
			if !yield(v) {
				return
			}
		}
	}, capacity, opts...)
}

// FromChan returns a channel producing what src produces until src is
// closed.
func FromChan[T any](ctx context.Context, src <-chan T, capacity int, opts ...channel.Option) *channel.Channel[T] {
	return FromSeq(ctx, func(yield func(T) bool) {
		for {
			v, err := recvNative(ctx, src)
			if err != nil || !yield(v) {
				return
			}
		}
	}, capacity, opts...)
}

// After returns an unbuffered channel that is closed for writing once d
// has elapsed. Closing it earlier stops the timer.
func After(d time.Duration, opts ...channel.Option) *channel.Channel[struct{}] {
	ch := channel.New[struct{}](0, opts...)
	timer := time.AfterFunc(d, ch.CloseWriting)
	ch.OnceDoneWriting(func(error) {
		timer.Stop()
	})
	return ch
}

// Collect reads ch until it is done.
func Collect[T any](ctx context.Context, ch *channel.Channel[T]) ([]T, error) {
	var values []T
	for {
		result, err := ch.Next(ctx)
		if err != nil {
			return values, err
		}
		if !result.Ok {
			return values, nil
		}
		values = append(values, result.Value)
	}
}
