package sources

import (
	"context"

	"github.com/adalundhe/rendezvous/core/channel"
)

// ToChan pumps ch into a native Go channel of the given buffer size. The
// native channel is closed once ch is done or ctx is cancelled.
func ToChan[T any](ctx context.Context, ch *channel.Channel[T], buffer int) <-chan T {
	out := make(chan T, buffer)
	go func() {
		defer close(out)
		for {
			v, err := ch.Read(ctx)
			if err != nil {
				return
			}
			if err := sendNative(ctx, out, v); err != nil {
				return
			}
		}
	}()
	return out
}

// sendNative sends on a native channel, respecting ctx.
func sendNative[T any](ctx context.Context, ch chan<- T, value T) error {
	select {
	case ch <- value:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recvNative receives from a native channel, respecting ctx. A closed
// channel reports channel.ErrChannelClosed.
func recvNative[T any](ctx context.Context, ch <-chan T) (T, error) {
	select {
	case v, ok := <-ch:
		if !ok {
			var zero T
			return zero, channel.ErrChannelClosed
		}
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
