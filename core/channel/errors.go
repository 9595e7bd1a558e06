package channel

import (
	"errors"
	"fmt"
)

// ErrChannelClosed is returned by writes against a channel closed for
// writing and by strict reads against a channel that is done.
var ErrChannelClosed = errors.New("channel closed")

// InvariantViolationError reports an internal inconsistency in a channel's
// queues. It is raised as a panic and is never the result of misuse of the
// public API.
type InvariantViolationError struct {
	Channel string
	Op      string
	Detail  string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("channel %s: invariant violated in %s: %s", e.Channel, e.Op, e.Detail)
}

func invariant(cond bool, channel, op, detail string) {
	if !cond {
		panic(&InvariantViolationError{Channel: channel, Op: op, Detail: detail})
	}
}
