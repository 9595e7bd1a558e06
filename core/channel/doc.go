// Package channel provides typed CSP channels with two-phase close and a
// fair, dynamically sized select.
//
// A Channel buffers up to its capacity of values between producers and
// consumers. Capacity 0 makes every write a rendezvous with a reader.
// Closing is split in two: CloseWriting stops new writes and lets buffered
// values drain, Close discards everything and wakes every waiter.
//
// Select commits to exactly one ready attempt among several channels, read
// intents and write intents. Ready attempts are picked uniformly at random
// so no candidate is starved by argument order.
//
// All operations are safe for concurrent use. Blocking operations take a
// context and withdraw their registration when it is cancelled.
package channel
