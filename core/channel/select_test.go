package channel

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstReady keeps attempts in argument order.
type firstReady struct{}

func (firstReady) IntN(int) int { return 0 }

func TestSelect_ExactlyOnceAcrossTwoChannels(t *testing.T) {
	ctx := testContext(t)
	orders := map[string]int{}

	for trial := 0; trial < 200; trial++ {
		a := New[string](1)
		b := New[string](1)
		require.NoError(t, a.Write(ctx, "a"))
		require.NoError(t, b.Write(ctx, "b"))

		first, err := SelectNext(ctx, Recv(a), Recv(b))
		require.NoError(t, err)
		second, err := SelectNext(ctx, Recv(a), Recv(b))
		require.NoError(t, err)

		require.True(t, first.Ok)
		require.True(t, second.Ok)
		require.NotEqual(t, first.Value, second.Value)
		orders[first.Value+second.Value]++
	}

	assert.Positive(t, orders["ab"])
	assert.Positive(t, orders["ba"])
}

func TestSelect_InjectedRandIsDeterministic(t *testing.T) {
	ctx := testContext(t)
	a := New[int](1)
	b := New[int](1)
	require.NoError(t, a.Write(ctx, 1))
	require.NoError(t, b.Write(ctx, 2))

	s := NewSelection([]Attempt[int]{Recv(b), Recv(a)}, WithRand(firstReady{}))
	result, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Value)
}

func TestSelect_FairAmongReadyChannels(t *testing.T) {
	ctx := testContext(t)
	const n = 1000
	a := New[string](n)
	b := New[string](n)
	for i := 0; i < n; i++ {
		require.NoError(t, a.Write(ctx, "a"))
		require.NoError(t, b.Write(ctx, "b"))
	}

	s := NewSelection([]Attempt[string]{Recv(a), Recv(b)}, WithRand(rand.New(rand.NewPCG(1, 2))))
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		result, err := s.Next(ctx)
		require.NoError(t, err)
		counts[result.Value]++
	}

	assert.Greater(t, counts["a"], n*35/100)
	assert.Greater(t, counts["b"], n*35/100)
}

func TestSelect_WaitsAndRollsBackLosers(t *testing.T) {
	ctx := testContext(t)
	a := New[int](0)
	b := New[int](0)

	results := make(chan Result[int], 1)
	go func() {
		result, _ := SelectNext(ctx, Recv(a), Recv(b))
		results <- result
	}()
	require.Eventually(t, func() bool {
		return a.PendingReads() == 1 && b.PendingReads() == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, b.Write(ctx, 42))

	select {
	case result := <-results:
		assert.Equal(t, Result[int]{Value: 42, Ok: true}, result)
	case <-time.After(time.Second):
		t.Fatal("select did not commit")
	}
	require.Eventually(t, func() bool { return a.PendingReads() == 0 }, time.Second, time.Millisecond)
	assert.False(t, a.TryWrite(1), "losing registration must be gone")
}

func TestSelect_WriteAttemptSync(t *testing.T) {
	ctx := testContext(t)
	ch := New[int](1)

	result, err := SelectNext(ctx, WriteAttempt(ch, 9, func(v int) Result[string] {
		return Result[string]{Value: "sent", Ok: true}
	}))
	require.NoError(t, err)
	assert.Equal(t, "sent", result.Value)

	v, err := ch.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestSelect_WriteAttemptRendezvous(t *testing.T) {
	ctx := testContext(t)
	ch := New[int](0)

	results := make(chan Result[int], 1)
	go func() {
		result, _ := SelectNext(ctx, WriteAttempt(ch, 5, func(v int) Result[int] {
			return Result[int]{Value: v * 10, Ok: true}
		}))
		results <- result
	}()
	require.Eventually(t, func() bool { return ch.PendingWrites() == 1 }, time.Second, time.Millisecond)

	v, err := ch.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, 50, (<-results).Value)
}

func TestSelect_WriteAttemptWaitsForSlot(t *testing.T) {
	ctx := testContext(t)
	ch := New[int](1)
	require.NoError(t, ch.Write(ctx, 1))

	results := make(chan Result[int], 1)
	go func() {
		result, _ := SelectNext(ctx, WriteAttempt(ch, 2, func(v int) Result[int] {
			return Result[int]{Value: v, Ok: true}
		}))
		results <- result
	}()
	require.Eventually(t, func() bool { return ch.PendingWrites() == 2 }, time.Second, time.Millisecond)

	v, err := ch.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, (<-results).Value)

	v, err = ch.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSelect_MixedReadAndWrite(t *testing.T) {
	ctx := testContext(t)
	in := New[int](0)
	out := New[int](0)

	results := make(chan Result[string], 1)
	go func() {
		result, _ := SelectNext(ctx,
			ReadAttempt(in, func(r Result[int]) Result[string] {
				return Result[string]{Value: "read", Ok: true}
			}),
			WriteAttempt(out, 1, func(int) Result[string] {
				return Result[string]{Value: "wrote", Ok: true}
			}),
		)
		results <- result
	}()
	require.Eventually(t, func() bool {
		return in.PendingReads() == 1 && out.PendingWrites() == 1
	}, time.Second, time.Millisecond)

	v, err := out.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, "wrote", (<-results).Value)

	require.Eventually(t, func() bool { return in.PendingReads() == 0 }, time.Second, time.Millisecond)
}

func TestSelect_ExhaustedChannels(t *testing.T) {
	ctx := testContext(t)
	a := New[int](0)
	b := New[int](0)
	a.CloseWriting()
	b.Close()

	result, err := SelectNext(ctx, Recv(a), Recv(b))
	require.NoError(t, err)
	assert.True(t, result.Done)

	empty, err := SelectNext[int](ctx)
	require.NoError(t, err)
	assert.True(t, empty.Done)
}

func TestSelect_ExhaustedWhileWaiting(t *testing.T) {
	ctx := testContext(t)
	a := New[int](0)
	b := New[int](0)

	results := make(chan Result[int], 1)
	go func() {
		result, _ := SelectNext(ctx, Recv(a), Recv(b))
		results <- result
	}()
	require.Eventually(t, func() bool {
		return a.PendingReads() == 1 && b.PendingReads() == 1
	}, time.Second, time.Millisecond)

	a.CloseWriting()
	require.Eventually(t, func() bool { return b.PendingReads() == 1 }, time.Second, time.Millisecond)
	b.Close()

	select {
	case result := <-results:
		assert.True(t, result.Done)
	case <-time.After(time.Second):
		t.Fatal("select did not resolve as exhausted")
	}
}

func TestSelect_ContinuesAfterOneChannelCloses(t *testing.T) {
	ctx := testContext(t)
	a := New[int](0)
	b := New[int](0)

	results := make(chan Result[int], 1)
	go func() {
		result, _ := SelectNext(ctx, Recv(a), Recv(b))
		results <- result
	}()
	require.Eventually(t, func() bool { return a.PendingReads() == 1 }, time.Second, time.Millisecond)

	a.Close()
	require.NoError(t, b.Write(ctx, 3))
	assert.Equal(t, Result[int]{Value: 3, Ok: true}, <-results)
}

func TestSelect_ContextCancel(t *testing.T) {
	a := New[int](0)
	b := New[int](0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := SelectNext(ctx, Recv(a), WriteAttempt(b, 1, func(int) Result[int] { return Result[int]{Ok: true} }))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, a.PendingReads())
	assert.Equal(t, 0, b.PendingWrites())
}

func TestSelect_WriteAttemptCloseError(t *testing.T) {
	ctx := testContext(t)
	ch := New[int](0)

	errs := make(chan error, 1)
	go func() {
		_, err := SelectNext(ctx, WriteAttempt(ch, 1, func(int) Result[int] { return Result[int]{Ok: true} }))
		errs <- err
	}()
	require.Eventually(t, func() bool { return ch.PendingWrites() == 1 }, time.Second, time.Millisecond)

	ch.CloseWritingWithError(errShutdown)
	assert.ErrorIs(t, requireSignal(t, errs), errShutdown)
}

func TestSelect_ReadAttemptFilters(t *testing.T) {
	ctx := testContext(t)
	ch := New[int](8)
	for i := 1; i <= 6; i++ {
		require.NoError(t, ch.Write(ctx, i))
	}
	ch.CloseWriting()

	evens := Select(ReadAttempt(ch, func(r Result[int]) Result[int] {
		if !r.Ok {
			return Result[int]{Done: true}
		}
		return Result[int]{Value: r.Value, Ok: r.Value%2 == 0}
	}))

	var got []int
	for v := range evens.All(ctx) {
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 4, 6}, got)
	assert.NoError(t, evens.Err())
}

func TestSelect_ReadAttemptObservesClose(t *testing.T) {
	ctx := testContext(t)
	signal := New[struct{}](0)
	data := New[int](0)

	s := Select(
		Recv(data),
		ReadAttempt(signal, func(r Result[struct{}]) Result[int] {
			return Result[int]{Value: -1, Ok: r.Done}
		}),
	)

	results := make(chan Result[int], 1)
	go func() {
		result, _ := s.Next(ctx)
		results <- result
	}()
	require.Eventually(t, func() bool { return signal.PendingReads() == 1 }, time.Second, time.Millisecond)

	signal.CloseWriting()
	select {
	case result := <-results:
		assert.Equal(t, Result[int]{Value: -1, Ok: true}, result)
	case <-time.After(time.Second):
		t.Fatal("closing the signal channel did not resolve the select")
	}

	data.CloseWriting()
	result, err := s.Next(ctx)
	require.NoError(t, err)
	assert.True(t, result.Done, "the close is observed once per selection")
}

func TestSelect_TransformDoneEndsSelection(t *testing.T) {
	ctx := testContext(t)
	ch := New[int](4)
	for i := 0; i < 4; i++ {
		require.NoError(t, ch.Write(ctx, i))
	}

	s := Select(ReadAttempt(ch, func(r Result[int]) Result[int] {
		return Result[int]{Value: r.Value, Ok: true, Done: r.Value == 1}
	}))

	var got []int
	for v := range s.All(ctx) {
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1}, got)

	result, err := s.Next(ctx)
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 2, ch.PendingWrites())
}

func TestSelect_AllDrainsClosingChannels(t *testing.T) {
	ctx := testContext(t)
	chans := []*Channel[int]{New[int](0), New[int](2), New[int](5)}

	for i, ch := range chans {
		go func(i int, ch *Channel[int]) {
			for j := 0; j < 50; j++ {
				_ = ch.Write(ctx, i*100+j)
			}
			ch.CloseWriting()
		}(i, ch)
	}

	attempts := make([]Attempt[int], len(chans))
	for i, ch := range chans {
		attempts[i] = Recv(ch)
	}

	seen := map[int]bool{}
	s := Select(attempts...)
	for v := range s.All(ctx) {
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
	assert.NoError(t, s.Err())
	assert.Len(t, seen, 150)
}

func TestSelect_ConcurrentWorkersExactlyOnce(t *testing.T) {
	ctx := testContext(t)
	const channels, workers, perChannel = 4, 6, 500

	chans := make([]*Channel[int], channels)
	attempts := make([]Attempt[int], channels)
	for i := range chans {
		chans[i] = New[int](i % 2)
		attempts[i] = Recv(chans[i])
	}

	for i, ch := range chans {
		go func(i int, ch *Channel[int]) {
			for j := 0; j < perChannel; j++ {
				_ = ch.Write(ctx, i*perChannel+j)
			}
			ch.CloseWriting()
		}(i, ch)
	}

	var mu sync.Mutex
	seen := make(map[int]int)
	perWorker := make([]int, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for v := range Select(attempts...).All(ctx) {
				mu.Lock()
				seen[v]++
				perWorker[w]++
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, seen, channels*perChannel)
	for v, n := range seen {
		assert.Equal(t, 1, n, "value %d delivered %d times", v, n)
	}
	for w, n := range perWorker {
		assert.Positive(t, n, "worker %d starved", w)
	}
}

func TestAttemptKind(t *testing.T) {
	ch := New[int](0)
	identity := func(v int) Result[int] { return Result[int]{Value: v, Ok: true} }

	assert.Equal(t, KindChannel, Recv(ch).Kind())
	assert.Equal(t, KindRead, ReadAttempt(ch, func(r Result[int]) Result[int] { return r }).Kind())
	assert.Equal(t, KindWrite, WriteAttempt(ch, 1, identity).Kind())
	assert.Equal(t, "write", KindWrite.String())
	assert.Equal(t, "unknown", AttemptKind(9).String())
}
