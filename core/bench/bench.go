// Package bench runs a select fairness workload: producers feed a set of
// channels while workers compete for their values through Select.
package bench

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/adalundhe/rendezvous/core/channel"
	"github.com/adalundhe/rendezvous/core/config"
	"github.com/adalundhe/rendezvous/core/metrics"
	"github.com/adalundhe/rendezvous/core/sources"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInvalidOptions = errors.New("invalid bench options")
	ErrDelivery       = errors.New("delivery mismatch")
)

// Item is one produced value: the producing channel and its sequence number.
type Item struct {
	Channel int
	Seq     int
}

type Options struct {
	Workers  int
	Channels int
	Values   int // per channel
	Capacity int
	Rate     float64 // values per second per producer, 0 is unlimited
	Seed     uint64  // 0 picks a random seed
	Timeout  time.Duration

	Logger    *slog.Logger
	Collector *metrics.Collector // optional, receives every bench channel
}

// OptionsFromConfig converts the bench section of a config.
func OptionsFromConfig(cfg config.BenchConfig) Options {
	return Options{
		Workers:  cfg.Workers,
		Channels: cfg.Channels,
		Values:   cfg.Values,
		Capacity: cfg.Capacity,
		Rate:     cfg.Rate,
		Seed:     cfg.Seed,
		Timeout:  cfg.Timeout,
	}
}

func (o Options) validate() error {
	if o.Workers < 1 || o.Channels < 1 {
		return fmt.Errorf("%w: need at least one worker and one channel", ErrInvalidOptions)
	}
	if o.Values < 0 || o.Capacity < 0 || o.Rate < 0 {
		return fmt.Errorf("%w: values, capacity and rate must not be negative", ErrInvalidOptions)
	}
	return nil
}

type Report struct {
	RunID      string        `json:"run_id"`
	Seed       uint64        `json:"seed"`
	Workers    int           `json:"workers"`
	Channels   int           `json:"channels"`
	Capacity   int           `json:"capacity"`
	Expected   int           `json:"expected"`
	Delivered  int           `json:"delivered"`
	Duplicates int           `json:"duplicates"`
	Missing    int           `json:"missing"`
	PerWorker  []int         `json:"per_worker"`
	PerChannel []int         `json:"per_channel"`
	Mean       float64       `json:"mean"`
	StdDev     float64       `json:"stddev"`
	Spread     float64       `json:"spread"` // StdDev / Mean
	Starved    int           `json:"starved"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Run executes one bench. The report is returned even when err is non-nil,
// covering whatever was delivered before the failure.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Seed == 0 {
		opts.Seed = rand.Uint64()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	logger := opts.Logger.With("run", runID)
	logger.Info("bench starting",
		"workers", opts.Workers,
		"channels", opts.Channels,
		"values", opts.Values,
		"capacity", opts.Capacity,
		"seed", opts.Seed,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chans := make([]*channel.Channel[Item], opts.Channels)
	attempts := make([]channel.Attempt[Item], opts.Channels)
	for i := range chans {
		chans[i] = sources.FromSeq(ctx, produce(ctx, i, opts.Values, opts.Rate), opts.Capacity,
			channel.WithName(fmt.Sprintf("bench-%d", i)),
			channel.WithLogger(logger),
		)
		attempts[i] = channel.Recv(chans[i])
		if opts.Collector != nil {
			opts.Collector.Register(chans[i])
		}
	}
	defer func() {
		for _, ch := range chans {
			ch.Close()
			if opts.Collector != nil {
				opts.Collector.Unregister(ch.Name())
			}
		}
	}()

	start := time.Now()
	received := make([][]Item, opts.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := range opts.Workers {
		g.Go(func() error {
			sel := channel.NewSelection(attempts,
				channel.WithRand(rand.New(rand.NewPCG(opts.Seed, uint64(w)))))
			for item := range sel.All(gctx) {
				received[w] = append(received[w], item)
			}
			if err := sel.Err(); err != nil {
				return fmt.Errorf("worker %d: %w", w, err)
			}
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		// Producers cut short by a deadline still close their channels.
		runErr = ctx.Err()
	}

	report := summarize(runID, opts, received)
	report.Elapsed = time.Since(start)

	if runErr != nil {
		logger.Warn("bench aborted", "error", runErr, "delivered", report.Delivered)
		return report, fmt.Errorf("bench run %s: %w", runID, runErr)
	}
	if report.Duplicates > 0 || report.Missing > 0 {
		return report, fmt.Errorf("bench run %s: %w: %d duplicates, %d missing",
			runID, ErrDelivery, report.Duplicates, report.Missing)
	}

	logger.Info("bench finished",
		"delivered", report.Delivered,
		"mean", report.Mean,
		"stddev", report.StdDev,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// produce yields the sequence numbers for channel id, waiting on a limiter
// between values when perSecond is positive.
func produce(ctx context.Context, id, n int, perSecond float64) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		var limiter *rate.Limiter
		if perSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
		for seq := range n {
			if limiter != nil && !wait(ctx, limiter) {
				return
			}
			if !yield(Item{Channel: id, Seq: seq}) {
				return
			}
		}
	}
}

// wait blocks for the next limiter token. Unlike Limiter.Wait it holds on
// until ctx is actually done rather than failing early at a deadline.
func wait(ctx context.Context, limiter *rate.Limiter) bool {
	r := limiter.Reserve()
	timer := time.NewTimer(r.Delay())
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		r.Cancel()
		return false
	}
}

func summarize(runID string, opts Options, received [][]Item) *Report {
	r := &Report{
		RunID:      runID,
		Seed:       opts.Seed,
		Workers:    opts.Workers,
		Channels:   opts.Channels,
		Capacity:   opts.Capacity,
		Expected:   opts.Channels * opts.Values,
		PerWorker:  make([]int, opts.Workers),
		PerChannel: make([]int, opts.Channels),
	}

	seen := make([][]bool, opts.Channels)
	for i := range seen {
		seen[i] = make([]bool, opts.Values)
	}

	counts := make([]float64, opts.Workers)
	for w, items := range received {
		r.PerWorker[w] = len(items)
		counts[w] = float64(len(items))
		for _, it := range items {
			r.Delivered++
			r.PerChannel[it.Channel]++
			if seen[it.Channel][it.Seq] {
				r.Duplicates++
				continue
			}
			seen[it.Channel][it.Seq] = true
		}
	}

	for _, row := range seen {
		for _, ok := range row {
			if !ok {
				r.Missing++
			}
		}
	}

	r.Mean, r.StdDev = stat.Mean(counts, nil), 0
	if len(counts) > 1 {
		r.StdDev = stat.StdDev(counts, nil)
	}
	if r.Mean > 0 {
		r.Spread = r.StdDev / r.Mean
	}
	for _, n := range r.PerWorker {
		if n == 0 {
			r.Starved++
		}
	}
	return r
}
