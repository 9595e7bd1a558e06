package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adalundhe/rendezvous/core/bench"
	"github.com/adalundhe/rendezvous/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// =============================================================================
// Output Colors
// =============================================================================

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "rendezvous"

// =============================================================================
// Bench Command Flags
// =============================================================================

var (
	benchWorkers     int
	benchChannels    int
	benchValues      int
	benchCapacity    int
	benchRate        float64
	benchSeed        uint64
	benchTimeout     time.Duration
	benchJSON        bool
	benchMetricsAddr string
)

// =============================================================================
// Bench Command
// =============================================================================

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the select fairness bench",
	Long: `Run producers over a set of channels while workers compete for values
through a fair select, then report per-worker delivery counts.

Every flag defaults to the config file and RENDEZVOUS_BENCH_* environment.

Examples:
  rendezvous bench                              # Defaults
  rendezvous bench --workers 8 --capacity 16    # Buffered channels
  rendezvous bench --rate 500 --json            # Throttled producers, JSON report
  rendezvous bench --metrics-addr :9090         # Serve /metrics while running`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	flags := benchCmd.Flags()
	flags.IntVarP(&benchWorkers, "workers", "w", 0, "Number of competing workers")
	flags.IntVarP(&benchChannels, "channels", "c", 0, "Number of producer channels")
	flags.IntVarP(&benchValues, "values", "n", 0, "Values produced per channel")
	flags.IntVar(&benchCapacity, "capacity", 0, "Channel capacity (0 is rendezvous)")
	flags.Float64Var(&benchRate, "rate", 0, "Values per second per producer (0 is unlimited)")
	flags.Uint64Var(&benchSeed, "seed", 0, "Seed for select randomness (0 is random)")
	flags.DurationVar(&benchTimeout, "timeout", 0, "Abort the run after this long")
	flags.BoolVar(&benchJSON, "json", false, "Output as JSON")
	flags.StringVar(&benchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

// benchOptions layers changed flags over the loaded config.
func benchOptions(cmd *cobra.Command) (bench.Options, string) {
	cfg := cfgManager.Get()
	opts := bench.OptionsFromConfig(cfg.Bench)
	addr := cfg.Metrics.Addr

	flags := cmd.Flags()
	if flags.Changed("workers") {
		opts.Workers = benchWorkers
	}
	if flags.Changed("channels") {
		opts.Channels = benchChannels
	}
	if flags.Changed("values") {
		opts.Values = benchValues
	}
	if flags.Changed("capacity") {
		opts.Capacity = benchCapacity
	}
	if flags.Changed("rate") {
		opts.Rate = benchRate
	}
	if flags.Changed("seed") {
		opts.Seed = benchSeed
	}
	if flags.Changed("timeout") {
		opts.Timeout = benchTimeout
	}
	if flags.Changed("metrics-addr") {
		addr = benchMetricsAddr
	}
	return opts, addr
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, addr := benchOptions(cmd)
	opts.Logger = slog.Default()

	if addr != "" {
		opts.Collector = metrics.NewCollector(MetricsNamespace)
		srv, bound, err := startMetricsServer(addr, opts.Collector)
		if err != nil {
			return err
		}
		opts.Logger.Info("serving metrics", "addr", bound)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	report, err := bench.Run(ctx, opts)
	if report != nil {
		var outErr error
		if benchJSON {
			outErr = outputJSONReport(cmd.OutOrStdout(), report)
		} else {
			outErr = outputRichReport(cmd.OutOrStdout(), report)
		}
		if err == nil {
			err = outErr
		}
	}
	return err
}

// startMetricsServer serves the collector plus Go runtime metrics on addr
// and returns the bound address.
func startMetricsServer(addr string, c *metrics.Collector) (*http.Server, string, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(c, collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.InstrumentMetricHandler(
		registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("metrics listener: %w", err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	return srv, ln.Addr().String(), nil
}

// =============================================================================
// Output
// =============================================================================

func outputJSONReport(w io.Writer, report *bench.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func outputRichReport(w io.Writer, r *bench.Report) error {
	paint := func(color, s string) string {
		if !isTerminal(w) {
			return s
		}
		return color + s + colorReset
	}

	fmt.Fprintln(w, paint(colorBold+colorCyan, "Select Fairness Bench"))
	fmt.Fprintln(w, paint(colorGray, strings.Repeat("-", 40)))
	fmt.Fprintf(w, "Run:         %s\n", r.RunID)
	fmt.Fprintf(w, "Seed:        %d\n", r.Seed)
	fmt.Fprintf(w, "Workers:     %d\n", r.Workers)
	fmt.Fprintf(w, "Channels:    %d (capacity %d)\n", r.Channels, r.Capacity)
	fmt.Fprintf(w, "Elapsed:     %s\n", r.Elapsed.Round(time.Microsecond))

	delivered := fmt.Sprintf("%d/%d", r.Delivered, r.Expected)
	if r.Duplicates == 0 && r.Missing == 0 {
		delivered = paint(colorGreen, delivered)
	} else {
		delivered = paint(colorRed, fmt.Sprintf("%s (%d duplicates, %d missing)", delivered, r.Duplicates, r.Missing))
	}
	fmt.Fprintf(w, "Delivered:   %s\n", delivered)
	fmt.Fprintf(w, "Mean:        %.2f per worker\n", r.Mean)
	fmt.Fprintf(w, "Std dev:     %.2f (spread %.3f)\n", r.StdDev, r.Spread)
	if r.Starved > 0 {
		fmt.Fprintf(w, "Starved:     %s\n", paint(colorYellow, fmt.Sprintf("%d workers", r.Starved)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, paint(colorBold, "Per worker"))
	for i, n := range r.PerWorker {
		fmt.Fprintf(w, "  %3d  %d\n", i, n)
	}
	return nil
}
