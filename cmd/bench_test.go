package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adalundhe/rendezvous/core/bench"
	"github.com/adalundhe/rendezvous/core/channel"
	"github.com/adalundhe/rendezvous/core/config"
	"github.com/adalundhe/rendezvous/core/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	prevLogger := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prevLogger)
		configPath, logLevel = "", ""
		benchJSON, benchMetricsAddr = false, ""
		for _, name := range []string{"workers", "channels", "values", "capacity", "rate", "seed", "timeout", "json", "metrics-addr"} {
			if f := benchCmd.Flags().Lookup(name); f != nil {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			}
		}
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// =============================================================================
// Command Definition Tests
// =============================================================================

func TestBenchCmd_Definition(t *testing.T) {
	assert.Equal(t, "bench", benchCmd.Use)
	assert.Equal(t, "Run the select fairness bench", benchCmd.Short)

	for _, name := range []string{"workers", "channels", "values", "capacity", "rate", "seed", "timeout", "json", "metrics-addr"} {
		assert.NotNil(t, benchCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

// =============================================================================
// Bench Command Tests
// =============================================================================

func TestBenchCmd_JSON(t *testing.T) {
	out, err := executeCommand(t, "bench", "--workers", "3", "--channels", "2", "--values", "50", "--seed", "9", "--json")
	require.NoError(t, err)

	var report bench.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Workers)
	assert.Equal(t, 100, report.Expected)
	assert.Equal(t, 100, report.Delivered)
	assert.Equal(t, uint64(9), report.Seed)
	assert.Zero(t, report.Duplicates)
}

func TestBenchCmd_Text(t *testing.T) {
	out, err := executeCommand(t, "bench", "-w", "2", "-c", "2", "-n", "10", "--capacity", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "Select Fairness Bench")
	assert.Contains(t, out, "Delivered:   20/20")
	assert.Contains(t, out, "Channels:    2 (capacity 1)")
	assert.NotContains(t, out, colorReset, "no colors when not a terminal")
}

func TestBenchCmd_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rendezvous.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bench:\n  workers: 2\n  channels: 1\n  values: 5\n"), 0644))

	out, err := executeCommand(t, "--config", path, "bench", "--json", "--values", "7")
	require.NoError(t, err)

	var report bench.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Workers)
	assert.Equal(t, 1, report.Channels)
	assert.Equal(t, 7, report.Delivered, "flags win over the config file")
}

func TestBenchCmd_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rendezvous.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bench:\n  workers: -4\n"), 0644))

	_, err := executeCommand(t, "--config", path, "bench")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBenchCmd_InvalidLogLevel(t *testing.T) {
	_, err := executeCommand(t, "--log-level", "chatty", "bench", "--values", "1")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, config.LogConfig{Level: "debug", Format: "auto"})
	require.NoError(t, err)
	logger.Debug("hello", "k", 1)
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "auto picks JSON off a terminal: %s", buf.String())

	buf.Reset()
	logger, err = newLogger(&buf, config.LogConfig{Level: "info", Format: "text"})
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")

	_, err = newLogger(&buf, config.LogConfig{Format: "xml"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// =============================================================================
// Metrics Server Tests
// =============================================================================

func TestStartMetricsServer(t *testing.T) {
	c := metrics.NewCollector(MetricsNamespace)
	c.Register(channel.New[int](3, channel.WithName("probe")))

	srv, addr, err := startMetricsServer("127.0.0.1:0", c)
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `rendezvous_channel_capacity{channel="probe"} 3`)
	assert.Contains(t, string(body), "go_goroutines")
}
