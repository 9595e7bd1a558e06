package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RENDEZVOUS_"

var ErrInvalidConfig = errors.New("invalid config")

type Manager struct {
	current   atomic.Pointer[Config]
	path      string
	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
}

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Bench   BenchConfig   `yaml:"bench"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, text or json
}

type BenchConfig struct {
	Workers  int           `yaml:"workers"`
	Channels int           `yaml:"channels"`
	Values   int           `yaml:"values"` // per channel
	Capacity int           `yaml:"capacity"`
	Rate     float64       `yaml:"rate"` // values per second per producer, 0 is unlimited
	Seed     uint64        `yaml:"seed"` // 0 picks a random seed
	Timeout  time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// NewManager returns a manager holding the defaults. path names an optional
// YAML file read by Load; empty skips the file layer.
func NewManager(path string) *Manager {
	m := &Manager{
		path:      path,
		stopWatch: make(chan struct{}),
	}
	m.current.Store(DefaultConfig())
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Bench: BenchConfig{
			Workers:  4,
			Channels: 4,
			Values:   1000,
			Capacity: 0,
			Timeout:  30 * time.Second,
		},
	}
}

func (m *Manager) Get() *Config {
	return m.current.Load()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := m.loadFileConfig(cfg); err != nil {
		return fmt.Errorf("file config %s: %w", m.path, err)
	}

	m.applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.current.Store(cfg)
	m.notifyWatchers(cfg)

	return nil
}

// loadFileConfig decodes the YAML file over cfg. Keys absent from the file
// keep their current value; keys present win, zero values included.
func (m *Manager) loadFileConfig(cfg *Config) error {
	if m.path == "" {
		return nil
	}
	return loadYAMLFile(m.path, cfg)
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func (m *Manager) applyEnvironment(cfg *Config) {
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := getenv("BENCH_WORKERS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Bench.Workers = n
		}
	}
	if v := getenv("BENCH_CHANNELS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Bench.Channels = n
		}
	}
	if v := getenv("BENCH_VALUES"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Bench.Values = n
		}
	}
	if v := getenv("BENCH_CAPACITY"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Bench.Capacity = n
		}
	}
	if v := getenv("BENCH_RATE"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Bench.Rate = f
		}
	}
	if v := getenv("BENCH_SEED"); v != "" {
		if n, err := parseInt(v); err == nil && n >= 0 {
			cfg.Bench.Seed = uint64(n)
		}
	}
	if v := getenv("BENCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Bench.Timeout = d
		}
	}
	if v := getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// Validate reports the first setting the bench runner cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Bench.Workers < 1:
		return fmt.Errorf("%w: bench.workers must be positive, got %d", ErrInvalidConfig, c.Bench.Workers)
	case c.Bench.Channels < 1:
		return fmt.Errorf("%w: bench.channels must be positive, got %d", ErrInvalidConfig, c.Bench.Channels)
	case c.Bench.Values < 0:
		return fmt.Errorf("%w: bench.values must not be negative, got %d", ErrInvalidConfig, c.Bench.Values)
	case c.Bench.Capacity < 0:
		return fmt.Errorf("%w: bench.capacity must not be negative, got %d", ErrInvalidConfig, c.Bench.Capacity)
	case c.Bench.Rate < 0:
		return fmt.Errorf("%w: bench.rate must not be negative, got %v", ErrInvalidConfig, c.Bench.Rate)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// ParseLevel maps a level name onto slog. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, s)
	}
	return level, nil
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	select {
	case <-m.stopWatch:
		return
	default:
	}

	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}

// Close stops watcher notification. Get keeps returning the last snapshot.
func (m *Manager) Close() error {
	m.watchOnce.Do(func() {
		close(m.stopWatch)
	})
	return nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}
