package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/adalundhe/rendezvous/core/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath string
	logLevel   string
	cfgManager *config.Manager
)

var rootCmd = &cobra.Command{
	Use:   "rendezvous",
	Short: "Rendezvous - CSP channels with fair select",
	Long: `Rendezvous provides channels with rendezvous and buffered semantics
and a fair, exactly-once select across any number of them.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration and installs the default logger.
func setup(cmd *cobra.Command, args []string) error {
	cfgManager = config.NewManager(configPath)
	if err := cfgManager.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := cfgManager.Get().Log
	if logLevel != "" {
		logCfg.Level = logLevel
	}

	logger, err := newLogger(cmd.ErrOrStderr(), logCfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// newLogger builds a slog logger writing to w. The auto format picks text
// for terminals and JSON otherwise.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	format := cfg.Format
	if format == "" || format == "auto" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log format %q", config.ErrInvalidConfig, format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
