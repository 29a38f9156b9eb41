// Package main provides the ptree CLI entry point.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matsen/papertree/internal/config"
	"github.com/matsen/papertree/internal/metrics"
)

// Version is set at build time via ldflags
var Version = "dev"

// Persistent flags shared by every command.
var (
	humanOutput bool
	verbose     bool
	logJSON     bool
	metricsFile string
	configPath  string
)

// registry collects metrics for the current invocation.
var registry = metrics.NewRegistry()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if metricsFile != "" {
		if werr := registry.WriteTextfile(metricsFile); werr != nil {
			slog.Warn("writing metrics file", "path", metricsFile, "error", werr)
		}
	}
	if err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ptree",
	Short: "Build bounded-depth citation trees from Semantic Scholar",
	Long: `ptree builds citation trees: starting from a root paper it follows
references breadth-first up to a maximum depth, fetching metadata from the
Semantic Scholar batch API, and exports the result as JSON, JSONL, SQLite,
PostgreSQL or BibTeX.

All commands output JSON by default for easy integration with scripts and
agents. Use --human for readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(os.Stderr))
	},
}

func init() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress for every level")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs to stderr as JSON")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/ptree/config.yml)")
	rootCmd.Version = Version
}

// newLogger builds the process logger from the logging flags.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if logJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig returns the configuration named by --config, or the global one.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadGlobalConfig()
}
