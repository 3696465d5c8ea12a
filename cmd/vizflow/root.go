package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vizflow",
	Short: "vizflow keeps a visualization scene in sync with its data and signals",
	Long: `vizflow compiles a declarative visualization spec into a dataflow graph and
propagates signal and data changes through it incrementally.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("spec", "configs/bars.yaml", "Path to the visualization spec (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); defaults to the spec's engine.log_level")
}

// newLogger builds the process logger and installs it as the default.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
