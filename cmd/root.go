// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ffutop/vacuum-controller/internal/config"
)

// Version is overridden at link time with -ldflags "-X ...cmd.Version=...".
var Version = "0.3.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "vacuumd",
	Short: "Vacuum table controller",
	Long: `vacuumd - controller for a vacuum receiver and three vacuum tables.

It polls the pressure sensors behind an I2C multiplexer, drives the pump,
table and vent valves, and exposes its state and tuning parameters as
Modbus holding registers on the configured upstream links.

Configuration is read from --config, or config.yaml in /etc/vacuumd/,
$HOME/.vacuumd or the working directory. Every key can be overridden
with a VACUUMD_ environment variable, e.g. VACUUMD_SLAVE_ID=3.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file path, stdout when empty")
	rootCmd.PersistentFlags().Int("slave-id", 1, "Modbus slave address (1..247)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration for cmd and installs the logger.
// Log output goes to the configured file, or to console when there is none.
func loadConfig(cmd *cobra.Command, console io.Writer) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Log, console)
	return cfg, nil
}

func setupLogger(cfg config.LogConfig, console io.Writer) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	if console == nil {
		console = os.Stdout
	}
	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, falling back to console: %v\n", err)
			handler = slog.NewTextHandler(console, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(console, opts)
	}
	slog.SetDefault(slog.New(handler))
}
