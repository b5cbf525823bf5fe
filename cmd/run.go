// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller and serve its registers",
	Long: `Run the control loop on the configured hardware and serve the register
map on every configured upstream until SIGINT or SIGTERM.

SIGHUP resets the register map: settings return to the configured values,
the receiver is enabled and every table is disabled.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	slog.Info("Starting vacuum controller...", "version", Version, "slave", cfg.Slave.ID,
		"hardware", cfg.Hardware.Type, "upstreams", len(cfg.Upstreams))

	d, err := newDaemon(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go d.resetOn(ctx, hup)

	d.run(ctx)
	slog.Info("Goodbye.")
	return nil
}
