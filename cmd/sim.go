// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ffutop/vacuum-controller/internal/config"
	"github.com/ffutop/vacuum-controller/internal/vacuum"
)

var (
	simNoTUI    bool
	simServe    bool
	simListen   string
	simInterval time.Duration
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run the controller against the simulated plant",
	Long: `Run the control loop against a simulated pump, receiver and tables.

On a terminal a dashboard shows pressures, valve states and the pump duty
cycle; tables are toggled with 1-3 and the receiver with r. Without a
terminal, or with --no-tui, a status line is printed every --interval.

The configured upstreams are only started with --serve. --listen adds a
Modbus TCP listener, e.g. --listen 127.0.0.1:5020.`,
	Args: cobra.NoArgs,
	RunE: runSim,
}

func init() {
	simCmd.Flags().BoolVar(&simNoTUI, "no-tui", false, "Print status lines instead of the dashboard")
	simCmd.Flags().BoolVar(&simServe, "serve", false, "Start the configured upstreams")
	simCmd.Flags().StringVar(&simListen, "listen", "", "Serve Modbus TCP on this address")
	simCmd.Flags().DurationVar(&simInterval, "interval", time.Second, "Status line interval without the dashboard")
	rootCmd.AddCommand(simCmd)
}

func runSim(cmd *cobra.Command, args []string) error {
	interactive := !simNoTUI && term.IsTerminal(int(os.Stdout.Fd()))

	var logs *logBuffer
	var console io.Writer
	if interactive {
		logs = newLogBuffer(maxLogLines)
		console = logs
	}
	cfg, err := loadConfig(cmd, console)
	if err != nil {
		return err
	}
	cfg.Hardware.Type = "sim"
	if !simServe {
		cfg.Upstreams = nil
	}
	if simListen != "" {
		cfg.Upstreams = append(cfg.Upstreams, config.UpstreamConfig{
			Type: "tcp",
			Tcp:  config.TcpConfig{Address: simListen},
		})
	}

	d, err := newDaemon(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()

	if interactive {
		err = runDashboard(ctx, d, logs)
		cancel()
	} else {
		printStatus(ctx, cmd.OutOrStdout(), d.ctrl, simInterval)
	}
	<-done
	return err
}

// printStatus writes one status line per interval until ctx is cancelled.
func printStatus(ctx context.Context, w io.Writer, src statusSource, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintln(w, statusLine(src.Status()))
		}
	}
}

func statusLine(st vacuum.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%.1fs receiver %s %.1f hPa pump %s duty %d%%",
		float64(st.Uptime)/1000, onOff(st.Receiver.Enabled), st.Receiver.Pressure,
		onOff(st.Receiver.ValveOpen), st.DutyPercent)
	if st.Paused {
		b.WriteString(" paused")
	}
	if st.Receiver.Error != vacuum.NoError {
		fmt.Fprintf(&b, " [%s]", st.Receiver.Error)
	}
	for i, t := range st.Tables {
		fmt.Fprintf(&b, " | t%d %s %.1f hPa valve %s vent %s",
			i+1, onOff(t.Enabled), t.Pressure, onOff(t.ValveOpen), onOff(t.VentOpen))
		if t.Error != vacuum.NoError {
			fmt.Fprintf(&b, " [%s]", t.Error)
		}
	}
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

const maxLogLines = 6

// logBuffer keeps the last lines written to it for the dashboard.
type logBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max}
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(string(p), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			b.lines = append(b.lines, line)
		}
	}
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
	return len(p), nil
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *logBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}
