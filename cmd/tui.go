// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ffutop/vacuum-controller/internal/hw/sim"
	"github.com/ffutop/vacuum-controller/internal/slave/model"
	"github.com/ffutop/vacuum-controller/internal/vacuum"
)

const dashboardRefresh = 200 * time.Millisecond

type statusSource interface {
	Status() vacuum.Status
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	onStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	offStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

type dashTickMsg time.Time

// dashboard is the Bubble Tea model of the simulator view.
type dashboard struct {
	source statusSource
	store  *model.DataModel
	plant  *sim.Plant // nil when not simulated
	logs   *logBuffer
	slave  int
	reset  func() error // nil disables the reset key

	status   vacuum.Status
	state    sim.State
	duty     progress.Model
	width    int
	quitting bool
}

func newDashboard(source statusSource, store *model.DataModel, plant *sim.Plant, logs *logBuffer, slaveID int) dashboard {
	m := dashboard{
		source: source,
		store:  store,
		plant:  plant,
		logs:   logs,
		slave:  slaveID,
		duty:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		width:  80,
	}
	m.refresh()
	return m
}

func runDashboard(ctx context.Context, d *daemon, logs *logBuffer) error {
	m := newDashboard(d.ctrl, d.store, d.plant, logs, d.cfg.Slave.ID)
	m.reset = d.ctrl.Reset
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

func dashTickCmd() tea.Cmd {
	return tea.Tick(dashboardRefresh, func(t time.Time) tea.Msg {
		return dashTickMsg(t)
	})
}

func (m dashboard) Init() tea.Cmd {
	return dashTickCmd()
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.toggle(vacuum.AddrReceiverEnable, m.status.Receiver.Enabled)
		case "1", "2", "3":
			i := int(msg.String()[0] - '1')
			m.toggle(vacuum.AddrTableEnable+uint16(i), m.status.Tables[i].Enabled)
		case "x":
			if m.reset != nil {
				if err := m.reset(); err != nil {
					slog.Error("Failed to reset registers", "err", err)
				}
				m.refresh()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.duty.Width = min(max(msg.Width-30, 10), 60)
		return m, nil

	case dashTickMsg:
		m.refresh()
		return m, dashTickCmd()
	}
	return m, nil
}

func (m *dashboard) refresh() {
	m.status = m.source.Status()
	if m.plant != nil {
		m.state = m.plant.State()
	}
}

// toggle writes an enable register the way a host would; the controller
// picks it up on its next tick.
func (m *dashboard) toggle(addr uint16, enabled bool) {
	v := uint16(1)
	if enabled {
		v = 0
	}
	if err := m.store.Set(model.TableHoldingRegisters, addr, []uint16{v}); err != nil {
		slog.Warn("Failed to write enable register", "addr", addr, "err", err)
	}
}

func (m dashboard) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.status

	var s strings.Builder
	s.WriteString(titleStyle.Render("VACUUMD - SIMULATOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Slave %d | Uptime %.1f s | Ticks %d | 1-3 tables, r receiver, x reset, q quit",
		m.slave, float64(st.Uptime)/1000, st.Ticks)))
	s.WriteString("\n\n")

	var devices strings.Builder
	devices.WriteString(labelStyle.Render(fmt.Sprintf("%-10s %-6s %-7s %-7s %10s", "", "enable", "valve", "vent", "hPa")))
	if m.plant != nil {
		devices.WriteString(labelStyle.Render(fmt.Sprintf(" %10s", "plant")))
	}
	devices.WriteString("\n")
	devices.WriteString(m.deviceRow("Receiver", st.Receiver, false, m.state.Receiver))
	for i, t := range st.Tables {
		devices.WriteString("\n")
		devices.WriteString(m.deviceRow(fmt.Sprintf("Table %d", i+1), t, true, m.state.Tables[i]))
	}
	s.WriteString(boxStyle.Render(devices.String()))
	s.WriteString("\n")

	pump := fmt.Sprintf("%s %s", labelStyle.Render("Pump duty:"), m.duty.ViewAs(float64(st.DutyPercent)/100))
	if st.Paused {
		pump += " " + errorStyle.Render("paused")
	}
	s.WriteString(pump)
	s.WriteString("\n")
	p := st.Params
	s.WriteString(headerStyle.Render(fmt.Sprintf("start/stop pump %d/%d hPa | table start %d hPa | normal %d hPa | work %d ms | impulse %d ms | cycle %d ms",
		p.StartPumpPress, p.StopPumpPress, p.StartVacTable, p.NormalPress, p.PumpWorkTime, p.ImpulseTime, p.MinValveCyclePeriod)))
	s.WriteString("\n")

	if m.logs != nil {
		if lines := m.logs.Lines(); len(lines) > 0 {
			width := max(m.width-4, 20)
			for i, l := range lines {
				if len(l) > width {
					lines[i] = l[:width]
				}
			}
			s.WriteString("\n")
			s.WriteString(headerStyle.Render(strings.Join(lines, "\n")))
			s.WriteString("\n")
		}
	}
	return s.String()
}

func (m dashboard) deviceRow(name string, d vacuum.DeviceStatus, vent bool, actual float64) string {
	ventCol := "-"
	if vent {
		ventCol = onOff(d.VentOpen)
	}
	row := fmt.Sprintf("%-10s %s %s %-7s %10.2f",
		name, pad(state(d.Enabled), 6), pad(state(d.ValveOpen), 7), ventCol, d.Pressure)
	if m.plant != nil {
		row += fmt.Sprintf(" %10.2f", actual)
	}
	if d.Error != vacuum.NoError {
		row += "  " + errorStyle.Render(d.Error.String())
	}
	return row
}

func state(on bool) string {
	if on {
		return onStyle.Render("on")
	}
	return offStyle.Render("off")
}

// pad pads a styled cell to width visible columns.
func pad(cell string, width int) string {
	if n := lipgloss.Width(cell); n < width {
		return cell + strings.Repeat(" ", width-n)
	}
	return cell
}
