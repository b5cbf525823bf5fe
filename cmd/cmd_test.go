// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	mbclient "github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/vacuum-controller/internal/config"
	"github.com/ffutop/vacuum-controller/internal/slave/mirror"
	"github.com/ffutop/vacuum-controller/internal/slave/model"
	"github.com/ffutop/vacuum-controller/internal/vacuum"
	"github.com/ffutop/vacuum-controller/transport/rtu"
	rtuovertcp "github.com/ffutop/vacuum-controller/transport/rtu-over-tcp"
	"github.com/ffutop/vacuum-controller/transport/tcp"
	"github.com/ffutop/vacuum-controller/transport/websocket"
)

func TestDaemonServesRegisters(t *testing.T) {
	dir := t.TempDir()
	mirrorPath := filepath.Join(dir, "regs")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
slave:
  id: 3
upstreams:
  - type: tcp
    tcp:
      address: 127.0.0.1:0
mirror:
  type: mmap
  path: %s
hardware:
  sim:
    noise: 0
`, mirrorPath)), 0644))

	cfg, err := config.LoadConfig(cfgPath, nil)
	require.NoError(t, err)
	d, err := newDaemon(cfg)
	require.NoError(t, err)
	require.Len(t, d.upstreams, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	srv := d.upstreams[0].(*tcp.Server)
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 10*time.Millisecond)

	h := mbclient.NewTCPClientHandler(srv.Addr().String())
	h.SlaveId = 3
	h.Timeout = time.Second
	require.NoError(t, h.Connect())
	defer h.Close()
	client := mbclient.NewClient(h)

	raw, err := client.ReadHoldingRegisters(0, vacuum.RegisterCount)
	require.NoError(t, err)
	require.Len(t, raw, 2*vacuum.RegisterCount)
	assert.Equal(t, []byte{0x00, 0x01}, raw[0:2], "receiver starts enabled")
	assert.Equal(t, []byte{0x00, 0x32}, raw[2*vacuum.AddrImpulseTime:2*vacuum.AddrImpulseTime+2])

	_, err = client.WriteSingleRegister(vacuum.AddrTableEnable, 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return d.ctrl.Status().Tables[0].Enabled
	}, time.Second, 10*time.Millisecond)

	_, err = client.ReadHoldingRegisters(vacuum.RegisterCount, 1)
	assert.Error(t, err, "read past the register map")

	r, err := mirror.OpenReader(mirrorPath)
	require.NoError(t, err)
	defer r.Close()
	v, err := r.Read(model.TableHoldingRegisters, vacuum.AddrTableEnable, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1}, v)

	var out bytes.Buffer
	require.NoError(t, printRegisters(&out, r, false, 1))
	assert.Contains(t, out.String(), "table1_enable")
	assert.Contains(t, out.String(), "Value")
}

func TestNewUpstream(t *testing.T) {
	us, err := newUpstream(config.UpstreamConfig{Type: "rtu", Serial: config.SerialConfig{Device: "/dev/null"}}, 1)
	require.NoError(t, err)
	assert.IsType(t, &rtu.Server{}, us)

	us, err = newUpstream(config.UpstreamConfig{Type: "rtu-over-tcp", Tcp: config.TcpConfig{Address: ":0"}}, 1)
	require.NoError(t, err)
	assert.IsType(t, &rtuovertcp.Server{}, us)

	us, err = newUpstream(config.UpstreamConfig{Type: "tcp", Tcp: config.TcpConfig{Address: ":0"}}, 1)
	require.NoError(t, err)
	assert.IsType(t, &tcp.Server{}, us)

	us, err = newUpstream(config.UpstreamConfig{Type: "websocket", WebSocket: config.WebSocketConfig{Address: ":0", Path: "/modbus"}}, 1)
	require.NoError(t, err)
	assert.IsType(t, &websocket.Server{}, us)

	_, err = newUpstream(config.UpstreamConfig{Type: "ascii"}, 1)
	assert.Error(t, err)
}

func TestNewDaemonRejectsUnknownHardware(t *testing.T) {
	cfg := &config.Config{
		Slave:    config.SlaveConfig{ID: 1, ZeroBased: true},
		Hardware: config.HardwareConfig{Type: "gpio"},
	}
	_, err := newDaemon(cfg)
	assert.Error(t, err)
}

func TestDaemonResetsOnSignal(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("hardware:\n  sim:\n    noise: 0\n"), 0644))
	cfg, err := config.LoadConfig(cfgPath, nil)
	require.NoError(t, err)
	d, err := newDaemon(cfg)
	require.NoError(t, err)
	defer d.close()

	require.NoError(t, d.store.Set(model.TableHoldingRegisters, vacuum.AddrStartPumpPress, []uint16{450}))
	require.NoError(t, d.store.Set(model.TableHoldingRegisters, vacuum.AddrTableEnable, []uint16{1}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	go d.resetOn(ctx, sig)
	sig <- syscall.SIGHUP

	get := func(addr uint16) uint16 {
		v, err := d.store.Get(model.TableHoldingRegisters, addr, 1)
		require.NoError(t, err)
		return v[0]
	}
	require.Eventually(t, func() bool {
		return get(vacuum.AddrStartPumpPress) == uint16(cfg.Control.Params.StartPumpPress)
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint16(0), get(vacuum.AddrTableEnable))
	assert.Equal(t, uint16(1), get(vacuum.AddrReceiverEnable))
}

func TestPrintRegisters(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printRegisters(&out, nil, true, 2))
	s := out.String()
	for _, info := range vacuum.RegisterMap {
		assert.Contains(t, s, info.Name)
	}
	assert.Contains(t, s, "31")
	assert.NotContains(t, s, "Value")
}

type fixedStatus vacuum.Status

func (f fixedStatus) Status() vacuum.Status { return vacuum.Status(f) }

func TestStatusLine(t *testing.T) {
	st := vacuum.Status{Uptime: 1500, DutyPercent: 40}
	st.Receiver = vacuum.DeviceStatus{Enabled: true, ValveOpen: true, Pressure: 431.24}
	st.Tables[1] = vacuum.DeviceStatus{Enabled: true, Pressure: 1013.2, Error: vacuum.FilmError}

	line := statusLine(st)
	assert.Contains(t, line, "t=1.5s receiver on 431.2 hPa pump on duty 40%")
	assert.Contains(t, line, "t2 on 1013.2 hPa valve off vent off [film error]")
	assert.NotContains(t, line, "paused")
}

func TestPrintStatusStops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	printStatus(ctx, &out, fixedStatus{Ticks: 1}, 10*time.Millisecond)
	assert.Contains(t, out.String(), "receiver off")
}

func TestDashboardToggles(t *testing.T) {
	store := vacuum.NewStore(true)
	st := vacuum.Status{}
	st.Tables[1].Enabled = true
	m := newDashboard(fixedStatus(st), store, nil, newLogBuffer(3), 1)

	key := func(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

	next, _ := m.Update(key("1"))
	next, _ = next.Update(key("2"))
	next, _ = next.Update(key("r"))

	get := func(addr uint16) uint16 {
		v, err := store.Get(model.TableHoldingRegisters, addr, 1)
		require.NoError(t, err)
		return v[0]
	}
	assert.Equal(t, uint16(1), get(vacuum.AddrTableEnable))
	assert.Equal(t, uint16(0), get(vacuum.AddrTableEnable+1))
	assert.Equal(t, uint16(1), get(vacuum.AddrReceiverEnable))

	view := next.View()
	assert.Contains(t, view, "Receiver")
	assert.Contains(t, view, "Table 3")

	resets := 0
	dash := next.(dashboard)
	dash.reset = func() error { resets++; return nil }
	next, _ = dash.Update(key("x"))
	assert.Equal(t, 1, resets)

	next, cmd := next.Update(key("q"))
	assert.NotNil(t, cmd)
	assert.Equal(t, "Shutting down...\n", next.View())
}

func TestLogBuffer(t *testing.T) {
	b := newLogBuffer(3)
	fmt.Fprint(b, "one\ntwo\n")
	fmt.Fprint(b, "\nthree\n")
	fmt.Fprint(b, "four\n")
	assert.Equal(t, []string{"two", "three", "four"}, b.Lines())
}
