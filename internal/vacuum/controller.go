// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/vacuum-controller/internal/slave/entity"
	"github.com/ffutop/vacuum-controller/internal/slave/model"
)

// Options tune a Controller.
type Options struct {
	Params       Params
	Retries      int
	FilmGuard    bool
	TickInterval time.Duration // pause between ticks, zero runs them back to back
}

// DefaultOptions returns the deployed configuration.
func DefaultOptions() Options {
	return Options{
		Params:       DefaultParams(),
		Retries:      DefaultRetries,
		TickInterval: 10 * time.Millisecond,
	}
}

// Controller owns the receiver and the tables and steps them once per tick.
type Controller struct {
	Settings *Settings
	Receiver *Receiver
	Tables   [TableCount]*Table

	store    *model.DataModel
	clock    Clock
	interval time.Duration

	// devices are the registers reporting live device state.
	devices []entity.Entity

	mu    sync.Mutex
	ticks uint64
}

// New builds every entity and device on store. The receiver starts enabled.
func New(store *model.DataModel, hw Hardware, opts Options) (*Controller, error) {
	if hw.Clock == nil {
		hw.Clock = NewSystemClock()
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Params.StartPumpPress <= opts.Params.StopPumpPress {
		d := DefaultParams()
		slog.Warn("Start pump pressure must be above stop pump pressure, using the default band",
			"start", opts.Params.StartPumpPress, "stop", opts.Params.StopPumpPress,
			"default_start", d.StartPumpPress, "default_stop", d.StopPumpPress)
		opts.Params.StartPumpPress, opts.Params.StopPumpPress = d.StartPumpPress, d.StopPumpPress
	}

	settings, err := NewSettings(store, opts.Params)
	if err != nil {
		return nil, err
	}
	bus := NewBus(hw.Bus, opts.Retries)

	receiverEnable, err := entity.NewInt(store, AddrReceiverEnable, 0)
	if err != nil {
		return nil, fmt.Errorf("receiver enable: %w", err)
	}
	receiverSensor, err := NewBusSensor(store, bus, ReceiverChannel, hw.Sensor, hw.Clock, opts.Retries,
		AddrReceiverError, AddrReceiverPressure)
	if err != nil {
		return nil, err
	}
	receiverValve, err := NewReceiverValve(store, hw.ReceiverPin, hw.Clock, AddrReceiverValve, AddrPumpWorkPercent)
	if err != nil {
		return nil, fmt.Errorf("receiver valve: %w", err)
	}

	c := &Controller{
		Settings: settings,
		Receiver: NewReceiver(receiverSensor, receiverValve, receiverEnable, settings, hw.Clock),
		store:    store,
		clock:    hw.Clock,
		interval: opts.TickInterval,
	}
	c.devices = []entity.Entity{
		receiverSensor.Error, receiverSensor.Pressure,
		receiverValve.state, receiverValve.Percent,
	}

	for i := 0; i < TableCount; i++ {
		n := uint16(i)
		enable, err := entity.NewInt(store, AddrTableEnable+n, 0)
		if err != nil {
			return nil, fmt.Errorf("table %d enable: %w", i+1, err)
		}
		sensor, err := NewBusSensor(store, bus, TableChannel+i, hw.Sensor, hw.Clock, opts.Retries,
			AddrTableError+n, AddrTablePressure+2*n)
		if err != nil {
			return nil, err
		}
		valve, err := NewValve(store, hw.TablePins[i], hw.Clock, AddrTableValve+n)
		if err != nil {
			return nil, fmt.Errorf("table %d valve: %w", i+1, err)
		}
		vent, err := NewValve(store, hw.VentPins[i], hw.Clock, AddrVentValve+n)
		if err != nil {
			return nil, fmt.Errorf("table %d vent: %w", i+1, err)
		}
		c.Tables[i] = NewTable(i+1, sensor, valve, vent, enable, settings, hw.Clock, opts.FilmGuard)
		c.devices = append(c.devices, sensor.Error, sensor.Pressure, valve.state, vent.state)
	}

	receiverEnable.Set(1)
	return c, nil
}

// Resync reloads everything a host may have changed.
func (c *Controller) Resync() error {
	if _, err := c.Receiver.Enable.Get(); err != nil {
		return err
	}
	for _, t := range c.Tables {
		if _, err := t.Enable.Get(); err != nil {
			return err
		}
	}
	return c.Settings.Resync()
}

// Reset returns the register map to its power-on content. Settings go back
// to the configured values, the receiver is enabled and every table is
// disabled. Device registers keep reporting the live state.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Reset()
	if err := c.Settings.Restore(); err != nil {
		return err
	}
	if err := restore(c.Receiver.Enable, 1); err != nil {
		return err
	}
	for _, t := range c.Tables {
		if err := restore(t.Enable, 0); err != nil {
			return err
		}
	}
	for _, e := range c.devices {
		if err := e.Sync(); err != nil {
			return err
		}
	}
	slog.Info("Registers reset", "params", c.Settings.Params())
	return nil
}

// Tick runs one control step: pick up host writes, then step the receiver
// and each table in order.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.DrainChanged() {
		if err := c.Resync(); err != nil {
			slog.Error("Failed to resync settings", "err", err)
		}
	}
	c.Receiver.Tact()
	for _, t := range c.Tables {
		t.Tact()
	}
	c.ticks++
}

// Run ticks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("Control loop started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Control loop stopped")
			return nil
		default:
		}
		c.Tick()
		if c.interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.interval):
			}
		}
	}
}

// DeviceStatus is a snapshot of one device.
type DeviceStatus struct {
	Enabled   bool
	ValveOpen bool
	VentOpen  bool
	Pressure  float64
	Error     ErrorCode
}

// Status is a snapshot of the whole controller.
type Status struct {
	Uptime      uint32 // ms
	Ticks       uint64
	DutyPercent int
	Paused      bool
	Receiver    DeviceStatus
	Tables      [TableCount]DeviceStatus
	Params      Params
}

// Status returns a consistent snapshot between two ticks.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.Receiver
	st := Status{
		Uptime:      c.clock.Ticks(),
		Ticks:       c.ticks,
		DutyPercent: r.Valve.Percent.Value(),
		Paused:      r.Paused(),
		Receiver: DeviceStatus{
			Enabled:   r.Enable.Value() == 1,
			ValveOpen: r.Valve.IsOpen(),
			Pressure:  r.Sensor.Value(),
			Error:     r.Sensor.Code(),
		},
		Params: c.Settings.Params(),
	}
	for i, t := range c.Tables {
		st.Tables[i] = DeviceStatus{
			Enabled:   t.Enable.Value() == 1,
			ValveOpen: t.Valve.IsOpen(),
			VentOpen:  t.Vent.IsOpen(),
			Pressure:  t.Sensor.Value(),
			Error:     t.Sensor.Code(),
		}
	}
	return st
}
