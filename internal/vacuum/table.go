// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import (
	"log/slog"

	"github.com/ffutop/vacuum-controller/internal/slave/entity"
)

// Table holds a workpiece down with pulsed vacuum from the receiver and
// vents it back to atmosphere when disabled.
type Table struct {
	ID     int
	Sensor *BusSensor
	Valve  Actuator
	Vent   Actuator
	Enable *entity.Int

	settings  *Settings
	clock     Clock
	filmGuard bool

	released   bool
	first      bool
	lastOpened uint32
	tooFast    int
}

// NewTable wires one table. With filmGuard set every valve opening is
// checked against the minimum cycle period.
func NewTable(id int, sensor *BusSensor, valve, vent Actuator, enable *entity.Int, settings *Settings, clock Clock, filmGuard bool) *Table {
	return &Table{
		ID:        id,
		Sensor:    sensor,
		Valve:     valve,
		Vent:      vent,
		Enable:    enable,
		settings:  settings,
		clock:     clock,
		filmGuard: filmGuard,
		first:     true,
	}
}

// FirstCycle reports whether the table is still pulling down to the
// stricter first-cycle pressure.
func (t *Table) FirstCycle() bool {
	return t.first
}

// Tact runs one control step. A latched film fault keeps the table on the
// disabled path until the host enables it again.
func (t *Table) Tact() {
	if t.Enable.Value() == 1 {
		t.Sensor.Release()
	}
	t.Sensor.UpdatePressure()
	if t.Sensor.Faulted() && t.Sensor.Latched() == NoError {
		t.Valve.Close()
		return
	}

	if t.Enable.Value() == 1 {
		t.released = false
		t.Vent.Close()

		threshold := t.settings.StartVacTable.Value()
		if t.first {
			threshold, _ = t.settings.PumpBand()
		}
		if t.Sensor.Value() > float64(threshold) {
			if TicksDiff(t.clock.Ticks(), t.Valve.LastChange()) >= int64(t.settings.ImpulseTime.Value()) {
				t.Valve.Toggle()
				if t.filmGuard && t.Valve.IsOpen() {
					t.checkOpenedTooFast()
				}
			}
		} else {
			t.first = false
			t.Valve.Close()
		}
		return
	}

	t.Valve.Close()
	t.first = true
	if !t.released {
		t.Vent.Open()
		t.released = true
	}
	if t.Vent.IsOpen() && TicksDiff(t.clock.Ticks(), t.Vent.LastChange()) > PressureReleaseTime {
		t.Vent.Close()
	}
}

// checkOpenedTooFast counts consecutive openings closer together than the
// minimum cycle period. Too many in a row disable the table with FilmError.
func (t *Table) checkOpenedTooFast() {
	now := t.clock.Ticks()
	if TicksDiff(now, t.lastOpened) < int64(t.settings.MinValveCyclePeriod.Value()) {
		t.tooFast++
		if t.tooFast == OpenedTooFastMaxCount {
			t.tooFast = 0
			t.Enable.Set(0)
			t.Sensor.Latch(FilmError)
			slog.Warn("Table valve cycles too fast, disabling table", "table", t.ID)
		}
	} else {
		t.tooFast = 0
	}
	t.lastOpened = now
}
