// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import (
	"log/slog"

	"github.com/ffutop/vacuum-controller/internal/slave/entity"
)

// Receiver runs the pump that keeps the vacuum receiver between the stop
// and start pressures.
type Receiver struct {
	Sensor *BusSensor
	Valve  *ReceiverValve
	Enable *entity.Int

	settings   *Settings
	clock      Clock
	paused     bool
	pauseStart uint32
}

// NewReceiver wires the receiver devices together.
func NewReceiver(sensor *BusSensor, valve *ReceiverValve, enable *entity.Int, settings *Settings, clock Clock) *Receiver {
	return &Receiver{
		Sensor:   sensor,
		Valve:    valve,
		Enable:   enable,
		settings: settings,
		clock:    clock,
	}
}

// Paused reports whether the pump is cooling down after an overrun.
func (r *Receiver) Paused() bool {
	return r.paused
}

// Tact runs one control step.
func (r *Receiver) Tact() {
	r.Sensor.UpdatePressure()
	r.Valve.CalcPercent()

	workTime := int64(r.settings.PumpWorkTime.Value())
	if r.paused {
		r.Valve.Close()
		if TicksDiff(r.clock.Ticks(), r.pauseStart) <= workTime {
			return
		}
		r.paused = false
		slog.Info("Pump pause over")
	}

	if r.Sensor.Faulted() || r.Enable.Value() == 0 {
		r.Valve.Close()
		return
	}

	pressure := r.Sensor.Value()
	start, stop := r.settings.PumpBand()
	if r.Valve.IsOpen() {
		if pressure < float64(stop) {
			r.Valve.Close()
			return
		}
		if TicksDiff(r.clock.Ticks(), r.Valve.LastChange()) > workTime {
			r.paused = true
			r.pauseStart = r.clock.Ticks()
			r.Valve.Close()
			slog.Warn("Pump ran too long, pausing", "limit_ms", workTime, "pressure", pressure)
			return
		}
	}
	if pressure > float64(start) {
		r.Valve.Open()
	}
}
