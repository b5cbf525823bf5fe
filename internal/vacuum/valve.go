// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import (
	"github.com/ffutop/vacuum-controller/internal/slave/entity"
)

// Actuator is a two-state valve.
type Actuator interface {
	Open()
	Close()
	Toggle()
	IsOpen() bool
	// LastChange is the clock tick of the last transition.
	LastChange() uint32
}

// Valve drives one solenoid through pin and mirrors its state into a register.
type Valve struct {
	pin        Pin
	state      *entity.Int
	clock      Clock
	lastChange uint32
}

// NewValve binds a closed valve to pin and to the state register at addr.
func NewValve(store entity.Store, pin Pin, clock Clock, addr uint16) (*Valve, error) {
	state, err := entity.NewInt(store, addr, 0)
	if err != nil {
		return nil, err
	}
	pin.Set(false)
	return &Valve{pin: pin, state: state, clock: clock}, nil
}

func (v *Valve) IsOpen() bool {
	return v.state.Value() == 1
}

func (v *Valve) LastChange() uint32 {
	return v.lastChange
}

func (v *Valve) switchTo(open bool) bool {
	if v.IsOpen() == open {
		return false
	}
	v.pin.Set(open)
	if open {
		v.state.Set(1)
	} else {
		v.state.Set(0)
	}
	v.lastChange = v.clock.Ticks()
	return true
}

// Open is a no-op on an open valve.
func (v *Valve) Open() {
	v.switchTo(true)
}

// Close is a no-op on a closed valve.
func (v *Valve) Close() {
	v.switchTo(false)
}

func (v *Valve) Toggle() {
	v.switchTo(!v.IsOpen())
}

// ReceiverValve is the pump valve. It also tracks how long it has been open
// since boot and publishes that as a percentage of uptime.
type ReceiverValve struct {
	Valve
	Percent *entity.Int

	start, stop uint32
	total       uint64

	// elapsed counts ticks since boot past the 32-bit wrap of the clock.
	last    uint32
	elapsed uint64
}

// NewReceiverValve binds the pump valve to its state register at addr and
// its duty-cycle register at percentAddr.
func NewReceiverValve(store entity.Store, pin Pin, clock Clock, addr, percentAddr uint16) (*ReceiverValve, error) {
	v, err := NewValve(store, pin, clock, addr)
	if err != nil {
		return nil, err
	}
	percent, err := entity.NewInt(store, percentAddr, 0)
	if err != nil {
		return nil, err
	}
	return &ReceiverValve{Valve: *v, Percent: percent}, nil
}

func (v *ReceiverValve) Open() {
	if v.switchTo(true) {
		v.start = v.lastChange
	}
}

func (v *ReceiverValve) Close() {
	if v.switchTo(false) {
		v.stop = v.lastChange
	}
}

func (v *ReceiverValve) Toggle() {
	if v.IsOpen() {
		v.Close()
	} else {
		v.Open()
	}
}

// CalcPercent folds the open time since the last call into the total and
// republishes the duty cycle.
func (v *ReceiverValve) CalcPercent() {
	now := v.clock.Ticks()
	var worked int64
	if v.IsOpen() {
		worked = TicksDiff(now, v.start)
		v.start = now
	} else {
		worked = TicksDiff(v.stop, v.start)
		v.start, v.stop = 0, 0
	}
	if worked > 0 {
		v.total += uint64(worked)
	}
	if d := TicksDiff(now, v.last); d > 0 {
		v.elapsed += uint64(d)
	}
	v.last = now
	if v.elapsed == 0 {
		return
	}
	percent := v.total * 100 / v.elapsed
	if percent > 100 {
		percent = 100
	}
	v.Percent.Set(int(percent))
}
