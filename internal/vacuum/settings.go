// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/vacuum-controller/internal/slave/entity"
)

// Settings are the host-tunable thresholds and times shared by all devices.
type Settings struct {
	StartPumpPress      *entity.Int
	StopPumpPress       *entity.Int
	StartVacTable       *entity.Int
	NormalPress         *entity.Int
	PumpWorkTime        *entity.Int
	ImpulseTime         *entity.Int
	MinValveCyclePeriod *entity.Int

	// start and stop are the pump band in effect. An inverted pair written
	// by the host is held back until it is fixed.
	start, stop int
	rejected    bool
	bad         [2]int

	// tunables spans AddrStartPumpPress..AddrImpulseTime so Restore puts
	// the whole block back in one store write.
	tunables *entity.Array
	initial  Params
}

// NewSettings writes p into the store and returns entities bound to it.
func NewSettings(store entity.Store, p Params) (*Settings, error) {
	s := &Settings{}
	fields := []struct {
		dst   **entity.Int
		addr  uint16
		value int
		name  string
	}{
		{&s.StartPumpPress, AddrStartPumpPress, p.StartPumpPress, "start_pump_press"},
		{&s.StopPumpPress, AddrStopPumpPress, p.StopPumpPress, "stop_pump_press"},
		{&s.StartVacTable, AddrStartVacTable, p.StartVacTable, "start_vac_table"},
		{&s.NormalPress, AddrNormalPress, p.NormalPress, "normal_press"},
		{&s.PumpWorkTime, AddrPumpWorkTime, p.PumpWorkTime, "pump_work_time"},
		{&s.ImpulseTime, AddrImpulseTime, p.ImpulseTime, "impulse_time"},
		{&s.MinValveCyclePeriod, AddrMinValveCyclePeriod, p.MinValveCyclePeriod, "min_valve_cycle_period"},
	}
	for _, f := range fields {
		e, err := entity.NewInt(store, f.addr, f.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = e
	}
	tunables, err := entity.NewArray(store, AddrStartPumpPress, p.tunables())
	if err != nil {
		return nil, fmt.Errorf("tunables: %w", err)
	}
	s.tunables = tunables
	s.start, s.stop = p.StartPumpPress, p.StopPumpPress
	s.initial = p
	return s, nil
}

// tunables returns the contiguous host-tunable registers in address order.
func (p Params) tunables() []uint16 {
	return []uint16{
		uint16(p.StartPumpPress), uint16(p.StopPumpPress), uint16(p.StartVacTable),
		uint16(p.NormalPress), uint16(p.PumpWorkTime), uint16(p.ImpulseTime),
	}
}

func (s *Settings) all() []*entity.Int {
	return []*entity.Int{
		s.StartPumpPress, s.StopPumpPress, s.StartVacTable, s.NormalPress,
		s.PumpWorkTime, s.ImpulseTime, s.MinValveCyclePeriod,
	}
}

// Resync reloads every setting from the store and re-checks the pump band.
func (s *Settings) Resync() error {
	for _, e := range s.all() {
		if _, err := e.Get(); err != nil {
			return err
		}
	}
	s.checkBand()
	return nil
}

func (s *Settings) checkBand() {
	start, stop := s.StartPumpPress.Value(), s.StopPumpPress.Value()
	if start > stop {
		if s.rejected {
			slog.Info("Pump band accepted", "start", start, "stop", stop)
			s.rejected = false
		}
		s.start, s.stop = start, stop
		return
	}
	if s.rejected && s.bad == [2]int{start, stop} {
		return
	}
	s.rejected, s.bad = true, [2]int{start, stop}
	slog.Warn("Start pump pressure must be above stop pump pressure, keeping the previous band",
		"start", start, "stop", stop, "start_in_use", s.start, "stop_in_use", s.stop)
}

// Restore writes the values the settings were created with back to the
// store and puts them in effect.
func (s *Settings) Restore() error {
	if _, err := s.tunables.Get(); err != nil {
		return err
	}
	s.tunables.Set(s.initial.tunables())
	if err := restore(s.MinValveCyclePeriod, s.initial.MinValveCyclePeriod); err != nil {
		return err
	}
	return s.Resync()
}

// restore forces v into the register of e whatever its cache holds.
func restore(e *entity.Int, v int) error {
	if _, err := e.Get(); err != nil {
		return err
	}
	if e.Set(v) {
		return nil
	}
	return e.Sync()
}

// PumpBand returns the start and stop pump pressures in effect.
func (s *Settings) PumpBand() (start, stop int) {
	return s.start, s.stop
}

// Params returns the values in effect.
func (s *Settings) Params() Params {
	return Params{
		StartPumpPress:      s.start,
		StopPumpPress:       s.stop,
		StartVacTable:       s.StartVacTable.Value(),
		NormalPress:         s.NormalPress.Value(),
		PumpWorkTime:        s.PumpWorkTime.Value(),
		ImpulseTime:         s.ImpulseTime.Value(),
		MinValveCyclePeriod: s.MinValveCyclePeriod.Value(),
	}
}
