// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/vacuum-controller/internal/slave/entity"
)

// Bus remembers the selected channel so consecutive reads of one sensor do
// not touch the multiplexer.
type Bus struct {
	sw      BusSwitch
	retries int
	active  int
}

// NewBus wraps sw. No channel is selected until the first SwitchTo.
func NewBus(sw BusSwitch, retries int) *Bus {
	return &Bus{sw: sw, retries: retries, active: -1}
}

// SwitchTo selects channel, retrying up to the configured attempts.
func (b *Bus) SwitchTo(channel int) error {
	if b.active == channel {
		return nil
	}
	err := retry("switch bus", b.retries, func() error {
		return b.sw.Select(channel)
	})
	if err != nil {
		b.active = -1
		return err
	}
	b.active = channel
	return nil
}

// BusSensor is one pressure sensor behind the bus, with its error code and
// pressure published as registers.
type BusSensor struct {
	Error    *entity.Int
	Pressure *entity.Float

	bus        *Bus
	channel    int
	sensor     PressureSensor
	clock      Clock
	retries    int
	lastUpdate uint32
	latched    ErrorCode
}

// NewBusSensor binds a sensor on channel to its error register at errAddr and
// pressure registers at pressAddr, then initializes it.
func NewBusSensor(store entity.Store, bus *Bus, channel int, sensor PressureSensor, clock Clock, retries int, errAddr, pressAddr uint16) (*BusSensor, error) {
	errEntity, err := entity.NewInt(store, errAddr, int(NoError))
	if err != nil {
		return nil, fmt.Errorf("sensor %d error register: %w", channel, err)
	}
	pressEntity, err := entity.NewFloat(store, pressAddr, 0)
	if err != nil {
		return nil, fmt.Errorf("sensor %d pressure register: %w", channel, err)
	}
	s := &BusSensor{
		Error:    errEntity,
		Pressure: pressEntity,
		bus:      bus,
		channel:  channel,
		sensor:   sensor,
		clock:    clock,
		retries:  retries,
	}
	s.Initialize()
	return s, nil
}

// Channel returns the bus channel of the sensor.
func (s *BusSensor) Channel() int {
	return s.channel
}

// Code returns the current error code.
func (s *BusSensor) Code() ErrorCode {
	return ErrorCode(s.Error.Value())
}

// Faulted reports whether the sensor currently carries an error.
func (s *BusSensor) Faulted() bool {
	return s.Code() != NoError
}

// Latched returns the fault held by Latch, or NoError.
func (s *BusSensor) Latched() ErrorCode {
	return s.latched
}

// Latch publishes code and keeps it published across good readings
// until Release.
func (s *BusSensor) Latch(code ErrorCode) {
	s.latched = code
	s.setError(code, nil)
}

// Release drops a latched fault. The next reading decides the code.
func (s *BusSensor) Release() {
	if s.latched == NoError {
		return
	}
	s.latched = NoError
	s.setError(NoError, nil)
}

// setError publishes code and logs transitions only. A latched fault
// replaces NoError.
func (s *BusSensor) setError(code ErrorCode, cause error) {
	if code == NoError && s.latched != NoError {
		code = s.latched
	}
	if !s.Error.Set(int(code)) {
		return
	}
	if code == NoError {
		slog.Info("Sensor recovered", "channel", s.channel)
		return
	}
	slog.Warn("Sensor fault", "channel", s.channel, "code", code, "err", cause)
}

// Initialize selects the channel and initializes the sensor chip.
func (s *BusSensor) Initialize() {
	if err := s.bus.SwitchTo(s.channel); err != nil {
		s.setError(SwitchBusError, err)
		return
	}
	if err := retry("init sensor", s.retries, s.sensor.Init); err != nil {
		s.setError(InitSensorError, err)
		return
	}
	s.setError(NoError, nil)
}

// UpdatePressure reads the sensor once. A reading equal to the previous one,
// or the sensor's no-data value, counts as no update; after
// PressureUpdateCriticalTime without an update the sensor is faulted.
func (s *BusSensor) UpdatePressure() {
	if err := s.bus.SwitchTo(s.channel); err != nil {
		s.setError(SwitchBusError, err)
		return
	}
	var value float64
	err := retry("read pressure", s.retries, func() error {
		v, err := s.sensor.Pressure()
		value = v
		return err
	})
	if err != nil {
		s.setError(InitSensorError, err)
		return
	}

	if value == s.Pressure.Value() || value == NoDataPressure {
		s.checkUpdateTime()
		return
	}
	s.Pressure.Set(value)
	s.lastUpdate = s.clock.Ticks()
	s.setError(NoError, nil)
}

func (s *BusSensor) checkUpdateTime() {
	if TicksDiff(s.clock.Ticks(), s.lastUpdate) >= PressureUpdateCriticalTime {
		s.setError(UpdateTimeError, nil)
		return
	}
	s.setError(NoError, nil)
}

// Value returns the last published pressure.
func (s *BusSensor) Value() float64 {
	return s.Pressure.Value()
}
