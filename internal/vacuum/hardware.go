// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import "time"

// Pin is a digital output driving one solenoid valve.
type Pin interface {
	Set(high bool)
}

// BusSwitch routes the shared sensor bus to one channel.
type BusSwitch interface {
	Select(channel int) error
}

// PressureSensor is the sensor on the currently selected channel.
type PressureSensor interface {
	Init() error
	Pressure() (float64, error)
}

// Clock is a wrapping millisecond counter.
type Clock interface {
	Ticks() uint32
}

// TicksDiff returns end-start in milliseconds, correct across one wrap of the counter.
func TicksDiff(end, start uint32) int64 {
	return int64(int32(end - start))
}

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a clock at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Ticks() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Hardware is everything the controller drives.
type Hardware struct {
	Bus         BusSwitch
	Sensor      PressureSensor
	ReceiverPin Pin
	TablePins   [TableCount]Pin
	VentPins    [TableCount]Pin
	Clock       Clock
}
