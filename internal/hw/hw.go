// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package hw talks to the sensor bus over any tinygo drivers.I2C.
package hw

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// MuxChannels is the number of downstream buses of the multiplexer.
const MuxChannels = 8

// Mux is a TCA9548A style multiplexer: one control byte, bit n enables
// downstream bus n.
type Mux struct {
	bus     drivers.I2C
	Address uint16
}

func NewMux(bus drivers.I2C, address uint16) *Mux {
	return &Mux{bus: bus, Address: address}
}

// Select enables channel and disables all others.
func (m *Mux) Select(channel int) error {
	if channel < 0 || channel >= MuxChannels {
		return fmt.Errorf("mux channel %d out of range", channel)
	}
	if err := m.bus.Tx(m.Address, []byte{1 << channel}, nil); err != nil {
		return fmt.Errorf("mux 0x%02X select %d: %w", m.Address, channel, err)
	}
	return nil
}

// LPS22 register map.
const (
	RegWhoAmI   = 0x0F
	RegCtrl1    = 0x10
	RegPressOut = 0x28 // XL, L, H with auto-increment

	WhoAmI = 0xB1
	// ctrl1: 25 Hz output data rate, block data update.
	ctrl1Run = 0x32

	// PressureScale is LSB per hPa.
	PressureScale = 4096
)

// Sensor reads an LPS22 style barometer on the selected bus.
type Sensor struct {
	bus     drivers.I2C
	Address uint16
}

func NewSensor(bus drivers.I2C, address uint16) *Sensor {
	return &Sensor{bus: bus, Address: address}
}

// Init checks the chip id and starts continuous conversion.
func (s *Sensor) Init() error {
	id := make([]byte, 1)
	if err := s.bus.Tx(s.Address, []byte{RegWhoAmI}, id); err != nil {
		return fmt.Errorf("sensor 0x%02X: %w", s.Address, err)
	}
	if id[0] != WhoAmI {
		return fmt.Errorf("sensor 0x%02X: unexpected chip id 0x%02X", s.Address, id[0])
	}
	return s.bus.Tx(s.Address, []byte{RegCtrl1, ctrl1Run}, nil)
}

// Pressure returns the last conversion in hPa.
func (s *Sensor) Pressure() (float64, error) {
	raw := make([]byte, 3)
	if err := s.bus.Tx(s.Address, []byte{RegPressOut}, raw); err != nil {
		return 0, fmt.Errorf("sensor 0x%02X: %w", s.Address, err)
	}
	return DecodePressure(raw), nil
}

// DecodePressure converts the 24-bit two's complement output to hPa.
func DecodePressure(raw []byte) float64 {
	v := int32(uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16)
	v = v << 8 >> 8
	return float64(v) / PressureScale
}

// EncodePressure is the inverse of DecodePressure.
func EncodePressure(hpa float64) []byte {
	v := int32(hpa * PressureScale)
	return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
}
