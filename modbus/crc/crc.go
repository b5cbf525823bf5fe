// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the Modbus RTU CRC-16 (reflected polynomial 0xA001).
package crc

// CRC is a running Modbus checksum.
type CRC struct {
	high byte
	low  byte
}

// Reset puts the accumulator back to its initial value 0xFFFF.
func (crc *CRC) Reset() *CRC {
	crc.high = 0xFF
	crc.low = 0xFF
	return crc
}

// PushBytes feeds bs into the checksum.
func (crc *CRC) PushBytes(bs []byte) *CRC {
	v := crc.Value()
	for _, b := range bs {
		v ^= uint16(b)
		for i := 0; i < 8; i++ {
			if v&1 != 0 {
				v = (v >> 1) ^ 0xA001
			} else {
				v >>= 1
			}
		}
	}
	crc.high = byte(v >> 8)
	crc.low = byte(v)
	return crc
}

// Value returns the checksum. On the wire the low byte is sent first.
func (crc *CRC) Value() uint16 {
	return uint16(crc.high)<<8 | uint16(crc.low)
}

// Checksum returns the CRC of data. Empty data yields 0xFFFF.
func Checksum(data []byte) uint16 {
	var c CRC
	return c.Reset().PushBytes(data).Value()
}

// Append appends the CRC of frame to it, low byte first.
func Append(frame []byte) []byte {
	sum := Checksum(frame)
	return append(frame, byte(sum), byte(sum>>8))
}
