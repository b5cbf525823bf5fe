// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/vacuum-controller/modbus"
	"github.com/ffutop/vacuum-controller/modbus/crc"
)

// CalculateRequestLength returns the expected total length of a request ADU.
//
// Write-multiple requests carry their byte count at offset 6 and are
// 9 + byte count long. Every other request is a fixed 8 bytes.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}
		return 9 + int(header[6]), nil
	default:
		// [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return MinRequestSize, nil
	}
}

// CheckFrame reports whether frame is at least MinRequestSize long and its
// trailing two bytes hold the CRC of the rest, low byte first.
func CheckFrame(frame []byte) bool {
	n := len(frame)
	if n < MinRequestSize {
		return false
	}
	received := uint16(frame[n-1])<<8 | uint16(frame[n-2])
	return crc.Checksum(frame[:n-2]) == received
}
