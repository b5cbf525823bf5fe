// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"math"
)

// PackRegisters encodes values as consecutive big-endian words.
func PackRegisters(values []uint16) []byte {
	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.BigEndian.PutUint16(raw[i*2:], v)
	}
	return raw
}

// UnpackRegisters decodes big-endian words. A trailing odd byte is ignored.
func UnpackRegisters(raw []byte) []uint16 {
	values := make([]uint16, len(raw)/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(raw[i*2:])
	}
	return values
}

// PackBits packs one bit per value, least significant bit first.
// Any non-zero value is a set bit.
func PackBits(values []uint16) []byte {
	raw := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v != 0 {
			raw[i/8] |= 1 << uint(i%8)
		}
	}
	return raw
}

// UnpackBits expands packed bits into 0/1 values, truncated to count.
func UnpackBits(raw []byte, count int) []uint16 {
	if count > len(raw)*8 {
		count = len(raw) * 8
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = uint16(raw[i/8]>>uint(i%8)) & 1
	}
	return values
}

// EncodeFloat returns the two registers holding v as an IEEE-754 single.
//
// The float's little-endian byte image is split into big-endian words:
// the first register carries bytes 0 and 1, the second bytes 2 and 3.
func EncodeFloat(v float64) []uint16 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
	return UnpackRegisters(b[:])
}

// DecodeFloat is the inverse of EncodeFloat. It returns 0 unless exactly
// two registers are given.
func DecodeFloat(values []uint16) float64 {
	if len(values) != 2 {
		return 0
	}
	raw := PackRegisters(values)
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
}

// Round rounds v to digits decimal places. digits <= 0 returns v unchanged.
func Round(v float64, digits int) float64 {
	if digits <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}
