// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/vacuum-controller/modbus/crc"
)

func readHolding() []byte {
	return crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
}

func writeMultiple() []byte {
	return crc.Append([]byte{0x01, 0x10, 0x00, 0x04, 0x00, 0x02, 0x04, 0x01, 0xF4, 0x00, 0xC8})
}

func TestAssemblerWholeFrame(t *testing.T) {
	a := NewAssembler(1)
	frame, ok := a.Feed(readHolding())
	require.True(t, ok)
	assert.Equal(t, readHolding(), frame)
	assert.Equal(t, StateComplete, a.State())
	assert.Zero(t, a.Buffered())
}

func TestAssemblerByteByByte(t *testing.T) {
	a := NewAssembler(1)
	raw := writeMultiple()
	for i, b := range raw {
		frame, ok := a.Feed([]byte{b})
		if i < len(raw)-1 {
			require.False(t, ok, "completed early at byte %d", i)
			assert.Equal(t, StateAccumulating, a.State())
			continue
		}
		require.True(t, ok)
		assert.Equal(t, raw, frame)
	}
}

func TestAssemblerEmptyChunk(t *testing.T) {
	a := NewAssembler(1)
	_, ok := a.Feed(nil)
	assert.False(t, ok)
	assert.Equal(t, StateIdle, a.State())
}

func TestAssemblerForeignAddress(t *testing.T) {
	a := NewAssembler(1)
	other := crc.Append([]byte{0x02, 0x03, 0x00, 0x00, 0x00, 0x0A})
	_, ok := a.Feed(other)
	assert.False(t, ok)
	assert.Equal(t, StateIdle, a.State())
	assert.Zero(t, a.Buffered())

	// The next frame for us is still recognised.
	_, ok = a.Feed(readHolding())
	assert.True(t, ok)
}

func TestAssemblerBadCRCDropped(t *testing.T) {
	a := NewAssembler(1)
	raw := readHolding()
	raw[6] ^= 0x55
	_, ok := a.Feed(raw)
	assert.False(t, ok)
	assert.Equal(t, StateIdle, a.State())
	assert.Zero(t, a.Buffered())
}

func TestAssemblerTrailingBytesCleared(t *testing.T) {
	a := NewAssembler(1)
	chunk := append(readHolding(), 0x01, 0x03)
	frame, ok := a.Feed(chunk)
	require.True(t, ok)
	assert.Len(t, frame, 8)
	assert.Zero(t, a.Buffered())
}

func TestAssemblerSplitMultiWrite(t *testing.T) {
	a := NewAssembler(1)
	raw := writeMultiple()
	_, ok := a.Feed(raw[:8])
	assert.False(t, ok)
	assert.Equal(t, StateAccumulating, a.State())
	frame, ok := a.Feed(raw[8:])
	require.True(t, ok)
	assert.Equal(t, raw, frame)
}
