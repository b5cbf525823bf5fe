// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mirror

import (
	"github.com/ffutop/vacuum-controller/internal/slave/model"
)

// File layout. Every table is a full 16-bit address space of big-endian
// words so the file reads the same on any host.
//
//	0      magic "VRM1"
//	4      address offset of the store (0 zero-based, 1 one-based)
//	8      coils
//	+128K  discrete inputs
//	+128K  holding registers
//	+128K  input registers
const (
	magic      = "VRM1"
	headerSize = 8
	offsetByte = 4

	tableSize = (model.MaxAddress + 1) * 2
	totalSize = headerSize + 4*tableSize
)

func tableOffset(table model.TableType) (int, bool) {
	switch table {
	case model.TableCoils, model.TableDiscreteInputs, model.TableHoldingRegisters, model.TableInputRegisters:
		return headerSize + int(table)*tableSize, true
	}
	return 0, false
}
