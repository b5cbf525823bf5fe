// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

// Frame sizes in bytes, CRC included.
const (
	// MinSize is an address, a function code and the CRC.
	MinSize = 4
	// MaxSize is the longest frame on a serial line.
	MaxSize = 256

	// MinRequestSize is the shortest request a slave accepts:
	// address, function, two 16-bit fields and the CRC.
	MinRequestSize = 8
)
