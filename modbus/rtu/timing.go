// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"math"
	"time"
)

// highSpeedSilentInterval is used above 19200 baud.
const highSpeedSilentInterval = 7 * time.Millisecond

// SilentInterval returns the line silence after a transmitted frame:
// 3.5 characters of 11 bits each, rounded to the microsecond.
func SilentInterval(baudRate int) time.Duration {
	if baudRate <= 0 || baudRate > 19200 {
		return highSpeedSilentInterval
	}
	us := math.Round(3.5 * 11 * 1e6 / float64(baudRate))
	return time.Duration(us) * time.Microsecond
}
