// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import "fmt"

// ErrorCode is the fault a device reports through its error register.
type ErrorCode int

const (
	NoError ErrorCode = iota
	SwitchBusError
	InitSensorError
	UpdateTimeError
	// FilmError means the table valve re-triggers too fast: the film is
	// missing or does not seal.
	FilmError
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "ok"
	case SwitchBusError:
		return "switch bus error"
	case InitSensorError:
		return "sensor error"
	case UpdateTimeError:
		return "stale pressure"
	case FilmError:
		return "film error"
	}
	return fmt.Sprintf("error %d", int(c))
}
