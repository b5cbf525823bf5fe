// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

// State is the progress of an Assembler through the current frame.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateComplete:
		return "complete"
	}
	return "unknown"
}

// Assembler collects received bytes into request frames addressed to one slave.
//
// Bytes for other slaves and frames with a bad CRC are dropped without a
// reply. A completed frame clears the whole buffer, including any bytes
// that arrived after it.
type Assembler struct {
	SlaveID byte

	buf   []byte
	state State
}

// NewAssembler returns an idle assembler for slaveID.
func NewAssembler(slaveID byte) *Assembler {
	return &Assembler{
		SlaveID: slaveID,
		buf:     make([]byte, 0, MaxSize),
	}
}

// State returns the state after the last Feed.
func (a *Assembler) State() State {
	return a.state
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// Reset drops any partial frame.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.state = StateIdle
}

// Feed appends chunk and returns a frame once one is complete and its CRC checks.
func (a *Assembler) Feed(chunk []byte) ([]byte, bool) {
	a.buf = append(a.buf, chunk...)

	if len(a.buf) == 0 {
		a.state = StateIdle
		return nil, false
	}
	if a.buf[0] != a.SlaveID {
		a.Reset()
		return nil, false
	}
	if len(a.buf) < MinRequestSize {
		a.state = StateAccumulating
		return nil, false
	}

	expected, err := CalculateRequestLength(a.buf[1], a.buf)
	if err != nil {
		a.Reset()
		return nil, false
	}
	if len(a.buf) < expected {
		a.state = StateAccumulating
		return nil, false
	}

	candidate := a.buf[:expected]
	if !CheckFrame(candidate) {
		a.Reset()
		return nil, false
	}

	frame := make([]byte, expected)
	copy(frame, candidate)
	a.buf = a.buf[:0]
	a.state = StateComplete
	return frame, true
}
