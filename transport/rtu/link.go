// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"
	"io"
	"time"

	rtupacket "github.com/ffutop/vacuum-controller/modbus/rtu"
)

type drainer interface {
	Drain() error
}

// Link transmits frames on a half-duplex line.
//
// The transceiver is switched to transmit for the write, held there for
// the silent interval so the last character leaves the wire, then
// released back to receive.
type Link struct {
	w      io.Writer
	dir    Direction
	silent time.Duration
	sleep  func(time.Duration)
}

// NewLink creates a Link for w at baudRate. A nil dir means no direction control.
func NewLink(w io.Writer, dir Direction, baudRate int) *Link {
	if dir == nil {
		dir = NoDirection{}
	}
	return &Link{
		w:      w,
		dir:    dir,
		silent: rtupacket.SilentInterval(baudRate),
		sleep:  time.Sleep,
	}
}

// SilentInterval returns the pause held after each frame.
func (l *Link) SilentInterval() time.Duration {
	return l.silent
}

// Transmit writes frame with the transceiver in transmit mode.
func (l *Link) Transmit(frame []byte) (err error) {
	if err := l.dir.SetTransmit(true); err != nil {
		return fmt.Errorf("failed to switch to transmit: %w", err)
	}
	defer func() {
		if rerr := l.dir.SetTransmit(false); rerr != nil && err == nil {
			err = fmt.Errorf("failed to switch to receive: %w", rerr)
		}
	}()

	if _, err := l.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if d, ok := l.w.(drainer); ok {
		if err := d.Drain(); err != nil {
			return fmt.Errorf("failed to drain: %w", err)
		}
	}
	l.sleep(l.silent)
	return nil
}
