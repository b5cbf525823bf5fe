// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"
	"io"

	"github.com/grid-x/serial"
	bugserial "go.bug.st/serial"

	"github.com/ffutop/vacuum-controller/internal/config"
)

// Direction switches a half-duplex transceiver between receive and transmit.
type Direction interface {
	SetTransmit(on bool) error
}

// NoDirection is used when the transceiver switches by itself or the kernel does it.
type NoDirection struct{}

func (NoDirection) SetTransmit(bool) error { return nil }

// rtsDirection drives the transceiver's DE/RE pins from the RTS line.
type rtsDirection struct {
	port bugserial.Port
}

func (d rtsDirection) SetTransmit(on bool) error {
	return d.port.SetRTS(on)
}

// openPort opens the serial line described by cfg.
//
// "rts" uses go.bug.st/serial, which exposes the modem lines. Everything
// else uses grid-x/serial, with the kernel RS485 options from cfg.
func openPort(cfg config.SerialConfig) (io.ReadWriteCloser, Direction, error) {
	switch cfg.Direction {
	case "rts":
		return openRTS(cfg)
	case "rs485", "none":
		port, err := serial.Open(&serial.Config{
			Address:  cfg.Device,
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			StopBits: cfg.StopBits,
			Parity:   cfg.Parity,
			Timeout:  cfg.Timeout,
			RS485: serial.RS485Config{
				Enabled:            cfg.Direction == "rs485",
				DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
				DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
				RtsHighDuringSend:  cfg.RtsHighDuringSend,
				RtsHighAfterSend:   cfg.RtsHighAfterSend,
				RxDuringTx:         cfg.RxDuringTx,
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not open %s: %w", cfg.Device, err)
		}
		return port, NoDirection{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown direction control %q", cfg.Direction)
	}
}

func openRTS(cfg config.SerialConfig) (io.ReadWriteCloser, Direction, error) {
	mode := &bugserial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parity(cfg.Parity),
		StopBits: bugserial.OneStopBit,
	}
	if cfg.StopBits == 2 {
		mode.StopBits = bugserial.TwoStopBits
	}
	port, err := bugserial.Open(cfg.Device, mode)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open %s: %w", cfg.Device, err)
	}
	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("could not set read timeout on %s: %w", cfg.Device, err)
	}
	dir := rtsDirection{port: port}
	if err := dir.SetTransmit(false); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("could not release RTS on %s: %w", cfg.Device, err)
	}
	return port, dir, nil
}

func parity(p string) bugserial.Parity {
	switch p {
	case "E":
		return bugserial.EvenParity
	case "O":
		return bugserial.OddParity
	default:
		return bugserial.NoParity
	}
}
