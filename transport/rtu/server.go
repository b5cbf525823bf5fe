// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ffutop/vacuum-controller/internal/config"
	rtupacket "github.com/ffutop/vacuum-controller/modbus/rtu"
	"github.com/ffutop/vacuum-controller/transport"
)

const (
	// pollInterval is how long the loop yields when the line is idle.
	pollInterval = time.Millisecond
	// maxReadBackoff caps the wait between failing reads.
	maxReadBackoff = time.Second
)

// readBackoff doubles the wait for every failed read in a row.
func readBackoff(failures int) time.Duration {
	return min(pollInterval<<min(failures, 10), maxReadBackoff)
}

// Server implements a Modbus RTU Server (Upstream).
// It acts as a Slave on the serial bus, waiting for requests from an external Master.
type Server struct {
	Config  config.SerialConfig
	SlaveID byte
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig, slaveID byte) *Server {
	return &Server{
		Config:  cfg,
		SlaveID: slaveID,
	}
}

// Start opens the serial port and serves requests until ctx is cancelled.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	port, dir, err := openPort(s.Config)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	defer port.Close()
	slog.Info("RTU Server listening", "device", s.Config.Device, "baud", s.Config.BaudRate,
		"slave", s.SlaveID, "direction", s.Config.Direction)

	// handle close
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.serve(ctx, port, NewLink(port, dir, s.Config.BaudRate), handler)
}

// serve reads whatever the port has, feeds it to the frame assembler and
// answers each complete frame before reading again.
func (s *Server) serve(ctx context.Context, r io.Reader, link *Link, handler transport.RequestHandler) error {
	asm := rtupacket.NewAssembler(s.SlaveID)
	buf := make([]byte, rtupacket.MaxSize)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			if frame, ok := asm.Feed(buf[:n]); ok {
				s.respond(ctx, frame, link, handler)
			}
		}
		if err != nil && ctx.Err() != nil {
			return nil
		}

		wait := pollInterval
		switch {
		case err != nil:
			if failures == 0 {
				slog.Warn("Serial read failed, backing off", "device", s.Config.Device, "err", err)
			}
			failures++
			wait = readBackoff(failures)
		case failures > 0:
			slog.Info("Serial read recovered", "device", s.Config.Device, "failures", failures)
			failures = 0
		}
		if n == 0 || err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
	}
}

func (s *Server) respond(ctx context.Context, frame []byte, link *Link, handler transport.RequestHandler) {
	adu, err := rtupacket.Decode(frame)
	if err != nil {
		slog.Debug("RTU frame decode failed", "err", err)
		return
	}

	respPdu, err := handler(ctx, adu.SlaveID, adu.Pdu)
	if err != nil {
		slog.Error("Handler failed", "err", err)
		respPdu = transport.ErrorResponse(adu.Pdu, err)
	}

	respAdu := &rtupacket.ApplicationDataUnit{
		SlaveID: adu.SlaveID,
		Pdu:     respPdu,
	}
	raw, err := respAdu.Encode()
	if err != nil {
		slog.Error("Failed to encode response", "err", err)
		return
	}
	if err := link.Transmit(raw); err != nil {
		slog.Error("Failed to transmit response", "err", err)
	}
}

func (s *Server) Close() error {
	return nil
}
