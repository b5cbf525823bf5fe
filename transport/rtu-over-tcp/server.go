// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	rtupacket "github.com/ffutop/vacuum-controller/modbus/rtu"
	"github.com/ffutop/vacuum-controller/transport"
)

// Server implements a Modbus RTU over TCP Server.
// It listens on a TCP port and handles incoming connections as Modbus RTU streams.
type Server struct {
	Address string
	SlaveID byte

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string, slaveID byte) *Server {
	return &Server{
		Address: address,
		SlaveID: slaveID,
	}
}

// Start starts the TCP server.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("RTU over TCP server listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		go s.handleConnection(ctx, conn, handler)
	}
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.RequestHandler) {
	defer conn.Close()
	slog.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	asm := rtupacket.NewAssembler(s.SlaveID)
	buf := make([]byte, rtupacket.MaxSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if frame, ok := asm.Feed(buf[:n]); ok {
				if err := s.respond(ctx, conn, frame, handler); err != nil {
					slog.Error("Failed to write response", "err", err)
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				slog.Error("Connection read error", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}
	}
}

func (s *Server) respond(ctx context.Context, w io.Writer, frame []byte, handler transport.RequestHandler) error {
	adu, err := rtupacket.Decode(frame)
	if err != nil {
		slog.Warn("RTU frame decode failed", "err", err)
		return nil
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
	respRaw, err := respAdu.Encode()
	if err != nil {
		slog.Error("Failed to encode response", "err", err)
		return nil
	}
	_, err = w.Write(respRaw)
	return err
}
