// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/ffutop/vacuum-controller/transport"
)

// Server implements a Modbus TCP Server.
type Server struct {
	Address string
	SlaveID byte
	Handler transport.RequestHandler

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new TCP Server answering for slaveID.
func NewServer(address string, slaveID byte) *Server {
	return &Server{
		Address: address,
		SlaveID: slaveID,
	}
}

// Start starts the TCP server.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	s.Handler = handler
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("Modbus TCP server listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Check if closed
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
		go s.handleConnection(ctx, conn)
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

// readADU reads one MBAP framed request: the 7-byte header, then the
// unit id's remaining Length-1 bytes.
func readADU(r io.Reader) ([]byte, error) {
	raw := make([]byte, tcpMaxSize)
	if _, err := io.ReadFull(r, raw[:tcpHeaderSize]); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(raw[4:6]))
	if length < 2 || tcpHeaderSize-1+length > tcpMaxSize {
		return nil, fmt.Errorf("modbus: invalid MBAP length %d", length)
	}
	total := tcpHeaderSize - 1 + length
	if _, err := io.ReadFull(r, raw[tcpHeaderSize:total]); err != nil {
		return nil, err
	}
	return raw[:total], nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	slog.Info("New TCP client connected", "addr", conn.RemoteAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		raw, err := readADU(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				slog.Info("TCP client disconnected", "addr", conn.RemoteAddr())
			} else {
				slog.Error("Failed to read from connection", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}

		adu, err := Decode(raw)
		if err != nil {
			slog.Error("Failed to decode TCP request", "err", err)
			continue
		}

		// Unit ids 0 and 0xFF address the device itself on Modbus TCP.
		unit := adu.SlaveID
		if s.SlaveID != 0 && (unit == 0 || unit == 0xFF) {
			unit = s.SlaveID
		}

		respPdu, err := s.Handler(ctx, unit, adu.Pdu)
		if err != nil {
			slog.Error("Handler failed", "err", err)
			respPdu = transport.ErrorResponse(adu.Pdu, err)
		}

		respAdu := &ApplicationDataUnit{
			TransactionID: adu.TransactionID,
			ProtocolID:    adu.ProtocolID,
			SlaveID:       adu.SlaveID,
			Pdu:           respPdu,
		}

		respRaw, err := respAdu.Encode()
		if err != nil {
			slog.Error("Failed to encode TCP response", "err", err)
			continue
		}

		if _, err := conn.Write(respRaw); err != nil {
			slog.Error("Failed to write response to connection", "err", err)
			return
		}
	}
}
