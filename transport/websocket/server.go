// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package websocket serves Modbus RTU frames carried in binary WebSocket
// messages. A frame may span several messages; text messages are ignored.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	rtupacket "github.com/ffutop/vacuum-controller/modbus/rtu"
	"github.com/ffutop/vacuum-controller/transport"
)

// Server implements a Modbus RTU over WebSocket Server.
type Server struct {
	Address string
	Path    string
	SlaveID byte

	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// NewServer creates a new WebSocket Server answering for slaveID on path.
func NewServer(address, path string, slaveID byte) *Server {
	return &Server{
		Address: address,
		Path:    path,
		SlaveID: slaveID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  rtupacket.MaxSize,
			WriteBufferSize: rtupacket.MaxSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Start serves WebSocket connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.Path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "err", err)
			return
		}
		s.handleConnection(ctx, conn, handler)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.mu.Lock()
	s.listener = listener
	s.srv = srv
	s.mu.Unlock()
	slog.Info("RTU over WebSocket server listening", "addr", listener.Addr(), "path", s.Path)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
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

// Close stops the HTTP server and its listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return s.srv.Close()
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn, handler transport.RequestHandler) {
	defer conn.Close()
	slog.Info("New WebSocket client connected", "addr", conn.RemoteAddr())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	asm := rtupacket.NewAssembler(s.SlaveID)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				slog.Error("WebSocket read error", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		frame, ok := asm.Feed(data)
		if !ok {
			continue
		}
		resp, err := s.response(ctx, frame, handler)
		if err != nil {
			slog.Error("Failed to build response", "err", err)
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, resp); err != nil {
			slog.Error("Failed to write response", "err", err)
			return
		}
	}
}

func (s *Server) response(ctx context.Context, frame []byte, handler transport.RequestHandler) ([]byte, error) {
	adu, err := rtupacket.Decode(frame)
	if err != nil {
		return nil, err
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
	return respAdu.Encode()
}
