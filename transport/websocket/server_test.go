// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/vacuum-controller/modbus"
	"github.com/ffutop/vacuum-controller/modbus/crc"
)

func dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	s := NewServer("127.0.0.1:0", "/modbus", 1)
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		if pdu.FunctionCode == modbus.FuncCodeReadHoldingRegisters {
			return modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, 0x12, 0x34}}, nil
		}
		return modbus.Exception(pdu.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
	go func() {
		if err := s.Start(ctx, handler); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()
	for i := 0; i < 50 && s.Addr() == nil; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, s.Addr(), "server did not start")

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/modbus", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	return conn
}

func TestServer_FrameAcrossMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := dial(t, ctx)

	req := crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, req[:4]))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, req[4:]))

	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, crc.Append([]byte{0x01, 0x03, 0x02, 0x12, 0x34}), data)
}

func TestServer_ExceptionReply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := dial(t, ctx)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, crc.Append([]byte{0x01, 0x2B, 0x00, 0x00, 0x00, 0x01})))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, crc.Append([]byte{0x01, 0xAB, 0x01}), data)
}

func TestServer_ForeignSlaveIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := dial(t, ctx)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, crc.Append([]byte{0x09, 0x03, 0x00, 0x00, 0x00, 0x01})))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
