// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package tcp

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/vacuum-controller/modbus"
)

func mbap(tid uint16, unit byte, pdu []byte) []byte {
	adu := make([]byte, 7+len(pdu))
	binary.BigEndian.PutUint16(adu[0:], tid)
	binary.BigEndian.PutUint16(adu[4:], uint16(1+len(pdu)))
	adu[6] = unit
	copy(adu[7:], pdu)
	return adu
}

func startServer(t *testing.T, ctx context.Context, handler func(context.Context, byte, modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", 1)
	go func() {
		if err := s.Start(ctx, handler); err != nil {
			t.Logf("Server stopped: %v", err)
		}
	}()
	for i := 0; i < 50 && s.Addr() == nil; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, s.Addr(), "server did not start")
	return s
}

func TestServer_Start_And_Handle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var units []byte
	s := startServer(t, ctx, func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		units = append(units, slaveID)
		switch pdu.FunctionCode {
		case modbus.FuncCodeReadHoldingRegisters:
			return modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, 0xAA, 0xBB}}, nil
		case modbus.FuncCodeWriteMultipleRegisters:
			return modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: pdu.Data[:4]}, nil
		}
		return modbus.Exception(pdu.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(time.Second)))

	_, err = conn.Write(mbap(123, 1, []byte{0x03, 0x00, 0x01, 0x00, 0x01}))
	require.NoError(t, err)
	resp := make([]byte, 11)
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	assert.Equal(t, mbap(123, 1, []byte{0x03, 0x02, 0xAA, 0xBB}), resp)

	// Header and body arrive in separate segments.
	req := mbap(124, 0xFF, []byte{0x10, 0x00, 0x01, 0x00, 0x01, 0x02, 0x12, 0x34})
	_, err = conn.Write(req[:5])
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = conn.Write(req[5:])
	require.NoError(t, err)
	resp = make([]byte, 12)
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	assert.Equal(t, mbap(124, 0xFF, []byte{0x10, 0x00, 0x01, 0x00, 0x01}), resp)

	// The broadcast unit id is answered as this slave.
	assert.Equal(t, []byte{1, 1}, units)
}

func TestServer_HandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := startServer(t, ctx, func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return modbus.ProtocolDataUnit{}, io.ErrUnexpectedEOF
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(time.Second)))

	_, err = conn.Write(mbap(7, 1, []byte{0x03, 0x00, 0x00, 0x00, 0x01}))
	require.NoError(t, err)
	resp := make([]byte, 9)
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	assert.Equal(t, mbap(7, 1, []byte{0x83, modbus.ExceptionCodeServerDeviceFailure}), resp)
}

func TestServer_InvalidLengthClosesConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := startServer(t, ctx, func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return pdu, nil
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	hdr := mbap(1, 1, nil)
	binary.BigEndian.PutUint16(hdr[4:], 1000)
	_, err = conn.Write(hdr)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = conn.Read(make([]byte, 16))
	assert.Error(t, err)
}

func TestReadADU(t *testing.T) {
	frame := mbap(9, 1, []byte{0x03, 0x00, 0x00, 0x00, 0x02})
	raw, err := readADU(bytes.NewReader(append(frame, 0xEE)))
	require.NoError(t, err)
	assert.Equal(t, frame, raw)

	_, err = readADU(bytes.NewReader(frame[:4]))
	assert.Error(t, err)
}

func TestServer_LifeCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer("127.0.0.1:0", 1)

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx, func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
			return pdu, nil
		})
	}()
	for i := 0; i < 50 && s.Addr() == nil; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

func TestDecode(t *testing.T) {
	adu, err := Decode(mbap(7, 3, []byte{0x03, 0x00, 0x04, 0x00, 0x01}))
	require.NoError(t, err)
	assert.Equal(t, uint16(7), adu.TransactionID)
	assert.Equal(t, byte(3), adu.SlaveID)
	assert.Equal(t, byte(0x03), adu.Pdu.FunctionCode)
	assert.Equal(t, []byte{0x00, 0x04, 0x00, 0x01}, adu.Pdu.Data)

	foreign := mbap(7, 3, []byte{0x03, 0x00, 0x04, 0x00, 0x01})
	foreign[3] = 0x01
	_, err = Decode(foreign)
	assert.Error(t, err, "protocol id other than Modbus")

	short := mbap(7, 3, []byte{0x03, 0x00, 0x04, 0x00, 0x01})
	_, err = Decode(short[:9])
	assert.Error(t, err, "length field disagrees with the frame")

	_, err = Decode([]byte{0, 1, 0, 0, 0, 1, 3})
	assert.Error(t, err)
}

func TestEncodeSetsLength(t *testing.T) {
	adu := &ApplicationDataUnit{
		TransactionID: 0x1234,
		SlaveID:       1,
		Pdu:           modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, 0x01, 0xF4}},
	}
	raw, err := adu.Encode()
	require.NoError(t, err)
	assert.Equal(t, mbap(0x1234, 1, []byte{0x03, 0x02, 0x01, 0xF4}), raw)
	assert.Equal(t, uint16(5), adu.Length)

	adu.Pdu.Data = make([]byte, 253)
	_, err = adu.Encode()
	assert.Error(t, err)
}
