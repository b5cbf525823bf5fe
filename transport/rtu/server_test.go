// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/vacuum-controller/internal/config"
	"github.com/ffutop/vacuum-controller/modbus"
	"github.com/ffutop/vacuum-controller/modbus/crc"
)

type mockPort struct {
	io.Reader
	io.Writer
}

func (m *mockPort) Close() error { return nil }

// chunkReader returns one chunk per Read, then reports an idle line.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

type recordingDirection struct {
	log []string
}

func (d *recordingDirection) SetTransmit(on bool) error {
	if on {
		d.log = append(d.log, "tx")
	} else {
		d.log = append(d.log, "rx")
	}
	return nil
}

type recordingWriter struct {
	dir *recordingDirection
	buf bytes.Buffer
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.dir.log = append(w.dir.log, "write")
	return w.buf.Write(p)
}

func newTestLink(w io.Writer, dir Direction, sleeps *[]time.Duration) *Link {
	l := NewLink(w, dir, 9600)
	l.sleep = func(d time.Duration) {
		*sleeps = append(*sleeps, d)
	}
	return l
}

func echoHandler(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	return modbus.ProtocolDataUnit{FunctionCode: pdu.FunctionCode, Data: []byte{0x02, 0x01, 0xF4}}, nil
}

func TestLinkTransmitSequence(t *testing.T) {
	dir := &recordingDirection{}
	w := &recordingWriter{dir: dir}
	var sleeps []time.Duration
	link := newTestLink(w, dir, &sleeps)

	require.NoError(t, link.Transmit([]byte{0x01, 0x02}))
	assert.Equal(t, []string{"tx", "write", "rx"}, dir.log)
	assert.Equal(t, []time.Duration{4010 * time.Microsecond}, sleeps)
	assert.Equal(t, []byte{0x01, 0x02}, w.buf.Bytes())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("line down") }

func TestLinkReleasesOnWriteError(t *testing.T) {
	dir := &recordingDirection{}
	var sleeps []time.Duration
	link := newTestLink(failingWriter{}, dir, &sleeps)

	assert.Error(t, link.Transmit([]byte{0x01}))
	assert.Equal(t, []string{"tx", "rx"}, dir.log)
}

func TestServe(t *testing.T) {
	req := crc.Append([]byte{0x01, 0x03, 0x00, 0x04, 0x00, 0x01})
	reader := &chunkReader{chunks: [][]byte{req[:3], req[3:]}}
	dir := &recordingDirection{}
	w := &recordingWriter{dir: dir}
	var sleeps []time.Duration

	s := NewServer(config.SerialConfig{BaudRate: 9600}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var calls int
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		calls++
		assert.Equal(t, byte(1), slaveID)
		assert.Equal(t, byte(0x03), pdu.FunctionCode)
		assert.Equal(t, []byte{0x00, 0x04, 0x00, 0x01}, pdu.Data)
		return echoHandler(ctx, slaveID, pdu)
	}
	require.NoError(t, s.serve(ctx, reader, newTestLink(w, dir, &sleeps), handler))

	assert.Equal(t, 1, calls)
	assert.Equal(t, crc.Append([]byte{0x01, 0x03, 0x02, 0x01, 0xF4}), w.buf.Bytes())
	assert.Equal(t, []string{"tx", "write", "rx"}, dir.log)
}

func TestServeIgnoresOtherSlavesAndBadCRC(t *testing.T) {
	other := crc.Append([]byte{0x02, 0x03, 0x00, 0x00, 0x00, 0x01})
	bad := crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	bad[7] ^= 0xFF
	reader := &chunkReader{chunks: [][]byte{other, bad}}
	w := &bytes.Buffer{}
	var sleeps []time.Duration

	s := NewServer(config.SerialConfig{BaudRate: 9600}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	called := false
	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		called = true
		return pdu, nil
	}
	require.NoError(t, s.serve(ctx, reader, newTestLink(w, nil, &sleeps), handler))
	assert.False(t, called)
	assert.Zero(t, w.Len())
}

func TestServeHandlerError(t *testing.T) {
	req := crc.Append([]byte{0x01, 0x06, 0x00, 0x00, 0x00, 0x01})
	reader := &mockPort{Reader: bytes.NewReader(req)}
	w := &bytes.Buffer{}
	var sleeps []time.Duration

	s := NewServer(config.SerialConfig{BaudRate: 115200}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return modbus.ProtocolDataUnit{}, errors.New("busy")
	}
	require.NoError(t, s.serve(ctx, reader, newTestLink(w, nil, &sleeps), handler))
	assert.Equal(t, crc.Append([]byte{0x01, 0x86, 0x04}), w.Bytes())
}

// flakyReader fails a number of reads before delivering its chunks.
type flakyReader struct {
	mu    sync.Mutex
	fails int
	reads int
	chunkReader
}

func (f *flakyReader) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.fails < 0 || f.reads <= f.fails {
		return 0, errors.New("device not configured")
	}
	return f.chunkReader.Read(p)
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestReadBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Millisecond, readBackoff(1))
	assert.Equal(t, 16*time.Millisecond, readBackoff(4))
	assert.Equal(t, maxReadBackoff, readBackoff(10))
	assert.Equal(t, maxReadBackoff, readBackoff(1000))
}

func TestServeBacksOffOnReadErrors(t *testing.T) {
	logs := captureLog(t)
	reader := &flakyReader{fails: -1}
	var sleeps []time.Duration

	s := NewServer(config.SerialConfig{Device: "/dev/ttyS9", BaudRate: 9600}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.serve(ctx, reader, newTestLink(&bytes.Buffer{}, nil, &sleeps), echoHandler))

	// 2+4+8+16+32+64 ms already exceeds the deadline.
	assert.LessOrEqual(t, reader.reads, 8)
	assert.Equal(t, 1, strings.Count(logs.String(), "Serial read failed"))
	assert.Contains(t, logs.String(), "/dev/ttyS9")
}

func TestServeRecoversAfterReadErrors(t *testing.T) {
	logs := captureLog(t)
	req := crc.Append([]byte{0x01, 0x03, 0x00, 0x04, 0x00, 0x01})
	reader := &flakyReader{fails: 3, chunkReader: chunkReader{chunks: [][]byte{req}}}
	w := &bytes.Buffer{}
	var sleeps []time.Duration

	s := NewServer(config.SerialConfig{BaudRate: 9600}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, s.serve(ctx, reader, newTestLink(w, nil, &sleeps), echoHandler))

	assert.Equal(t, crc.Append([]byte{0x01, 0x03, 0x02, 0x01, 0xF4}), w.Bytes())
	assert.Equal(t, 1, strings.Count(logs.String(), "Serial read failed"))
	assert.Contains(t, logs.String(), "Serial read recovered")
}
