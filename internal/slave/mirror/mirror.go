// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package mirror publishes the register store into a memory-mapped file so
// other processes on the host can watch it. The file is rebuilt from the
// store at every start and is never read back.
package mirror

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/vacuum-controller/internal/slave/model"
)

// Mirror is a model.Observer writing every change into the mapped file.
type Mirror struct {
	path string
	file *os.File

	mu   sync.Mutex
	data mmap.MMap
}

// Open creates or truncates the file at path and maps it.
func Open(path string) (*Mirror, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror file: %w", err)
	}
	if err := f.Truncate(int64(totalSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to resize mirror file: %w", err)
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	copy(data, magic)
	return &Mirror{path: path, file: f, data: data}, nil
}

// Path returns the mirrored file.
func (m *Mirror) Path() string {
	return m.path
}

// Sync copies every table of dm and its address offset into the file.
func (m *Mirror) Sync(dm *model.DataModel) {
	m.mu.Lock()
	if m.data != nil && !dm.ZeroBased() {
		m.data[offsetByte] = 1
	}
	m.mu.Unlock()
	for _, table := range dm.Tables() {
		for _, r := range dm.Snapshot(table) {
			m.OnWrite(table, r.Address, []uint16{r.Value})
		}
	}
}

// OnWrite stores values at address of table.
func (m *Mirror) OnWrite(table model.TableType, address uint16, values []uint16) {
	base, ok := tableOffset(table)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return
	}
	for i, v := range values {
		addr := int(address) + i
		if addr > model.MaxAddress {
			break
		}
		binary.BigEndian.PutUint16(m.data[base+addr*2:], v)
	}
}

// Flush writes the mapping back to the file.
func (m *Mirror) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return fmt.Errorf("mirror is closed")
	}
	return m.data.Flush()
}

// Close unmaps and closes the file.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.data != nil {
		if e := m.data.Unmap(); e != nil {
			err = e
		}
		m.data = nil
	}
	if m.file != nil {
		if e := m.file.Close(); e != nil {
			err = e
		}
		m.file = nil
	}
	if err != nil {
		slog.Error("Failed to close mirror", "path", m.path, "err", err)
	}
	return err
}

// Reader maps a mirror file read-only.
type Reader struct {
	file   *os.File
	data   mmap.MMap
	offset int
}

// OpenReader maps the mirror at path.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		f.Close()
		return nil, fmt.Errorf("%s is not a register mirror (size %d)", path, fi.Size())
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	if string(data[:len(magic)]) != magic {
		data.Unmap()
		f.Close()
		return nil, fmt.Errorf("%s is not a register mirror", path)
	}
	return &Reader{file: f, data: data, offset: int(data[offsetByte])}, nil
}

// Read returns count words from address, using the same address offset
// as the store that wrote the mirror.
func (r *Reader) Read(table model.TableType, address uint16, count int) ([]uint16, error) {
	base, ok := tableOffset(table)
	start := int(address) + r.offset
	if !ok || count < 0 || start+count > model.MaxAddress+1 {
		return nil, fmt.Errorf("%s address %d count %d: %w", table, address, count, model.ErrAddress)
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(r.data[base+(start+i)*2:])
	}
	return out, nil
}

// Close unmaps and closes the file.
func (r *Reader) Close() error {
	err := r.data.Unmap()
	if e := r.file.Close(); err == nil {
		err = e
	}
	return err
}
