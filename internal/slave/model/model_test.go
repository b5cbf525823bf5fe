// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHolding(opts ...BlockOption) *DataModel {
	return NewDataModel(WithBlock(TableHoldingRegisters, NewBlock(0, make([]uint16, 31), opts...)))
}

func TestValidate(t *testing.T) {
	m := newHolding()
	tests := []struct {
		name    string
		address uint16
		count   int
		want    bool
	}{
		{"First", 0, 1, true},
		{"WholeBlock", 0, 31, true},
		{"LastRegister", 30, 1, true},
		{"PastEnd", 30, 2, false},
		{"ZeroCount", 0, 0, false},
		{"Outside", 100, 1, false},
		{"Overflow", 65535, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Validate(TableHoldingRegisters, tt.address, tt.count))
		})
	}
	assert.False(t, m.Validate(TableCoils, 0, 1))
}

func TestGetAfterSet(t *testing.T) {
	m := newHolding()
	require.NoError(t, m.Set(TableHoldingRegisters, 4, []uint16{500, 200, 600}))
	got, err := m.Get(TableHoldingRegisters, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{500, 200, 600}, got)
}

func TestGetOutOfRange(t *testing.T) {
	m := newHolding()
	_, err := m.Get(TableHoldingRegisters, 30, 2)
	assert.True(t, errors.Is(err, ErrAddress))
	_, err = m.Get(TableInputRegisters, 0, 1)
	assert.True(t, errors.Is(err, ErrAddress))
}

func TestSetMutableGrows(t *testing.T) {
	m := newHolding()
	require.NoError(t, m.Set(TableHoldingRegisters, 40, []uint16{7}))
	assert.True(t, m.Validate(TableHoldingRegisters, 40, 1))
	assert.False(t, m.Validate(TableHoldingRegisters, 31, 1))
}

func TestSetImmutableRejectsNewAddress(t *testing.T) {
	m := newHolding(Immutable())
	err := m.Set(TableHoldingRegisters, 30, []uint16{1, 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParameter))

	// Nothing is written when part of the range is rejected.
	got, err := m.Get(TableHoldingRegisters, 30, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0}, got)

	require.NoError(t, m.Set(TableHoldingRegisters, 29, []uint16{1, 2}))
}

func TestOneBasedOffset(t *testing.T) {
	m := NewDataModel(
		WithBlock(TableHoldingRegisters, NewBlock(1, []uint16{10, 20, 30})),
		WithOneBased(),
	)
	assert.False(t, m.ZeroBased())
	got, err := m.Get(TableHoldingRegisters, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{10, 20, 30}, got)
	assert.False(t, m.Validate(TableHoldingRegisters, 3, 1))
}

func TestReset(t *testing.T) {
	m := NewDataModel(WithBlock(TableHoldingRegisters, NewBlock(0, []uint16{1, 2})))
	require.NoError(t, m.Set(TableHoldingRegisters, 0, []uint16{9, 9, 9}))
	m.Reset()
	got, err := m.Get(TableHoldingRegisters, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2}, got)
	assert.False(t, m.Validate(TableHoldingRegisters, 2, 1))
}

func TestChangedFlag(t *testing.T) {
	m := newHolding()
	assert.False(t, m.Changed())
	require.NoError(t, m.Set(TableHoldingRegisters, 0, []uint16{1}))
	assert.True(t, m.Changed())
	assert.True(t, m.DrainChanged())
	assert.False(t, m.Changed())
	assert.False(t, m.DrainChanged())
	m.MarkChanged()
	assert.True(t, m.DrainChanged())
}

func TestTableForAndRegister(t *testing.T) {
	m := newHolding()
	table, ok := m.TableFor(0x03)
	require.True(t, ok)
	assert.Equal(t, TableHoldingRegisters, table)
	_, ok = m.TableFor(0x17)
	assert.False(t, ok)

	assert.True(t, m.IsBlockEmpty(TableCoils))
	assert.False(t, m.IsBlockEmpty(TableHoldingRegisters))

	custom := TableType(8)
	assert.True(t, m.IsBlockEmpty(custom))
	m.Register(0x41, custom, nil)
	table, ok = m.TableFor(0x41)
	require.True(t, ok)
	assert.Equal(t, custom, table)
	assert.True(t, m.Validate(custom, 65535, 1))
	assert.Equal(t, "table-8", custom.String())
}

type recorder struct {
	mu     sync.Mutex
	writes []Register
}

func (r *recorder) OnWrite(table TableType, address uint16, values []uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range values {
		r.writes = append(r.writes, Register{Address: address + uint16(i), Value: v})
	}
}

func TestObserverAndSnapshot(t *testing.T) {
	m := NewDataModel(WithBlock(TableHoldingRegisters, NewSparseBlock(map[uint16]uint16{5: 50, 1: 10})))
	rec := &recorder{}
	m.AddObserver(rec)
	require.NoError(t, m.Set(TableHoldingRegisters, 3, []uint16{30, 40}))
	assert.Equal(t, []Register{{3, 30}, {4, 40}}, rec.writes)

	assert.Equal(t, []Register{{1, 10}, {3, 30}, {4, 40}, {5, 50}}, m.Snapshot(TableHoldingRegisters))
	assert.Empty(t, m.Snapshot(TableCoils))
	assert.Equal(t, []TableType{TableCoils, TableDiscreteInputs, TableHoldingRegisters, TableInputRegisters}, m.Tables())
}

func TestConcurrentAccess(t *testing.T) {
	m := newHolding()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = m.Set(TableHoldingRegisters, uint16(n), []uint16{uint16(j)})
				_, _ = m.Get(TableHoldingRegisters, 0, 31)
				m.DrainChanged()
			}
		}(i)
	}
	wg.Wait()
	got, err := m.Get(TableHoldingRegisters, 0, 8)
	require.NoError(t, err)
	for _, v := range got {
		assert.Equal(t, uint16(199), v)
	}
}

type lastValue struct {
	mu    sync.Mutex
	value uint16
	calls int
}

func (l *lastValue) OnWrite(table TableType, address uint16, values []uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = values[0]
	l.calls++
}

func TestObserverSeesWritesInOrder(t *testing.T) {
	m := newHolding()
	last := &lastValue{}
	m.AddObserver(last)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = m.Set(TableHoldingRegisters, 0, []uint16{uint16(n*1000 + j)})
			}
		}(i)
	}
	wg.Wait()

	got, err := m.Get(TableHoldingRegisters, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, got[0], last.value, "last notification matches the stored value")
	assert.Equal(t, 8*500, last.calls)
}

func TestResetNotifiesObservers(t *testing.T) {
	m := NewDataModel(WithBlock(TableHoldingRegisters, NewBlock(0, []uint16{1, 2})))
	require.NoError(t, m.Set(TableHoldingRegisters, 0, []uint16{9, 9}))
	m.DrainChanged()
	rec := &recorder{}
	m.AddObserver(rec)

	m.Reset()
	assert.Equal(t, []Register{{0, 1}, {1, 2}}, rec.writes)
	assert.True(t, m.DrainChanged())
}
