// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/ffutop/vacuum-controller/modbus"
)

var (
	// ErrAddress is returned when a read range is not fully present.
	ErrAddress = errors.New("register address out of range")
	// ErrParameter is returned for writes a block does not accept.
	ErrParameter = errors.New("invalid parameter")
)

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableCoils TableType = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete-inputs"
	case TableHoldingRegisters:
		return "holding-registers"
	case TableInputRegisters:
		return "input-registers"
	}
	return fmt.Sprintf("table-%d", int(t))
}

// Observer is notified after every successful write, outside the model lock.
// Notifications arrive one at a time in the order the writes were applied.
// An observer must not write to the model it observes.
// address is the stored address (after the one-based offset).
type Observer interface {
	OnWrite(table TableType, address uint16, values []uint16)
}

// Register is one stored word.
type Register struct {
	Address uint16
	Value   uint16
}

// DataModel holds the four Modbus register spaces.
//
// Every method is safe for concurrent use: the transport and the control
// loop both read and write through the same model. Any write latches the
// changed flag until DrainChanged is called.
type DataModel struct {
	mu sync.RWMutex

	// notify is taken before mu is released so observers see writes in order.
	notify sync.Mutex

	blocks    map[TableType]*Block
	codes     map[byte]TableType
	zeroBased bool
	changed   bool
	observers []Observer
}

// Option configures a DataModel.
type Option func(*DataModel)

// WithBlock installs b as the block for table.
func WithBlock(table TableType, b *Block) Option {
	return func(m *DataModel) {
		m.blocks[table] = b
	}
}

// WithOneBased makes every external address refer to the stored address plus one.
func WithOneBased() Option {
	return func(m *DataModel) {
		m.zeroBased = false
	}
}

// NewDataModel creates a model whose tables are empty unless given by options.
func NewDataModel(opts ...Option) *DataModel {
	m := &DataModel{
		blocks: map[TableType]*Block{
			TableCoils:            EmptyBlock(),
			TableDiscreteInputs:   EmptyBlock(),
			TableHoldingRegisters: EmptyBlock(),
			TableInputRegisters:   EmptyBlock(),
		},
		codes: map[byte]TableType{
			modbus.FuncCodeReadCoils:              TableCoils,
			modbus.FuncCodeWriteSingleCoil:        TableCoils,
			modbus.FuncCodeWriteMultipleCoils:     TableCoils,
			modbus.FuncCodeReadDiscreteInputs:     TableDiscreteInputs,
			modbus.FuncCodeReadHoldingRegisters:   TableHoldingRegisters,
			modbus.FuncCodeWriteSingleRegister:    TableHoldingRegisters,
			modbus.FuncCodeWriteMultipleRegisters: TableHoldingRegisters,
			modbus.FuncCodeReadInputRegisters:     TableInputRegisters,
		},
		zeroBased: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ZeroBased reports the address-offset mode fixed at construction.
func (m *DataModel) ZeroBased() bool {
	return m.zeroBased
}

func (m *DataModel) offset(address uint16) int {
	if m.zeroBased {
		return int(address)
	}
	return int(address) + 1
}

// Register binds a function code to table and installs b for it.
// A nil b installs a zero-filled block covering the whole address space.
func (m *DataModel) Register(code byte, table TableType, b *Block) {
	if b == nil {
		b = FullBlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[table] = b
	m.codes[code] = table
}

// TableFor returns the table a function code operates on.
func (m *DataModel) TableFor(code byte) (TableType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.codes[code]
	return t, ok
}

// IsBlockEmpty reports whether table is absent or holds no registers.
func (m *DataModel) IsBlockEmpty(table TableType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[table]
	return !ok || b.Len() == 0
}

// Validate reports whether count registers starting at address all exist.
// A zero count is never valid.
func (m *DataModel) Validate(table TableType, address uint16, count int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[table]
	if !ok {
		return false
	}
	return b.validate(m.offset(address), count)
}

// Get returns count registers starting at address.
func (m *DataModel) Get(table TableType, address uint16, count int) ([]uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[table]
	if !ok || !b.validate(m.offset(address), count) {
		return nil, errors.Wrapf(ErrAddress, "%s [%d, +%d)", table, address, count)
	}
	return b.get(m.offset(address), count), nil
}

// Set writes values positionally from address. Mutable blocks grow to hold
// new addresses; immutable blocks reject them with ErrParameter.
func (m *DataModel) Set(table TableType, address uint16, values []uint16) error {
	if len(values) == 0 {
		return nil
	}

	m.mu.Lock()
	b, ok := m.blocks[table]
	if !ok {
		m.mu.Unlock()
		return errors.Wrapf(ErrParameter, "no block for %s", table)
	}
	start := m.offset(address)
	if bad := b.writable(start, len(values)); bad >= 0 {
		m.mu.Unlock()
		return errors.Wrapf(ErrParameter, "%s address %d is not writable", table, bad)
	}
	b.set(start, values)
	m.changed = true
	observers := m.observers
	m.notify.Lock()
	m.mu.Unlock()
	defer m.notify.Unlock()

	for _, o := range observers {
		o.OnWrite(table, uint16(start), slices.Clone(values))
	}
	return nil
}

// Reset restores every block to the values it was created with and latches
// the changed flag. Observers receive every restored register.
func (m *DataModel) Reset() {
	m.mu.Lock()
	restored := make(map[TableType][]Register, len(m.blocks))
	for table, b := range m.blocks {
		b.reset()
		restored[table] = b.registers()
	}
	m.changed = true
	observers := m.observers
	m.notify.Lock()
	m.mu.Unlock()
	defer m.notify.Unlock()

	for _, o := range observers {
		for table, regs := range restored {
			for _, r := range regs {
				o.OnWrite(table, r.Address, []uint16{r.Value})
			}
		}
	}
}

// Changed reports whether any write happened since the last DrainChanged.
func (m *DataModel) Changed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changed
}

// MarkChanged latches the changed flag.
func (m *DataModel) MarkChanged() {
	m.mu.Lock()
	m.changed = true
	m.mu.Unlock()
}

// DrainChanged returns the changed flag and clears it.
func (m *DataModel) DrainChanged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := m.changed
	m.changed = false
	return changed
}

// AddObserver registers o for write notifications.
func (m *DataModel) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Tables returns the installed tables in ascending order.
func (m *DataModel) Tables() []TableType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tables := maps.Keys(m.blocks)
	slices.Sort(tables)
	return tables
}

// Snapshot returns a copy of table ordered by address.
func (m *DataModel) Snapshot(table TableType) []Register {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[table]
	if !ok {
		return nil
	}
	return b.registers()
}
