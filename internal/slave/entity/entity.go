// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package entity binds typed values to fixed register ranges of a DataModel.
//
// Every entity caches the last value it wrote or read. Set compares against
// that cache and only writes through to the store when the value differs, so
// repeated identical writes never latch the store's changed flag. Get reloads
// the cache from the store, picking up writes made by a Modbus master. Sync
// republishes the cache after the store was reset.
package entity

import (
	"github.com/pkg/errors"

	"github.com/ffutop/vacuum-controller/internal/slave/model"
)

var (
	// ErrAddress is returned when an entity's range is not present in the store.
	ErrAddress = errors.New("wrong address or registers count")
	// ErrValueType is returned when an initial value cannot be represented.
	ErrValueType = errors.New("wrong value type")
)

// Store is the subset of model.DataModel entities need.
type Store interface {
	Validate(table model.TableType, address uint16, count int) bool
	Get(table model.TableType, address uint16, count int) ([]uint16, error)
	Set(table model.TableType, address uint16, values []uint16) error
}

// Entity is implemented by every entity kind.
type Entity interface {
	Table() model.TableType
	Address() uint16
	Width() int
	// Sync writes the cached value to the store unconditionally.
	Sync() error
}

type base struct {
	store   Store
	table   model.TableType
	address uint16
	width   int
}

func newBase(store Store, table model.TableType, address uint16, width int) (base, error) {
	if !store.Validate(table, address, width) {
		return base{}, errors.Wrapf(ErrAddress, "%s address %d width %d", table, address, width)
	}
	return base{store: store, table: table, address: address, width: width}, nil
}

func (b *base) Table() model.TableType { return b.table }
func (b *base) Address() uint16        { return b.address }
func (b *base) Width() int             { return b.width }

func (b *base) load() ([]uint16, error) {
	return b.store.Get(b.table, b.address, b.width)
}

func (b *base) save(values []uint16) error {
	return b.store.Set(b.table, b.address, values)
}

type options struct {
	table     model.TableType
	precision int
}

// Option configures an entity at construction.
type Option func(*options)

// InTable places the entity in table instead of the holding registers.
func InTable(table model.TableType) Option {
	return func(o *options) {
		o.table = table
	}
}

// WithPrecision sets the decimal places Float.Get rounds to. Zero or less disables rounding.
func WithPrecision(digits int) Option {
	return func(o *options) {
		o.precision = digits
	}
}

func buildOptions(opts []Option) options {
	o := options{
		table:     model.TableHoldingRegisters,
		precision: DefaultPrecision,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
