// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package entity

import (
	"slices"

	"github.com/pkg/errors"
)

// Array is a fixed-length run of registers.
type Array struct {
	base
	value []uint16
}

// NewArray binds an Array of len(value) registers to address.
func NewArray(store Store, address uint16, value []uint16, opts ...Option) (*Array, error) {
	if len(value) == 0 {
		return nil, errors.Wrap(ErrValueType, "array must not be empty")
	}
	o := buildOptions(opts)
	b, err := newBase(store, o.table, address, len(value))
	if err != nil {
		return nil, err
	}
	e := &Array{base: b, value: slices.Clone(value)}
	if err := e.save(e.value); err != nil {
		return nil, err
	}
	return e, nil
}

// Value returns a copy of the cached registers.
func (e *Array) Value() []uint16 {
	return slices.Clone(e.value)
}

// Set writes v in one store write when it has the array's length and
// differs from the cache.
func (e *Array) Set(v []uint16) bool {
	if len(v) != e.width || slices.Equal(v, e.value) {
		return false
	}
	if err := e.save(v); err != nil {
		return false
	}
	e.value = slices.Clone(v)
	return true
}

// Get reloads the registers from the store and returns a copy.
func (e *Array) Get() ([]uint16, error) {
	values, err := e.load()
	if err != nil {
		return e.Value(), err
	}
	e.value = values
	return e.Value(), nil
}

func (e *Array) Sync() error {
	return e.save(e.value)
}
