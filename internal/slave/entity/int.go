// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package entity

import (
	"github.com/pkg/errors"
)

// Int is an unsigned 16-bit value in one register.
type Int struct {
	base
	value int
}

func inRange(v int) bool {
	return v >= 0 && v <= 0xFFFF
}

// NewInt binds an Int to address and writes value to the store.
func NewInt(store Store, address uint16, value int, opts ...Option) (*Int, error) {
	o := buildOptions(opts)
	b, err := newBase(store, o.table, address, 1)
	if err != nil {
		return nil, err
	}
	if !inRange(value) {
		return nil, errors.Wrapf(ErrValueType, "int %d does not fit a register", value)
	}
	e := &Int{base: b, value: value}
	if err := e.save([]uint16{uint16(value)}); err != nil {
		return nil, err
	}
	return e, nil
}

// Value returns the cached value.
func (e *Int) Value() int {
	return e.value
}

// Set writes v when it differs from the cached value and reports whether it did.
func (e *Int) Set(v int) bool {
	if !inRange(v) || v == e.value {
		return false
	}
	if err := e.save([]uint16{uint16(v)}); err != nil {
		return false
	}
	e.value = v
	return true
}

// Get reloads the value from the store.
func (e *Int) Get() (int, error) {
	values, err := e.load()
	if err != nil {
		return e.value, err
	}
	e.value = int(values[0])
	return e.value, nil
}

func (e *Int) Sync() error {
	return e.save([]uint16{uint16(e.value)})
}
