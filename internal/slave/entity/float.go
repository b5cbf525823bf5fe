// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package entity

import (
	"math"

	"github.com/pkg/errors"

	"github.com/ffutop/vacuum-controller/modbus"
)

// DefaultPrecision is the number of decimal places Float.Get rounds to.
const DefaultPrecision = 4

// Float is an IEEE-754 single spread over two registers.
type Float struct {
	base
	value     float64
	precision int
}

func representable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= math.MaxFloat32
}

// NewFloat binds a Float to address and writes value to the store.
func NewFloat(store Store, address uint16, value float64, opts ...Option) (*Float, error) {
	o := buildOptions(opts)
	b, err := newBase(store, o.table, address, 2)
	if err != nil {
		return nil, err
	}
	if !representable(value) {
		return nil, errors.Wrapf(ErrValueType, "float %v is not a finite single", value)
	}
	e := &Float{base: b, value: value, precision: o.precision}
	if err := e.save(modbus.EncodeFloat(value)); err != nil {
		return nil, err
	}
	return e, nil
}

// Value returns the cached value as last set or read.
func (e *Float) Value() float64 {
	return e.value
}

// Set writes v when it differs from the cached value.
func (e *Float) Set(v float64) bool {
	if !representable(v) || v == e.value {
		return false
	}
	if err := e.save(modbus.EncodeFloat(v)); err != nil {
		return false
	}
	e.value = v
	return true
}

// Get reloads the value and rounds it to the entity's precision.
func (e *Float) Get() (float64, error) {
	values, err := e.load()
	if err != nil {
		return e.value, err
	}
	e.value = modbus.Round(modbus.DecodeFloat(values), e.precision)
	return e.value, nil
}

func (e *Float) Sync() error {
	return e.save(modbus.EncodeFloat(e.value))
}
