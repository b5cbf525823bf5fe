// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"slices"

	"golang.org/x/exp/maps"
)

// MaxAddress is the highest address of a 16-bit register space.
const MaxAddress = 65535

// Block is a sparse address space of 16-bit words with a restorable default
// snapshot. Blocks are not safe for concurrent use on their own; DataModel
// serializes every access.
type Block struct {
	values   map[uint16]uint16
	defaults map[uint16]uint16
	mutable  bool
}

// BlockOption configures a Block.
type BlockOption func(*Block)

// Immutable forbids writes to addresses the block was not created with.
func Immutable() BlockOption {
	return func(b *Block) {
		b.mutable = false
	}
}

// NewBlock creates a block holding values at consecutive addresses from start.
func NewBlock(start uint16, values []uint16, opts ...BlockOption) *Block {
	sparse := make(map[uint16]uint16, len(values))
	for i, v := range values {
		addr := int(start) + i
		if addr > MaxAddress {
			break
		}
		sparse[uint16(addr)] = v
	}
	return NewSparseBlock(sparse, opts...)
}

// NewSparseBlock creates a block from an address to value map.
func NewSparseBlock(values map[uint16]uint16, opts ...BlockOption) *Block {
	b := &Block{
		values:  make(map[uint16]uint16, len(values)),
		mutable: true,
	}
	for addr, v := range values {
		b.values[addr] = v
	}
	b.defaults = maps.Clone(b.values)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FullBlock covers the whole 16-bit address space with zeros.
func FullBlock(opts ...BlockOption) *Block {
	return NewBlock(0, make([]uint16, MaxAddress+1), opts...)
}

// EmptyBlock holds no registers.
func EmptyBlock() *Block {
	return NewSparseBlock(nil)
}

// Len returns the number of registers currently held.
func (b *Block) Len() int {
	return len(b.values)
}

// Mutable reports whether new addresses may be created by writes.
func (b *Block) Mutable() bool {
	return b.mutable
}

func (b *Block) validate(address, count int) bool {
	if count <= 0 || address < 0 || address+count-1 > MaxAddress {
		return false
	}
	for a := address; a < address+count; a++ {
		if _, ok := b.values[uint16(a)]; !ok {
			return false
		}
	}
	return true
}

func (b *Block) get(address, count int) []uint16 {
	out := make([]uint16, count)
	for i := range out {
		out[i] = b.values[uint16(address+i)]
	}
	return out
}

// writable returns the first address in the range that may not be written, or -1.
func (b *Block) writable(address, count int) int {
	for a := address; a < address+count; a++ {
		if a < 0 || a > MaxAddress {
			return a
		}
		if _, ok := b.values[uint16(a)]; !ok && !b.mutable {
			return a
		}
	}
	return -1
}

func (b *Block) set(address int, values []uint16) {
	for i, v := range values {
		b.values[uint16(address+i)] = v
	}
}

// registers returns the block ordered by address.
func (b *Block) registers() []Register {
	addrs := maps.Keys(b.values)
	slices.Sort(addrs)
	out := make([]Register, len(addrs))
	for i, a := range addrs {
		out[i] = Register{Address: a, Value: b.values[a]}
	}
	return out
}

func (b *Block) reset() {
	b.values = maps.Clone(b.defaults)
}
