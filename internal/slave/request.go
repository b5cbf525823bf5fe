// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"github.com/ffutop/vacuum-controller/internal/slave/model"
	"github.com/ffutop/vacuum-controller/modbus"
)

// Protocol limits on a single request.
const (
	MaxReadBits       = 2000
	MaxReadRegisters  = 125
	MaxWriteBits      = 1968
	MaxWriteRegisters = 123
)

// Request is a parsed request, ready to run against a DataModel.
type Request interface {
	FunctionCode() byte
	Execute(m *model.DataModel) modbus.ProtocolDataUnit
}

type header struct {
	fc      byte
	table   model.TableType
	address uint16
}

func (h header) FunctionCode() byte { return h.fc }

func (h header) exception(code byte) modbus.ProtocolDataUnit {
	return modbus.Exception(h.fc, code)
}

// readBits serves Read Coils (1) and Read Discrete Inputs (2).
type readBits struct {
	header
	quantity uint16
}

func (r *readBits) Execute(m *model.DataModel) modbus.ProtocolDataUnit {
	if !m.Validate(r.table, r.address, int(r.quantity)) {
		return r.exception(modbus.ExceptionCodeIllegalDataAddress)
	}
	values, err := m.Get(r.table, r.address, int(r.quantity))
	if err != nil {
		return r.exception(modbus.ExceptionCodeIllegalDataAddress)
	}
	packed := modbus.PackBits(values)
	return modbus.ProtocolDataUnit{
		FunctionCode: r.fc,
		Data:         append([]byte{byte(len(packed))}, packed...),
	}
}

// readRegisters serves Read Holding Registers (3) and Read Input Registers (4).
type readRegisters struct {
	header
	quantity uint16
}

func (r *readRegisters) Execute(m *model.DataModel) modbus.ProtocolDataUnit {
	if !m.Validate(r.table, r.address, int(r.quantity)) {
		return r.exception(modbus.ExceptionCodeIllegalDataAddress)
	}
	values, err := m.Get(r.table, r.address, int(r.quantity))
	if err != nil {
		return r.exception(modbus.ExceptionCodeIllegalDataAddress)
	}
	packed := modbus.PackRegisters(values)
	return modbus.ProtocolDataUnit{
		FunctionCode: r.fc,
		Data:         append([]byte{byte(len(packed))}, packed...),
	}
}

type writeSingleCoil struct {
	header
	value uint16
}

func (r *writeSingleCoil) Execute(m *model.DataModel) modbus.ProtocolDataUnit {
	if !m.Validate(r.table, r.address, 1) {
		return r.exception(modbus.ExceptionCodeIllegalDataAddress)
	}
	var bit uint16
	if r.value != 0 {
		bit = 1
	}
	if err := m.Set(r.table, r.address, []uint16{bit}); err != nil {
		return r.exception(modbus.ExceptionCodeServerDeviceFailure)
	}
	stored, err := m.Get(r.table, r.address, 1)
	if err != nil {
		return r.exception(modbus.ExceptionCodeServerDeviceFailure)
	}
	echo := uint16(0x0000)
	if stored[0] != 0 {
		echo = 0xFF00
	}
	return modbus.ProtocolDataUnit{FunctionCode: r.fc, Data: addressValue(r.address, echo)}
}

type writeSingleRegister struct {
	header
	value uint16
}

func (r *writeSingleRegister) Execute(m *model.DataModel) modbus.ProtocolDataUnit {
	if !m.Validate(r.table, r.address, 1) {
		return r.exception(modbus.ExceptionCodeIllegalDataAddress)
	}
	if err := m.Set(r.table, r.address, []uint16{r.value}); err != nil {
		return r.exception(modbus.ExceptionCodeServerDeviceFailure)
	}
	m.MarkChanged()
	stored, err := m.Get(r.table, r.address, 1)
	if err != nil {
		return r.exception(modbus.ExceptionCodeServerDeviceFailure)
	}
	return modbus.ProtocolDataUnit{FunctionCode: r.fc, Data: addressValue(r.address, stored[0])}
}

type writeMultipleCoils struct {
	header
	quantity uint16
	payload  []byte
}

func (r *writeMultipleCoils) Execute(m *model.DataModel) modbus.ProtocolDataUnit {
	if !m.Validate(r.table, r.address, int(r.quantity)) {
		return r.exception(modbus.ExceptionCodeIllegalDataAddress)
	}
	if err := m.Set(r.table, r.address, modbus.UnpackBits(r.payload, int(r.quantity))); err != nil {
		return r.exception(modbus.ExceptionCodeServerDeviceFailure)
	}
	return modbus.ProtocolDataUnit{FunctionCode: r.fc, Data: addressValue(r.address, r.quantity)}
}

type writeMultipleRegisters struct {
	header
	quantity uint16
	payload  []byte
}

func (r *writeMultipleRegisters) Execute(m *model.DataModel) modbus.ProtocolDataUnit {
	if !m.Validate(r.table, r.address, int(r.quantity)) {
		return r.exception(modbus.ExceptionCodeIllegalDataAddress)
	}
	if err := m.Set(r.table, r.address, modbus.UnpackRegisters(r.payload)); err != nil {
		return r.exception(modbus.ExceptionCodeServerDeviceFailure)
	}
	m.MarkChanged()
	return modbus.ProtocolDataUnit{FunctionCode: r.fc, Data: addressValue(r.address, r.quantity)}
}

func addressValue(address, value uint16) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], value)
	return data
}

// ParseRequest turns a PDU into a Request. A rejected request comes back as
// a *modbus.Error carrying the exception code to answer with.
//
// The function code must map to a table that holds registers before its
// fields are looked at.
func ParseRequest(pdu modbus.ProtocolDataUnit, m *model.DataModel) (Request, error) {
	fc := pdu.FunctionCode
	fail := func(code byte) (Request, error) {
		return nil, &modbus.Error{FunctionCode: fc, ExceptionCode: code}
	}

	table, ok := m.TableFor(fc)
	if !ok {
		return fail(modbus.ExceptionCodeIllegalFunction)
	}
	if m.IsBlockEmpty(table) {
		return fail(modbus.ExceptionCodeIllegalDataAddress)
	}

	data := pdu.Data
	if len(data) < 4 {
		return fail(modbus.ExceptionCodeIllegalDataValue)
	}
	h := header{
		fc:      fc,
		table:   table,
		address: binary.BigEndian.Uint16(data[0:2]),
	}
	field := binary.BigEndian.Uint16(data[2:4])

	switch fc {
	case modbus.FuncCodeReadCoils, modbus.FuncCodeReadDiscreteInputs:
		if len(data) != 4 || field > MaxReadBits {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		return &readBits{header: h, quantity: field}, nil

	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		if len(data) != 4 || field > MaxReadRegisters {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		return &readRegisters{header: h, quantity: field}, nil

	case modbus.FuncCodeWriteSingleCoil:
		if len(data) != 4 {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		return &writeSingleCoil{header: h, value: field}, nil

	case modbus.FuncCodeWriteSingleRegister:
		if len(data) != 4 {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		return &writeSingleRegister{header: h, value: field}, nil

	case modbus.FuncCodeWriteMultipleCoils:
		if len(data) < 5 || field > MaxWriteBits {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		byteCount := int(data[4])
		if byteCount != len(data)-5 || byteCount != (int(field)+7)/8 {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		return &writeMultipleCoils{header: h, quantity: field, payload: data[5:]}, nil

	case modbus.FuncCodeWriteMultipleRegisters:
		if len(data) < 5 || field > MaxWriteRegisters {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		byteCount := int(data[4])
		if byteCount != len(data)-5 || byteCount != int(field)*2 {
			return fail(modbus.ExceptionCodeIllegalDataValue)
		}
		return &writeMultipleRegisters{header: h, quantity: field, payload: data[5:]}, nil
	}

	return fail(modbus.ExceptionCodeIllegalFunction)
}
