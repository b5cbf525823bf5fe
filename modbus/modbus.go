// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol data unit and the function and
// exception codes shared by the slave and its transports.
package modbus

import (
	"fmt"

	"github.com/goburrow/modbus"
)

// ProtocolDataUnit is the function code plus its payload, without address or CRC.
type ProtocolDataUnit = modbus.ProtocolDataUnit

// Error is an exception response seen as a Go error.
type Error = modbus.ModbusError

// Function Codes
const (
	FuncCodeReadCoils          = modbus.FuncCodeReadCoils
	FuncCodeReadDiscreteInputs = modbus.FuncCodeReadDiscreteInputs
	FuncCodeWriteSingleCoil    = modbus.FuncCodeWriteSingleCoil
	FuncCodeWriteMultipleCoils = modbus.FuncCodeWriteMultipleCoils

	FuncCodeReadHoldingRegisters       = modbus.FuncCodeReadHoldingRegisters
	FuncCodeReadInputRegisters         = modbus.FuncCodeReadInputRegisters
	FuncCodeWriteSingleRegister        = modbus.FuncCodeWriteSingleRegister
	FuncCodeWriteMultipleRegisters     = modbus.FuncCodeWriteMultipleRegisters
	FuncCodeMaskWriteRegister          = modbus.FuncCodeMaskWriteRegister
	FuncCodeReadWriteMultipleRegisters = modbus.FuncCodeReadWriteMultipleRegisters
	FuncCodeReadFIFOQueue              = modbus.FuncCodeReadFIFOQueue
)

// Exception Codes. NegativeAcknowledge and MemoryParityError follow the
// numbering used by the deployed controllers (0x07 and 0x09).
const (
	ExceptionCodeIllegalFunction                    = modbus.ExceptionCodeIllegalFunction
	ExceptionCodeIllegalDataAddress                 = modbus.ExceptionCodeIllegalDataAddress
	ExceptionCodeIllegalDataValue                   = modbus.ExceptionCodeIllegalDataValue
	ExceptionCodeServerDeviceFailure                = modbus.ExceptionCodeServerDeviceFailure
	ExceptionCodeAcknowledge                        = modbus.ExceptionCodeAcknowledge
	ExceptionCodeServerDeviceBusy                   = modbus.ExceptionCodeServerDeviceBusy
	ExceptionCodeNegativeAcknowledge                = 0x07
	ExceptionCodeMemoryParityError                  = 0x09
	ExceptionCodeGatewayPathUnavailable             = modbus.ExceptionCodeGatewayPathUnavailable
	ExceptionCodeGatewayTargetDeviceFailedToRespond = modbus.ExceptionCodeGatewayTargetDeviceFailedToRespond
)

// ExceptionFlag is OR-ed into the function code of an exception response.
const ExceptionFlag = 0x80

// Exception builds the exception response for funcCode.
func Exception(funcCode, code byte) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: funcCode | ExceptionFlag,
		Data:         []byte{code},
	}
}

// IsException reports whether pdu carries an exception response.
func IsException(pdu ProtocolDataUnit) bool {
	return pdu.FunctionCode&ExceptionFlag != 0
}

// ExceptionName returns a readable name for an exception code.
func ExceptionName(code byte) string {
	switch code {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		return "server device failure"
	case ExceptionCodeAcknowledge:
		return "acknowledge"
	case ExceptionCodeServerDeviceBusy:
		return "server device busy"
	case ExceptionCodeNegativeAcknowledge:
		return "negative acknowledge"
	case ExceptionCodeMemoryParityError:
		return "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		return "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "gateway target device failed to respond"
	}
	return fmt.Sprintf("unknown exception 0x%02X", code)
}
