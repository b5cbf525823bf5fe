// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/vacuum-controller/modbus"
)

const (
	tcpHeaderSize = 7
	tcpMinSize    = 8
	tcpMaxSize    = 260
)

// ApplicationDataUnit is one MBAP framed request or response.
type ApplicationDataUnit struct {
	TransactionID uint16
	ProtocolID    uint16
	// Length counts the unit id and the PDU. Encode fills it in.
	Length  uint16
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode parses raw as read by readADU. Only protocol id 0 is Modbus.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	if len(raw) < tcpMinSize {
		return nil, fmt.Errorf("modbus: request length %d below minimum %d", len(raw), tcpMinSize)
	}
	adu := &ApplicationDataUnit{
		TransactionID: binary.BigEndian.Uint16(raw[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(raw[2:4]),
		Length:        binary.BigEndian.Uint16(raw[4:6]),
		SlaveID:       raw[6],
		Pdu:           modbus.ProtocolDataUnit{FunctionCode: raw[7], Data: raw[8:]},
	}
	if adu.ProtocolID != 0 {
		return nil, fmt.Errorf("modbus: unknown protocol id %d", adu.ProtocolID)
	}
	if int(adu.Length) != len(raw)-tcpHeaderSize+1 {
		return nil, fmt.Errorf("modbus: MBAP length %d does not match %d received bytes", adu.Length, len(raw))
	}
	return adu, nil
}

// Encode frames the unit for the wire, recomputing Length.
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	total := tcpMinSize + len(adu.Pdu.Data)
	if total > tcpMaxSize {
		return nil, fmt.Errorf("modbus: response of %d bytes exceeds %d", total, tcpMaxSize)
	}
	adu.Length = uint16(total - tcpHeaderSize + 1)

	raw := make([]byte, 0, total)
	raw = binary.BigEndian.AppendUint16(raw, adu.TransactionID)
	raw = binary.BigEndian.AppendUint16(raw, adu.ProtocolID)
	raw = binary.BigEndian.AppendUint16(raw, adu.Length)
	raw = append(raw, adu.SlaveID, adu.Pdu.FunctionCode)
	return append(raw, adu.Pdu.Data...), nil
}
