// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"

	"github.com/ffutop/vacuum-controller/modbus"
)

// RequestHandler answers one request PDU addressed to slaveID.
// Every upstream, whatever its framing, strips the request down to the PDU
// and hands it here.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Upstream represents a source of requests (a Modbus master connected to us).
// It acts as a Server.
type Upstream interface {
	// Start serves requests until ctx is cancelled. It blocks.
	Start(ctx context.Context, handler RequestHandler) error
	Close() error
}

// ErrorResponse maps a handler failure to the exception PDU sent back.
func ErrorResponse(req modbus.ProtocolDataUnit, err error) modbus.ProtocolDataUnit {
	var mbErr *modbus.Error
	switch {
	case errors.As(err, &mbErr):
		return modbus.Exception(req.FunctionCode, mbErr.ExceptionCode)
	case errors.Is(err, context.DeadlineExceeded):
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeGatewayTargetDeviceFailedToRespond)
	default:
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeServerDeviceFailure)
	}
}
