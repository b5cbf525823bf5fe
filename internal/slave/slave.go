// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave implements the Modbus slave protocol logic on top of a DataModel.
package slave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffutop/vacuum-controller/internal/slave/model"
	"github.com/ffutop/vacuum-controller/modbus"
)

// ErrNotAddressed is returned by Handle for requests meant for another slave.
var ErrNotAddressed = errors.New("request addressed to another slave")

// Slave answers requests for one slave address.
type Slave struct {
	ID    byte
	model *model.DataModel
}

// NewSlave creates a new Slave serving m under id.
func NewSlave(id byte, m *model.DataModel) *Slave {
	return &Slave{ID: id, model: m}
}

// Model returns the backing DataModel.
func (s *Slave) Model() *model.DataModel {
	return s.model
}

// Process executes the request against the model. Invalid requests are
// answered with an exception PDU; Process never fails.
func (s *Slave) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	r, err := ParseRequest(req, s.model)
	if err != nil {
		var mbErr *modbus.Error
		if errors.As(err, &mbErr) {
			slog.Debug("Request rejected", "func", req.FunctionCode, "exception", modbus.ExceptionName(mbErr.ExceptionCode))
			return modbus.Exception(req.FunctionCode, mbErr.ExceptionCode)
		}
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeServerDeviceFailure)
	}
	resp := r.Execute(s.model)
	if modbus.IsException(resp) {
		slog.Debug("Request failed", "func", req.FunctionCode, "exception", modbus.ExceptionName(resp.Data[0]))
	}
	return resp
}

// Handle matches transport.RequestHandler.
func (s *Slave) Handle(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if slaveID != s.ID {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("slave %d: %w", slaveID, ErrNotAddressed)
	}
	if err := ctx.Err(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return s.Process(pdu), nil
}
