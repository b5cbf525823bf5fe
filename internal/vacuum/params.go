// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import (
	"github.com/ffutop/vacuum-controller/internal/slave/model"
)

// TableCount is the number of vacuum tables behind one receiver.
const TableCount = 3

// Holding register addresses. They are the host-facing contract and must
// not move.
const (
	AddrReceiverEnable      = 0
	AddrTableEnable         = 1 // 1..3
	AddrStartPumpPress      = 4
	AddrStopPumpPress       = 5
	AddrStartVacTable       = 6
	AddrNormalPress         = 7
	AddrPumpWorkTime        = 8
	AddrImpulseTime         = 9
	AddrPumpWorkPercent     = 10
	AddrReceiverValve       = 11
	AddrTableValve          = 12 // 12..14
	AddrVentValve           = 15 // 15..17
	AddrReceiverError       = 18
	AddrTableError          = 19 // 19..21
	AddrReceiverPressure    = 22
	AddrTablePressure       = 24 // 24, 26, 28
	AddrMinValveCyclePeriod = 30

	RegisterCount = 31
)

// Bus channels of the pressure sensors behind the multiplexer.
const (
	ReceiverChannel = 0
	TableChannel    = 1 // 1..3
)

const (
	// MuxAddress is the I2C address of the bus multiplexer.
	MuxAddress = 0x70
	// SensorAddress is the I2C address every pressure sensor answers on.
	SensorAddress = 0x76

	// DefaultRetries bounds every bus switch, sensor init and sensor read.
	DefaultRetries = 10
	// PressureUpdateCriticalTime is how long (ms) a reading may stay frozen.
	PressureUpdateCriticalTime = 10000
	// PressureReleaseTime is how long (ms) the vent stays open after a table is disabled.
	PressureReleaseTime = 200
	// OpenedTooFastMaxCount is the number of too-fast opens that raise FilmError.
	OpenedTooFastMaxCount = 10
	// NoDataPressure is what the sensor returns when no conversion is ready.
	NoDataPressure = 628.0041
)

// Params are the power-on values of the host-tunable registers.
type Params struct {
	StartPumpPress      int
	StopPumpPress       int
	StartVacTable       int
	NormalPress         int
	PumpWorkTime        int // ms
	ImpulseTime         int // ms
	MinValveCyclePeriod int // ms
}

// DefaultParams returns the values the deployed controllers ship with.
func DefaultParams() Params {
	return Params{
		StartPumpPress:      500,
		StopPumpPress:       200,
		StartVacTable:       600,
		NormalPress:         1000,
		PumpWorkTime:        20000,
		ImpulseTime:         50,
		MinValveCyclePeriod: 8000,
	}
}

// Kind is the entity type behind a register map entry.
type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
)

// RegisterInfo describes one entry of the register map.
type RegisterInfo struct {
	Address uint16
	Name    string
	Kind    Kind
	Width   int
	Access  string // "rw" host tunable, "r" written by the controller
}

// RegisterMap lists every holding register in address order.
var RegisterMap = []RegisterInfo{
	{AddrReceiverEnable, "receiver_enable", KindInt, 1, "rw"},
	{AddrTableEnable, "table1_enable", KindInt, 1, "rw"},
	{AddrTableEnable + 1, "table2_enable", KindInt, 1, "rw"},
	{AddrTableEnable + 2, "table3_enable", KindInt, 1, "rw"},
	{AddrStartPumpPress, "start_pump_press", KindInt, 1, "rw"},
	{AddrStopPumpPress, "stop_pump_press", KindInt, 1, "rw"},
	{AddrStartVacTable, "start_vac_table", KindInt, 1, "rw"},
	{AddrNormalPress, "normal_press", KindInt, 1, "rw"},
	{AddrPumpWorkTime, "pump_work_time", KindInt, 1, "rw"},
	{AddrImpulseTime, "impulse_time", KindInt, 1, "rw"},
	{AddrPumpWorkPercent, "pump_work_percent", KindInt, 1, "r"},
	{AddrReceiverValve, "receiver_valve", KindInt, 1, "r"},
	{AddrTableValve, "table1_valve", KindInt, 1, "r"},
	{AddrTableValve + 1, "table2_valve", KindInt, 1, "r"},
	{AddrTableValve + 2, "table3_valve", KindInt, 1, "r"},
	{AddrVentValve, "vent1_valve", KindInt, 1, "r"},
	{AddrVentValve + 1, "vent2_valve", KindInt, 1, "r"},
	{AddrVentValve + 2, "vent3_valve", KindInt, 1, "r"},
	{AddrReceiverError, "receiver_error", KindInt, 1, "r"},
	{AddrTableError, "table1_error", KindInt, 1, "r"},
	{AddrTableError + 1, "table2_error", KindInt, 1, "r"},
	{AddrTableError + 2, "table3_error", KindInt, 1, "r"},
	{AddrReceiverPressure, "receiver_pressure", KindFloat, 2, "r"},
	{AddrTablePressure, "table1_pressure", KindFloat, 2, "r"},
	{AddrTablePressure + 2, "table2_pressure", KindFloat, 2, "r"},
	{AddrTablePressure + 4, "table3_pressure", KindFloat, 2, "r"},
	{AddrMinValveCyclePeriod, "min_valve_cycle_period", KindInt, 1, "rw"},
}

// NewStore creates the register store of one controller: a fixed block of
// RegisterCount holding registers and no other tables.
func NewStore(zeroBased bool) *model.DataModel {
	start := uint16(0)
	var opts []model.Option
	if !zeroBased {
		start = 1
		opts = append(opts, model.WithOneBased())
	}
	opts = append(opts, model.WithBlock(model.TableHoldingRegisters,
		model.NewBlock(start, make([]uint16, RegisterCount), model.Immutable())))
	return model.NewDataModel(opts...)
}
