// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package sim models a receiver with a pump and three tables, each with a
// table valve and a vent. It exposes the plant as an I2C bus carrying a
// multiplexer and one barometer per channel, plus one output pin per valve.
package sim

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/ffutop/vacuum-controller/internal/hw"
	"github.com/ffutop/vacuum-controller/internal/vacuum"
)

// ErrNack is returned for transfers no device acknowledges.
var ErrNack = errors.New("i2c: no acknowledge")

// Config tunes the plant. Rates are per second.
type Config struct {
	Atmosphere float64
	PumpRate   float64
	LeakRate   float64
	FlowRate   float64
	VentRate   float64
	Noise      float64
	Seed       int64
}

// DefaultConfig returns a plant that settles within a few seconds.
func DefaultConfig() Config {
	return Config{
		Atmosphere: 1013.25,
		PumpRate:   0.8,
		LeakRate:   0.01,
		FlowRate:   4.0,
		VentRate:   20.0,
		Noise:      0.05,
		Seed:       1,
	}
}

// State is a snapshot of the plant.
type State struct {
	Receiver   float64
	Tables     [vacuum.TableCount]float64
	Pump       bool
	TableValve [vacuum.TableCount]bool
	Vent       [vacuum.TableCount]bool
}

// Plant is safe for concurrent use by the controller and the stepper.
type Plant struct {
	cfg Config

	mu       sync.Mutex
	state    State
	selected int
	running  [vacuum.TableCount + 1]bool
	rng      *rand.Rand
}

func New(cfg Config) *Plant {
	p := &Plant{
		cfg:      cfg,
		selected: -1,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}
	p.state.Receiver = cfg.Atmosphere
	for i := range p.state.Tables {
		p.state.Tables[i] = cfg.Atmosphere
	}
	return p
}

// Step advances the physics by dt.
func (p *Plant) Step(dt time.Duration) {
	s := dt.Seconds()
	p.mu.Lock()
	defer p.mu.Unlock()

	st := &p.state
	atm := p.cfg.Atmosphere
	if st.Pump {
		st.Receiver -= st.Receiver * p.cfg.PumpRate * s
	}
	st.Receiver += (atm - st.Receiver) * p.cfg.LeakRate * s
	for i := range st.Tables {
		t := st.Tables[i]
		if st.TableValve[i] {
			flow := (t - st.Receiver) * clamp(p.cfg.FlowRate*s, 0, 0.5)
			t -= flow
			st.Receiver += flow / 2
		}
		if st.Vent[i] {
			t += (atm - t) * clamp(p.cfg.VentRate*s, 0, 1)
		}
		t += (atm - t) * p.cfg.LeakRate * s
		st.Tables[i] = clamp(t, 0, atm)
	}
	st.Receiver = clamp(st.Receiver, 0, atm)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Run steps the plant every period until ctx is cancelled.
func (p *Plant) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Step(now.Sub(last))
			last = now
		}
	}
}

// State returns a snapshot.
func (p *Plant) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetPressure forces the pressure of channel; 0 is the receiver.
func (p *Plant) SetPressure(channel int, hpa float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if channel == vacuum.ReceiverChannel {
		p.state.Receiver = hpa
		return
	}
	p.state.Tables[channel-vacuum.TableChannel] = hpa
}

func (p *Plant) pressure(channel int) float64 {
	v := p.state.Receiver
	if channel != vacuum.ReceiverChannel {
		v = p.state.Tables[channel-vacuum.TableChannel]
	}
	if p.cfg.Noise > 0 {
		v += (p.rng.Float64()*2 - 1) * p.cfg.Noise
	}
	return v
}

// Tx implements drivers.I2C for the multiplexer and the barometer on the
// selected channel.
func (p *Plant) Tx(addr uint16, w, r []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch addr {
	case vacuum.MuxAddress:
		if len(w) != 1 {
			return ErrNack
		}
		p.selected = -1
		for ch := 0; ch <= vacuum.TableCount; ch++ {
			if w[0]&(1<<ch) != 0 {
				p.selected = ch
				break
			}
		}
		return nil
	case vacuum.SensorAddress:
		if p.selected < 0 || len(w) == 0 {
			return ErrNack
		}
		return p.sensorTx(p.selected, w, r)
	}
	return ErrNack
}

func (p *Plant) sensorTx(ch int, w, r []byte) error {
	switch w[0] {
	case hw.RegWhoAmI:
		if len(r) > 0 {
			r[0] = hw.WhoAmI
		}
	case hw.RegCtrl1:
		p.running[ch] = len(w) > 1 && w[1] != 0
	case hw.RegPressOut:
		if !p.running[ch] {
			copy(r, hw.EncodePressure(0))
			return nil
		}
		copy(r, hw.EncodePressure(p.pressure(ch)))
	default:
		return ErrNack
	}
	return nil
}

func (p *Plant) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return p.Tx(uint16(addr), []byte{reg}, buf)
}

func (p *Plant) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return p.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

type pin struct {
	p   *Plant
	set func(*State, bool)
}

func (o pin) Set(high bool) {
	o.p.mu.Lock()
	defer o.p.mu.Unlock()
	o.set(&o.p.state, high)
}

// Hardware wires the plant to the controller through the real bus drivers.
func (p *Plant) Hardware(clock vacuum.Clock) vacuum.Hardware {
	h := vacuum.Hardware{
		Bus:         hw.NewMux(p, vacuum.MuxAddress),
		Sensor:      hw.NewSensor(p, vacuum.SensorAddress),
		ReceiverPin: pin{p, func(s *State, v bool) { s.Pump = v }},
		Clock:       clock,
	}
	for i := 0; i < vacuum.TableCount; i++ {
		i := i
		h.TablePins[i] = pin{p, func(s *State, v bool) { s.TableValve[i] = v }}
		h.VentPins[i] = pin{p, func(s *State, v bool) { s.Vent[i] = v }}
	}
	return h
}
