// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ffutop/vacuum-controller/internal/config"
	"github.com/ffutop/vacuum-controller/internal/hw/sim"
	"github.com/ffutop/vacuum-controller/internal/slave"
	"github.com/ffutop/vacuum-controller/internal/slave/mirror"
	"github.com/ffutop/vacuum-controller/internal/slave/model"
	"github.com/ffutop/vacuum-controller/internal/telemetry"
	"github.com/ffutop/vacuum-controller/internal/vacuum"
	"github.com/ffutop/vacuum-controller/transport"
	"github.com/ffutop/vacuum-controller/transport/rtu"
	rtuovertcp "github.com/ffutop/vacuum-controller/transport/rtu-over-tcp"
	"github.com/ffutop/vacuum-controller/transport/tcp"
	"github.com/ffutop/vacuum-controller/transport/websocket"
)

const plantPeriod = 5 * time.Millisecond

// daemon is one controller together with everything attached to its store.
type daemon struct {
	cfg       *config.Config
	store     *model.DataModel
	slave     *slave.Slave
	plant     *sim.Plant
	ctrl      *vacuum.Controller
	mirror    *mirror.Mirror
	upstreams []transport.Upstream
	publisher *telemetry.Publisher
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	d := &daemon{cfg: cfg}
	d.store = vacuum.NewStore(cfg.Slave.ZeroBased)
	d.slave = slave.NewSlave(byte(cfg.Slave.ID), d.store)

	switch cfg.Mirror.Type {
	case "", "none":
	case "mmap":
		m, err := mirror.Open(cfg.Mirror.Path)
		if err != nil {
			return nil, err
		}
		d.mirror = m
		d.store.AddObserver(m)
		m.Sync(d.store)
	default:
		return nil, fmt.Errorf("unknown mirror type %q", cfg.Mirror.Type)
	}

	hw, err := d.hardware()
	if err != nil {
		d.close()
		return nil, err
	}
	d.ctrl, err = vacuum.New(d.store, hw, controlOptions(cfg.Control))
	if err != nil {
		d.close()
		return nil, fmt.Errorf("failed to build controller: %w", err)
	}

	for _, usCfg := range cfg.Upstreams {
		us, err := newUpstream(usCfg, byte(cfg.Slave.ID))
		if err != nil {
			d.close()
			return nil, err
		}
		d.upstreams = append(d.upstreams, us)
	}

	if cfg.Telemetry.Broker != "" {
		d.publisher, err = telemetry.NewPublisher(telemetry.Config{
			Broker:   cfg.Telemetry.Broker,
			Topic:    cfg.Telemetry.Topic,
			ClientID: cfg.Telemetry.ClientID,
			Interval: cfg.Telemetry.Interval,
		}, d.ctrl)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("failed to set up telemetry: %w", err)
		}
	}
	return d, nil
}

func (d *daemon) hardware() (vacuum.Hardware, error) {
	switch d.cfg.Hardware.Type {
	case "sim":
		s := d.cfg.Hardware.Sim
		d.plant = sim.New(sim.Config{
			Atmosphere: s.Atmosphere,
			PumpRate:   s.PumpRate,
			LeakRate:   s.LeakRate,
			FlowRate:   s.FlowRate,
			VentRate:   s.VentRate,
			Noise:      s.Noise,
			Seed:       time.Now().UnixNano(),
		})
		return d.plant.Hardware(vacuum.NewSystemClock()), nil
	default:
		return vacuum.Hardware{}, fmt.Errorf("unknown hardware type %q", d.cfg.Hardware.Type)
	}
}

func controlOptions(c config.ControlConfig) vacuum.Options {
	return vacuum.Options{
		Params: vacuum.Params{
			StartPumpPress:      c.Params.StartPumpPress,
			StopPumpPress:       c.Params.StopPumpPress,
			StartVacTable:       c.Params.StartVacTable,
			NormalPress:         c.Params.NormalPress,
			PumpWorkTime:        c.Params.PumpWorkTime,
			ImpulseTime:         c.Params.ImpulseTime,
			MinValveCyclePeriod: c.Params.MinValveCyclePeriod,
		},
		Retries:      c.Retries,
		FilmGuard:    c.FilmGuard,
		TickInterval: c.TickInterval,
	}
}

func newUpstream(cfg config.UpstreamConfig, slaveID byte) (transport.Upstream, error) {
	switch cfg.Type {
	case "rtu":
		return rtu.NewServer(cfg.Serial, slaveID), nil
	case "rtu-over-tcp":
		return rtuovertcp.NewServer(cfg.Tcp.Address, slaveID), nil
	case "tcp":
		return tcp.NewServer(cfg.Tcp.Address, slaveID), nil
	case "websocket":
		return websocket.NewServer(cfg.WebSocket.Address, cfg.WebSocket.Path, slaveID), nil
	default:
		return nil, fmt.Errorf("unknown upstream type %q", cfg.Type)
	}
}

// run blocks until ctx is cancelled and every loop has returned.
func (d *daemon) run(ctx context.Context) {
	var wg sync.WaitGroup

	if d.plant != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.plant.Run(ctx, plantPeriod)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.ctrl.Run(ctx); err != nil {
			slog.Error("Control loop stopped with error", "err", err)
		}
	}()

	for _, us := range d.upstreams {
		wg.Add(1)
		go func(us transport.Upstream) {
			defer wg.Done()
			if err := us.Start(ctx, d.slave.Handle); err != nil {
				slog.Error("Upstream stopped with error", "type", fmt.Sprintf("%T", us), "err", err)
			}
		}(us)
	}

	if d.publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.publisher.Run(ctx); err != nil {
				slog.Error("Telemetry stopped with error", "err", err)
			}
		}()
	}

	wg.Wait()
	d.close()
}

// resetOn resets the controller registers for every signal received on sig.
func (d *daemon) resetOn(ctx context.Context, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			slog.Info("Resetting registers", "signal", s)
			if err := d.ctrl.Reset(); err != nil {
				slog.Error("Failed to reset registers", "err", err)
			}
		}
	}
}

func (d *daemon) close() {
	if d.mirror != nil {
		if err := d.mirror.Flush(); err != nil {
			slog.Warn("Failed to flush register mirror", "err", err)
		}
		d.mirror.Close()
		d.mirror = nil
	}
}
