// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Log       LogConfig        `mapstructure:"log"`
	Slave     SlaveConfig      `mapstructure:"slave"`
	Upstreams []UpstreamConfig `mapstructure:"upstreams"`
	Control   ControlConfig    `mapstructure:"control"`
	Hardware  HardwareConfig   `mapstructure:"hardware"`
	Mirror    MirrorConfig     `mapstructure:"mirror"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SlaveConfig defines the Modbus identity of the controller
type SlaveConfig struct {
	ID        int  `mapstructure:"id"`
	ZeroBased bool `mapstructure:"zero_based"`
}

// UpstreamConfig defines a master connecting to the controller
type UpstreamConfig struct {
	Type      string          `mapstructure:"type"`      // "rtu", "rtu-over-tcp", "tcp", "websocket"
	Tcp       TcpConfig       `mapstructure:"tcp"`       // Used if Type is "tcp" or "rtu-over-tcp"
	Serial    SerialConfig    `mapstructure:"serial"`    // Used if Type is "rtu"
	WebSocket WebSocketConfig `mapstructure:"websocket"` // Used if Type is "websocket"
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:502"
}

// WebSocketConfig defines the RTU-over-WebSocket listener
type WebSocketConfig struct {
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // Read poll timeout

	// Direction selects how the transceiver is switched to transmit:
	// "rts" drives the RTS line, "rs485" hands it to the kernel driver,
	// "none" leaves it alone.
	Direction string `mapstructure:"direction"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// ControlConfig defines the control loop
type ControlConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	FilmGuard    bool          `mapstructure:"film_guard"`
	Retries      int           `mapstructure:"retries"`
	Params       ParamsConfig  `mapstructure:"params"`
}

// ParamsConfig holds the power-on values of the host-tunable registers
type ParamsConfig struct {
	StartPumpPress      int `mapstructure:"start_pump_press"`
	StopPumpPress       int `mapstructure:"stop_pump_press"`
	StartVacTable       int `mapstructure:"start_vac_table"`
	NormalPress         int `mapstructure:"normal_press"`
	PumpWorkTime        int `mapstructure:"pump_work_time"`
	ImpulseTime         int `mapstructure:"impulse_time"`
	MinValveCyclePeriod int `mapstructure:"min_valve_cycle_period"`
}

// HardwareConfig selects the plant the controller drives
type HardwareConfig struct {
	Type string    `mapstructure:"type"` // "sim"
	Sim  SimConfig `mapstructure:"sim"`
}

// SimConfig tunes the simulated plant
type SimConfig struct {
	Atmosphere float64 `mapstructure:"atmosphere"` // ambient pressure, hPa
	PumpRate   float64 `mapstructure:"pump_rate"`  // receiver evacuation rate, 1/s
	LeakRate   float64 `mapstructure:"leak_rate"`  // leak towards ambient, 1/s
	FlowRate   float64 `mapstructure:"flow_rate"`  // table to receiver equalisation, 1/s
	VentRate   float64 `mapstructure:"vent_rate"`  // vent valve equalisation, 1/s
	Noise      float64 `mapstructure:"noise"`      // sensor noise amplitude, hPa
}

// MirrorConfig defines the register mirror
type MirrorConfig struct {
	Type string `mapstructure:"type"` // "none", "mmap"
	Path string `mapstructure:"path"` // File path for "mmap" type
}

// TelemetryConfig defines the MQTT publisher
type TelemetryConfig struct {
	Broker   string        `mapstructure:"broker"` // empty disables telemetry
	Topic    string        `mapstructure:"topic"`
	ClientID string        `mapstructure:"client_id"`
	Interval time.Duration `mapstructure:"interval"`
}

var flagKeys = map[string]string{
	"log-level": "log.level",
	"log-file":  "log.file",
	"slave-id":  "slave.id",
}

// LoadConfig loads configuration from file, environment and flags.
// A missing default config file is not an error; a missing explicit one is.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/vacuumd/")
		v.AddConfigPath("$HOME/.vacuumd")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VACUUMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Slave.ID < 1 || config.Slave.ID > 247 {
		return nil, fmt.Errorf("slave id %d out of range 1..247", config.Slave.ID)
	}

	if len(config.Upstreams) == 0 {
		config.Upstreams = []UpstreamConfig{{Type: "rtu", Serial: SerialConfig{Device: DefaultDevice}}}
	}
	for i := range config.Upstreams {
		fixupSerial(&config.Upstreams[i].Serial)
		fixupWebSocket(&config.Upstreams[i].WebSocket)
	}

	return &config, nil
}

// Defaults of the deployed controller board.
const (
	DefaultDevice   = "/dev/ttyUSB0"
	DefaultBaudRate = 115200
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("slave.id", 1)
	v.SetDefault("slave.zero_based", true)

	v.SetDefault("control.tick_interval", 10*time.Millisecond)
	v.SetDefault("control.film_guard", false)
	v.SetDefault("control.retries", 10)
	v.SetDefault("control.params.start_pump_press", 500)
	v.SetDefault("control.params.stop_pump_press", 200)
	v.SetDefault("control.params.start_vac_table", 600)
	v.SetDefault("control.params.normal_press", 1000)
	v.SetDefault("control.params.pump_work_time", 20000)
	v.SetDefault("control.params.impulse_time", 50)
	v.SetDefault("control.params.min_valve_cycle_period", 8000)

	v.SetDefault("hardware.type", "sim")
	v.SetDefault("hardware.sim.atmosphere", 1013.25)
	v.SetDefault("hardware.sim.pump_rate", 0.8)
	v.SetDefault("hardware.sim.leak_rate", 0.01)
	v.SetDefault("hardware.sim.flow_rate", 4.0)
	v.SetDefault("hardware.sim.vent_rate", 20.0)
	v.SetDefault("hardware.sim.noise", 0.05)

	v.SetDefault("mirror.type", "none")
	v.SetDefault("mirror.path", "/dev/shm/vacuumd.regs")

	v.SetDefault("telemetry.topic", "vacuumd")
	v.SetDefault("telemetry.interval", time.Second)
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.BaudRate == 0 {
		s.BaudRate = DefaultBaudRate
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 10 * time.Millisecond
	}
	s.Direction = strings.ToLower(s.Direction)
	if s.Direction == "" {
		s.Direction = "none"
		if s.RS485 {
			s.Direction = "rs485"
		}
	}
}

func fixupWebSocket(w *WebSocketConfig) {
	if w.Path == "" {
		w.Path = "/modbus"
	}
}
