package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "configs/config.yml"

// EnvPrefix prefixes every environment override, e.g. WATER_HEATER_OSC_PORT.
const EnvPrefix = "WATER_HEATER"

// Config is the full controller configuration. It is read once at startup and
// never mutated afterwards.
type Config struct {
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level"`
	Network    NetworkConfig    `mapstructure:"network" yaml:"network"`
	OSC        OSCConfig        `mapstructure:"osc" yaml:"osc"`
	Thermostat ThermostatConfig `mapstructure:"thermostat" yaml:"thermostat"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Hardware   HardwareConfig   `mapstructure:"hardware" yaml:"hardware"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	DB         DBConfig         `mapstructure:"db" yaml:"db"`
}

// NetworkConfig holds the wireless credentials and the association backend.
type NetworkConfig struct {
	Mode                string        `mapstructure:"mode" yaml:"mode"` // none | nmcli
	SSID                string        `mapstructure:"ssid" yaml:"ssid"`
	Password            string        `mapstructure:"password" yaml:"password"`
	ConnectAttempts     int           `mapstructure:"connect_attempts" yaml:"connect_attempts"`
	ConnectPollInterval time.Duration `mapstructure:"connect_poll_interval" yaml:"connect_poll_interval"`
}

// OSCConfig describes the UDP endpoint and the telemetry subscribers.
type OSCConfig struct {
	BindAddress  string        `mapstructure:"bind_address" yaml:"bind_address"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ClientPort   int           `mapstructure:"client_port" yaml:"client_port"`
	Clients      []string      `mapstructure:"clients" yaml:"clients"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	SendTimeout  time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

// ThermostatConfig holds the heater thresholds.
type ThermostatConfig struct {
	UpperTemperature    float64       `mapstructure:"upper_temperature" yaml:"upper_temperature"`
	LowerTemperature    float64       `mapstructure:"lower_temperature" yaml:"lower_temperature"`
	HeaterResetInterval time.Duration `mapstructure:"heater_reset_interval" yaml:"heater_reset_interval"`
	PrimingDelay        time.Duration `mapstructure:"priming_delay" yaml:"priming_delay"`
	StagnationMargin    float64       `mapstructure:"stagnation_margin" yaml:"stagnation_margin"`
}

// TelemetryConfig controls the broadcaster cadence and the optional MQTT mirror.
type TelemetryConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	MQTT     MQTTConfig    `mapstructure:"mqtt" yaml:"mqtt"`
}

// MQTTConfig enables the MQTT mirror when Broker is set.
type MQTTConfig struct {
	Broker      string        `mapstructure:"broker" yaml:"broker"`
	ClientID    string        `mapstructure:"client_id" yaml:"client_id"`
	Username    string        `mapstructure:"username" yaml:"username"`
	Password    string        `mapstructure:"password" yaml:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	QoS         int           `mapstructure:"qos" yaml:"qos"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SupervisorConfig controls the reboot path and the service-manager watchdog.
type SupervisorConfig struct {
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	RebootMode      string        `mapstructure:"reboot_mode" yaml:"reboot_mode"` // exec | exit | system
	WatchdogStallAt time.Duration `mapstructure:"watchdog_stall_after" yaml:"watchdog_stall_after"`
}

// HardwareConfig selects a backend per collaborator.
type HardwareConfig struct {
	Sensor    SensorConfig    `mapstructure:"sensor" yaml:"sensor"`
	Relays    RelaysConfig    `mapstructure:"relays" yaml:"relays"`
	Display   DisplayConfig   `mapstructure:"display" yaml:"display"`
	Serial    SerialConfig    `mapstructure:"serial" yaml:"serial"`
	Simulator SimulatorConfig `mapstructure:"simulator" yaml:"simulator"`
}

// SensorConfig selects the temperature source.
type SensorConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"` // simulator | onewire | mcp9808 | serial
	Units      string `mapstructure:"units" yaml:"units"`   // C | F
	DeviceID   string `mapstructure:"device_id" yaml:"device_id"`
	OneWireDir string `mapstructure:"onewire_dir" yaml:"onewire_dir"`
	I2CAddress int    `mapstructure:"i2c_address" yaml:"i2c_address"`
}

// RelaysConfig selects the relay backend and its pin mapping.
type RelaysConfig struct {
	Driver    string         `mapstructure:"driver" yaml:"driver"` // simulator | gpio | serial
	Chip      string         `mapstructure:"chip" yaml:"chip"`
	Pins      map[string]int `mapstructure:"pins" yaml:"pins"`
	ActiveLow bool           `mapstructure:"active_low" yaml:"active_low"`
}

// DisplayConfig selects the display backend.
type DisplayConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // log | serial
}

// SerialConfig describes the microcontroller bridge.
type SerialConfig struct {
	Port    string        `mapstructure:"port" yaml:"port"`
	Baud    int           `mapstructure:"baud" yaml:"baud"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SimulatorConfig tunes the thermal model used without hardware.
type SimulatorConfig struct {
	Ambient     float64 `mapstructure:"ambient" yaml:"ambient"`
	Initial     float64 `mapstructure:"initial" yaml:"initial"`
	HeatRate    float64 `mapstructure:"heat_rate" yaml:"heat_rate"` // degrees per second
	LossRate    float64 `mapstructure:"loss_rate" yaml:"loss_rate"` // fraction of the gap to ambient per second
	Speed       float64 `mapstructure:"speed" yaml:"speed"`
	HeaterFault bool    `mapstructure:"heater_fault" yaml:"heater_fault"`
}

// HTTPConfig controls the status API.
type HTTPConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Port      string        `mapstructure:"port" yaml:"port"`
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// DBConfig points at the sqlite event log.
type DBConfig struct {
	Path          string        `mapstructure:"path" yaml:"path"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule" yaml:"prune_schedule"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Network: NetworkConfig{
			Mode:                "none",
			ConnectAttempts:     10,
			ConnectPollInterval: time.Second,
		},
		OSC: OSCConfig{
			BindAddress:  "0.0.0.0",
			Port:         8888,
			ClientPort:   8888,
			PollTimeout:  time.Millisecond,
			TickInterval: time.Second,
			SendTimeout:  time.Second,
		},
		Thermostat: ThermostatConfig{
			UpperTemperature:    75,
			LowerTemperature:    70,
			HeaterResetInterval: 10 * time.Minute,
			PrimingDelay:        2 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Interval: 5 * time.Second,
			MQTT: MQTTConfig{
				ClientID:    "water-heater",
				TopicPrefix: "water_heater",
				Timeout:     5 * time.Second,
			},
		},
		Supervisor: SupervisorConfig{
			SettleDelay:     5 * time.Second,
			RebootMode:      RebootExit,
			WatchdogStallAt: 30 * time.Second,
		},
		Hardware: HardwareConfig{
			Sensor: SensorConfig{
				Driver:     SensorSimulator,
				Units:      UnitsFahrenheit,
				OneWireDir: "/sys/bus/w1/devices",
				I2CAddress: 0x18,
			},
			Relays: RelaysConfig{
				Driver: RelaysSimulator,
				Chip:   "gpiochip0",
				Pins:   map[string]int{"pump": 2, "heater": 3, "safety": 25},
			},
			Display: DisplayConfig{Driver: DisplayLog},
			Serial: SerialConfig{
				Port:    "/dev/ttyACM0",
				Baud:    115200,
				Timeout: 2 * time.Second,
			},
			Simulator: SimulatorConfig{
				Ambient:  65,
				Initial:  68,
				HeatRate: 0.05,
				LossRate: 0.0005,
				Speed:    1,
			},
		},
		HTTP: HTTPConfig{
			Enabled:  true,
			Port:     "8080",
			TokenTTL: 12 * time.Hour,
		},
		DB: DBConfig{
			Path:          "water_heater.db",
			Retention:     30 * 24 * time.Hour,
			PruneSchedule: "@daily",
		},
	}
}

// Load reads the configuration file at path (DefaultPath when empty), applies
// WATER_HEATER_* environment overrides and validates the result. A missing file
// is only tolerated when path is empty.
func Load(path string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newViper returns a viper instance seeded with Default() so that every key is
// known to AutomaticEnv.
func newViper() (*viper.Viper, error) {
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("render defaults: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// WriteDefault renders cfg to path as YAML, creating parent directories. It
// refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// normalize trims subscriber entries (a comma separated env value arrives with
// spaces) and canonicalizes enum-like fields.
func (c *Config) normalize() {
	var clients []string
	for _, raw := range c.OSC.Clients {
		for _, host := range strings.Split(raw, ",") {
			if host = strings.TrimSpace(host); host != "" {
				clients = append(clients, host)
			}
		}
	}
	c.OSC.Clients = clients
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Hardware.Sensor.Units = strings.ToUpper(strings.TrimSpace(c.Hardware.Sensor.Units))
	c.Supervisor.RebootMode = strings.ToLower(strings.TrimSpace(c.Supervisor.RebootMode))
	c.Network.Mode = strings.ToLower(strings.TrimSpace(c.Network.Mode))
}
