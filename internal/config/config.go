package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a config file.
const MaxConfigFileBytes = 1 << 20

// MotorConfig holds the H-bridge pins of one drive motor (BCM numbering).
type MotorConfig struct {
	ForwardPin  int `yaml:"forward_pin"`
	BackwardPin int `yaml:"backward_pin"`
	PWMPin      int `yaml:"pwm_pin"` // must be a hardware PWM pin (12, 13, 18 or 19)
}

// DriveConfig describes the two drive motors.
type DriveConfig struct {
	Enabled           bool        `yaml:"enabled"`
	Left              MotorConfig `yaml:"left"`
	Right             MotorConfig `yaml:"right"`
	PWMFrequencyHz    int         `yaml:"pwm_frequency_hz"`
	TickMs            int         `yaml:"tick_ms"`              // trajectory tick period
	DurationPerUnitMs int         `yaml:"duration_per_unit_ms"` // ramp time for a speed change of 1.0
}

// WinchConfig describes the winch stepper (ULN2003 board) and release magnet.
type WinchConfig struct {
	Enabled        bool   `yaml:"enabled"`
	CoilPins       [4]int `yaml:"coil_pins"` // IN1..IN4
	MagnetPin      int    `yaml:"magnet_pin"`
	MinStepDelayUs int    `yaml:"min_step_delay_us"` // at full speed
	MaxStepDelayUs int    `yaml:"max_step_delay_us"` // near zero speed
	ReleasePulseMs int    `yaml:"release_pulse_ms"`
}

// GamepadConfig holds the gamepad input settings.
type GamepadConfig struct {
	InputDir       string  `yaml:"input_dir"`
	DebounceMs     int     `yaml:"debounce_ms"` // reconnect suppression after a disconnect
	RumbleStrength float64 `yaml:"rumble_strength"`
	RumbleMs       int     `yaml:"rumble_ms"`
}

// UplinkConfig describes the remote operator hub. An empty URL disables it.
type UplinkConfig struct {
	URL         string `yaml:"url"` // e.g. "ws://hub.local:5000/rover"
	ReconnectMs int    `yaml:"reconnect_ms"`
}

// SerialConfig describes the companion board line. An empty port disables it.
type SerialConfig struct {
	Port     string `yaml:"port"` // e.g. "/dev/ttyACM0", or "auto"
	BaudRate int    `yaml:"baud_rate"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel    int  `yaml:"debug_level"`     // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO      bool `yaml:"mock_gpio"`       // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	AllowPowerOff bool `yaml:"allow_power_off"` // let the Shutdown command power the machine off
}

// Config aggregates all application configuration.
type Config struct {
	Drive    DriveConfig    `yaml:"drive"`
	Winch    WinchConfig    `yaml:"winch"`
	Gamepad  GamepadConfig  `yaml:"gamepad"`
	Uplink   UplinkConfig   `yaml:"uplink"`
	Serial   SerialConfig   `yaml:"serial"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Default returns the configuration used for missing values.
func Default() *Config {
	return &Config{
		Drive: DriveConfig{
			Enabled:           true,
			Left:              MotorConfig{ForwardPin: 5, BackwardPin: 6, PWMPin: 12},
			Right:             MotorConfig{ForwardPin: 16, BackwardPin: 26, PWMPin: 13},
			PWMFrequencyHz:    75,
			TickMs:            10,
			DurationPerUnitMs: 1000,
		},
		Winch: WinchConfig{
			Enabled:        true,
			CoilPins:       [4]int{22, 23, 24, 25},
			MagnetPin:      4,
			MinStepDelayUs: 800,
			MaxStepDelayUs: 5000,
			ReleasePulseMs: 200,
		},
		Gamepad: GamepadConfig{
			InputDir:       "/dev/input",
			DebounceMs:     1000,
			RumbleStrength: 0.75,
			RumbleMs:       300,
		},
		Uplink: UplinkConfig{ReconnectMs: 2000},
		Serial: SerialConfig{BaudRate: 9600},
	}
}

// ValidateConfigPath rejects anything but a .yaml file inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension: %q", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory: %q", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration. Values missing
// from the file keep their Default.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	d := Default()

	// Non-positive timings fall back to the defaults.
	if c.Drive.PWMFrequencyHz <= 0 {
		c.Drive.PWMFrequencyHz = d.Drive.PWMFrequencyHz
	}
	if c.Drive.TickMs <= 0 {
		c.Drive.TickMs = d.Drive.TickMs
	}
	if c.Drive.DurationPerUnitMs <= 0 {
		c.Drive.DurationPerUnitMs = d.Drive.DurationPerUnitMs
	}
	if c.Winch.MinStepDelayUs <= 0 {
		c.Winch.MinStepDelayUs = d.Winch.MinStepDelayUs
	}
	if c.Winch.MaxStepDelayUs <= 0 {
		c.Winch.MaxStepDelayUs = d.Winch.MaxStepDelayUs
	}
	if c.Winch.ReleasePulseMs <= 0 {
		c.Winch.ReleasePulseMs = d.Winch.ReleasePulseMs
	}
	if c.Gamepad.InputDir == "" {
		c.Gamepad.InputDir = d.Gamepad.InputDir
	}
	if c.Gamepad.DebounceMs <= 0 {
		c.Gamepad.DebounceMs = d.Gamepad.DebounceMs
	}
	if c.Gamepad.RumbleMs <= 0 {
		c.Gamepad.RumbleMs = d.Gamepad.RumbleMs
	}
	if c.Uplink.ReconnectMs <= 0 {
		c.Uplink.ReconnectMs = d.Uplink.ReconnectMs
	}
	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = d.Serial.BaudRate
	}

	if c.Winch.MinStepDelayUs > c.Winch.MaxStepDelayUs {
		return fmt.Errorf("winch.min_step_delay_us (%d) must be <= max_step_delay_us (%d)",
			c.Winch.MinStepDelayUs, c.Winch.MaxStepDelayUs)
	}
	if c.Gamepad.RumbleStrength < 0 || c.Gamepad.RumbleStrength > 1 {
		return fmt.Errorf("gamepad.rumble_strength must be between 0 and 1, got %.2f", c.Gamepad.RumbleStrength)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Drive.Enabled {
		if err := checkPins("drive", c.Drive.Left.ForwardPin, c.Drive.Left.BackwardPin, c.Drive.Left.PWMPin,
			c.Drive.Right.ForwardPin, c.Drive.Right.BackwardPin, c.Drive.Right.PWMPin); err != nil {
			return err
		}
	}
	if c.Winch.Enabled {
		pins := append(c.Winch.CoilPins[:], c.Winch.MagnetPin)
		if err := checkPins("winch", pins...); err != nil {
			return err
		}
	}
	return nil
}

// checkPins rejects out-of-range and duplicated BCM pins.
func checkPins(section string, pins ...int) error {
	seen := make(map[int]bool, len(pins))
	for _, p := range pins {
		if p < 0 || p > 27 {
			return fmt.Errorf("%s: pin %d out of range 0-27", section, p)
		}
		if seen[p] {
			return fmt.Errorf("%s: pin %d used twice", section, p)
		}
		seen[p] = true
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// TickPeriod returns the drive trajectory tick period.
func (c *Config) TickPeriod() time.Duration {
	return ms(c.Drive.TickMs)
}

// DurationPerUnit returns the drive ramp time for a speed change of 1.0.
func (c *Config) DurationPerUnit() time.Duration {
	return ms(c.Drive.DurationPerUnitMs)
}

// MinStepDelay returns the winch step delay at full speed.
func (c *Config) MinStepDelay() time.Duration {
	return time.Duration(c.Winch.MinStepDelayUs) * time.Microsecond
}

// MaxStepDelay returns the winch step delay near zero speed.
func (c *Config) MaxStepDelay() time.Duration {
	return time.Duration(c.Winch.MaxStepDelayUs) * time.Microsecond
}

func (c *Config) ReleasePulse() time.Duration {
	return ms(c.Winch.ReleasePulseMs)
}

func (c *Config) DebounceWindow() time.Duration {
	return ms(c.Gamepad.DebounceMs)
}

func (c *Config) RumbleDuration() time.Duration {
	return ms(c.Gamepad.RumbleMs)
}

func (c *Config) ReconnectDelay() time.Duration {
	return ms(c.Uplink.ReconnectMs)
}
