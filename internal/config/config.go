// Package config loads the valve controller configuration from an optional
// YAML file. A .env file in the working directory is loaded into the process
// environment first, and ${VAR} references in the YAML are expanded.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/valve-controller/internal/gpio"
	"github.com/sweeney/valve-controller/internal/mqtt"
)

// Defaults.
const (
	DefaultBroker          = "tcp://localhost:1883"
	DefaultClientID        = "valve-controller"
	DefaultTickInterval    = 10 * time.Second
	DefaultSwitchPoll      = 100 * time.Millisecond
	DefaultSwitchDebounce  = 250 * time.Millisecond
	DefaultMaxManualOpen   = 30000 * time.Second
	DefaultActuatorTimeout = 2 * time.Second
	DefaultActuatorRetries = 3
	DefaultHeartbeat       = 15 * time.Minute
	DefaultConnectTimeout  = 10 * time.Second
	DefaultTimezone        = "Local"
	DefaultHTTPAddr        = ":8080"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config is the full daemon configuration.
type Config struct {
	MQTT       MQTT       `yaml:"mqtt"`
	GPIO       GPIO       `yaml:"gpio"`
	Controller Controller `yaml:"controller"`
	Timezone   string     `yaml:"timezone"`
	// Heartbeat is the interval between status heartbeats. Zero disables them.
	Heartbeat *time.Duration `yaml:"heartbeat"`
	HTTPAddr  string         `yaml:"http_addr"`
	Log       Log            `yaml:"log"`
}

// MQTT configures the broker connection.
type MQTT struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	CACert         string        `yaml:"ca_cert"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	KeepAlive      time.Duration `yaml:"keepalive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
}

// GPIO selects chip lines. Pointer pins distinguish "unset" from pin 0; a
// negative pin disables the line.
type GPIO struct {
	Chip            string `yaml:"chip"`
	ValvePin        *int   `yaml:"valve_pin"`
	ValveActiveLow  bool   `yaml:"valve_active_low"`
	ValveLEDPin     *int   `yaml:"valve_led_pin"`
	MQTTLEDPin      *int   `yaml:"mqtt_led_pin"`
	SwitchPin       *int   `yaml:"switch_pin"`
	SwitchActiveLow bool   `yaml:"switch_active_low"`
	CloseOnExit     bool   `yaml:"close_on_exit"`
}

// Controller tunes the run loop and the valve state machine.
type Controller struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	SwitchPoll      time.Duration `yaml:"switch_poll"`
	SwitchDebounce  time.Duration `yaml:"switch_debounce"`
	MaxManualOpen   time.Duration `yaml:"max_manual_open"`
	ActuatorTimeout time.Duration `yaml:"actuator_timeout"`
	ActuatorRetries *int          `yaml:"actuator_retries"`
}

// Log configures logrus.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Load reads path, expands environment references, applies defaults and
// validates the result. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFile loads name into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(name string) error {
	if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

func intPtr(v int) *int { return &v }

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = DefaultBroker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = mqtt.DefaultTopicPrefix
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = mqtt.DefaultBufferSize
	}

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = gpio.DefaultChip
	}
	if c.GPIO.ValvePin == nil {
		c.GPIO.ValvePin = intPtr(gpio.DefaultPinValve)
	}
	if c.GPIO.ValveLEDPin == nil {
		c.GPIO.ValveLEDPin = intPtr(gpio.DefaultPinValveLED)
	}
	if c.GPIO.MQTTLEDPin == nil {
		c.GPIO.MQTTLEDPin = intPtr(gpio.DefaultPinMQTTLED)
	}
	if c.GPIO.SwitchPin == nil {
		c.GPIO.SwitchPin = intPtr(gpio.DefaultPinSwitch)
	}

	if c.Controller.TickInterval == 0 {
		c.Controller.TickInterval = DefaultTickInterval
	}
	if c.Controller.SwitchPoll == 0 {
		c.Controller.SwitchPoll = DefaultSwitchPoll
	}
	if c.Controller.SwitchDebounce == 0 {
		c.Controller.SwitchDebounce = DefaultSwitchDebounce
	}
	if c.Controller.MaxManualOpen == 0 {
		c.Controller.MaxManualOpen = DefaultMaxManualOpen
	}
	if c.Controller.ActuatorTimeout == 0 {
		c.Controller.ActuatorTimeout = DefaultActuatorTimeout
	}
	if c.Controller.ActuatorRetries == nil {
		c.Controller.ActuatorRetries = intPtr(DefaultActuatorRetries)
	}

	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Heartbeat == nil {
		d := DefaultHeartbeat
		c.Heartbeat = &d
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = DefaultHTTPAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate reports the first problem found. Call ApplyDefaults first.
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt.broker is empty", ErrInvalid)
	}
	if c.MQTT.BufferSize < 0 {
		return fmt.Errorf("%w: mqtt.buffer_size must not be negative", ErrInvalid)
	}
	if (c.MQTT.CertFile == "") != (c.MQTT.KeyFile == "") {
		return fmt.Errorf("%w: mqtt.cert_file and mqtt.key_file must be set together", ErrInvalid)
	}
	if c.GPIO.ValvePin == nil || *c.GPIO.ValvePin < 0 {
		return fmt.Errorf("%w: gpio.valve_pin must be set", ErrInvalid)
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"controller.tick_interval", c.Controller.TickInterval},
		{"controller.switch_poll", c.Controller.SwitchPoll},
		{"controller.switch_debounce", c.Controller.SwitchDebounce},
		{"controller.max_manual_open", c.Controller.MaxManualOpen},
		{"controller.actuator_timeout", c.Controller.ActuatorTimeout},
		{"mqtt.connect_timeout", c.MQTT.ConnectTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, p.name, p.d)
		}
	}
	if c.MQTT.KeepAlive < 0 {
		return fmt.Errorf("%w: mqtt.keepalive must not be negative", ErrInvalid)
	}
	if c.Heartbeat != nil && *c.Heartbeat < 0 {
		return fmt.Errorf("%w: heartbeat must not be negative", ErrInvalid)
	}
	if c.Controller.ActuatorRetries != nil && *c.Controller.ActuatorRetries < 0 {
		return fmt.Errorf("%w: controller.actuator_retries must not be negative", ErrInvalid)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone: %v", ErrInvalid, err)
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// SwitchEnabled reports whether a manual switch is wired.
func (c *Config) SwitchEnabled() bool {
	return c.GPIO.SwitchPin != nil && *c.GPIO.SwitchPin >= 0
}

// HeartbeatInterval returns the heartbeat period, zero when disabled.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.Heartbeat == nil {
		return 0
	}
	return *c.Heartbeat
}

// Pins converts the GPIO section for gpio.NewRealActuator. Negative LED pins
// are left out.
func (c *Config) Pins() gpio.Pins {
	p := gpio.Pins{
		Chip:           c.GPIO.Chip,
		Valve:          *c.GPIO.ValvePin,
		ValveActiveLow: c.GPIO.ValveActiveLow,
		Indicators:     map[string]int{},
		CloseOnExit:    c.GPIO.CloseOnExit,
	}
	if c.GPIO.ValveLEDPin != nil && *c.GPIO.ValveLEDPin >= 0 {
		p.Indicators[gpio.IndicatorValve] = *c.GPIO.ValveLEDPin
	}
	if c.GPIO.MQTTLEDPin != nil && *c.GPIO.MQTTLEDPin >= 0 {
		p.Indicators[gpio.IndicatorMQTT] = *c.GPIO.MQTTLEDPin
	}
	return p
}
