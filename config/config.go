// Package config loads the daemon configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ammcon/serialcomm"
)

type Config struct {
	Serial Serial `yaml:"serial"`

	// Vocabulary optionally replaces the built-in command table.
	Vocabulary string `yaml:"vocabulary"`

	// QueueSize is how many requests may wait behind the one in flight.
	QueueSize int `yaml:"queue_size"`

	// RequestTimeout bounds how long a gateway caller waits for a reply.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	MQTT    MQTT    `yaml:"mqtt"`
	HTTP    HTTP    `yaml:"http"`
	TempLog TempLog `yaml:"templog"`
}

type Serial struct {
	Port   string `yaml:"port"`
	Baud   int    `yaml:"baud"`
	Driver string `yaml:"driver"`

	// Dev replaces the device with the in-memory simulator.
	Dev bool `yaml:"dev"`

	ReadDeadline time.Duration `yaml:"read_deadline"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
}

type MQTT struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type HTTP struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TempLog struct {
	Enabled  bool          `yaml:"enabled"`
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Serial: Serial{
			Port:        "/dev/ttyUSB0",
			Baud:        serialcomm.DefaultBaudRate,
			Driver:      serialcomm.DriverTarm,
			RetryDelay:  serialcomm.DefaultRetryDelay,
			SettleDelay: serialcomm.DefaultSettleDelay,
		},
		QueueSize:      16,
		RequestTimeout: 10 * time.Second,
		MQTT: MQTT{
			Broker:   "tcp://localhost:1883",
			ClientID: "ammcon",
			Topic:    "ammcon",
		},
		HTTP: HTTP{
			Enabled: true,
			Listen:  ":5000",
		},
		TempLog: TempLog{
			Dir:      ".",
			Interval: time.Minute,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.Serial.Dev && c.Serial.Port == "" {
		return errors.New("serial.port is required unless serial.dev is set")
	}
	switch c.Serial.Driver {
	case "", serialcomm.DriverTarm, serialcomm.DriverBugst, serialcomm.DriverVirtual:
	default:
		return fmt.Errorf("serial.driver %q is not one of tarm, bugst, virtual", c.Serial.Driver)
	}
	if c.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize)
	}
	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		return errors.New("mqtt.broker and mqtt.topic are required when mqtt is enabled")
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return errors.New("http.listen is required when http is enabled")
	}
	return nil
}

// SerialConfig converts the serial section for serialcomm.Open.
func (c Config) SerialConfig() serialcomm.SerialConfig {
	driver := c.Serial.Driver
	if c.Serial.Dev {
		driver = serialcomm.DriverVirtual
	}
	return serialcomm.SerialConfig{
		PortName:     c.Serial.Port,
		BaudRate:     c.Serial.Baud,
		Driver:       driver,
		ReadDeadline: c.Serial.ReadDeadline,
		WriteTimeout: c.Serial.WriteTimeout,
		RetryDelay:   c.Serial.RetryDelay,
		SettleDelay:  c.Serial.SettleDelay,
	}
}
