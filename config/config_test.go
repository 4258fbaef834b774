package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammcon/serialcomm"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ammcon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	sc := cfg.SerialConfig()
	assert.Equal(t, serialcomm.DriverTarm, sc.Driver)
	assert.Equal(t, 10*time.Second, sc.RetryDelay)
	assert.Equal(t, 2*time.Second, sc.SettleDelay)
	assert.Zero(t, sc.ReadDeadline)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyACM0
  driver: bugst
  read_deadline: 3s
mqtt:
  enabled: true
  broker: tcp://mqtt.local:1883
templog:
  enabled: true
  interval: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, serialcomm.DriverBugst, cfg.Serial.Driver)
	assert.Equal(t, 3*time.Second, cfg.Serial.ReadDeadline)
	assert.Equal(t, serialcomm.DefaultBaudRate, cfg.Serial.Baud)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://mqtt.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, "ammcon", cfg.MQTT.Topic)
	assert.Equal(t, 30*time.Second, cfg.TempLog.Interval)
	assert.Equal(t, ":5000", cfg.HTTP.Listen)
}

func TestDevSelectsVirtualDriver(t *testing.T) {
	cfg, err := Load(writeConfig(t, "serial:\n  dev: true\n  port: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, serialcomm.DriverVirtual, cfg.SerialConfig().Driver)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "serial: [\n"},
		{"bad duration", "serial:\n  retry_delay: soon\n"},
		{"unknown driver", "serial:\n  driver: pigeon\n"},
		{"missing port", "serial:\n  port: \"\"\n"},
		{"negative queue", "queue_size: -1\n"},
		{"mqtt without topic", "mqtt:\n  enabled: true\n  topic: \"\"\n"},
		{"http without listen", "http:\n  listen: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
