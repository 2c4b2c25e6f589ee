package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tankbot/logger"
	"github.com/arloliu/go-tankbot/session"
	"github.com/arloliu/go-tankbot/transport"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tankctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "rfcomm", cfg.Transport)
	assert.Equal(t, transport.DefaultChannel, cfg.Device.Channel)
	assert.Equal(t, Default().Session, cfg.Session)
	assert.Equal(t, Default().Log, cfg.Log)
	assert.Equal(t, session.DefaultSendTimeout, cfg.Session.SendTimeout)
	assert.Equal(t, []string{"ESP32", "Tank", "Robot"}, cfg.Discovery.NamePatterns)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
transport: Serial
device:
  name: ESP32-Tank
  address: /dev/rfcomm0
  baud_rate: 9600
session:
  connect_timeout: 5s
  send_timeout: 250ms
  send_queue_size: 32
bridge:
  listen: ":9000"
  allowed_origins:
    - http://tank.local
log:
  level: debug
  format: JSON
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serial", cfg.Transport)
	assert.Equal(t, "ESP32-Tank", cfg.Device.Name)
	assert.Equal(t, "/dev/rfcomm0", cfg.Device.Address)
	assert.Equal(t, 9600, cfg.Device.BaudRate)
	assert.Equal(t, transport.DefaultChannel, cfg.Device.Channel)
	assert.Equal(t, 5*time.Second, cfg.Session.ConnectTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.SendTimeout)
	assert.Equal(t, session.DefaultWriteTimeout, cfg.Session.WriteTimeout)
	assert.Equal(t, 32, cfg.Session.SendQueueSize)
	assert.Equal(t, ":9000", cfg.Bridge.Listen)
	assert.Equal(t, []string{"http://tank.local"}, cfg.Bridge.AllowedOrigins)
	assert.Equal(t, logger.FormatJSON, cfg.Log.Format)

	opts := cfg.LoggerOptions(os.Stderr)
	assert.Equal(t, logger.DebugLevel, opts.Level)
	assert.Equal(t, os.Stderr, opts.Output)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeFile(t, "device:\n  address: 24:6F:28:00:00:01\n")

	t.Setenv("TANKCTL_DEVICE_ADDRESS", "24:6F:28:AA:BB:CC")
	t.Setenv("TANKCTL_SESSION_WRITE_TIMEOUT", "750ms")
	t.Setenv("TANKCTL_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "24:6F:28:AA:BB:CC", cfg.Device.Address)
	assert.Equal(t, 750*time.Millisecond, cfg.Session.WriteTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)

	assert.Equal(t, transport.Target{Address: "24:6F:28:AA:BB:CC", Channel: 1}, cfg.Target())
}

func TestLoad_ConfigEnvPath(t *testing.T) {
	path := writeFile(t, "transport: tcp\n")
	t.Setenv("TANKCTL_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Transport)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "transport", content: "transport: usb\n", errMsg: "invalid transport"},
		{name: "level", content: "log:\n  level: loud\n", errMsg: "invalid log.level"},
		{name: "format", content: "log:\n  format: xml\n", errMsg: "invalid log.format"},
		{name: "channel", content: "device:\n  channel: 31\n", errMsg: "device.channel"},
		{name: "yaml", content: "transport: [\n", errMsg: "config: read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSessionOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.SessionOptions(), 6)

	cfg.Session = SessionConfig{SendQueueSize: 8}
	assert.Len(t, cfg.SessionOptions(), 1)

	opts := append(cfg.SessionOptions(), session.WithTransport("serial"))
	s, err := session.New(opts...)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tankctl.yaml")
	require.NoError(t, WriteDefault(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Transport, cfg.Transport)
	assert.Equal(t, def.Device, cfg.Device)
	assert.Equal(t, def.Session, cfg.Session)
	assert.Equal(t, def.Discovery, cfg.Discovery)
	assert.Equal(t, def.Bridge.Listen, cfg.Bridge.Listen)
	assert.Equal(t, def.Log, cfg.Log)

	err = WriteDefault(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, WriteDefault(path, true))
}
