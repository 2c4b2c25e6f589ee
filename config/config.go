// Package config loads the tankctl configuration from a YAML file and
// TANKCTL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-tankbot/bluez"
	"github.com/arloliu/go-tankbot/logger"
	"github.com/arloliu/go-tankbot/session"
	"github.com/arloliu/go-tankbot/transport"
	"github.com/arloliu/go-tankbot/transport/serialport"
	"github.com/arloliu/go-tankbot/wire"
)

// EnvPrefix prefixes every environment override, e.g. TANKCTL_DEVICE_ADDRESS.
const EnvPrefix = "TANKCTL"

// FileName is the base name searched for when no path is given.
const FileName = "tankctl"

// Config is the root tankctl configuration.
type Config struct {
	// Transport is the dialer name: rfcomm, serial or tcp.
	Transport string          `mapstructure:"transport" yaml:"transport"`
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Bridge    BridgeConfig    `mapstructure:"bridge" yaml:"bridge"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// DeviceConfig names the robot to connect to.
type DeviceConfig struct {
	// Name is matched against paired devices when Address is empty.
	Name string `mapstructure:"name" yaml:"name"`
	// Address is a MAC for rfcomm, a device path for serial, host:port for tcp.
	Address  string `mapstructure:"address" yaml:"address"`
	Channel  int    `mapstructure:"channel" yaml:"channel"`
	BaudRate int    `mapstructure:"baud_rate" yaml:"baud_rate"`
}

// SessionConfig mirrors the session options.
type SessionConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	SendTimeout    time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	SendQueueSize  int           `mapstructure:"send_queue_size" yaml:"send_queue_size"`
	MaxFrameSize   int           `mapstructure:"max_frame_size" yaml:"max_frame_size"`
	ReadChunkSize  int           `mapstructure:"read_chunk_size" yaml:"read_chunk_size"`
}

// DiscoveryConfig controls which paired devices are listed as robots.
type DiscoveryConfig struct {
	NamePatterns []string `mapstructure:"name_patterns" yaml:"name_patterns"`
}

// BridgeConfig configures `tankctl serve`.
type BridgeConfig struct {
	Listen         string   `mapstructure:"listen" yaml:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format: json, text or console.
	Format string `mapstructure:"format" yaml:"format"`
	// File enables rotated file output.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Transport: "rfcomm",
		Device: DeviceConfig{
			Channel:  transport.DefaultChannel,
			BaudRate: serialport.DefaultBaudRate,
		},
		Session: SessionConfig{
			ConnectTimeout: session.DefaultConnectTimeout,
			SendTimeout:    session.DefaultSendTimeout,
			WriteTimeout:   session.DefaultWriteTimeout,
			SendQueueSize:  session.DefaultSendQueueSize,
			MaxFrameSize:   wire.DefaultMaxFrameSize,
			ReadChunkSize:  wire.DefaultReadChunkSize,
		},
		Discovery: DiscoveryConfig{
			NamePatterns: append([]string(nil), bluez.DefaultNamePatterns...),
		},
		Bridge: BridgeConfig{
			Listen: "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     logger.FormatConsole,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads configuration from path, or from ./tankctl.yaml or
// $HOME/.tankctl/tankctl.yaml when path is empty. A missing file is not an
// error. Environment variables override file values; `.` in keys becomes
// `_`, e.g. TANKCTL_SESSION_SEND_TIMEOUT=500ms.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("transport", cfg.Transport)
	v.SetDefault("device.name", cfg.Device.Name)
	v.SetDefault("device.address", cfg.Device.Address)
	v.SetDefault("device.channel", cfg.Device.Channel)
	v.SetDefault("device.baud_rate", cfg.Device.BaudRate)
	v.SetDefault("session.connect_timeout", cfg.Session.ConnectTimeout)
	v.SetDefault("session.send_timeout", cfg.Session.SendTimeout)
	v.SetDefault("session.write_timeout", cfg.Session.WriteTimeout)
	v.SetDefault("session.send_queue_size", cfg.Session.SendQueueSize)
	v.SetDefault("session.max_frame_size", cfg.Session.MaxFrameSize)
	v.SetDefault("session.read_chunk_size", cfg.Session.ReadChunkSize)
	v.SetDefault("discovery.name_patterns", cfg.Discovery.NamePatterns)
	v.SetDefault("bridge.listen", cfg.Bridge.Listen)
	v.SetDefault("bridge.allowed_origins", cfg.Bridge.AllowedOrigins)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate normalises and checks the configuration.
func (c *Config) Validate() error {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	switch c.Transport {
	case "rfcomm", "serial", "tcp":
	default:
		return fmt.Errorf("config: invalid transport %q, want rfcomm, serial or tcp", c.Transport)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: invalid log.level: %w", err)
	}

	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch c.Log.Format {
	case "":
		c.Log.Format = logger.FormatConsole
	case logger.FormatJSON, logger.FormatText, logger.FormatConsole:
	default:
		return fmt.Errorf("config: invalid log.format %q", c.Log.Format)
	}

	if c.Device.Channel < 0 || c.Device.Channel > 30 {
		return fmt.Errorf("config: device.channel %d out of range [0, 30]", c.Device.Channel)
	}

	return nil
}

// Target returns the configured device as a transport target.
func (c *Config) Target() transport.Target {
	return transport.Target{Name: c.Device.Name, Address: c.Device.Address, Channel: c.Device.Channel}
}

// SessionOptions converts the session settings to session options.
// Zero values keep the session defaults.
func (c *Config) SessionOptions() []session.Option {
	var opts []session.Option

	s := c.Session
	if s.ConnectTimeout > 0 {
		opts = append(opts, session.WithConnectTimeout(s.ConnectTimeout))
	}
	if s.SendTimeout > 0 {
		opts = append(opts, session.WithSendTimeout(s.SendTimeout))
	}
	if s.WriteTimeout > 0 {
		opts = append(opts, session.WithWriteTimeout(s.WriteTimeout))
	}
	if s.SendQueueSize > 0 {
		opts = append(opts, session.WithSendQueueSize(s.SendQueueSize))
	}
	if s.MaxFrameSize > 0 {
		opts = append(opts, session.WithMaxFrameSize(s.MaxFrameSize))
	}
	if s.ReadChunkSize > 0 {
		opts = append(opts, session.WithReadChunkSize(s.ReadChunkSize))
	}

	return opts
}

// LoggerOptions converts the log settings; out is used when no file is set.
func (c *Config) LoggerOptions(out io.Writer) logger.Options {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		level = logger.InfoLevel
	}

	return logger.Options{
		Level:      level,
		Format:     c.Log.Format,
		Output:     out,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// WriteDefault writes the default configuration as YAML to path, creating
// parent directories. An existing file is kept unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	if err := Encode(f, Default()); err != nil {
		return err
	}

	return f.Close()
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg *Config) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	return encoder.Close()
}
