package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mreiferson/go-options"
)

const DefaultPort = "5555"

type ServerConfig struct {
	Listen   string `flag:"listen"`
	FilesDir string `flag:"files-dir"`
	StateDir string `flag:"state-dir"`

	HandshakeTimeout time.Duration `flag:"handshake-timeout"`
	SessionTimeout   time.Duration `flag:"session-timeout"`
	TransferTimeout  time.Duration `flag:"transfer-timeout"`
	ChunkSize        int           `flag:"chunk-size"`

	AcceptBackoff   time.Duration `flag:"accept-backoff"`
	MonitorInterval time.Duration `flag:"monitor-interval"`
	RebootDelay     time.Duration `flag:"reboot-delay"`
	ConnectTimeout  time.Duration `flag:"connect-timeout"`

	Debug    bool   `flag:"debug"`
	LogLevel string `flag:"log-level"`

	KeepAlive      bool          `flag:"keep-alive"`
	KeepAliveIdle  time.Duration `flag:"keep-alive-idle"`
	KeepAliveCount int           `flag:"keep-alive-count"`
	KeepAliveIntvl time.Duration `flag:"keep-alive-intvl"`

	LEDPath      string        `flag:"led-path"`
	NetInterface string        `flag:"net-interface"`
	SensorPath   string        `flag:"sensor-path"`
	GeoURL       string        `flag:"geo-url"`
	WeatherURL   string        `flag:"weather-url"`
	HTTPTimeout  time.Duration `flag:"http-timeout"`
}

type ClientConfig struct {
	KeepAlive      bool
	KeepAliveIdle  time.Duration
	KeepAliveCount int
	KeepAliveIntvl time.Duration
	ChunkSize      int
	Timeout        time.Duration
}

type Config struct {
	Server ServerConfig
	Client ClientConfig
}

func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:           "0.0.0.0:" + DefaultPort,
			FilesDir:         "./files",
			StateDir:         "./state",
			HandshakeTimeout: 5 * time.Second,
			SessionTimeout:   5 * time.Minute,
			TransferTimeout:  30 * time.Second,
			ChunkSize:        1024,
			AcceptBackoff:    time.Second,
			MonitorInterval:  60 * time.Second,
			RebootDelay:      time.Second,
			ConnectTimeout:   10 * time.Second,
			LogLevel:         "info",
			KeepAlive:        true,
			KeepAliveIdle:    30 * time.Second,
			KeepAliveCount:   3,
			KeepAliveIntvl:   10 * time.Second,
			LEDPath:          "/sys/class/leds/led0/brightness",
			HTTPTimeout:      10 * time.Second,
		},
		Client: ClientConfig{
			KeepAlive:      true,
			KeepAliveIdle:  30 * time.Second,
			KeepAliveCount: 3,
			KeepAliveIntvl: 10 * time.Second,
			ChunkSize:      1024,
			Timeout:        30 * time.Second,
		},
	}
}

// ServerFlags registers one flag per ServerConfig field, defaulting to def, plus
// the -config file flag.
func ServerFlags(def ServerConfig) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet("devctl-server", flag.ContinueOnError)
	cfgFile := fs.String("config", "", "path to a TOML config file")

	fs.String("listen", def.Listen, "TCP listen address")
	fs.String("files-dir", def.FilesDir, "directory holding user files")
	fs.String("state-dir", def.StateDir, "directory holding credentials, transfer state and the debug log")

	fs.Duration("handshake-timeout", def.HandshakeTimeout, "max wait for the handshake acknowledgment")
	fs.Duration("session-timeout", def.SessionTimeout, "idle deadline for a command read")
	fs.Duration("transfer-timeout", def.TransferTimeout, "deadline for each receive during a transfer")
	fs.Int("chunk-size", def.ChunkSize, "transfer chunk size in bytes")

	fs.Duration("accept-backoff", def.AcceptBackoff, "pause after an accept or session network error")
	fs.Duration("monitor-interval", def.MonitorInterval, "system monitor period")
	fs.Duration("reboot-delay", def.RebootDelay, "pause before restarting on reboot")
	fs.Duration("connect-timeout", def.ConnectTimeout, "max wait for the network at boot")

	fs.Bool("debug", def.Debug, "start with the diagnostic log enabled")
	fs.String("log-level", def.LogLevel, "console log level (trace, debug, info, warn, error, crit)")

	fs.Bool("keep-alive", def.KeepAlive, "enable TCP keepalive")
	fs.Duration("keep-alive-idle", def.KeepAliveIdle, "keepalive idle time")
	fs.Int("keep-alive-count", def.KeepAliveCount, "keepalive probe count")
	fs.Duration("keep-alive-intvl", def.KeepAliveIntvl, "keepalive probe interval")

	fs.String("led-path", def.LEDPath, "sysfs brightness file of the status LED")
	fs.String("net-interface", def.NetInterface, "uplink interface (empty: first interface with IPv4)")
	fs.String("sensor-path", def.SensorPath, "file holding the auxiliary sensor reading")
	fs.String("geo-url", def.GeoURL, "IP geolocation endpoint")
	fs.String("weather-url", def.WeatherURL, "weather service base URL")
	fs.Duration("http-timeout", def.HTTPTimeout, "timeout for geo and weather requests")
	return fs, cfgFile
}

// LoadServer parses args on top of the defaults. Values given on the command
// line win over the config file, which wins over the defaults. Durations in the
// config file are strings such as "30s".
func LoadServer(args []string) (*ServerConfig, error) {
	fs, cfgFile := ServerFlags(NewConfig().Server)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var cfg map[string]interface{}
	if *cfgFile != "" {
		if _, err := toml.DecodeFile(*cfgFile, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", *cfgFile, err)
		}
	}

	opts := &ServerConfig{}
	options.Resolve(opts, fs, cfg)
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", opts.ChunkSize)
	}
	return opts, nil
}
