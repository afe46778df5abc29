package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultBind          = ":8080"
	DefaultServer        = "http://localhost:8080"
	DefaultSTUN          = "stun:stun.l.google.com:19302"
	DefaultStatsSchedule = "@every 1m"
	EnvPrefix            = "CALLSIGNAL"
)

// Config holds application configuration
type Config struct {
	Bind string `mapstructure:"bind"`

	// AllowedOrigins is checked against the Origin header of API and
	// websocket requests. "*" allows every origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	Log   LogConfig   `mapstructure:"log"`
	WS    WSConfig    `mapstructure:"ws"`
	Stats StatsConfig `mapstructure:"stats"`
	Probe ProbeConfig `mapstructure:"probe"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type WSConfig struct {
	ReadBuffer     int           `mapstructure:"read_buffer"`
	WriteBuffer    int           `mapstructure:"write_buffer"`
	SendQueue      int           `mapstructure:"send_queue"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
}

type StatsConfig struct {
	// Schedule is a cron spec; empty disables the periodic report.
	Schedule string `mapstructure:"schedule"`
}

// ProbeConfig is used by the client-side commands.
type ProbeConfig struct {
	// Server is the base http(s) URL of a running signaling server.
	Server  string        `mapstructure:"server"`
	STUN    []string      `mapstructure:"stun"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// New returns a viper instance with defaults, config file search paths and
// environment binding set up. Flags are bound on top of it by the caller.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("bind", DefaultBind)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ws.read_buffer", 64*1024)
	v.SetDefault("ws.write_buffer", 64*1024)
	v.SetDefault("ws.send_queue", 256)
	v.SetDefault("ws.max_message_size", 64*1024)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.write_wait", 10*time.Second)
	v.SetDefault("stats.schedule", DefaultStatsSchedule)
	v.SetDefault("probe.server", DefaultServer)
	v.SetDefault("probe.stun", []string{DefaultSTUN})
	v.SetDefault("probe.timeout", 30*time.Second)

	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.SetConfigName("settings")
	v.SetConfigType("toml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configuration with the following priority:
// 1. CLI flags bound to v - highest priority
// 2. Environment variables (a .env file is loaded first if present)
// 3. settings.toml
// 4. Defaults - lowest priority
func Load(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if cfg.Bind == "" {
		return nil, errors.New("bind address must not be empty")
	}
	return &cfg, nil
}

// OriginAllowed reports whether origin may open a connection. Requests
// without an Origin header (non-browser clients) are always allowed.
func (c *Config) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// WebSocketURL derives the signaling endpoint from the probe server URL.
func (c *Config) WebSocketURL() (string, error) {
	u, err := url.Parse(c.Probe.Server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// APIURL joins path onto the probe server URL.
func (c *Config) APIURL(path string) (string, error) {
	u, err := url.Parse(c.Probe.Server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String(), nil
}
