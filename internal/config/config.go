package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"photorelay/pkg/types"
)

// Config is the full server configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Relay     RelayConfig     `mapstructure:"relay"`
	LogLevel  string          `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

type AuditConfig struct {
	// Path of the sqlite upload log; empty disables it.
	Path string `mapstructure:"path"`
}

type RelayConfig struct {
	// UploadRateLimit caps uploads per minute per connection; 0 disables.
	UploadRateLimit int `mapstructure:"upload_rate_limit"`
}

// Default returns the configuration used when nothing overrides it. The
// heartbeat values match what the mobile and desktop clients expect from
// the original deployment (25s ping, 60s grace).
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 25 * time.Second,
			PongWait:     60 * time.Second,
			WriteTimeout: 10 * time.Second,
			ReadLimit:    types.MaxMessageBytes,
			SendBuffer:   100,
		},
		Audit: AuditConfig{
			Path: "./photorelay.db",
		},
		Relay: RelayConfig{
			UploadRateLimit: 0,
		},
		LogLevel: "info",
	}
}

// Load builds configuration from defaults, an optional yaml file named by
// PHOTORELAY_CONFIG_FILE, and PHOTORELAY_* environment variables, then
// validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	def := Default()
	v.SetDefault("http.host", def.HTTP.Host)
	v.SetDefault("http.port", def.HTTP.Port)
	v.SetDefault("http.read_timeout", def.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", def.HTTP.WriteTimeout)
	v.SetDefault("websocket.ping_interval", def.WebSocket.PingInterval)
	v.SetDefault("websocket.pong_wait", def.WebSocket.PongWait)
	v.SetDefault("websocket.write_timeout", def.WebSocket.WriteTimeout)
	v.SetDefault("websocket.read_limit", def.WebSocket.ReadLimit)
	v.SetDefault("websocket.send_buffer", def.WebSocket.SendBuffer)
	v.SetDefault("audit.path", def.Audit.Path)
	v.SetDefault("relay.upload_rate_limit", def.Relay.UploadRateLimit)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("PHOTORELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := os.Getenv("PHOTORELAY_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http write timeout must be positive")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}
	if c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket pong wait must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	if c.WebSocket.ReadLimit < types.MaxPhotoBytes {
		return fmt.Errorf("websocket read limit must cover the %d byte photo ceiling", types.MaxPhotoBytes)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	if c.Relay.UploadRateLimit < 0 {
		return fmt.Errorf("upload rate limit cannot be negative")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
