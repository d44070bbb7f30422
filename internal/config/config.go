// ABOUTME: Configuration loading and parsing for pulse-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pulse-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Socket   SocketConfig   `yaml:"socket"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SocketConfig holds websocket keepalive configuration. The ping cadence is a
// liveness tunable, not a correctness property.
type SocketConfig struct {
	PingInterval time.Duration `yaml:"-"`
	PingTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PingIntervalRaw string `yaml:"ping_interval"`
	PingTimeoutRaw  string `yaml:"ping_timeout"`
	WriteTimeoutRaw string `yaml:"write_timeout"`
}

// SweepConfig holds unread-digest sweep configuration
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"-"`

	IntervalRaw string `yaml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the file leaves fields unset.
const (
	DefaultPingInterval = 10 * time.Second
	DefaultPingTimeout  = 15 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultSweepEvery   = time.Minute
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Socket.PingTimeout <= c.Socket.PingInterval {
		return fmt.Errorf("socket.ping_timeout must exceed socket.ping_interval")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Socket.PingInterval == 0 {
		c.Socket.PingInterval = DefaultPingInterval
	}
	if c.Socket.PingTimeout == 0 {
		c.Socket.PingTimeout = DefaultPingTimeout
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = DefaultWriteTimeout
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = DefaultSweepEvery
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Socket.PingIntervalRaw != "" {
		cfg.Socket.PingInterval, err = time.ParseDuration(cfg.Socket.PingIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing ping_interval %q: %w", cfg.Socket.PingIntervalRaw, err)
		}
	}

	if cfg.Socket.PingTimeoutRaw != "" {
		cfg.Socket.PingTimeout, err = time.ParseDuration(cfg.Socket.PingTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing ping_timeout %q: %w", cfg.Socket.PingTimeoutRaw, err)
		}
	}

	if cfg.Socket.WriteTimeoutRaw != "" {
		cfg.Socket.WriteTimeout, err = time.ParseDuration(cfg.Socket.WriteTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing write_timeout %q: %w", cfg.Socket.WriteTimeoutRaw, err)
		}
	}

	if cfg.Sweep.IntervalRaw != "" {
		cfg.Sweep.Interval, err = time.ParseDuration(cfg.Sweep.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep interval %q: %w", cfg.Sweep.IntervalRaw, err)
		}
	}

	return nil
}
