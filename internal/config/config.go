// ABOUTME: Configuration loading and parsing for livedesk
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load for fields the file leaves unset.
const (
	DefaultHTTPAddr     = ":8085"
	DefaultDatabasePath = "livedesk.db"
	DefaultExchange     = "livedesk.events"

	DefaultSweepInterval       = 5 * time.Second
	DefaultCleanupInterval     = 10 * time.Minute
	DefaultAverageHandleTime   = 5 * time.Minute
	DefaultInactivityThreshold = 24 * time.Hour
	DefaultClosedRetention     = time.Hour

	DefaultPresenceSweepInterval = time.Minute
	DefaultHeartbeatTimeout      = 90 * time.Second
)

// Config represents the complete livedesk configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Routing       RoutingConfig       `yaml:"routing"`
	Presence      PresenceConfig      `yaml:"presence"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Agents        AgentsConfig        `yaml:"agents"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RoutingConfig holds the assignment and cleanup timing configuration.
// The handle time, inactivity threshold, and closed retention are
// hot-reloadable through the config watcher; the cron intervals are not.
type RoutingConfig struct {
	SweepInterval       time.Duration `yaml:"-"`
	CleanupInterval     time.Duration `yaml:"-"`
	AverageHandleTime   time.Duration `yaml:"-"`
	InactivityThreshold time.Duration `yaml:"-"`
	ClosedRetention     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	SweepIntervalRaw       string `yaml:"sweep_interval"`
	CleanupIntervalRaw     string `yaml:"cleanup_interval"`
	AverageHandleTimeRaw   string `yaml:"average_handle_time"`
	InactivityThresholdRaw string `yaml:"inactivity_threshold"`
	ClosedRetentionRaw     string `yaml:"closed_retention"`
}

// PresenceConfig holds agent liveness timing configuration
type PresenceConfig struct {
	SweepInterval    time.Duration `yaml:"-"`
	HeartbeatTimeout time.Duration `yaml:"-"`

	SweepIntervalRaw    string `yaml:"sweep_interval"`
	HeartbeatTimeoutRaw string `yaml:"heartbeat_timeout"`
}

// NotificationsConfig holds event delivery configuration. BroadcastRate
// and BroadcastBurst of 0 select the fanout's built-in defaults.
type NotificationsConfig struct {
	BroadcastRate  float64    `yaml:"broadcast_rate"`
	BroadcastBurst int        `yaml:"broadcast_burst"`
	AMQP           AMQPConfig `yaml:"amqp"`
}

// AMQPConfig holds the optional RabbitMQ transport configuration
type AMQPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// AgentsConfig holds the seed roster. Agents can also live in the database;
// seeds are upserted on startup so a fresh deployment routes immediately.
type AgentsConfig struct {
	Seed []SeedAgent `yaml:"seed"`
}

// SeedAgent is one roster entry from the config file
type SeedAgent struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Department  string `yaml:"department"`
	MaxCapacity int    `yaml:"max_capacity"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values; unset fields get
// the package defaults.
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

// Default returns a config carrying only the package defaults, the same
// shape Load produces for an empty file plus a database path.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
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

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Routing.SweepInterval == 0 {
		c.Routing.SweepInterval = DefaultSweepInterval
	}
	if c.Routing.CleanupInterval == 0 {
		c.Routing.CleanupInterval = DefaultCleanupInterval
	}
	if c.Routing.AverageHandleTime == 0 {
		c.Routing.AverageHandleTime = DefaultAverageHandleTime
	}
	if c.Routing.InactivityThreshold == 0 {
		c.Routing.InactivityThreshold = DefaultInactivityThreshold
	}
	if c.Routing.ClosedRetention == 0 {
		c.Routing.ClosedRetention = DefaultClosedRetention
	}
	if c.Presence.SweepInterval == 0 {
		c.Presence.SweepInterval = DefaultPresenceSweepInterval
	}
	if c.Presence.HeartbeatTimeout == 0 {
		c.Presence.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Notifications.AMQP.Exchange == "" {
		c.Notifications.AMQP.Exchange = DefaultExchange
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
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

	for name, d := range map[string]time.Duration{
		"routing.sweep_interval":       c.Routing.SweepInterval,
		"routing.cleanup_interval":     c.Routing.CleanupInterval,
		"routing.average_handle_time":  c.Routing.AverageHandleTime,
		"routing.inactivity_threshold": c.Routing.InactivityThreshold,
		"routing.closed_retention":     c.Routing.ClosedRetention,
		"presence.sweep_interval":      c.Presence.SweepInterval,
		"presence.heartbeat_timeout":   c.Presence.HeartbeatTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Notifications.AMQP.Enabled && c.Notifications.AMQP.URL == "" {
		return fmt.Errorf("notifications.amqp.url is required when amqp is enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	for i, seed := range c.Agents.Seed {
		if seed.ID == "" {
			return fmt.Errorf("agents.seed[%d].id is required", i)
		}
		if seed.MaxCapacity < 0 {
			return fmt.Errorf("agents.seed[%d].max_capacity cannot be negative", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"routing.sweep_interval", cfg.Routing.SweepIntervalRaw, &cfg.Routing.SweepInterval},
		{"routing.cleanup_interval", cfg.Routing.CleanupIntervalRaw, &cfg.Routing.CleanupInterval},
		{"routing.average_handle_time", cfg.Routing.AverageHandleTimeRaw, &cfg.Routing.AverageHandleTime},
		{"routing.inactivity_threshold", cfg.Routing.InactivityThresholdRaw, &cfg.Routing.InactivityThreshold},
		{"routing.closed_retention", cfg.Routing.ClosedRetentionRaw, &cfg.Routing.ClosedRetention},
		{"presence.sweep_interval", cfg.Presence.SweepIntervalRaw, &cfg.Presence.SweepInterval},
		{"presence.heartbeat_timeout", cfg.Presence.HeartbeatTimeoutRaw, &cfg.Presence.HeartbeatTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
