package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix of every environment override.
const envPrefix = "GIFTPLANNER_"

// Statement cache bounds. Kept in step with database.MaxCacheCapacity; config
// does not import the database package.
const (
	minCacheCapacity = 1
	maxCacheCapacity = 1000
)

// Config is the root configuration structure for Gift Planner Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// SiteConfig identifies this installation in telemetry and MQTT payloads.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite engine settings.
type DatabaseConfig struct {
	// Path is the database file, or ":memory:" for a private in-memory store.
	Path string `yaml:"path"`

	// Debug enables engine logging. When false all engine output is discarded.
	Debug bool `yaml:"debug"`

	// CacheCapacity is the number of compiled statements kept per engine (1-1000).
	CacheCapacity int `yaml:"cache_capacity"`

	WALMode     bool `yaml:"wal_mode"`
	BusyTimeout int  `yaml:"busy_timeout"` // seconds
	ForeignKeys bool `yaml:"foreign_keys"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MonitorConfig controls the periodic statement cache report.
type MonitorConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // seconds
}

// Load builds a Config from Default, the YAML file at path and then any
// GIFTPLANNER_SECTION_KEY environment variables, in that order, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// It is a complete, valid configuration on its own: a WAL-mode database under
// ./data with external services switched off.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gift Planner",
		},
		Database: DatabaseConfig{
			Path:          "./data/giftplanner.db",
			CacheCapacity: 64,
			WALMode:       true,
			BusyTimeout:   5,
			ForeignKeys:   true,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "giftplanner-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "giftplanner",
			Bucket:        "metrics",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Interval: 60,
		},
	}
}

// applyEnvOverrides overwrites fields from GIFTPLANNER_* variables that are
// set and non-empty.
func applyEnvOverrides(cfg *Config) error {
	for key, dst := range map[string]*string{
		"SITE_ID":         &cfg.Site.ID,
		"DATABASE_PATH":   &cfg.Database.Path,
		"MQTT_HOST":       &cfg.MQTT.Broker.Host,
		"MQTT_USERNAME":   &cfg.MQTT.Auth.Username,
		"MQTT_PASSWORD":   &cfg.MQTT.Auth.Password,
		"INFLUXDB_URL":    &cfg.InfluxDB.URL,
		"INFLUXDB_TOKEN":  &cfg.InfluxDB.Token,
		"INFLUXDB_ORG":    &cfg.InfluxDB.Org,
		"INFLUXDB_BUCKET": &cfg.InfluxDB.Bucket,
		"LOG_LEVEL":       &cfg.Logging.Level,
		"LOG_FORMAT":      &cfg.Logging.Format,
	} {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}

	for key, dst := range map[string]*bool{
		"DATABASE_DEBUG":   &cfg.Database.Debug,
		"MQTT_ENABLED":     &cfg.MQTT.Enabled,
		"INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
		"MONITOR_ENABLED":  &cfg.Monitor.Enabled,
	} {
		if err := envBool(key, dst); err != nil {
			return err
		}
	}

	for key, dst := range map[string]*int{
		"DATABASE_CACHE_CAPACITY": &cfg.Database.CacheCapacity,
		"MQTT_PORT":               &cfg.MQTT.Broker.Port,
		"MONITOR_INTERVAL":        &cfg.Monitor.Interval,
	} {
		if err := envInt(key, dst); err != nil {
			return err
		}
	}

	return nil
}

// envBool overwrites dst when the variable is set.
func envBool(key string, dst *bool) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}

// envInt overwrites dst when the variable is set.
func envInt(key string, dst *int) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

// Validate reports every invalid field in one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.CacheCapacity < minCacheCapacity || c.Database.CacheCapacity > maxCacheCapacity {
		errs = append(errs, fmt.Sprintf("database.cache_capacity must be between %d and %d",
			minCacheCapacity, maxCacheCapacity))
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.Monitor.Enabled && c.Monitor.Interval < 1 {
		errs = append(errs, "monitor.interval must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetMonitorInterval returns the monitor interval as a Duration.
func (c *Config) GetMonitorInterval() time.Duration {
	return time.Duration(c.Monitor.Interval) * time.Second
}

// GetBusyTimeout returns the database busy timeout as a Duration.
func (c *Config) GetBusyTimeout() time.Duration {
	return time.Duration(c.Database.BusyTimeout) * time.Second
}
