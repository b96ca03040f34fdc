package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SKYFEED"

// Firehose flush modes
const (
	ModeLocal     = "local"
	ModeWarehouse = "warehouse"
)

// Config holds all configuration for the application
type Config struct {
	Database    DatabaseConfig
	Server      ServerConfig
	Firehose    FirehoseConfig
	Index       IndexConfig
	Warehouse   WarehouseConfig
	Cache       CacheConfig
	Redis       RedisConfig
	Alert       AlertConfig
	Definitions DefinitionsConfig
	Logging     LoggingConfig
	Telemetry   TelemetryConfig
}

// DatabaseConfig holds relational database configuration
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds HTTP server and feed generator identity configuration
type ServerConfig struct {
	Port         int
	Host         string
	Hostname     string
	ServiceDID   string
	PublisherDID string
}

// FirehoseConfig holds Jetstream subscription and flush configuration
type FirehoseConfig struct {
	Enabled             bool
	Endpoint            string
	Mode                string // "local" or "warehouse"
	ReconnectDelay      time.Duration
	LocalFlushSize      int
	WarehouseFlushSize  int
	LocalTimeout        time.Duration
	WarehouseTimeout    time.Duration
	AlertAfterFailures  int
	ContentStoreEnabled bool
	SkipEmptyText       bool
}

// IndexConfig holds local full-text index configuration
type IndexConfig struct {
	Path              string
	ReaderPoolSize    int
	MaxAgeDays        int
	CleanupInterval   time.Duration
	CleanupPageSize   int
	SizeCheckInterval time.Duration
	DiggingDepth      int
}

// WarehouseConfig holds BigQuery configuration
type WarehouseConfig struct {
	Enabled         bool
	ProjectID       string
	DatasetID       string
	TableID         string
	RealtimeTableID string
	RealtimeEnabled bool
	KeyFile         string
	MaxIntervalDays int
	QueryLimit      int
}

// CacheConfig holds feed cache configuration
type CacheConfig struct {
	Timeout    time.Duration
	MaxEntries int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL     string
	Enabled bool
	TTL     time.Duration
}

// AlertConfig holds outbound alert configuration
type AlertConfig struct {
	SlackWebhookURL string
}

// DefinitionsConfig holds static feed definition configuration
type DefinitionsConfig struct {
	Dir   string
	Watch bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string
	Format       string // "json" or "text"
	ScalyrFormat bool   // Enable Scalyr-compatible JSON format
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled           bool
	JaegerURL         string
	PrometheusEnabled bool
	ServiceName       string
}

// Load loads configuration from environment variables, an optional .env file and config file
func Load() (*Config, error) {
	// A missing .env is the normal case in deployed environments
	_ = godotenv.Load()

	setDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.skyfeed")
	viper.AddConfigPath("/etc/skyfeed")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; this is OK if we have env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	hostname := getString("hostname", "localhost")

	cfg := &Config{
		Database: DatabaseConfig{
			URL: getString("database_url", "sqlite://skyfeed.db"),
		},
		Server: ServerConfig{
			Port:         getInt("http_server_port", 3000),
			Host:         getString("http_server_host", "0.0.0.0"),
			Hostname:     hostname,
			ServiceDID:   getString("service_did", "did:web:"+hostname),
			PublisherDID: getString("publisher_did", ""),
		},
		Firehose: FirehoseConfig{
			Enabled:             getBool("firehose_enabled", true),
			Endpoint:            getString("firehose_endpoint", "wss://jetstream2.us-east.bsky.network/subscribe"),
			Mode:                strings.ToLower(getString("firehose_mode", ModeLocal)),
			ReconnectDelay:      getDuration("firehose_reconnect_delay", 3*time.Second),
			LocalFlushSize:      getInt("firehose_local_flush_size", 500),
			WarehouseFlushSize:  getInt("firehose_warehouse_flush_size", 2500),
			LocalTimeout:        getDuration("firehose_local_timeout", 30*time.Second),
			WarehouseTimeout:    getDuration("firehose_warehouse_timeout", 90*time.Second),
			AlertAfterFailures:  getInt("firehose_alert_after_failures", 3),
			ContentStoreEnabled: getBool("firehose_content_store_enabled", false),
			SkipEmptyText:       getBool("firehose_skip_empty_text", false),
		},
		Index: IndexConfig{
			Path:              getString("index_path", "cache.db"),
			ReaderPoolSize:    getInt("index_reader_pool_size", 100),
			MaxAgeDays:        getInt("index_max_age_days", 7),
			CleanupInterval:   getDuration("index_cleanup_interval", time.Minute),
			CleanupPageSize:   getInt("index_cleanup_page_size", 5000),
			SizeCheckInterval: getDuration("index_size_check_interval", 30*time.Minute),
			DiggingDepth:      getInt("index_digging_depth", 10000),
		},
		Warehouse: WarehouseConfig{
			Enabled:         getBool("warehouse_enabled", false),
			ProjectID:       getString("warehouse_project_id", ""),
			DatasetID:       getString("warehouse_dataset_id", ""),
			TableID:         getString("warehouse_table_id", ""),
			RealtimeTableID: getString("warehouse_realtime_table_id", ""),
			RealtimeEnabled: getBool("warehouse_realtime_enabled", false),
			KeyFile:         getString("warehouse_key_file", ""),
			MaxIntervalDays: getInt("warehouse_max_interval_days", 7),
			QueryLimit:      getInt("warehouse_query_limit", 10000),
		},
		Cache: CacheConfig{
			Timeout:    getDuration("cache_timeout", 24*time.Hour),
			MaxEntries: getInt("cache_max_entries", 10000),
		},
		Redis: RedisConfig{
			URL:     getString("redis_url", ""),
			Enabled: getString("redis_url", "") != "",
			TTL:     getDuration("redis_ttl", 24*time.Hour),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getString("alert_slack_webhook_url", ""),
		},
		Definitions: DefinitionsConfig{
			Dir:   getString("definitions_dir", ""),
			Watch: getBool("definitions_watch", true),
		},
		Logging: LoggingConfig{
			Level:        getString("log_level", "INFO"),
			Format:       getString("log_format", "json"),
			ScalyrFormat: getBool("log_scalyr_format", true),
		},
		Telemetry: TelemetryConfig{
			Enabled:           getBool("telemetry_enabled", true),
			JaegerURL:         getString("jaeger_url", "http://localhost:14268/api/traces"),
			PrometheusEnabled: getBool("prometheus_enabled", true),
			ServiceName:       getString("service_name", "skyfeed"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("database_url", "sqlite://skyfeed.db")
	viper.SetDefault("http_server_port", 3000)
	viper.SetDefault("http_server_host", "0.0.0.0")
	viper.SetDefault("firehose_mode", ModeLocal)
	viper.SetDefault("firehose_local_flush_size", 500)
	viper.SetDefault("firehose_warehouse_flush_size", 2500)
	viper.SetDefault("index_path", "cache.db")
	viper.SetDefault("index_reader_pool_size", 100)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("log_scalyr_format", true)
	viper.SetDefault("telemetry_enabled", true)
	viper.SetDefault("prometheus_enabled", true)
	viper.SetDefault("service_name", "skyfeed")
}

func getString(key, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	// Also check environment variable directly
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

// toEnvKey converts a snake_case key to UPPER_SNAKE_CASE
func toEnvKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("http_server_port must be between 1 and 65535")
	}
	switch c.Firehose.Mode {
	case ModeLocal, ModeWarehouse:
	default:
		return fmt.Errorf("firehose_mode must be %q or %q", ModeLocal, ModeWarehouse)
	}
	if c.Firehose.Enabled && c.Firehose.Endpoint == "" {
		return fmt.Errorf("firehose_endpoint is required when the firehose is enabled")
	}
	if c.Firehose.LocalFlushSize <= 0 || c.Firehose.WarehouseFlushSize <= 0 {
		return fmt.Errorf("firehose flush sizes must be positive")
	}
	if c.Firehose.AlertAfterFailures <= 0 {
		return fmt.Errorf("firehose_alert_after_failures must be positive")
	}
	if c.Index.ReaderPoolSize <= 0 || c.Index.ReaderPoolSize > 1000 {
		return fmt.Errorf("index_reader_pool_size must be between 1 and 1000")
	}
	if c.Index.MaxAgeDays <= 0 {
		return fmt.Errorf("index_max_age_days must be positive")
	}
	if c.Index.DiggingDepth <= 0 {
		return fmt.Errorf("index_digging_depth must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache_max_entries must be positive")
	}
	if c.Cache.Timeout <= 0 {
		return fmt.Errorf("cache_timeout must be positive")
	}
	warehouseNeeded := c.Warehouse.Enabled || (c.Firehose.Enabled && c.Firehose.Mode == ModeWarehouse)
	if warehouseNeeded {
		if c.Warehouse.ProjectID == "" || c.Warehouse.DatasetID == "" || c.Warehouse.TableID == "" {
			return fmt.Errorf("warehouse_project_id, warehouse_dataset_id and warehouse_table_id are required")
		}
		if c.Warehouse.RealtimeEnabled && c.Warehouse.RealtimeTableID == "" {
			return fmt.Errorf("warehouse_realtime_table_id is required when the realtime table is enabled")
		}
		if c.Warehouse.MaxIntervalDays <= 0 {
			return fmt.Errorf("warehouse_max_interval_days must be positive")
		}
	}
	return nil
}

// LocalIndexEnabled reports whether the process maintains and reads the local full-text index
func (c *Config) LocalIndexEnabled() bool {
	return c.Firehose.Mode == ModeLocal
}

// FlushSize returns the buffer threshold for the configured firehose mode
func (c *FirehoseConfig) FlushSize() int {
	if c.Mode == ModeWarehouse {
		return c.WarehouseFlushSize
	}
	return c.LocalFlushSize
}

// FlushTimeout returns the liveness timeout for the configured firehose mode
func (c *FirehoseConfig) FlushTimeout() time.Duration {
	if c.Mode == ModeWarehouse {
		return c.WarehouseTimeout
	}
	return c.LocalTimeout
}

// QualifiedTable returns the project.dataset.table name of the posts table
func (c *WarehouseConfig) QualifiedTable() string {
	return c.ProjectID + "." + c.DatasetID + "." + c.TableID
}
