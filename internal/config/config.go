// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ReputationConfig contains settings for the external reputation source.
type ReputationConfig struct {
	URL             string `mapstructure:"url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// EngineConfig contains ingestion and consensus tunables.
type EngineConfig struct {
	// FuzzyWindowMinutes is the tolerance around a rotation boundary within
	// which a submission is considered fuzzy and discounted.
	FuzzyWindowMinutes int `mapstructure:"fuzzy_window_minutes"`
	// MaxClockSkewMinutes bounds |server now - client timestamp|, inclusive.
	MaxClockSkewMinutes int `mapstructure:"max_clock_skew_minutes"`
}

// SchedulerConfig contains consensus recomputation scheduling settings.
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// MetricsConfig contains Prometheus metrics exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/loot-consensus/")
	}

	// Engine defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "production")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)
	v.SetDefault("reputation.timeout_seconds", 5)
	v.SetDefault("reputation.cache_ttl_seconds", 300)
	v.SetDefault("engine.fuzzy_window_minutes", 90)
	v.SetDefault("engine.max_clock_skew_minutes", 10)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_minutes", 20)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Bind specific environment variables (explicit bindings for 12-factor app compliance)
	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Reputation source configuration
	_ = v.BindEnv("reputation.url", "REPUTATION_URL")
	_ = v.BindEnv("reputation.timeout_seconds", "REPUTATION_TIMEOUT_SECONDS")
	_ = v.BindEnv("reputation.cache_ttl_seconds", "REPUTATION_CACHE_TTL_SECONDS")

	// Engine configuration
	_ = v.BindEnv("engine.fuzzy_window_minutes", "ENGINE_FUZZY_WINDOW_MINUTES")
	_ = v.BindEnv("engine.max_clock_skew_minutes", "ENGINE_MAX_CLOCK_SKEW_MINUTES")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Reputation.URL == "" {
		return fmt.Errorf("reputation.url is required")
	}
	if c.Engine.FuzzyWindowMinutes < 0 {
		return fmt.Errorf("engine.fuzzy_window_minutes must not be negative")
	}
	if c.Engine.MaxClockSkewMinutes <= 0 {
		return fmt.Errorf("engine.max_clock_skew_minutes must be positive")
	}
	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.interval_minutes must be positive")
	}
	return nil
}

// FuzzyWindow returns the fuzzy tolerance as a duration.
func (c *EngineConfig) FuzzyWindow() time.Duration {
	return time.Duration(c.FuzzyWindowMinutes) * time.Minute
}

// MaxClockSkew returns the clock-skew bound as a duration.
func (c *EngineConfig) MaxClockSkew() time.Duration {
	return time.Duration(c.MaxClockSkewMinutes) * time.Minute
}

// Interval returns the recomputation cadence as a duration.
func (c *SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// CacheTTL returns the reputation cache lifetime as a duration.
func (c *ReputationConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Timeout returns the reputation request timeout as a duration.
func (c *ReputationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
