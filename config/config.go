package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	App         AppConfig         `yaml:"app"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	BloomFilter BloomFilterConfig `yaml:"bloom_filter"`
	Snowflake   SnowflakeConfig   `yaml:"snowflake"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
}

// DatabaseConfig represents PostgreSQL configuration
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	// URL, when set, takes precedence over the atomic fields.
	URL string `yaml:"url"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	// URL, when set, takes precedence over the atomic fields.
	URL string `yaml:"url"`
}

// AppConfig represents link-shortening configuration
type AppConfig struct {
	BaseURL         string `yaml:"base_url"`
	DefaultTTLHours int    `yaml:"default_ttl_hours"`
	CodeLength      int    `yaml:"code_length"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Strategy      string `yaml:"strategy"`
	ShortenLimit  int    `yaml:"shorten_limit"`
	ShortenWindow int    `yaml:"shorten_window_seconds"`
}

// RecorderConfig represents the click recorder worker pool configuration
type RecorderConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// BloomFilterConfig represents Bloom filter configuration
type BloomFilterConfig struct {
	Capacity          uint    `yaml:"capacity"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

// SnowflakeConfig represents Snowflake ID generator configuration
type SnowflakeConfig struct {
	NodeID int64 `yaml:"node_id"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// DSN returns the PostgreSQL data source name. A configured connection URL
// wins over the atomic host/port/user fields.
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Default returns a configuration populated with built-in defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8000, Mode: "release"},
		Database: DatabaseConfig{
			Host:         "db",
			Port:         5432,
			User:         "postgres",
			Password:     "postgres",
			Name:         "shortener",
			MaxIdleConns: 10,
			MaxOpenConns: 50,
		},
		Redis: RedisConfig{
			Host:     "redis",
			Port:     6379,
			DB:       0,
			PoolSize: 20,
		},
		App: AppConfig{
			BaseURL:         "http://localhost:8000",
			DefaultTTLHours: 24,
			CodeLength:      6,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Strategy:      "sliding_window",
			ShortenLimit:  10,
			ShortenWindow: 60,
		},
		Recorder:    RecorderConfig{Workers: 4, QueueSize: 1024},
		BloomFilter: BloomFilterConfig{Capacity: 1_000_000, FalsePositiveRate: 0.01},
		Snowflake:   SnowflakeConfig{NodeID: 1},
		Log:         LogConfig{Level: "info"},
	}
}

// Load loads configuration from an optional YAML file, then applies
// environment variable overrides. A missing file is not an error; the
// defaults plus environment form a complete configuration.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
			// env-only deployment
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.App.DefaultTTLHours <= 0 {
		return nil, fmt.Errorf("default_ttl_hours must be positive, got %d", cfg.App.DefaultTTLHours)
	}
	if cfg.App.CodeLength <= 0 {
		return nil, fmt.Errorf("code_length must be positive, got %d", cfg.App.CodeLength)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	envStr("DB_HOST", &cfg.Database.Host)
	envInt("DB_PORT", &cfg.Database.Port)
	envStr("DB_NAME", &cfg.Database.Name)
	envStr("DB_USER", &cfg.Database.User)
	envStr("DB_PASSWORD", &cfg.Database.Password)
	envStr("DATABASE_URL", &cfg.Database.URL)

	envStr("REDIS_HOST", &cfg.Redis.Host)
	envInt("REDIS_PORT", &cfg.Redis.Port)
	envStr("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)
	envStr("REDIS_URL", &cfg.Redis.URL)

	envStr("BASE_URL", &cfg.App.BaseURL)
	envInt("DEFAULT_TTL_HOURS", &cfg.App.DefaultTTLHours)
	envInt("CODE_LENGTH", &cfg.App.CodeLength)

	envInt("PORT", &cfg.Server.Port)
	envStr("GIN_MODE", &cfg.Server.Mode)
	envStr("LOG_LEVEL", &cfg.Log.Level)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
