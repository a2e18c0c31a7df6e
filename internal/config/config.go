package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// ConfigFileEnv names an optional YAML file. Environment variables always
// win over file values.
const ConfigFileEnv = "DATATOKEN_CONFIG"

type Config struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies; zero leaves them unbounded.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	LedgerBackend  string `mapstructure:"ledger_backend"`
	ContentBackend string `mapstructure:"content_backend"`

	PostgresDSN          string `mapstructure:"postgres_dsn"`
	PostgresMaxOpenConns int    `mapstructure:"postgres_max_open_conns"`
	PostgresAutoMigrate  bool   `mapstructure:"postgres_auto_migrate"`

	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	RedisKeyPrefix string        `mapstructure:"redis_key_prefix"`
	RedisTTL       time.Duration `mapstructure:"redis_ttl"`

	PolicyEnabled    bool     `mapstructure:"policy_enabled"`
	PolicyBundlePath string   `mapstructure:"policy_bundle_path"`
	BlockedIssuers   []string `mapstructure:"blocked_issuers"`

	VerifyIntegrity bool `mapstructure:"verify_integrity"`
	WorkerPoolSize  int  `mapstructure:"worker_pool_size"`

	// RateLimitRequests of zero disables rate limiting.
	RateLimitRequests   int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow     time.Duration `mapstructure:"rate_limit_window"`
	RateLimitFailClosed bool          `mapstructure:"rate_limit_fail_closed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("max_body_bytes", int64(4<<20))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("ledger_backend", BackendMemory)
	v.SetDefault("content_backend", BackendMemory)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("postgres_max_open_conns", 10)
	v.SetDefault("postgres_auto_migrate", true)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_key_prefix", "datatoken:content:")
	v.SetDefault("redis_ttl", time.Duration(0))
	v.SetDefault("policy_enabled", false)
	v.SetDefault("policy_bundle_path", "")
	v.SetDefault("blocked_issuers", []string{})
	v.SetDefault("verify_integrity", true)
	v.SetDefault("worker_pool_size", 16)
	v.SetDefault("rate_limit_requests", 0)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("rate_limit_fail_closed", false)
}

// FromEnv loads configuration from the environment and the file named by
// DATATOKEN_CONFIG, if any.
func FromEnv() (Config, error) {
	return Load(os.Getenv(ConfigFileEnv))
}

// Load reads path (YAML) when set, then overlays the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.BlockedIssuers = splitList(cfg.BlockedIssuers)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.LedgerBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres_dsn is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unknown ledger_backend %q", c.LedgerBackend)
	}
	switch c.ContentBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required for the redis content store")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres_dsn is required for the postgres content store")
		}
	default:
		return fmt.Errorf("unknown content_backend %q", c.ContentBackend)
	}
	if c.MaxBodyBytes < 0 {
		return errors.New("max_body_bytes must not be negative")
	}
	if c.WorkerPoolSize < 0 {
		return errors.New("worker_pool_size must not be negative")
	}
	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		return errors.New("rate_limit_window must be positive when rate limiting is on")
	}
	return nil
}

// splitList accepts both YAML lists and a comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
