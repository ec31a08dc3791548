package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Streak   StreakConfig   `mapstructure:"streak"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Store    StoreConfig    `mapstructure:"store"`
}

type ServerConfig struct {
	Port               string   `mapstructure:"port"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns a lib/pq keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ScoringConfig struct {
	// Policy is "strict" (non-compliant drills earn nothing) or "prorated".
	Policy string `mapstructure:"policy"`
}

type StreakConfig struct {
	Timezone    string `mapstructure:"timezone"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
}

// Location resolves the streak calendar timezone.
func (s StreakConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// envBindings keeps the variable names the service has always used.
var envBindings = map[string]string{
	"server.port":                  "PORT",
	"server.allowed_origins":       "ALLOWED_ORIGINS",
	"server.rate_limit_per_minute": "RATE_LIMIT_PER_MINUTE",
	"database.host":                "DB_HOST",
	"database.port":                "DB_PORT",
	"database.user":                "DB_USER",
	"database.password":            "DB_PASSWORD",
	"database.name":                "DB_NAME",
	"database.sslmode":             "DB_SSLMODE",
	"redis.addr":                   "REDIS_ADDR",
	"redis.password":               "REDIS_PASSWORD",
	"redis.db":                     "REDIS_DB",
	"jwt.secret":                   "JWT_SECRET",
	"log.level":                    "LOG_LEVEL",
	"log.file":                     "LOG_FILE",
	"scoring.policy":               "SCORING_POLICY",
	"streak.timezone":              "STREAK_TIMEZONE",
	"tracing.enabled":              "TRACING_ENABLED",
	"tracing.endpoint":             "TRACING_ENDPOINT",
	"store.driver":                 "STORE_DRIVER",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_minute", 60)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "drills_user")
	v.SetDefault("database.password", "drills_password")
	v.SetDefault("database.name", "drill_rewards")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.result_ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("scoring.policy", "strict")
	v.SetDefault("streak.timezone", "UTC")
	v.SetDefault("streak.max_attempts", 3)
	v.SetDefault("store.driver", "postgres")
}

// Load reads config.yaml from path (if present) and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Scoring.Policy {
	case "strict", "prorated":
	default:
		return fmt.Errorf("scoring.policy must be strict or prorated, got %q", c.Scoring.Policy)
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", c.Store.Driver)
	}
	if _, err := c.Streak.Location(); err != nil {
		return fmt.Errorf("streak.timezone: %w", err)
	}
	if c.Streak.MaxAttempts < 1 {
		return fmt.Errorf("streak.max_attempts must be at least 1")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	return nil
}
