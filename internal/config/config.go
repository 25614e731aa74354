package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

// EnvPrefix prefixes every environment override, e.g. CREDITSIM_SIMULATION_PATHS
const EnvPrefix = "CREDITSIM"

// Config holds the application configuration
type Config struct {
	Environment string `mapstructure:"environment"`

	Simulation SimulationConfig `mapstructure:"simulation"`
	Model      ModelConfig      `mapstructure:"model"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`

	// Metrics
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SimulationConfig holds run defaults and limits
type SimulationConfig struct {
	Seed             int64    `mapstructure:"seed"` // 0 draws a fresh seed per run
	Paths            int      `mapstructure:"paths"`
	MinPaths         int      `mapstructure:"min_paths"`
	MaxPaths         int      `mapstructure:"max_paths"`
	Horizons         []string `mapstructure:"horizons"`
	Workers          int      `mapstructure:"workers"`
	ProgressInterval int      `mapstructure:"progress_interval"`
}

// ModelConfig holds factor model defaults
type ModelConfig struct {
	DefaultBeta     float64 `mapstructure:"default_beta"`
	DefaultRecovery float64 `mapstructure:"default_recovery"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout, stderr or file
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig holds reference-data database settings
type DatabaseConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Database         string        `mapstructure:"database"`
	SSLMode          string        `mapstructure:"sslmode"`
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConns         int           `mapstructure:"max_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	MaxLifetime      time.Duration `mapstructure:"max_lifetime"`
}

// RedisConfig holds run registry settings
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`

	// SubmitLimit caps submissions per portfolio within SubmitWindow; zero disables it
	SubmitLimit  int           `mapstructure:"submit_limit"`
	SubmitWindow time.Duration `mapstructure:"submit_window"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// Load reads configuration from path (optional), CREDITSIM_* environment
// variables and defaults, in decreasing order of precedence: env, file, default.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with no file and no environment applied
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.paths", 10_000)
	v.SetDefault("simulation.min_paths", 100)
	v.SetDefault("simulation.max_paths", 200_000)
	v.SetDefault("simulation.horizons", []string{"1Y", "3Y", "5Y"})
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.progress_interval", 10_000)

	v.SetDefault("model.default_beta", 0.35)
	v.SetDefault("model.default_recovery", 0.40)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file", "logs/creditsim.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "refdata")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.connection_string", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("redis.submit_limit", 0)
	v.SetDefault("redis.submit_window", time.Minute)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)
}

// Validate checks limits and defaults for consistency
func (c *Config) Validate() error {
	s := c.Simulation
	if s.MinPaths < 1 {
		return fmt.Errorf("simulation.min_paths must be at least 1, got %d", s.MinPaths)
	}
	if s.MaxPaths < s.MinPaths {
		return fmt.Errorf("simulation.max_paths %d is below min_paths %d", s.MaxPaths, s.MinPaths)
	}
	if s.Paths < s.MinPaths || s.Paths > s.MaxPaths {
		return fmt.Errorf("simulation.paths %d is outside [%d, %d]", s.Paths, s.MinPaths, s.MaxPaths)
	}
	if _, err := c.HorizonYears(); err != nil {
		return fmt.Errorf("simulation.horizons: %w", err)
	}

	m := c.Model
	if !(m.DefaultBeta >= -1 && m.DefaultBeta <= 1) {
		return fmt.Errorf("model.default_beta %v is outside [-1, 1]", m.DefaultBeta)
	}
	if !(m.DefaultRecovery >= 0 && m.DefaultRecovery < 1) {
		return fmt.Errorf("model.default_recovery %v is outside [0, 1)", m.DefaultRecovery)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}

// HorizonYears parses the configured horizon tenors
func (c *Config) HorizonYears() ([]float64, error) {
	return credit.ParseTenors(c.Simulation.Horizons)
}
