package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PVWATCH_REMOTE_HOST.
const EnvPrefix = "PVWATCH"

// Config holds all configuration for our application
type Config struct {
	Remote    RemoteConfig   `mapstructure:"remote"`
	Snapshots SnapshotConfig `mapstructure:"snapshots"`
	Poll      PollConfig     `mapstructure:"poll"`
	Database  DatabaseConfig `mapstructure:"database"`
	Server    ServerConfig   `mapstructure:"server"`
	Logging   LoggingConfig  `mapstructure:"logging"`
}

type RemoteConfig struct {
	Host     string        `mapstructure:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port     int           `mapstructure:"port" validate:"min=1,max=65535"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Path     string        `mapstructure:"path" validate:"required"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxSize  int64         `mapstructure:"max_size" validate:"gt=0"`

	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

type SnapshotConfig struct {
	ArchiveDir string `mapstructure:"archive_dir" validate:"required"`
	LatestPath string `mapstructure:"latest_path" validate:"required"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`

	// Schedule is an optional cron spec that replaces Interval.
	Schedule              string        `mapstructure:"schedule"`
	Iterations            int           `mapstructure:"iterations" validate:"min=0"`
	SchemaRetries         int           `mapstructure:"schema_retries" validate:"min=1"`
	ProbeTimeout          time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
	DownloadTimeout       time.Duration `mapstructure:"download_timeout" validate:"gt=0"`
	FallbackOnUnsupported bool          `mapstructure:"fallback_on_unsupported"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	Path   string `mapstructure:"path" validate:"required_if=Driver sqlite"`

	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Name              string `mapstructure:"name"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	SSLMode           string `mapstructure:"ssl_mode"`
	ConnectionTimeout int    `mapstructure:"connection_timeout"`
}

// ConnString builds a lib/pq URL for the postgres driver.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode, d.ConnectionTimeout,
	)
}

type ServerConfig struct {
	Port           int     `mapstructure:"port" validate:"min=0,max=65535"`
	Host           string  `mapstructure:"host"`
	GRPCPort       int     `mapstructure:"grpc_port" validate:"min=0,max=65535"`
	CacheSize      int     `mapstructure:"cache_size" validate:"min=0"`
	RateLimit      float64 `mapstructure:"rate_limit" validate:"gt=0"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" validate:"min=1"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`

	// File mirrors the log stream when set.
	File string `mapstructure:"file"`
}

var validate = validator.New()

// Load reads configuration from an optional .env file, the YAML file at path
// and PVWATCH_* environment variables, in increasing order of precedence.
// $VARS inside the file are expanded before parsing. An empty path yields the
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))

		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.host", "")
	v.SetDefault("remote.port", 21)
	v.SetDefault("remote.user", "anonymous")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.path", "pvdaten/pv.csv")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("remote.max_size", 64<<20)
	v.SetDefault("remote.breaker_failures", 5)
	v.SetDefault("remote.breaker_cooldown", time.Minute)

	v.SetDefault("snapshots.archive_dir", "snapshots")
	v.SetDefault("snapshots.latest_path", "pv.csv")

	v.SetDefault("poll.interval", time.Minute)
	v.SetDefault("poll.schedule", "")
	v.SetDefault("poll.iterations", 0)
	v.SetDefault("poll.schema_retries", 1)
	v.SetDefault("poll.probe_timeout", 10*time.Second)
	v.SetDefault("poll.download_timeout", 30*time.Second)
	v.SetDefault("poll.fallback_on_unsupported", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "pv_data.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "pvwatch")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connection_timeout", 5)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.cache_size", 1000)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}
