package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces all environment variables (COURSECHAT_HTTP_PORT...).
const envPrefix = "coursechat"

// Config is the full runtime configuration, populated from the environment
// with an optional .env file for local development.
type Config struct {
	LogLevel string `split_words:"true" default:"info" validate:"oneof=debug info warn error"`

	Database  DatabaseConfig
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Redis     RedisConfig
}

// DatabaseConfig points at the SQLite file shared with the CRUD layer.
type DatabaseConfig struct {
	Path           string        `default:"./coursechat.db" validate:"required"`
	Timeout        time.Duration `default:"30s" validate:"gt=0"`
	MaxConnections int           `split_words:"true" default:"10" validate:"gt=0"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Host         string        `default:"0.0.0.0" validate:"required"`
	Port         int           `default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout  time.Duration `split_words:"true" default:"30s" validate:"gt=0"`
	WriteTimeout time.Duration `split_words:"true" default:"30s" validate:"gt=0"`
}

// WebSocketConfig tunes per-connection behavior.
type WebSocketConfig struct {
	PingInterval  time.Duration `split_words:"true" default:"30s" validate:"gt=0"`
	ReadTimeout   time.Duration `split_words:"true" default:"60s" validate:"gt=0"`
	WriteTimeout  time.Duration `split_words:"true" default:"10s" validate:"gt=0"`
	SendQueueSize int           `split_words:"true" default:"100" validate:"gt=0"`
	HistoryLimit  int           `split_words:"true" default:"50" validate:"gte=0"`
}

// AuthConfig carries the token secret and the fail-closed authorization
// deadline.
type AuthConfig struct {
	TokenSecret string        `split_words:"true" validate:"required,min=16"`
	Timeout     time.Duration `default:"5s" validate:"gt=0"`
}

// RedisConfig enables the distributed registry backend when Addr is set;
// empty means single-process, in-memory fan-out.
type RedisConfig struct {
	Addr     string `default:""`
	Password string `default:""`
}

// Load reads the optional .env file, processes the environment and
// validates the result.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural constraints on the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
