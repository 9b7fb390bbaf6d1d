package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PORTAL_BACKEND_BASE_URL.
const EnvPrefix = "PORTAL"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Session    SessionConfig    `mapstructure:"session"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" envconfig:"rate_limit"`
	Routes     RoutesConfig     `mapstructure:"routes"`
	Display    DisplayConfig    `mapstructure:"display"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" envconfig:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" envconfig:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" envconfig:"request_timeout"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
}

type BackendConfig struct {
	BaseURL          string        `mapstructure:"base_url" envconfig:"base_url" validate:"required,url"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	FailureThreshold int           `mapstructure:"failure_threshold" envconfig:"failure_threshold" validate:"min=1"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout" envconfig:"breaker_timeout"`
}

type SessionConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=memory redis"`
	TTL             time.Duration `mapstructure:"ttl" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"cleanup_interval"`
	CookieName      string        `mapstructure:"cookie_name" envconfig:"cookie_name" validate:"required"`
	CookieSecure    bool          `mapstructure:"cookie_secure" envconfig:"cookie_secure"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url" validate:"required_if=Enabled true"`
	PoolSize     int    `mapstructure:"pool_size" envconfig:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns" envconfig:"min_idle_conns"`
	MaxRetries   int    `mapstructure:"max_retries" envconfig:"max_retries"`
	// Enabled is derived from the session driver.
	Enabled bool `mapstructure:"-" ignored:"true"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
}

type RoutesConfig struct {
	MyAppointments string `mapstructure:"my_appointments" envconfig:"my_appointments" validate:"required"`
}

type DisplayConfig struct {
	Currency string `mapstructure:"currency" validate:"required"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type MonitoringConfig struct {
	MetricsPrefix string `mapstructure:"metrics_prefix" envconfig:"metrics_prefix" validate:"required"`
	Environment   string `mapstructure:"environment"`
	// OTLPEndpoint enables trace export when set, e.g. otel-collector:4317.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" envconfig:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure" envconfig:"otlp_insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("backend.failure_threshold", 5)
	v.SetDefault("backend.breaker_timeout", 30*time.Second)

	v.SetDefault("session.driver", "memory")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cleanup_interval", time.Hour)
	v.SetDefault("session.cookie_name", "portal_session")

	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("routes.my_appointments", "/my-appointments")
	v.SetDefault("display.currency", "$")
	v.SetDefault("log.level", "info")
	v.SetDefault("monitoring.metrics_prefix", "portal")
	v.SetDefault("monitoring.environment", "dev")
}

// LoadConfig reads path (or config.yaml from the usual locations when path is
// empty), applies PORTAL_* environment overrides and validates the result. A
// missing config file is not an error; defaults and the environment apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	cfg.Redis.Enabled = cfg.Session.Driver == "redis"

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
