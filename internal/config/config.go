package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// GuardrailsConfig selects and tunes the evaluation backend. A rules URL
// switches the engine to the remote backend when its health probe succeeds.
type GuardrailsConfig struct {
	RulesURL          string        `mapstructure:"rules_url"`
	RulesTimeout      time.Duration `mapstructure:"rules_timeout"`
	EvaluationTimeout time.Duration `mapstructure:"evaluation_timeout"`
	CustomPIIPatterns []string      `mapstructure:"custom_pii_patterns"`
	EmployeeTools     []string      `mapstructure:"employee_tools"`
	AdminTools        []string      `mapstructure:"admin_tools"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/aegis")
	}

	setDefaults()

	viper.AutomaticEnv()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg = &config
	return cfg, nil
}

// Validate refuses configurations that would silently weaken enforcement.
// These are startup failures, not per-request ones.
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secret_key must be configured")
	}
	if len(c.Guardrails.EmployeeTools) == 0 || len(c.Guardrails.AdminTools) == 0 {
		return fmt.Errorf("guardrails tool allow-lists must not be empty")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate_limit.requests_per_window must be positive when enabled")
	}
	return nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown", "30s")

	// Database defaults
	viper.SetDefault("database.max_connections", 50)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.conn_max_lifetime", "1h")

	// Redis defaults
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 50)

	// Guardrails defaults
	viper.SetDefault("guardrails.rules_timeout", "10s")
	viper.SetDefault("guardrails.evaluation_timeout", "15s")
	viper.SetDefault("guardrails.employee_tools", []string{
		"search_internal_kb", "create_ticket", "web_search",
	})
	viper.SetDefault("guardrails.admin_tools", []string{
		"search_internal_kb", "create_ticket", "web_search",
		"get_user_profile", "query_database", "access_sensitive_docs",
	})

	// Rate limit defaults
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_window", 60)
	viper.SetDefault("rate_limit.window", "1m")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.output_path", "")
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")

	// Database
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.max_connections", "DATABASE_MAX_CONNECTIONS")
	viper.BindEnv("database.max_idle_connections", "DATABASE_MAX_IDLE_CONNECTIONS")

	// Redis
	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	// JWT
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	// Guardrails
	viper.BindEnv("guardrails.rules_url", "GUARDRAILS_RULES_URL")
	viper.BindEnv("guardrails.rules_timeout", "GUARDRAILS_RULES_TIMEOUT")
	viper.BindEnv("guardrails.evaluation_timeout", "GUARDRAILS_EVALUATION_TIMEOUT")

	// Rate limiting
	viper.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	viper.BindEnv("rate_limit.requests_per_window", "RATE_LIMIT_REQUESTS_PER_WINDOW")
	viper.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")

	// Logging
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")
}

func Get() *Config {
	return cfg
}
