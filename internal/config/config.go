package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pingpong/internal/shared"
)

type Config struct {
	// Environment
	GoEnv string `yaml:"go_env" env:"GO_ENV" default:"development"`

	// Endpoint shared by client and server
	Host string `yaml:"host" env:"PINGPONG_HOST" default:"127.0.0.1"`
	Port int    `yaml:"port" env:"PINGPONG_PORT" default:"4433"`

	// Client
	Mode                 shared.Mode   `yaml:"mode" env:"PINGPONG_MODE" default:"bidirectional"`
	PingCount            uint32        `yaml:"ping_count" env:"PINGPONG_PING_COUNT" default:"3"`
	PingText             string        `yaml:"ping_text" env:"PINGPONG_PING_TEXT" default:"Ping!"`
	MaxRetries           int           `yaml:"max_retries" env:"PINGPONG_MAX_RETRIES" default:"3"`
	RetryInterval        time.Duration `yaml:"retry_interval" env:"PINGPONG_RETRY_INTERVAL" default:"1s"`
	DatagramPollInterval time.Duration `yaml:"datagram_poll_interval" env:"PINGPONG_DATAGRAM_POLL_INTERVAL" default:"100ms"`

	// Server
	PongText   string  `yaml:"pong_text" env:"PINGPONG_PONG_TEXT" default:"Pong!"`
	CertPath   string  `yaml:"cert_path" env:"PINGPONG_CERT_PATH" default:"cert.pem"`
	KeyPath    string  `yaml:"key_path" env:"PINGPONG_KEY_PATH" default:"key.pem"`
	ServerRate float64 `yaml:"server_rate" env:"PINGPONG_SERVER_RATE" default:"0"` // requests/s per connection, 0 = unlimited

	// QUIC
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"PINGPONG_HANDSHAKE_TIMEOUT" default:"5s"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" env:"PINGPONG_IDLE_TIMEOUT" default:"30s"`

	// Monitoring
	AdminAddr         string `yaml:"admin_addr" env:"PINGPONG_ADMIN_ADDR"`
	PrometheusEnabled bool   `yaml:"prometheus_enabled" env:"PROMETHEUS_ENABLED" default:"false"`

	// Development
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" default:"text"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		GoEnv:                "development",
		Host:                 "127.0.0.1",
		Port:                 4433,
		Mode:                 shared.Bidirectional,
		PingCount:            3,
		PingText:             "Ping!",
		MaxRetries:           3,
		RetryInterval:        time.Second,
		DatagramPollInterval: 100 * time.Millisecond,
		PongText:             "Pong!",
		CertPath:             "cert.pem",
		KeyPath:              "key.pem",
		HandshakeTimeout:     5 * time.Second,
		IdleTimeout:          30 * time.Second,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path (skipped when path is empty; PINGPONG_CONFIG is used if set), then
// environment variables. A .env file in the working directory is loaded first
// if present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		// a missing .env is fine, system env vars still apply
		slog.Debug("env_file_not_loaded", "error", err)
	}

	config := Default()

	if path == "" {
		path = os.Getenv("PINGPONG_CONFIG")
	}
	if path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.loadEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	loadEnvString(&c.GoEnv, "GO_ENV")

	loadEnvString(&c.Host, "PINGPONG_HOST")
	if err := loadEnvInt(&c.Port, "PINGPONG_PORT"); err != nil {
		return err
	}

	if err := loadEnvMode(&c.Mode, "PINGPONG_MODE"); err != nil {
		return err
	}
	if err := loadEnvUint32(&c.PingCount, "PINGPONG_PING_COUNT"); err != nil {
		return err
	}
	loadEnvString(&c.PingText, "PINGPONG_PING_TEXT")
	if err := loadEnvInt(&c.MaxRetries, "PINGPONG_MAX_RETRIES"); err != nil {
		return err
	}
	if err := loadEnvDuration(&c.RetryInterval, "PINGPONG_RETRY_INTERVAL"); err != nil {
		return err
	}
	if err := loadEnvDuration(&c.DatagramPollInterval, "PINGPONG_DATAGRAM_POLL_INTERVAL"); err != nil {
		return err
	}

	loadEnvString(&c.PongText, "PINGPONG_PONG_TEXT")
	loadEnvString(&c.CertPath, "PINGPONG_CERT_PATH")
	loadEnvString(&c.KeyPath, "PINGPONG_KEY_PATH")
	if err := loadEnvFloat(&c.ServerRate, "PINGPONG_SERVER_RATE"); err != nil {
		return err
	}

	if err := loadEnvDuration(&c.HandshakeTimeout, "PINGPONG_HANDSHAKE_TIMEOUT"); err != nil {
		return err
	}
	if err := loadEnvDuration(&c.IdleTimeout, "PINGPONG_IDLE_TIMEOUT"); err != nil {
		return err
	}

	loadEnvString(&c.AdminAddr, "PINGPONG_ADMIN_ADDR")
	if err := loadEnvBool(&c.PrometheusEnabled, "PROMETHEUS_ENABLED"); err != nil {
		return err
	}

	loadEnvString(&c.LogLevel, "LOG_LEVEL")
	loadEnvString(&c.LogFormat, "LOG_FORMAT")
	return nil
}

// Helper functions for type conversion. Unset variables leave target as is.
func loadEnvString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func loadEnvInt(target *int, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvUint32(target *uint32, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer value for %s: %v", key, err)
		}
		*target = uint32(parsed)
	}
	return nil
}

func loadEnvFloat(target *float64, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvBool(target *bool, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvMode(target *shared.Mode, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := shared.ParseMode(value)
		if err != nil {
			return fmt.Errorf("invalid mode value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.Host == "" {
		errors = append(errors, "PINGPONG_HOST must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		errors = append(errors, "PINGPONG_PORT must be between 1 and 65535")
	}
	if c.MaxRetries < 0 {
		errors = append(errors, "PINGPONG_MAX_RETRIES must not be negative")
	}
	if c.RetryInterval < 0 {
		errors = append(errors, "PINGPONG_RETRY_INTERVAL must not be negative")
	}
	if c.DatagramPollInterval <= 0 {
		errors = append(errors, "PINGPONG_DATAGRAM_POLL_INTERVAL must be positive")
	}
	if c.ServerRate < 0 {
		errors = append(errors, "PINGPONG_SERVER_RATE must not be negative")
	}
	if c.HandshakeTimeout < 0 || c.IdleTimeout < 0 {
		errors = append(errors, "QUIC timeouts must not be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
