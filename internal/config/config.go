package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Email    EmailConfig    `yaml:"email"`
	SMS      SMSConfig      `yaml:"sms"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Push     PushConfig     `yaml:"push"`
	Worker   WorkerConfig   `yaml:"worker"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns the host:port listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection settings for rate limiting
// and distributed message leases.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig holds per-channel send rate limits
type RateLimitConfig struct {
	PerSecond int `yaml:"per_second"`
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
}

// EmailConfig holds AWS SES email channel configuration
type EmailConfig struct {
	Enabled        bool            `yaml:"enabled"`
	AccessKey      string          `yaml:"access_key"`
	SecretKey      string          `yaml:"secret_key"`
	Region         string          `yaml:"region"`
	FromAddress    string          `yaml:"from_address"`
	FromName       string          `yaml:"from_name"`
	Priority       int             `yaml:"priority"`
	TimeoutSeconds int             `yaml:"timeout_seconds"`
	RateLimits     RateLimitConfig `yaml:"rate_limits"`
}

// Timeout returns the configured timeout as a duration
func (c EmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Enabled        bool            `yaml:"enabled"`
	APIKey         string          `yaml:"api_key"`
	FromNumber     string          `yaml:"from_number"`
	BaseURL        string          `yaml:"base_url"`
	Priority       int             `yaml:"priority"`
	TimeoutSeconds int             `yaml:"timeout_seconds"`
	RateLimits     RateLimitConfig `yaml:"rate_limits"`
}

// Timeout returns the configured timeout as a duration
func (c SMSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WhatsAppConfig holds WhatsApp Business API configuration
type WhatsAppConfig struct {
	Enabled        bool            `yaml:"enabled"`
	AccessToken    string          `yaml:"access_token"`
	PhoneNumberID  string          `yaml:"phone_number_id"`
	BaseURL        string          `yaml:"base_url"`
	Priority       int             `yaml:"priority"`
	TimeoutSeconds int             `yaml:"timeout_seconds"`
	RateLimits     RateLimitConfig `yaml:"rate_limits"`
}

// Timeout returns the configured timeout as a duration
func (c WhatsAppConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PushConfig holds push notification gateway configuration
type PushConfig struct {
	Enabled        bool            `yaml:"enabled"`
	ServerToken    string          `yaml:"server_token"`
	ProjectID      string          `yaml:"project_id"`
	BaseURL        string          `yaml:"base_url"`
	Priority       int             `yaml:"priority"`
	TimeoutSeconds int             `yaml:"timeout_seconds"`
	RateLimits     RateLimitConfig `yaml:"rate_limits"`
}

// Timeout returns the configured timeout as a duration
func (c PushConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WorkerConfig holds background poller configuration
type WorkerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	BatchLimit          int `yaml:"batch_limit"`
}

// PollInterval returns the poll interval as a duration
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LoggingConfig holds log level and PII redaction settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Email.Region == "" {
		cfg.Email.Region = "us-west-2"
	}
	if cfg.Email.Priority == 0 {
		cfg.Email.Priority = 1
	}
	if cfg.Email.TimeoutSeconds == 0 {
		cfg.Email.TimeoutSeconds = 30
	}
	if cfg.SMS.Priority == 0 {
		cfg.SMS.Priority = 2
	}
	if cfg.SMS.TimeoutSeconds == 0 {
		cfg.SMS.TimeoutSeconds = 30
	}
	if cfg.WhatsApp.BaseURL == "" {
		cfg.WhatsApp.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.WhatsApp.Priority == 0 {
		cfg.WhatsApp.Priority = 3
	}
	if cfg.WhatsApp.TimeoutSeconds == 0 {
		cfg.WhatsApp.TimeoutSeconds = 30
	}
	if cfg.Push.Priority == 0 {
		cfg.Push.Priority = 4
	}
	if cfg.Push.TimeoutSeconds == 0 {
		cfg.Push.TimeoutSeconds = 30
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 5
	}
	if cfg.Worker.BatchLimit == 0 {
		cfg.Worker.BatchLimit = 100
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Database override (critical for container deployment where
	// config.yaml has local defaults)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.Email.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.Email.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.Email.Region = region
	}
	if from := os.Getenv("EMAIL_FROM_ADDRESS"); from != "" {
		cfg.Email.FromAddress = from
	}

	if apiKey := os.Getenv("SMS_API_KEY"); apiKey != "" {
		cfg.SMS.APIKey = apiKey
	}
	if baseURL := os.Getenv("SMS_BASE_URL"); baseURL != "" {
		cfg.SMS.BaseURL = baseURL
	}

	if token := os.Getenv("WHATSAPP_ACCESS_TOKEN"); token != "" {
		cfg.WhatsApp.AccessToken = token
	}
	if phoneID := os.Getenv("WHATSAPP_PHONE_NUMBER_ID"); phoneID != "" {
		cfg.WhatsApp.PhoneNumberID = phoneID
	}

	if token := os.Getenv("PUSH_SERVER_TOKEN"); token != "" {
		cfg.Push.ServerToken = token
	}
	if project := os.Getenv("PUSH_PROJECT_ID"); project != "" {
		cfg.Push.ProjectID = project
	}

	return cfg, nil
}
