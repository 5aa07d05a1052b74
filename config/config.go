package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/paywalls-net/filter/utils"
)

// Cache backend names accepted by the classifier configuration.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config represents the complete filter configuration
type Config struct {
	Environment   string              `yaml:"environment"`
	Service       ServiceConfig       `yaml:"service"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Signals       SignalsConfig       `yaml:"signals"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig holds the remote classification/authorization service
// settings shared by every component that talks to it.
type ServiceConfig struct {
	APIBaseURL    string        `yaml:"api_base_url" validate:"required,url"`
	APIKey        string        `yaml:"api_key" validate:"required"`
	AccountID     string        `yaml:"account_id" validate:"required"`
	VAIPathPrefix string        `yaml:"vai_path_prefix" validate:"required,startswith=/"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	RulesetTTL    time.Duration `yaml:"ruleset_ttl"`
}

// ClassifierConfig holds the classification cache settings
type ClassifierConfig struct {
	CacheBackend   string `yaml:"cache_backend" validate:"oneof=memory redis"`
	CacheSize      int    `yaml:"cache_size"` // 0 = unbounded, cleared on ruleset refresh
	RedisURL       string `yaml:"redis_url"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
	StrictPatterns bool   `yaml:"strict_patterns"`
}

// SignalsConfig names the headers carrying host-native bot telemetry. The
// secondary pair is empty by default; hosts that forward a second signal
// set it explicitly.
type SignalsConfig struct {
	ScoreHeader             string `yaml:"score_header"`
	VerifiedHeader          string `yaml:"verified_header"`
	SecondaryScoreHeader    string `yaml:"secondary_score_header"`
	SecondaryVerifiedHeader string `yaml:"secondary_verified_header"`
}

// ServerConfig holds the sidecar HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	OriginURL       string        `yaml:"origin_url" validate:"omitempty,url"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig holds optional TLS serving settings for the sidecar
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level" validate:"required"`
	LogFormat      string `yaml:"log_format" validate:"oneof=json text"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// New creates a new Config instance from environment variables.
func New(ctx context.Context) (*Config, error) {
	return NewFromFile(ctx, "")
}

// NewFromFile creates a new Config instance, layering sources lowest to
// highest precedence: built-in defaults, the optional YAML file, then
// environment variables.
func NewFromFile(_ context.Context, path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config populated with built-in defaults.
func defaults() *Config {
	return &Config{
		Environment: "development",
		Service: ServiceConfig{
			VAIPathPrefix: "/pw",
			HTTPTimeout:   30 * time.Second,
			RulesetTTL:    time.Hour,
		},
		Classifier: ClassifierConfig{
			CacheBackend:   CacheBackendMemory,
			CacheSize:      0,
			RedisKeyPrefix: "uaclass",
		},
		Signals: SignalsConfig{
			ScoreHeader:    "x-bot-score",
			VerifiedHeader: "x-verified-bot",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

// applyEnv overrides config fields from environment variables.
func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	cfg.Service.APIBaseURL = getEnv("PWF_API_BASE_URL", cfg.Service.APIBaseURL)
	cfg.Service.APIKey = getEnv("PWF_API_KEY", cfg.Service.APIKey)
	cfg.Service.AccountID = getEnv("PWF_ACCOUNT_ID", cfg.Service.AccountID)
	cfg.Service.VAIPathPrefix = getEnv("PWF_VAI_PATH_PREFIX", cfg.Service.VAIPathPrefix)
	cfg.Service.HTTPTimeout = getEnvAsDuration("PWF_HTTP_TIMEOUT", cfg.Service.HTTPTimeout)
	cfg.Service.RulesetTTL = getEnvAsDuration("PWF_RULESET_TTL", cfg.Service.RulesetTTL)

	cfg.Classifier.CacheBackend = getEnv("PWF_CLASSIFIER_CACHE", cfg.Classifier.CacheBackend)
	cfg.Classifier.CacheSize = getEnvAsInt("PWF_CLASSIFIER_CACHE_SIZE", cfg.Classifier.CacheSize)
	cfg.Classifier.RedisURL = getEnv("PWF_REDIS_URL", cfg.Classifier.RedisURL)
	cfg.Classifier.RedisKeyPrefix = getEnv("PWF_REDIS_KEY_PREFIX", cfg.Classifier.RedisKeyPrefix)
	cfg.Classifier.StrictPatterns = getEnvAsBool("PWF_STRICT_PATTERNS", cfg.Classifier.StrictPatterns)

	cfg.Signals.ScoreHeader = getEnv("PWF_BOT_SCORE_HEADER", cfg.Signals.ScoreHeader)
	cfg.Signals.VerifiedHeader = getEnv("PWF_VERIFIED_BOT_HEADER", cfg.Signals.VerifiedHeader)
	cfg.Signals.SecondaryScoreHeader = getEnv("PWF_SECONDARY_BOT_SCORE_HEADER", cfg.Signals.SecondaryScoreHeader)
	cfg.Signals.SecondaryVerifiedHeader = getEnv("PWF_SECONDARY_VERIFIED_BOT_HEADER", cfg.Signals.SecondaryVerifiedHeader)

	cfg.Server.Host = getEnv("PWF_LISTEN_HOST", cfg.Server.Host)
	cfg.Server.Port = getPort(cfg.Server.Port)
	cfg.Server.OriginURL = getEnv("PWF_ORIGIN_URL", cfg.Server.OriginURL)
	cfg.Server.ReadTimeout = getEnvAsDuration("PWF_SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvAsDuration("PWF_SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("PWF_SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.TLS.Enabled = getEnvAsBool("PWF_TLS_ENABLED", cfg.Server.TLS.Enabled)
	cfg.Server.TLS.CertFile = getEnv("PWF_TLS_CERT_FILE", cfg.Server.TLS.CertFile)
	cfg.Server.TLS.KeyFile = getEnv("PWF_TLS_KEY_FILE", cfg.Server.TLS.KeyFile)

	cfg.Observability.LogLevel = getEnv("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = getEnv("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", cfg.Observability.MetricsEnabled)
}

// Validate checks that all required configuration fields are set and
// consistent.
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	// The VAI prefix is matched literally against request paths, so a
	// trailing slash would make both artifact paths unreachable.
	if strings.HasSuffix(c.Service.VAIPathPrefix, "/") {
		return fmt.Errorf("VAI path prefix must not end with a slash")
	}

	if c.Classifier.CacheBackend == CacheBackendRedis && c.Classifier.RedisURL == "" {
		return fmt.Errorf("redis cache backend requires PWF_REDIS_URL")
	}

	if c.Classifier.CacheSize < 0 {
		return fmt.Errorf("classifier cache size must not be negative")
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("TLS requires both a certificate and a key file")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the sidecar HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or PWF_LISTEN_PORT env vars
func getPort(defaultValue int) int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("PWF_LISTEN_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
