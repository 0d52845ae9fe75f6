package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	ObjectStore   ObjectStoreConfig
	Identity      IdentityConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string        `yaml:"url"`
	MaxConns int           `yaml:"max_conns"`
	MinConns int           `yaml:"min_conns"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ObjectStoreConfig holds S3-compatible object storage configuration.
// ServiceAccessKey/ServiceSecretKey are the privileged credentials used for
// server-issued signed URLs; AccessKey/SecretKey are the lower-privilege
// credentials used for direct writes and caller-issued signed URLs.
type ObjectStoreConfig struct {
	Endpoint         string `yaml:"endpoint"`
	Region           string `yaml:"region"`
	Bucket           string `yaml:"bucket"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ServiceAccessKey string `yaml:"service_access_key"`
	ServiceSecretKey string `yaml:"service_secret_key"`
	UsePathStyle     bool   `yaml:"use_path_style"`
}

// IdentityConfig holds external identity provider configuration
type IdentityConfig struct {
	IssuerURL    string `yaml:"issuer_url"`
	ClientID     string `yaml:"client_id"`
	AdminAPIURL  string `yaml:"admin_api_url"`
	ServiceToken string `yaml:"service_token"`
	RedirectURL  string `yaml:"redirect_url"`
}

// RedisConfig holds redis configuration for distributed rate limiting
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ObservabilityConfig holds logging/metrics/tracing settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Load loads configuration from environment variables. When CASEDESK_CONFIG
// points at a YAML file its values are applied first, then the environment
// overrides them.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CASEDESK_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxConns: 20,
			MinConns: 2,
			Timeout:  10 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
			Bucket: "casedesk-documents",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "casedesk",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

func (c *Config) applyEnv() {
	// Server
	setString(&c.Server.Host, "CASEDESK_HOST")
	setString(&c.Server.Port, "CASEDESK_PORT")
	setString(&c.Server.HealthPort, "CASEDESK_HEALTH_PORT")
	setDuration(&c.Server.ReadTimeout, "CASEDESK_READ_TIMEOUT")
	setDuration(&c.Server.WriteTimeout, "CASEDESK_WRITE_TIMEOUT")
	setDuration(&c.Server.IdleTimeout, "CASEDESK_IDLE_TIMEOUT")
	setDuration(&c.Server.ShutdownTimeout, "CASEDESK_SHUTDOWN_TIMEOUT")

	// Database
	setString(&c.Database.URL, "CASEDESK_POSTGRES_URL")
	setInt(&c.Database.MaxConns, "CASEDESK_POSTGRES_MAX_CONNS")
	setInt(&c.Database.MinConns, "CASEDESK_POSTGRES_MIN_CONNS")
	setDuration(&c.Database.Timeout, "CASEDESK_POSTGRES_TIMEOUT")

	// Object store
	setString(&c.ObjectStore.Endpoint, "CASEDESK_S3_ENDPOINT")
	setString(&c.ObjectStore.Region, "CASEDESK_S3_REGION")
	setString(&c.ObjectStore.Bucket, "CASEDESK_S3_BUCKET")
	setString(&c.ObjectStore.AccessKey, "CASEDESK_S3_ACCESS_KEY")
	setString(&c.ObjectStore.SecretKey, "CASEDESK_S3_SECRET_KEY")
	setString(&c.ObjectStore.ServiceAccessKey, "CASEDESK_S3_SERVICE_ACCESS_KEY")
	setString(&c.ObjectStore.ServiceSecretKey, "CASEDESK_S3_SERVICE_SECRET_KEY")
	setBool(&c.ObjectStore.UsePathStyle, "CASEDESK_S3_USE_PATH_STYLE")

	// Identity provider
	setString(&c.Identity.IssuerURL, "CASEDESK_IDP_ISSUER_URL")
	setString(&c.Identity.ClientID, "CASEDESK_IDP_CLIENT_ID")
	setString(&c.Identity.AdminAPIURL, "CASEDESK_IDP_ADMIN_API_URL")
	setString(&c.Identity.ServiceToken, "CASEDESK_IDP_SERVICE_TOKEN")
	setString(&c.Identity.RedirectURL, "CASEDESK_IDP_REDIRECT_URL")

	// Redis
	setString(&c.Redis.URL, "CASEDESK_REDIS_URL")
	setString(&c.Redis.Password, "CASEDESK_REDIS_PASSWORD")
	setInt(&c.Redis.DB, "CASEDESK_REDIS_DB")

	// Observability
	setString(&c.Observability.LogLevel, "CASEDESK_LOG_LEVEL")
	setBool(&c.Observability.MetricsEnabled, "CASEDESK_METRICS_ENABLED")
	setBool(&c.Observability.OTelEnabled, "CASEDESK_OTEL_ENABLED")
	setString(&c.Observability.OTelEndpoint, "CASEDESK_OTEL_ENDPOINT")
	setString(&c.Observability.OTelServiceName, "CASEDESK_OTEL_SERVICE_NAME")
	setString(&c.Observability.OTelServiceVersion, "CASEDESK_OTEL_SERVICE_VERSION")
	setBool(&c.Observability.OTelInsecure, "CASEDESK_OTEL_INSECURE")
}

// Validate checks invariants that must hold even in degraded mode
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.ObjectStore.Endpoint != "" && c.ObjectStore.Bucket == "" {
		return fmt.Errorf("object store bucket is required when an endpoint is set")
	}
	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("otel endpoint is required when tracing is enabled")
	}
	return nil
}

// DatabaseConfigured reports whether a database URL is present
func (c *Config) DatabaseConfigured() bool { return c.Database.URL != "" }

// ObjectStoreConfigured reports whether object storage is usable
func (c *Config) ObjectStoreConfigured() bool {
	return c.ObjectStore.Bucket != "" && (c.ObjectStore.Endpoint != "" || c.ObjectStore.Region != "")
}

func setString(dest *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dest = v
	}
}

func setBool(dest *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dest = strings.ToLower(v) == "true" || v == "1"
	}
}

func setInt(dest *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dest = n
		}
	}
}

func setDuration(dest *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dest = d
		}
	}
}
