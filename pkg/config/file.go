package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML decoding. Only the fields that make
// sense in a checked-in file are exposed; credentials stay in the
// environment.
type fileConfig struct {
	Server        *ServerConfig        `yaml:"server"`
	Database      *DatabaseConfig      `yaml:"database"`
	ObjectStore   *ObjectStoreConfig   `yaml:"object_store"`
	Identity      *IdentityConfig      `yaml:"identity"`
	Redis         *RedisConfig         `yaml:"redis"`
	Observability *ObservabilityConfig `yaml:"observability"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if fc.Server != nil {
		c.Server = mergeServer(c.Server, *fc.Server)
	}
	if fc.Database != nil {
		c.Database = mergeDatabase(c.Database, *fc.Database)
	}
	if fc.ObjectStore != nil {
		c.ObjectStore = mergeObjectStore(c.ObjectStore, *fc.ObjectStore)
	}
	if fc.Identity != nil {
		c.Identity = *fc.Identity
	}
	if fc.Redis != nil {
		c.Redis = *fc.Redis
	}
	if fc.Observability != nil {
		c.Observability = mergeObservability(c.Observability, *fc.Observability)
	}

	return nil
}

func mergeServer(base, over ServerConfig) ServerConfig {
	if over.Host != "" {
		base.Host = over.Host
	}
	if over.Port != "" {
		base.Port = over.Port
	}
	if over.HealthPort != "" {
		base.HealthPort = over.HealthPort
	}
	if over.ReadTimeout > 0 {
		base.ReadTimeout = over.ReadTimeout
	}
	if over.WriteTimeout > 0 {
		base.WriteTimeout = over.WriteTimeout
	}
	if over.IdleTimeout > 0 {
		base.IdleTimeout = over.IdleTimeout
	}
	if over.ShutdownTimeout > 0 {
		base.ShutdownTimeout = over.ShutdownTimeout
	}
	return base
}

func mergeDatabase(base, over DatabaseConfig) DatabaseConfig {
	if over.URL != "" {
		base.URL = over.URL
	}
	if over.MaxConns > 0 {
		base.MaxConns = over.MaxConns
	}
	if over.MinConns > 0 {
		base.MinConns = over.MinConns
	}
	if over.Timeout > 0 {
		base.Timeout = over.Timeout
	}
	return base
}

func mergeObjectStore(base, over ObjectStoreConfig) ObjectStoreConfig {
	if over.Endpoint != "" {
		base.Endpoint = over.Endpoint
	}
	if over.Region != "" {
		base.Region = over.Region
	}
	if over.Bucket != "" {
		base.Bucket = over.Bucket
	}
	if over.AccessKey != "" {
		base.AccessKey = over.AccessKey
	}
	if over.SecretKey != "" {
		base.SecretKey = over.SecretKey
	}
	if over.ServiceAccessKey != "" {
		base.ServiceAccessKey = over.ServiceAccessKey
	}
	if over.ServiceSecretKey != "" {
		base.ServiceSecretKey = over.ServiceSecretKey
	}
	if over.UsePathStyle {
		base.UsePathStyle = true
	}
	return base
}

func mergeObservability(base, over ObservabilityConfig) ObservabilityConfig {
	if over.LogLevel != "" {
		base.LogLevel = over.LogLevel
	}
	if over.OTelEndpoint != "" {
		base.OTelEndpoint = over.OTelEndpoint
	}
	if over.OTelServiceName != "" {
		base.OTelServiceName = over.OTelServiceName
	}
	if over.OTelServiceVersion != "" {
		base.OTelServiceVersion = over.OTelServiceVersion
	}
	base.OTelEnabled = base.OTelEnabled || over.OTelEnabled
	base.MetricsEnabled = base.MetricsEnabled || over.MetricsEnabled
	return base
}
