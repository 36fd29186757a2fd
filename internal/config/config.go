// Package config provides bridge configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds idl-bridge configuration.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"bridge"`

	// Schema: SchemaKey is looked up in SchemaFiles (key:path,...), then the database,
	// then the embedded example schema.
	SchemaKey               string            `envconfig:"SCHEMA_KEY" default:"default"`
	SchemaFiles             map[string]string `envconfig:"SCHEMA_FILES"`
	SchemaService           string            `envconfig:"SCHEMA_SERVICE" default:"ExampleService"`
	SchemaVersionConstraint string            `envconfig:"SCHEMA_VERSION_CONSTRAINT"`

	// HTTP JSON bridge, health and describe endpoints
	HTTPEnabled bool   `envconfig:"HTTP_ENABLED" default:"true"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8000"`

	// Native Thrift RPC
	RPCEnabled       bool          `envconfig:"RPC_ENABLED" default:"true"`
	RPCHost          string        `envconfig:"RPC_HOST" default:"127.0.0.1"`
	RPCPort          int           `envconfig:"RPC_PORT" default:"9090"`
	RPCUnixSocket    string        `envconfig:"RPC_UNIX_SOCKET"`
	RPCCertFile      string        `envconfig:"RPC_CERT_FILE"`
	RPCKeyFile       string        `envconfig:"RPC_KEY_FILE"`
	RPCClientTimeout time.Duration `envconfig:"RPC_CLIENT_TIMEOUT" default:"3s"`

	// NATS request/reply (empty URL disables it)
	COMMSURL           string `envconfig:"COMMS_URL"`
	COMMSSubjectPrefix string `envconfig:"COMMS_SUBJECT_PREFIX" default:"rpc"`
	COMMSQueueGroup    string `envconfig:"COMMS_QUEUE_GROUP"`

	// Schema store (empty URL disables it)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Tracing
	TracingEnabled  bool   `envconfig:"TRACING_ENABLED" default:"false"`
	TracingExporter string `envconfig:"TRACING_EXPORTER" default:"stdout"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	return &c, nil
}

// ValidateForServe checks required config when running the bridge.
func (c *Config) ValidateForServe() error {
	if c.SchemaKey == "" {
		return fmt.Errorf("%s - SCHEMA_KEY is required", logPrefix)
	}
	if c.SchemaService == "" {
		return fmt.Errorf("%s - SCHEMA_SERVICE is required", logPrefix)
	}
	if !c.HTTPEnabled && !c.RPCEnabled && c.COMMSURL == "" {
		return fmt.Errorf("%s - no transport enabled (HTTP_ENABLED, RPC_ENABLED, COMMS_URL)", logPrefix)
	}
	if c.RPCEnabled {
		if c.RPCUnixSocket == "" && (c.RPCHost == "" || c.RPCPort <= 0 || c.RPCPort > 65535) {
			return fmt.Errorf("%s - RPC_HOST and a valid RPC_PORT, or RPC_UNIX_SOCKET, are required", logPrefix)
		}
		if c.RPCKeyFile != "" && c.RPCCertFile == "" {
			return fmt.Errorf("%s - RPC_KEY_FILE requires RPC_CERT_FILE", logPrefix)
		}
		if c.RPCClientTimeout <= 0 {
			return fmt.Errorf("%s - RPC_CLIENT_TIMEOUT must be positive", logPrefix)
		}
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	switch strings.ToLower(c.TracingExporter) {
	case "stdout", "none":
	default:
		return fmt.Errorf("%s - TRACING_EXPORTER must be stdout or none, got %q", logPrefix, c.TracingExporter)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, schema).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
