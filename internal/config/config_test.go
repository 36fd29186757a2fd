package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"SERVICE_NAME", "SCHEMA_KEY", "SCHEMA_FILES", "SCHEMA_SERVICE", "SCHEMA_VERSION_CONSTRAINT",
	"HTTP_ENABLED", "HTTP_ADDR",
	"RPC_ENABLED", "RPC_HOST", "RPC_PORT", "RPC_UNIX_SOCKET", "RPC_CERT_FILE", "RPC_KEY_FILE", "RPC_CLIENT_TIMEOUT",
	"COMMS_URL", "COMMS_SUBJECT_PREFIX", "COMMS_QUEUE_GROUP",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"TRACING_ENABLED", "TRACING_EXPORTER", "LOG_LEVEL",
}

// clearEnv unsets every variable the config reads. t.Setenv registers the restore.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envVars {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"ServiceName", cfg.ServiceName, "bridge"},
		{"SchemaKey", cfg.SchemaKey, "default"},
		{"SchemaService", cfg.SchemaService, "ExampleService"},
		{"HTTPEnabled", cfg.HTTPEnabled, true},
		{"HTTPAddr", cfg.HTTPAddr, ":8000"},
		{"RPCEnabled", cfg.RPCEnabled, true},
		{"RPCHost", cfg.RPCHost, "127.0.0.1"},
		{"RPCPort", cfg.RPCPort, 9090},
		{"RPCClientTimeout", cfg.RPCClientTimeout, 3 * time.Second},
		{"COMMSURL", cfg.COMMSURL, ""},
		{"COMMSSubjectPrefix", cfg.COMMSSubjectPrefix, "rpc"},
		{"DatabaseURL", cfg.DatabaseURL, ""},
		{"RunMigrations", cfg.RunMigrations, false},
		{"MigrationPath", cfg.MigrationPath, "migrations"},
		{"TracingEnabled", cfg.TracingEnabled, false},
		{"TracingExporter", cfg.TracingExporter, "stdout"},
		{"LogLevel", cfg.LogLevel, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("config:config_test - %s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if len(cfg.SchemaFiles) != 0 {
		t.Errorf("config:config_test - SchemaFiles = %v, want empty", cfg.SchemaFiles)
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected ValidateForDB to require DATABASE_URL")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCHEMA_FILES", "orders:schemas/orders.yaml,billing:schemas/billing.json")
	t.Setenv("RPC_PORT", "9191")
	t.Setenv("RPC_CLIENT_TIMEOUT", "250ms")
	t.Setenv("HTTP_ENABLED", "false")
	t.Setenv("COMMS_URL", "nats://127.0.0.1:4222")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}
	if cfg.SchemaFiles["orders"] != "schemas/orders.yaml" || cfg.SchemaFiles["billing"] != "schemas/billing.json" {
		t.Errorf("config:config_test - SchemaFiles = %v", cfg.SchemaFiles)
	}
	if cfg.RPCPort != 9191 || cfg.RPCClientTimeout != 250*time.Millisecond {
		t.Errorf("config:config_test - RPC overrides not applied: port=%d timeout=%v", cfg.RPCPort, cfg.RPCClientTimeout)
	}
	if cfg.HTTPEnabled {
		t.Error("config:config_test - expected HTTPEnabled=false")
	}
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_PORT", "not-a-port")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("config:config_test - expected error for invalid RPC_PORT")
	}
}

func TestValidateForServe(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SchemaKey: "default", SchemaService: "ExampleService",
			HTTPEnabled: true, RPCEnabled: true, RPCHost: "127.0.0.1", RPCPort: 9090,
			RPCClientTimeout: 3 * time.Second, TracingExporter: "stdout",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no schema key", func(c *Config) { c.SchemaKey = "" }, "SCHEMA_KEY"},
		{"no service", func(c *Config) { c.SchemaService = "" }, "SCHEMA_SERVICE"},
		{"no transport", func(c *Config) { c.HTTPEnabled, c.RPCEnabled = false, false }, "no transport"},
		{"nats only", func(c *Config) { c.HTTPEnabled, c.RPCEnabled, c.COMMSURL = false, false, "nats://x" }, ""},
		{"bad port", func(c *Config) { c.RPCPort = 70000 }, "RPC_PORT"},
		{"unix socket without port", func(c *Config) { c.RPCPort, c.RPCUnixSocket = 0, "/tmp/rpc.sock" }, ""},
		{"key without cert", func(c *Config) { c.RPCKeyFile = "key.pem" }, "RPC_CERT_FILE"},
		{"zero timeout", func(c *Config) { c.RPCClientTimeout = 0 }, "RPC_CLIENT_TIMEOUT"},
		{"migrations without db", func(c *Config) { c.RunMigrations = true }, "DATABASE_URL"},
		{"bad exporter", func(c *Config) { c.TracingExporter = "jaeger" }, "TRACING_EXPORTER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateForServe()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("config:config_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("config:config_test - error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
