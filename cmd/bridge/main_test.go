package main

import (
	"strings"
	"testing"

	"github.com/morezero/idl-bridge/internal/config"
)

const mainTestPrefix = "cmd/bridge:main_test"

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"serve", "rpcserver", "http", "mappings", "call", "rpccall", "schema push", "migrate", "ensure-db", "DATABASE_URL"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestRPCOnly(t *testing.T) {
	cfg := &config.Config{HTTPEnabled: true, COMMSURL: "nats://localhost:4222", RPCHost: "127.0.0.1", RPCPort: 9090}
	if err := rpcOnly(cfg, []string{"0.0.0.0", "9191"}); err != nil {
		t.Fatalf("%s - rpcOnly: %v", mainTestPrefix, err)
	}
	if cfg.HTTPEnabled || !cfg.RPCEnabled || cfg.COMMSURL != "" {
		t.Errorf("%s - transports not narrowed: %+v", mainTestPrefix, cfg)
	}
	if cfg.RPCHost != "0.0.0.0" || cfg.RPCPort != 9191 {
		t.Errorf("%s - host/port = %s:%d", mainTestPrefix, cfg.RPCHost, cfg.RPCPort)
	}

	if err := rpcOnly(cfg, []string{"localhost", "nine"}); err == nil {
		t.Errorf("%s - expected error for non-numeric port", mainTestPrefix)
	}
}

func TestHTTPOnly(t *testing.T) {
	cfg := &config.Config{RPCEnabled: true, HTTPAddr: ":8000"}
	if err := httpOnly(cfg, nil); err != nil {
		t.Fatalf("%s - httpOnly: %v", mainTestPrefix, err)
	}
	if !cfg.HTTPEnabled || cfg.RPCEnabled || cfg.HTTPAddr != ":8000" {
		t.Errorf("%s - unexpected config: %+v", mainTestPrefix, cfg)
	}
	_ = httpOnly(cfg, []string{":9000"})
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("%s - HTTPAddr = %s, want :9000", mainTestPrefix, cfg.HTTPAddr)
	}
}

func TestSchemaSources_FilesFirst(t *testing.T) {
	cfg := &config.Config{SchemaFiles: map[string]string{"svc": "svc.json"}}
	sources := schemaSources(cfg)
	if len(sources) != 2 {
		t.Fatalf("%s - len(sources) = %d, want 2", mainTestPrefix, len(sources))
	}
	if len(schemaSources(&config.Config{})) != 1 {
		t.Errorf("%s - expected only the embedded source", mainTestPrefix)
	}
}

func TestRunSchema_UnknownSubcommand(t *testing.T) {
	if err := runSchema([]string{"frobnicate"}); err == nil {
		t.Errorf("%s - expected error", mainTestPrefix)
	}
	if err := runSchema([]string{"push", "only-key"}); err == nil {
		t.Errorf("%s - expected error for missing file", mainTestPrefix)
	}
}
