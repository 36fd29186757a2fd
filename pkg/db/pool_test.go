package db

import (
	"context"
	"testing"
	"time"
)

const poolTestPrefix = "db:pool_test"

func TestNewPool_RejectsBadParams(t *testing.T) {
	tests := []struct {
		name string
		p    PoolParams
	}{
		{"empty url", PoolParams{}},
		{"bad scheme", PoolParams{URL: "invalid://not-a-valid-database-url"}},
		{"unreachable", PoolParams{URL: "postgres://bridge@127.0.0.1:1/idl_bridge?sslmode=disable", ConnectTimeout: 200 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(context.Background(), tt.p)
			if err == nil {
				pool.Close()
				t.Fatalf("%s - expected error", poolTestPrefix)
			}
			if pool != nil {
				t.Errorf("%s - expected nil pool on error", poolTestPrefix)
			}
		})
	}
}
