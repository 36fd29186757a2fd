package handler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func pingPong(val int32) bool {
	return val == 5
}

func echo(_ context.Context, args []any) (any, error) {
	return args, nil
}

func TestRegistry_RegisterUnique(t *testing.T) {
	r := NewRegistry(NewRegistryParams{})

	if err := r.RegisterFunc("pingPong", pingPong); err != nil {
		t.Fatalf("handler:registry_test - unexpected error: %v", err)
	}
	err := r.Register("pingPong", HandlerFunc(echo))
	var dup *DuplicateBindingError
	if !errors.As(err, &dup) {
		t.Fatalf("handler:registry_test - expected DuplicateBindingError, got %v", err)
	}
	if dup.Name != "pingPong" {
		t.Errorf("handler:registry_test - dup name = %s", dup.Name)
	}

	h, err := r.Resolve(context.Background(), "pingPong")
	if err != nil {
		t.Fatalf("handler:registry_test - unexpected error: %v", err)
	}
	got, err := h.Call(context.Background(), []any{5.0})
	if err != nil || got != true {
		t.Errorf("handler:registry_test - first binding should survive, got %v, %v", got, err)
	}
}

func TestRegistry_RegisterConcurrent(t *testing.T) {
	r := NewRegistry(NewRegistryParams{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Register("same", HandlerFunc(echo)) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("handler:registry_test - %d registrations succeeded, want 1", wins)
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := NewRegistry(NewRegistryParams{})
	if err := r.Register("", HandlerFunc(echo)); err == nil {
		t.Error("handler:registry_test - expected error for empty name")
	}
	if err := r.Register("x", nil); err == nil {
		t.Error("handler:registry_test - expected error for nil handler")
	}
	if err := r.RegisterFunc("y", 42); err == nil {
		t.Error("handler:registry_test - expected error for non-function")
	}
	if len(r.Names()) != 0 {
		t.Errorf("handler:registry_test - failed registrations must not bind, got %v", r.Names())
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	called := false
	r := NewRegistry(NewRegistryParams{Hook: HookFunc(func(context.Context, string) error {
		called = true
		return nil
	})})

	_, err := r.Resolve(context.Background(), "missing")
	var nf *NameNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("handler:registry_test - expected NameNotFoundError, got %v", err)
	}
	if err.Error() != "Unknown function 'missing'." {
		t.Errorf("handler:registry_test - message = %q", err.Error())
	}
	if called {
		t.Error("handler:registry_test - hook must not run for unknown names")
	}
}

func TestRegistry_HookIsolation(t *testing.T) {
	tests := []struct {
		name string
		hook Hook
	}{
		{"error", HookFunc(func(context.Context, string) error { return errors.New("no agent") })},
		{"panic", HookFunc(func(context.Context, string) error { panic("boom") })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(NewRegistryParams{Hook: tt.hook})
			if err := r.RegisterFunc("pingPong", pingPong); err != nil {
				t.Fatalf("handler:registry_test - unexpected error: %v", err)
			}
			h, err := r.Resolve(context.Background(), "pingPong")
			if err != nil || h == nil {
				t.Fatalf("handler:registry_test - hook failure leaked: %v", err)
			}
			got, err := h.Call(context.Background(), []any{int32(5)})
			if err != nil || got != true {
				t.Errorf("handler:registry_test - call after hook failure = %v, %v", got, err)
			}
		})
	}
}

func TestRegistry_HookSeesName(t *testing.T) {
	var seen []string
	r := NewRegistry(NewRegistryParams{})
	r.SetHook(HookFunc(func(_ context.Context, name string) error {
		seen = append(seen, name)
		return nil
	}))
	r.Register("a", HandlerFunc(echo))
	r.Resolve(context.Background(), "a")
	r.Mappings()
	r.Bindings()
	if len(seen) != 1 || seen[0] != "a" {
		t.Errorf("handler:registry_test - hook calls = %v, want [a]", seen)
	}
}

func TestRegistry_Enumerate(t *testing.T) {
	r := NewRegistry(NewRegistryParams{})
	r.RegisterFunc("pingPong", pingPong)
	r.Register("echo", HandlerFunc(echo))

	names := r.Names()
	if len(names) != 2 || names[0] != "pingPong" || names[1] != "echo" {
		t.Errorf("handler:registry_test - names = %v", names)
	}
	if m := r.Mappings(); len(m) != 2 || m["echo"] == nil {
		t.Errorf("handler:registry_test - mappings = %v", m)
	}
	if !r.Has("echo") || r.Has("nope") {
		t.Error("handler:registry_test - Has mismatch")
	}
	b := r.Bindings()
	if b[0].Origin != "handler.pingPong" || b[1].Origin != "handler.echo" {
		t.Errorf("handler:registry_test - origins = %s, %s", b[0].Origin, b[1].Origin)
	}
}

func TestRegistry_SummarizeOnce(t *testing.T) {
	r := NewRegistry(NewRegistryParams{})
	r.RegisterFunc("pingPong", pingPong)

	if r.Configured() {
		t.Fatal("handler:registry_test - fresh registry should not be configured")
	}
	var buf bytes.Buffer
	if !r.SummarizeOnce(&buf) {
		t.Fatal("handler:registry_test - first summary should print")
	}
	out := buf.String()
	if !strings.Contains(out, "Function Mappings") || !strings.Contains(out, "* pingPong -- handler.pingPong") {
		t.Errorf("handler:registry_test - summary = %q", out)
	}

	buf.Reset()
	if r.SummarizeOnce(&buf) || buf.Len() != 0 {
		t.Error("handler:registry_test - second summary should be a no-op")
	}
	if !r.Configured() {
		t.Error("handler:registry_test - registry should be configured")
	}
}
