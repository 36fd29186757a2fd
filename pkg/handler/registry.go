// Package handler binds RPC function names to their implementations.
package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

const logPrefix = "handler:registry"

// Handler executes one RPC function with positional arguments.
type Handler interface {
	Call(ctx context.Context, args []any) (any, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, args []any) (any, error)

// Call invokes f.
func (f HandlerFunc) Call(ctx context.Context, args []any) (any, error) {
	return f(ctx, args)
}

// Hook runs after a name resolves and before the handler is invoked.
// Failures are logged and never affect the call.
type Hook interface {
	BeforeDispatch(ctx context.Context, name string) error
}

// HookFunc adapts a plain function to Hook.
type HookFunc func(ctx context.Context, name string) error

// BeforeDispatch invokes f.
func (f HookFunc) BeforeDispatch(ctx context.Context, name string) error {
	return f(ctx, name)
}

// Binding is one registered name.
type Binding struct {
	Name    string
	Handler Handler
	// Origin is a readable reference to the implementation, e.g. "exampleapp.PingPong".
	Origin string
	Order  int
}

// NewRegistryParams configures a Registry.
type NewRegistryParams struct {
	Hook Hook
}

// Registry maps function names to handlers. Names are bound at most once.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*Binding
	order    []string
	hook     Hook

	configured atomic.Bool
}

// NewRegistry creates an empty Registry.
func NewRegistry(p NewRegistryParams) *Registry {
	return &Registry{
		bindings: make(map[string]*Binding),
		hook:     p.Hook,
	}
}

// SetHook replaces the pre-dispatch hook.
func (r *Registry) SetHook(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = h
}

// Register binds name to h. A second registration of the same name fails and leaves
// the first binding in place.
func (r *Registry) Register(name string, h Handler) error {
	return r.bind(name, h, originOf(h))
}

// RegisterFunc binds name to a typed Go function through Func.
func (r *Registry) RegisterFunc(name string, fn any) error {
	h, err := NewFunc(fn)
	if err != nil {
		return fmt.Errorf("%s - cannot bind '%s': %w", logPrefix, name, err)
	}
	return r.bind(name, h, h.origin)
}

func (r *Registry) bind(name string, h Handler, origin string) error {
	if name == "" {
		return fmt.Errorf("%s - function name is empty", logPrefix)
	}
	if h == nil {
		return fmt.Errorf("%s - handler for '%s' is nil", logPrefix, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.bindings[name]; ok {
		return &DuplicateBindingError{Name: name, Existing: existing.Origin}
	}
	r.bindings[name] = &Binding{Name: name, Handler: h, Origin: origin, Order: len(r.order)}
	r.order = append(r.order, name)
	slog.Debug(fmt.Sprintf("%s - Bound %s -> %s", logPrefix, name, origin))
	return nil
}

// Resolve returns the handler bound to name and runs the pre-dispatch hook.
func (r *Registry) Resolve(ctx context.Context, name string) (Handler, error) {
	r.mu.RLock()
	b, ok := r.bindings[name]
	hook := r.hook
	r.mu.RUnlock()

	if !ok {
		return nil, &NameNotFoundError{Name: name}
	}
	if hook != nil {
		runHook(ctx, hook, name)
	}
	return b.Handler, nil
}

func runHook(ctx context.Context, hook Hook, name string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn(fmt.Sprintf("%s - Pre-dispatch hook panicked for %s: %v", logPrefix, name, rec))
		}
	}()
	if err := hook.BeforeDispatch(ctx, name); err != nil {
		slog.Warn(fmt.Sprintf("%s - Pre-dispatch hook failed for %s: %v", logPrefix, name, err))
	}
}

// Has reports whether name is bound.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bindings[name]
	return ok
}

// Mappings returns a snapshot of every binding without running the hook.
func (r *Registry) Mappings() map[string]Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Handler, len(r.bindings))
	for name, b := range r.bindings {
		out[name] = b.Handler
	}
	return out
}

// Bindings returns every binding in registration order.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.bindings[name])
	}
	return out
}

// Names returns bound names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Configured reports whether the mapping summary has been emitted.
func (r *Registry) Configured() bool {
	return r.configured.Load()
}

// PrintMappings writes the mapping summary unconditionally.
func (r *Registry) PrintMappings(w io.Writer) {
	fmt.Fprintln(w, "** IDL Bridge --> Function Mappings **")
	for _, b := range r.Bindings() {
		fmt.Fprintf(w, "* %s -- %s\n", b.Name, b.Origin)
	}
	fmt.Fprintln(w)
}

// SummarizeOnce writes the mapping summary the first time it is called and reports
// whether it did.
func (r *Registry) SummarizeOnce(w io.Writer) bool {
	if !r.configured.CompareAndSwap(false, true) {
		return false
	}
	r.PrintMappings(w)
	return true
}

// originOf names the implementation behind a handler for the mapping summary.
func originOf(h Handler) string {
	switch v := h.(type) {
	case *FuncHandler:
		return v.origin
	case HandlerFunc:
		return funcName(reflect.ValueOf(v))
	}
	return fmt.Sprintf("%T", h)
}

func funcName(v reflect.Value) string {
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return v.Type().String()
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}
