package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/morezero/idl-bridge/pkg/codec"
	"github.com/morezero/idl-bridge/pkg/handler"
	"github.com/morezero/idl-bridge/pkg/idl"
)

const logPrefix = "dispatcher:dispatch"

// State is a step of a single dispatch.
type State int

const (
	StateDecoding State = iota
	StateExecuting
	StateOK
	StateError
)

func (s State) String() string {
	switch s {
	case StateDecoding:
		return "DECODING"
	case StateExecuting:
		return "EXECUTING"
	case StateOK:
		return "OK"
	case StateError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Result is the terminal state of a dispatch.
type Result struct {
	Function string
	State    State
	Value    any
	Err      *Error
}

// Envelope renders the result. Successful values are serialized here.
func (r *Result) Envelope() *Envelope {
	if r.State == StateOK {
		return Success(codec.Serialize(r.Value))
	}
	return r.Err.Envelope()
}

// NewDispatcherParams configures a Dispatcher.
type NewDispatcherParams struct {
	Schema   *idl.Schema
	Service  string
	Registry *handler.Registry
}

// Dispatcher runs calls against one service of a schema.
type Dispatcher struct {
	schema   *idl.Schema
	service  *idl.Service
	registry *handler.Registry
}

// NewDispatcher creates a Dispatcher. Every name already bound in the registry must be
// declared by the service.
func NewDispatcher(p NewDispatcherParams) (*Dispatcher, error) {
	if p.Schema == nil || p.Registry == nil {
		return nil, fmt.Errorf("%s - schema and registry are required", logPrefix)
	}
	svc, err := p.Schema.Service(p.Service)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	for _, name := range p.Registry.Names() {
		if _, ok := svc.Function(name); !ok {
			return nil, fmt.Errorf("%s - '%s' is bound but %s does not declare it", logPrefix, name, svc.Name)
		}
	}
	return &Dispatcher{schema: p.Schema, service: svc, registry: p.Registry}, nil
}

// Schema returns the schema calls are decoded against.
func (d *Dispatcher) Schema() *idl.Schema {
	return d.schema
}

// Service returns the dispatched service.
func (d *Dispatcher) Service() *idl.Service {
	return d.service
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *handler.Registry {
	return d.registry
}

// Function looks up a declared function.
func (d *Dispatcher) Function(name string) (*idl.Function, bool) {
	return d.service.Function(name)
}

// Routes lists bound function names in registration order.
func (d *Dispatcher) Routes() []string {
	names := d.registry.Names()
	out := names[:0]
	for _, n := range names {
		if _, ok := d.service.Function(n); ok {
			out = append(out, n)
		}
	}
	return out
}

// Execute resolves name and invokes its handler with positional args. Panics are
// recovered and returned as *PanicError.
func (d *Dispatcher) Execute(ctx context.Context, name string, args []any) (result any, err error) {
	h, err := d.registry.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error(fmt.Sprintf("%s - handler %s panicked: %v\n%s", logPrefix, name, rec, debug.Stack()))
			result, err = nil, &PanicError{Function: name, Value: rec}
		}
	}()
	return h.Call(ctx, args)
}

// Dispatch decodes a JSON body for name, executes it and classifies the outcome.
// An empty, unparseable or non-object body is treated as absent.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, body []byte) *Result {
	res := &Result{Function: name, State: StateDecoding}

	fn, ok := d.service.Function(name)
	if !ok {
		return d.fail(res, &handler.NameNotFoundError{Name: name})
	}

	args, err := codec.BuildArgs(fn.ArgSpec(), parseBody(body))
	if err != nil {
		return d.fail(res, err)
	}

	d.advance(res, StateExecuting)
	value, err := d.Execute(ctx, name, args)
	if err != nil {
		return d.fail(res, undeclared(fn, err))
	}

	d.advance(res, StateOK)
	res.Value = value
	return res
}

// DispatchJSON is Dispatch rendered as an envelope.
func (d *Dispatcher) DispatchJSON(ctx context.Context, name string, body []byte) *Envelope {
	return d.Dispatch(ctx, name, body).Envelope()
}

func (d *Dispatcher) advance(res *Result, next State) {
	slog.Debug(fmt.Sprintf("%s - %s %s -> %s", logPrefix, res.Function, res.State, next))
	res.State = next
}

func (d *Dispatcher) fail(res *Result, err error) *Result {
	classified := Classify(err)
	switch classified.Kind {
	case KindBadRequest:
		slog.Error(fmt.Sprintf("%s - Invalid args to '%s': %v", logPrefix, res.Function, err))
	case KindNameNotFound:
		slog.Warn(fmt.Sprintf("%s - %s", logPrefix, classified.Message))
	case KindApplicationException:
		slog.Info(fmt.Sprintf("%s - %s raised %s", logPrefix, res.Function, classified.Message))
	default:
		slog.Error(fmt.Sprintf("%s - %s failed: %v", logPrefix, res.Function, err))
	}
	d.advance(res, StateError)
	res.Err = classified
	return res
}

// undeclared demotes an exception the function does not list in throws to an internal error.
func undeclared(fn *idl.Function, err error) error {
	var exc *idl.Exception
	if !errors.As(err, &exc) {
		return err
	}
	if _, ok := fn.Throw(exc.TypeName()); ok {
		return err
	}
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}

func parseBody(body []byte) map[string]any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}
	return m
}

func serializeException(exc *idl.Exception) any {
	return codec.Serialize(exc)
}
