// Package thriftrpc serves a dispatcher over the native Thrift binary protocol.
//
// The processor is generic: argument and result structs are read and written from the
// loaded schema, so no generated code is needed. Calls go through the same handler
// registry, pre-dispatch hook and exception mapping as the JSON transports.
package thriftrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/morezero/idl-bridge/pkg/dispatcher"
	"github.com/morezero/idl-bridge/pkg/idl"
	"github.com/morezero/idl-bridge/pkg/telemetry"
)

const logPrefix = "thriftrpc:processor"

// NewProcessorParams configures a Processor.
type NewProcessorParams struct {
	Dispatcher *dispatcher.Dispatcher
	Telemetry  *telemetry.Instrumentation
}

// Processor implements thrift.TProcessor for every routed function of a dispatcher.
type Processor struct {
	dispatcher *dispatcher.Dispatcher
	telemetry  *telemetry.Instrumentation
	functions  map[string]thrift.TProcessorFunction
}

var _ thrift.TProcessor = (*Processor)(nil)

// NewProcessor creates a Processor.
func NewProcessor(p NewProcessorParams) *Processor {
	proc := &Processor{
		dispatcher: p.Dispatcher,
		telemetry:  p.Telemetry,
		functions:  make(map[string]thrift.TProcessorFunction),
	}
	for _, name := range p.Dispatcher.Routes() {
		fn, _ := p.Dispatcher.Function(name)
		proc.functions[name] = &functionProcessor{proc: proc, fn: fn}
	}
	return proc
}

// Dispatcher returns the dispatcher calls are executed on.
func (p *Processor) Dispatcher() *dispatcher.Dispatcher {
	return p.dispatcher
}

// Process reads one message and answers it.
func (p *Processor) Process(ctx context.Context, in, out thrift.TProtocol) (bool, thrift.TException) {
	name, _, seqID, err := in.ReadMessageBegin(ctx)
	if err != nil {
		return false, thrift.WrapTException(err)
	}
	if fp, ok := p.functions[name]; ok {
		return fp.Process(ctx, seqID, in, out)
	}

	slog.Warn(fmt.Sprintf("%s - unknown function %q", logPrefix, name))
	_ = in.Skip(ctx, thrift.STRUCT)
	_ = in.ReadMessageEnd(ctx)
	x := thrift.NewTApplicationException(thrift.UNKNOWN_METHOD, fmt.Sprintf("Unknown function '%s'.", name))
	if err := writeException(ctx, out, name, seqID, x); err != nil {
		return false, thrift.WrapTException(err)
	}
	return false, x
}

// ProcessorMap returns the per-function processors.
func (p *Processor) ProcessorMap() map[string]thrift.TProcessorFunction {
	return p.functions
}

// AddToProcessorMap overrides the processor for one function.
func (p *Processor) AddToProcessorMap(name string, fn thrift.TProcessorFunction) {
	p.functions[name] = fn
}

type functionProcessor struct {
	proc *Processor
	fn   *idl.Function
}

func (fp *functionProcessor) Process(ctx context.Context, seqID int32, in, out thrift.TProtocol) (bool, thrift.TException) {
	ctx, end := fp.proc.telemetry.StartRequest(ctx, "thrift", fp.fn.Name)

	args, err := readArgs(ctx, in, fp.fn)
	if err == nil {
		err = in.ReadMessageEnd(ctx)
	}
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - %s: reading arguments: %v", logPrefix, fp.fn.Name, err))
		end(err)
		if !fp.fn.Oneway {
			x := thrift.NewTApplicationException(thrift.PROTOCOL_ERROR, err.Error())
			_ = writeException(ctx, out, fp.fn.Name, seqID, x)
		}
		return false, thrift.WrapTException(err)
	}

	value, callErr := fp.proc.dispatcher.Execute(ctx, fp.fn.Name, args)
	end(callErr)
	if fp.fn.Oneway {
		if callErr != nil {
			slog.Error(fmt.Sprintf("%s - oneway %s failed: %v", logPrefix, fp.fn.Name, callErr))
		}
		return true, nil
	}

	result, x := fp.result(value, callErr)
	if x != nil {
		if err := writeException(ctx, out, fp.fn.Name, seqID, x); err != nil {
			return false, thrift.WrapTException(err)
		}
		return true, x
	}
	if err := writeMessage(ctx, out, fp.fn.Name, thrift.REPLY, seqID, func() error {
		return writeStruct(ctx, out, result)
	}); err != nil {
		return false, thrift.WrapTException(err)
	}
	return true, nil
}

// result builds the result struct for a call, or the application exception that
// replaces it.
func (fp *functionProcessor) result(value any, callErr error) (*wireStruct, thrift.TApplicationException) {
	result := &wireStruct{name: fp.fn.Name + "_result"}

	if callErr == nil {
		if fp.fn.Returns.Kind == idl.KindVoid || isNil(value) {
			return result, nil
		}
		nv, err := normalize(fp.fn.Returns, value, "success")
		if err != nil {
			slog.Error(fmt.Sprintf("%s - %s returned an unencodable value: %v", logPrefix, fp.fn.Name, err))
			return nil, thrift.NewTApplicationException(thrift.INTERNAL_ERROR, dispatcher.MsgInternal)
		}
		result.fields = append(result.fields, wireField{name: "success", id: 0, typ: fp.fn.Returns, value: nv})
		return result, nil
	}

	var exc *idl.Exception
	if errors.As(callErr, &exc) {
		if f, ok := fp.fn.Throw(exc.TypeName()); ok {
			nv, err := normalize(f.Type, exc.Value, f.Name)
			if err == nil {
				result.fields = append(result.fields, wireField{name: f.Name, id: f.ID, typ: f.Type, value: nv})
				return result, nil
			}
			slog.Error(fmt.Sprintf("%s - %s raised an unencodable %s: %v", logPrefix, fp.fn.Name, exc.TypeName(), err))
			return nil, thrift.NewTApplicationException(thrift.INTERNAL_ERROR, dispatcher.MsgInternal)
		}
	}

	classified := dispatcher.Classify(callErr)
	switch classified.Kind {
	case dispatcher.KindNameNotFound:
		return nil, thrift.NewTApplicationException(thrift.UNKNOWN_METHOD, classified.Message)
	case dispatcher.KindBadRequest:
		slog.Warn(fmt.Sprintf("%s - %s: %v", logPrefix, fp.fn.Name, callErr))
		return nil, thrift.NewTApplicationException(thrift.PROTOCOL_ERROR, classified.Message)
	case dispatcher.KindApplicationException:
		slog.Error(fmt.Sprintf("%s - %s raised undeclared %s", logPrefix, fp.fn.Name, classified.Message))
		return nil, thrift.NewTApplicationException(thrift.INTERNAL_ERROR, callErr.Error())
	}
	slog.Error(fmt.Sprintf("%s - %s failed: %v", logPrefix, fp.fn.Name, callErr))
	return nil, thrift.NewTApplicationException(thrift.INTERNAL_ERROR, dispatcher.MsgInternal)
}

// readArgs reads an argument struct into positional values. Absent arguments are nil.
func readArgs(ctx context.Context, in thrift.TProtocol, fn *idl.Function) ([]any, error) {
	values := make([]any, len(fn.Args))
	err := readFields(ctx, in, func(id int16, wt thrift.TType) (bool, error) {
		arg, ok := fn.Args.At(int(id))
		if !ok || ttype(arg.Type) != wt {
			return false, nil
		}
		v, err := readValue(ctx, in, arg.Type)
		if err != nil {
			return true, err
		}
		values[arg.Position-1] = v
		return true, nil
	})
	return values, err
}

func writeException(ctx context.Context, out thrift.TProtocol, name string, seqID int32, x thrift.TApplicationException) error {
	return writeMessage(ctx, out, name, thrift.EXCEPTION, seqID, func() error {
		return x.Write(ctx, out)
	})
}

func writeMessage(ctx context.Context, out thrift.TProtocol, name string, typ thrift.TMessageType, seqID int32, body func() error) error {
	if err := out.WriteMessageBegin(ctx, name, typ, seqID); err != nil {
		return err
	}
	if err := body(); err != nil {
		return err
	}
	if err := out.WriteMessageEnd(ctx); err != nil {
		return err
	}
	return out.Flush(ctx)
}
