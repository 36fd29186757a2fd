package handler

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	bytesType   = reflect.TypeOf([]byte(nil))
)

// FuncHandler calls a typed Go function with positional arguments, converting decoded
// JSON values to the declared parameter types.
type FuncHandler struct {
	fn       reflect.Value
	origin   string
	withCtx  bool
	params   []reflect.Type
	hasValue bool
	hasErr   bool
}

// NewFunc wraps fn, which must look like func([ctx context.Context,] args...) ([R,] [error]).
func NewFunc(fn any) (*FuncHandler, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%T is not a function", fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("variadic function %s is not supported", t)
	}

	h := &FuncHandler{fn: v, origin: funcName(v)}
	start := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		h.withCtx = true
		start = 1
	}
	for i := start; i < t.NumIn(); i++ {
		h.params = append(h.params, t.In(i))
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			h.hasErr = true
		} else {
			h.hasValue = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("second result of %s must be error", t)
		}
		h.hasValue, h.hasErr = true, true
	default:
		return nil, fmt.Errorf("%s returns too many values", t)
	}
	return h, nil
}

// Func is NewFunc for functions known to be valid; it panics otherwise.
func Func(fn any) *FuncHandler {
	h, err := NewFunc(fn)
	if err != nil {
		panic(err)
	}
	return h
}

// Arity is the number of positional arguments the function takes.
func (h *FuncHandler) Arity() int {
	return len(h.params)
}

// Call converts args and invokes the function.
func (h *FuncHandler) Call(ctx context.Context, args []any) (any, error) {
	if len(args) > len(h.params) {
		return nil, &CoercionError{
			Reason:   ReasonUnexpected,
			Function: h.origin,
			Detail:   fmt.Sprintf("takes %d arguments but %d were given", len(h.params), len(args)),
		}
	}
	if len(args) < len(h.params) {
		return nil, &CoercionError{
			Reason:   ReasonRequired,
			Function: h.origin,
			Detail:   fmt.Sprintf("missing %d required arguments", len(h.params)-len(args)),
		}
	}

	in := make([]reflect.Value, 0, len(h.params)+1)
	if h.withCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, a := range args {
		v, err := convert(a, h.params[i])
		if err != nil {
			return nil, &CoercionError{
				Reason:   ReasonInvalid,
				Function: h.origin,
				Detail:   fmt.Sprintf("argument %d: %v", i+1, err),
			}
		}
		in = append(in, v)
	}

	out := h.fn.Call(in)

	var result any
	var err error
	if h.hasErr {
		if e := out[len(out)-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
	}
	if h.hasValue {
		result = out[0].Interface()
	}
	return result, err
}

// convert fits a decoded value to t. Numbers are narrowed only when the value is exact
// and in range for the target width.
func convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch {
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		return convertNumber(rv, t)
	case rv.Kind() == reflect.String && t.Kind() == reflect.String:
		return rv.Convert(t), nil
	case rv.Kind() == reflect.String && t == bytesType:
		return reflect.ValueOf([]byte(rv.String())), nil
	case (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := convert(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case rv.Kind() == reflect.Map && t.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			kv, err := convertKey(iter.Key(), t.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			ev, err := convert(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%v]: %w", iter.Key(), err)
			}
			out.SetMapIndex(kv, ev)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

// convertKey also accepts the string keys JSON objects are limited to.
func convertKey(k reflect.Value, t reflect.Type) (reflect.Value, error) {
	if k.Kind() == reflect.String && isNumber(t.Kind()) {
		f, err := strconv.ParseFloat(k.String(), 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("key %q is not a number", k.String())
		}
		return convertNumber(reflect.ValueOf(f), t)
	}
	return convert(k.Interface(), t)
}

func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := exactInt(rv)
		if !ok || out.OverflowInt(i) {
			return reflect.Value{}, fmt.Errorf("%v does not fit %s", rv.Interface(), t)
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, ok := exactInt(rv)
		if !ok || i < 0 || out.OverflowUint(uint64(i)) {
			return reflect.Value{}, fmt.Errorf("%v does not fit %s", rv.Interface(), t)
		}
		out.SetUint(uint64(i))
	case reflect.Float32, reflect.Float64:
		f := rv.Convert(reflect.TypeOf(float64(0))).Float()
		if out.OverflowFloat(f) {
			return reflect.Value{}, fmt.Errorf("%v does not fit %s", rv.Interface(), t)
		}
		out.SetFloat(f)
	}
	return out, nil
}

// exactInt returns the integer value of rv when it has no fractional part.
func exactInt(rv reflect.Value) (int64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		return int64(u), u <= math.MaxInt64
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
