// Package codec converts between IDL struct instances and plain JSON-shaped values, and
// rebuilds positional argument lists from request bodies.
package codec

import (
	"fmt"
	"reflect"

	"github.com/morezero/idl-bridge/pkg/idl"
)

// Serialize converts v into JSON-shaped data. Struct instances become mappings of every
// declared field, mappings and sequences are walked recursively, and anything else is
// returned unchanged. The input is never modified.
func Serialize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *idl.Struct:
		if x == nil {
			return nil
		}
		fields := x.Type().Fields
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			out[f.Name] = Serialize(x.Get(f.Name))
		}
		return out
	case *idl.Exception:
		if x == nil {
			return nil
		}
		return Serialize(x.Value)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Serialize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Serialize(val)
		}
		return out
	case []byte, string, bool, float64, float32, int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[mapKey(iter.Key())] = Serialize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Serialize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

// mapKey renders a mapping key as a string so the output stays JSON encodable.
func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}
