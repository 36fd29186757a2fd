package thriftrpc

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/morezero/idl-bridge/pkg/codec"
	"github.com/morezero/idl-bridge/pkg/idl"
)

// wireStruct is a struct whose field values are already checked against their types,
// so writing it can only fail on I/O.
type wireStruct struct {
	name   string
	fields []wireField
}

type wireField struct {
	name  string
	id    int16
	typ   *idl.Type
	value any
}

type wireEntry struct {
	key, value any
}

// ttype maps an IDL type to its wire type.
func ttype(t *idl.Type) thrift.TType {
	switch t.Kind {
	case idl.KindBool:
		return thrift.BOOL
	case idl.KindByte:
		return thrift.BYTE
	case idl.KindI16:
		return thrift.I16
	case idl.KindI32:
		return thrift.I32
	case idl.KindI64:
		return thrift.I64
	case idl.KindDouble:
		return thrift.DOUBLE
	case idl.KindString, idl.KindBinary:
		return thrift.STRING
	case idl.KindStruct:
		return thrift.STRUCT
	case idl.KindList:
		return thrift.LIST
	case idl.KindSet:
		return thrift.SET
	case idl.KindMap:
		return thrift.MAP
	}
	return thrift.VOID
}

// isNil reports whether v is nil or a nil pointer held in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// normalize checks v against t and converts it to the form write expects.
func normalize(t *idl.Type, v any, path string) (any, error) {
	if isNil(v) {
		return nil, fmt.Errorf("%s: null is not a valid %s", path, t)
	}
	switch t.Kind {
	case idl.KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case idl.KindByte:
		n, err := toInt(v, math.MinInt8, math.MaxInt8, path)
		return int8(n), err
	case idl.KindI16:
		n, err := toInt(v, math.MinInt16, math.MaxInt16, path)
		return int16(n), err
	case idl.KindI32:
		n, err := toInt(v, math.MinInt32, math.MaxInt32, path)
		return int32(n), err
	case idl.KindI64:
		return toInt(v, math.MinInt64, math.MaxInt64, path)
	case idl.KindDouble:
		rv := reflect.ValueOf(v)
		if isNumber(rv.Kind()) {
			return rv.Convert(reflect.TypeOf(float64(0))).Float(), nil
		}
	case idl.KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case idl.KindBinary:
		switch s := v.(type) {
		case []byte:
			return s, nil
		case string:
			return []byte(s), nil
		}
	case idl.KindStruct:
		return normalizeStruct(t.Struct, v, path)
	case idl.KindList, idl.KindSet:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			out := make([]any, rv.Len())
			for i := range out {
				ev, err := normalize(t.Elem, rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
				if err != nil {
					return nil, err
				}
				out[i] = ev
			}
			return out, nil
		}
	case idl.KindMap:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Map {
			out := make([]wireEntry, 0, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				k, err := normalize(t.Key, mapKey(t.Key, iter.Key().Interface()), path+".key")
				if err != nil {
					return nil, err
				}
				ev, err := normalize(t.Elem, iter.Value().Interface(), fmt.Sprintf("%s[%v]", path, iter.Key().Interface()))
				if err != nil {
					return nil, err
				}
				out = append(out, wireEntry{key: k, value: ev})
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%s: cannot encode %T as %s", path, v, t)
}

// mapKey turns the string keys of JSON objects back into numbers for numeric key types.
func mapKey(t *idl.Type, k any) any {
	s, ok := k.(string)
	if !ok {
		return k
	}
	switch t.Kind {
	case idl.KindByte, idl.KindI16, idl.KindI32, idl.KindI64:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case idl.KindDouble:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return k
}

// normalizeStruct omits unset fields. Required fields are left to the handlers.
func normalizeStruct(st *idl.StructType, v any, path string) (*wireStruct, error) {
	var inst *idl.Struct
	switch x := v.(type) {
	case *idl.Struct:
		inst = x
	case *idl.Exception:
		inst = x.Value
	case map[string]any:
		var err error
		if inst, err = codec.Deserialize(x, st); err != nil {
			return nil, err
		}
	}
	if inst == nil || inst.Type() != st {
		return nil, fmt.Errorf("%s: cannot encode %T as %s", path, v, st.Name)
	}

	ws := &wireStruct{name: st.Name}
	for _, f := range st.Fields {
		fv := inst.Get(f.Name)
		if fv == nil {
			continue
		}
		nv, err := normalize(f.Type, fv, path+"."+f.Name)
		if err != nil {
			return nil, err
		}
		ws.fields = append(ws.fields, wireField{name: f.Name, id: f.ID, typ: f.Type, value: nv})
	}
	return ws, nil
}

func toInt(v any, lo, hi int64, path string) (int64, error) {
	rv := reflect.ValueOf(v)
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%s: %d is out of range", path, u)
		}
		n = int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("%s: %v is not an integer", path, v)
		}
		n = int64(f)
	default:
		return 0, fmt.Errorf("%s: cannot encode %T as an integer", path, v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s: %d is out of range [%d, %d]", path, n, lo, hi)
	}
	return n, nil
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

// writeValue writes a normalized value.
func writeValue(ctx context.Context, p thrift.TProtocol, t *idl.Type, v any) error {
	switch t.Kind {
	case idl.KindBool:
		return p.WriteBool(ctx, v.(bool))
	case idl.KindByte:
		return p.WriteByte(ctx, v.(int8))
	case idl.KindI16:
		return p.WriteI16(ctx, v.(int16))
	case idl.KindI32:
		return p.WriteI32(ctx, v.(int32))
	case idl.KindI64:
		return p.WriteI64(ctx, v.(int64))
	case idl.KindDouble:
		return p.WriteDouble(ctx, v.(float64))
	case idl.KindString:
		return p.WriteString(ctx, v.(string))
	case idl.KindBinary:
		return p.WriteBinary(ctx, v.([]byte))
	case idl.KindStruct:
		return writeStruct(ctx, p, v.(*wireStruct))
	case idl.KindList, idl.KindSet:
		items := v.([]any)
		var err error
		if t.Kind == idl.KindList {
			err = p.WriteListBegin(ctx, ttype(t.Elem), len(items))
		} else {
			err = p.WriteSetBegin(ctx, ttype(t.Elem), len(items))
		}
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := writeValue(ctx, p, t.Elem, item); err != nil {
				return err
			}
		}
		if t.Kind == idl.KindList {
			return p.WriteListEnd(ctx)
		}
		return p.WriteSetEnd(ctx)
	case idl.KindMap:
		entries := v.([]wireEntry)
		if err := p.WriteMapBegin(ctx, ttype(t.Key), ttype(t.Elem), len(entries)); err != nil {
			return err
		}
		for _, e := range entries {
			if err := writeValue(ctx, p, t.Key, e.key); err != nil {
				return err
			}
			if err := writeValue(ctx, p, t.Elem, e.value); err != nil {
				return err
			}
		}
		return p.WriteMapEnd(ctx)
	}
	return fmt.Errorf("thriftrpc:values - cannot write %s", t)
}

func writeStruct(ctx context.Context, p thrift.TProtocol, ws *wireStruct) error {
	if err := p.WriteStructBegin(ctx, ws.name); err != nil {
		return err
	}
	for _, f := range ws.fields {
		if err := p.WriteFieldBegin(ctx, f.name, ttype(f.typ), f.id); err != nil {
			return err
		}
		if err := writeValue(ctx, p, f.typ, f.value); err != nil {
			return err
		}
		if err := p.WriteFieldEnd(ctx); err != nil {
			return err
		}
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

// readValue reads a value of type t. Lists and sets become []any, maps with string keys
// become map[string]any and other maps map[any]any.
func readValue(ctx context.Context, p thrift.TProtocol, t *idl.Type) (any, error) {
	switch t.Kind {
	case idl.KindBool:
		return p.ReadBool(ctx)
	case idl.KindByte:
		return p.ReadByte(ctx)
	case idl.KindI16:
		return p.ReadI16(ctx)
	case idl.KindI32:
		return p.ReadI32(ctx)
	case idl.KindI64:
		return p.ReadI64(ctx)
	case idl.KindDouble:
		return p.ReadDouble(ctx)
	case idl.KindString:
		return p.ReadString(ctx)
	case idl.KindBinary:
		return p.ReadBinary(ctx)
	case idl.KindStruct:
		return readStruct(ctx, p, t.Struct)
	case idl.KindList, idl.KindSet:
		var size int
		var err error
		if t.Kind == idl.KindList {
			_, size, err = p.ReadListBegin(ctx)
		} else {
			_, size, err = p.ReadSetBegin(ctx)
		}
		if err != nil {
			return nil, err
		}
		items := make([]any, 0, size)
		for i := 0; i < size; i++ {
			item, err := readValue(ctx, p, t.Elem)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if t.Kind == idl.KindList {
			err = p.ReadListEnd(ctx)
		} else {
			err = p.ReadSetEnd(ctx)
		}
		return items, err
	case idl.KindMap:
		_, _, size, err := p.ReadMapBegin(ctx)
		if err != nil {
			return nil, err
		}
		stringKeys := t.Key.Kind == idl.KindString
		strMap := make(map[string]any, size)
		anyMap := make(map[any]any, size)
		for i := 0; i < size; i++ {
			k, err := readValue(ctx, p, t.Key)
			if err != nil {
				return nil, err
			}
			v, err := readValue(ctx, p, t.Elem)
			if err != nil {
				return nil, err
			}
			switch key := k.(type) {
			case string:
				strMap[key] = v
			case []byte:
				anyMap[string(key)] = v
			case []any:
				return nil, fmt.Errorf("thriftrpc:values - %s keys are not hashable", t.Key)
			default:
				anyMap[key] = v
			}
		}
		if err := p.ReadMapEnd(ctx); err != nil {
			return nil, err
		}
		if stringKeys {
			return strMap, nil
		}
		return anyMap, nil
	}
	return nil, fmt.Errorf("thriftrpc:values - cannot read %s", t)
}

// readStruct reads an instance of st. Unknown ids and mismatched wire types are skipped.
func readStruct(ctx context.Context, p thrift.TProtocol, st *idl.StructType) (*idl.Struct, error) {
	inst := idl.NewStruct(st)
	err := readFields(ctx, p, func(id int16, wt thrift.TType) (bool, error) {
		f, ok := st.FieldByID(id)
		if !ok || ttype(f.Type) != wt {
			return false, nil
		}
		v, err := readValue(ctx, p, f.Type)
		if err != nil {
			return true, err
		}
		return true, inst.Set(f.Name, v)
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// readFields walks a struct on the wire. read reports whether it consumed the field;
// unconsumed fields are skipped.
func readFields(ctx context.Context, p thrift.TProtocol, read func(id int16, wt thrift.TType) (bool, error)) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, wt, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if wt == thrift.STOP {
			break
		}
		consumed, err := read(id, wt)
		if err != nil {
			return err
		}
		if !consumed {
			if err := p.Skip(ctx, wt); err != nil {
				return err
			}
		}
		if err := p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}
