package codec

import (
	"fmt"
	"sort"

	"github.com/morezero/idl-bridge/pkg/idl"
)

// Deserialize builds a fresh instance of st from a JSON mapping. Every key must name a
// declared field; nested struct fields are rebuilt recursively with the same strictness.
func Deserialize(m map[string]any, st *idl.StructType) (*idl.Struct, error) {
	inst := idl.NewStruct(st)

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f, ok := st.Field(key)
		if !ok {
			return nil, &UnexpectedKeyError{Struct: st.Name, Key: key}
		}
		v, err := decodeValue(f.Type, m[key], st.Name+"."+key)
		if err != nil {
			return nil, err
		}
		if err := inst.Set(key, v); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// decodeValue turns raw JSON data into the in-memory form of t. Only types that contain
// structs are transformed; everything else is assigned as decoded.
func decodeValue(t *idl.Type, raw any, path string) (any, error) {
	if raw == nil || !t.ContainsStruct() {
		return raw, nil
	}

	switch t.Kind {
	case idl.KindStruct:
		switch v := raw.(type) {
		case *idl.Struct:
			if v.Type() == t.Struct {
				return v, nil
			}
		case map[string]any:
			return Deserialize(v, t.Struct)
		}
	case idl.KindList, idl.KindSet:
		if items, ok := raw.([]any); ok {
			out := make([]any, len(items))
			for i, item := range items {
				v, err := decodeValue(t.Elem, item, fmt.Sprintf("%s[%d]", path, i))
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}
	case idl.KindMap:
		if entries, ok := raw.(map[string]any); ok {
			out := make(map[string]any, len(entries))
			for k, item := range entries {
				v, err := decodeValue(t.Elem, item, path+"."+k)
				if err != nil {
					return nil, err
				}
				out[k] = v
			}
			return out, nil
		}
	}
	return nil, &TypeMismatchError{Path: path, Expected: t.String(), Got: fmt.Sprintf("%T", raw)}
}
