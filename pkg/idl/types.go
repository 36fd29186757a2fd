// Package idl holds the in-memory model of an IDL contract: structs, exceptions, services and
// their functions, plus the loader that turns descriptor documents into a validated Schema.
package idl

import (
	"fmt"
	"strings"
)

// Kind classifies a Type.
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindByte
	KindI16
	KindI32
	KindI64
	KindDouble
	KindString
	KindBinary
	KindStruct
	KindList
	KindSet
	KindMap
)

var kindNames = map[Kind]string{
	KindVoid:   "void",
	KindBool:   "bool",
	KindByte:   "byte",
	KindI16:    "i16",
	KindI32:    "i32",
	KindI64:    "i64",
	KindDouble: "double",
	KindString: "string",
	KindBinary: "binary",
	KindStruct: "struct",
	KindList:   "list",
	KindSet:    "set",
	KindMap:    "map",
}

var baseKinds = map[string]Kind{
	"void":   KindVoid,
	"bool":   KindBool,
	"byte":   KindByte,
	"i8":     KindByte,
	"i16":    KindI16,
	"i32":    KindI32,
	"i64":    KindI64,
	"double": KindDouble,
	"string": KindString,
	"binary": KindBinary,
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Type describes the shape of a field, argument or return value.
type Type struct {
	Kind Kind
	// Name is the struct or exception name when Kind is KindStruct.
	Name string
	// Elem is the element type of a list or set, and the value type of a map.
	Elem *Type
	// Key is the key type of a map.
	Key *Type
	// Struct is filled in when the schema is built.
	Struct *StructType
}

// IsStruct reports whether values of this type are struct instances.
func (t *Type) IsStruct() bool {
	return t != nil && t.Kind == KindStruct
}

// IsContainer reports whether t is a list, set or map.
func (t *Type) IsContainer() bool {
	return t != nil && (t.Kind == KindList || t.Kind == KindSet || t.Kind == KindMap)
}

// ContainsStruct reports whether a struct appears anywhere inside t.
func (t *Type) ContainsStruct() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindStruct:
		return true
	case KindList, KindSet:
		return t.Elem.ContainsStruct()
	case KindMap:
		return t.Key.ContainsStruct() || t.Elem.ContainsStruct()
	}
	return false
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case KindStruct:
		return t.Name
	case KindList:
		return "list<" + t.Elem.String() + ">"
	case KindSet:
		return "set<" + t.Elem.String() + ">"
	case KindMap:
		return "map<" + t.Key.String() + "," + t.Elem.String() + ">"
	}
	return t.Kind.String()
}

// ParseType parses a type expression such as "i32", "list<InnerStruct>" or
// "map<string,set<i64>>". Struct names are left unresolved.
func ParseType(expr string) (*Type, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("idl:types - empty type expression")
	}
	if k, ok := baseKinds[expr]; ok {
		return &Type{Kind: k}, nil
	}

	open := strings.IndexByte(expr, '<')
	if open < 0 {
		if !isIdentifier(expr) {
			return nil, fmt.Errorf("idl:types - invalid type name %q", expr)
		}
		return &Type{Kind: KindStruct, Name: expr}, nil
	}
	if !strings.HasSuffix(expr, ">") {
		return nil, fmt.Errorf("idl:types - unterminated type expression %q", expr)
	}
	head := strings.TrimSpace(expr[:open])
	inner := expr[open+1 : len(expr)-1]

	switch head {
	case "list", "set":
		elem, err := ParseType(inner)
		if err != nil {
			return nil, err
		}
		kind := KindList
		if head == "set" {
			kind = KindSet
		}
		return &Type{Kind: kind, Elem: elem}, nil
	case "map":
		keyExpr, valExpr, ok := splitTopLevel(inner)
		if !ok {
			return nil, fmt.Errorf("idl:types - map needs key and value types in %q", expr)
		}
		key, err := ParseType(keyExpr)
		if err != nil {
			return nil, err
		}
		val, err := ParseType(valExpr)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindMap, Key: key, Elem: val}, nil
	}
	return nil, fmt.Errorf("idl:types - unknown container %q", head)
}

// splitTopLevel splits "K,V" on the first comma not nested in angle brackets.
func splitTopLevel(s string) (string, string, bool) {
	depth := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_' || r == '.':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
