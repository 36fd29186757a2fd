package idl

import (
	"fmt"
	"strings"
)

// Struct is an instance of a declared struct or exception type.
// Unset fields read as their declared default, or nil.
type Struct struct {
	typ    *StructType
	values map[string]any
}

// NewStruct allocates an empty instance of t.
func NewStruct(t *StructType) *Struct {
	return &Struct{typ: t, values: make(map[string]any, len(t.Fields))}
}

// Type returns the instance's struct type.
func (s *Struct) Type() *StructType {
	return s.typ
}

// Get returns the value of a field.
func (s *Struct) Get(name string) any {
	if v, ok := s.values[name]; ok {
		return v
	}
	if f, ok := s.typ.Field(name); ok {
		return f.Default
	}
	return nil
}

// IsSet reports whether the field was explicitly assigned.
func (s *Struct) IsSet(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Set assigns a field. Unknown names are rejected.
func (s *Struct) Set(name string, v any) error {
	if _, ok := s.typ.Field(name); !ok {
		return fmt.Errorf("idl:struct - %s has no field %q", s.typ.Name, name)
	}
	s.values[name] = v
	return nil
}

// Unset clears an assigned field.
func (s *Struct) Unset(name string) {
	delete(s.values, name)
}

func (s *Struct) String() string {
	var b strings.Builder
	b.WriteString(s.typ.Name)
	b.WriteByte('(')
	for i, f := range s.typ.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", f.Name, s.Get(f.Name))
	}
	b.WriteByte(')')
	return b.String()
}

// Exception is a declared IDL exception raised by a handler.
type Exception struct {
	Value *Struct
}

// Raise wraps an exception instance so a handler can return it as an error.
func Raise(s *Struct) error {
	return &Exception{Value: s}
}

// TypeName is the declared name of the exception type.
func (e *Exception) TypeName() string {
	return e.Value.Type().Name
}

func (e *Exception) Error() string {
	return e.Value.String()
}
