package idl

import (
	"fmt"
	"sort"
)

// Schema error codes.
const (
	CodeInvalidDocument = "INVALID_DOCUMENT"
	CodeDuplicateType   = "DUPLICATE_TYPE"
	CodeUnknownType     = "UNKNOWN_TYPE"
	CodeInvalidField    = "INVALID_FIELD"
	CodeInvalidArgs     = "INVALID_ARGS"
	CodeInvalidThrows   = "INVALID_THROWS"
	CodeVersionMismatch = "VERSION_MISMATCH"
	CodeNotFound        = "NOT_FOUND"
)

// SchemaError is a structured error raised while building or querying a schema.
type SchemaError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SchemaError) Error() string {
	return e.Code + ": " + e.Message
}

func schemaErrorf(code, format string, args ...any) *SchemaError {
	return &SchemaError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Field is one declared member of a struct or exception.
type Field struct {
	ID       int16
	Name     string
	Type     *Type
	Required bool
	Default  any
}

// StructType is the field spec of a struct or exception.
type StructType struct {
	Name      string
	Exception bool
	Fields    []*Field

	byName map[string]*Field
	byID   map[int16]*Field
}

// Field looks up a field by name.
func (s *StructType) Field(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// FieldByID looks up a field by its wire id.
func (s *StructType) FieldByID(id int16) (*Field, bool) {
	f, ok := s.byID[id]
	return f, ok
}

func (s *StructType) index() error {
	s.byName = make(map[string]*Field, len(s.Fields))
	s.byID = make(map[int16]*Field, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return schemaErrorf(CodeInvalidField, "%s has a field without a name", s.Name)
		}
		if _, dup := s.byName[f.Name]; dup {
			return schemaErrorf(CodeInvalidField, "%s declares field %q twice", s.Name, f.Name)
		}
		if _, dup := s.byID[f.ID]; dup {
			return schemaErrorf(CodeInvalidField, "%s reuses field id %d", s.Name, f.ID)
		}
		s.byName[f.Name] = f
		s.byID[f.ID] = f
	}
	return nil
}

// Arg is one positional argument of a function. Positions start at 1.
type Arg struct {
	Position int
	Name     string
	Type     *Type
}

// IsStruct reports whether the argument carries a struct instance.
func (a *Arg) IsStruct() bool {
	return a.Type.IsStruct()
}

// ArgSpec is the ordered argument list of a function.
type ArgSpec []*Arg

// At returns the argument at a 1-indexed position.
func (s ArgSpec) At(pos int) (*Arg, bool) {
	if pos < 1 || pos > len(s) {
		return nil, false
	}
	a := s[pos-1]
	if a.Position != pos {
		return nil, false
	}
	return a, true
}

// Function is a callable declared by a service.
type Function struct {
	Name    string
	Args    ArgSpec
	Returns *Type
	Throws  []*Field
	Oneway  bool
	Doc     string
}

// ArgSpec returns the function's argument spec.
func (f *Function) ArgSpec() ArgSpec {
	return f.Args
}

// Throw finds the declared exception slot for an exception type name.
func (f *Function) Throw(typeName string) (*Field, bool) {
	for _, t := range f.Throws {
		if t.Type.Name == typeName {
			return t, true
		}
	}
	return nil, false
}

// Service groups the functions exposed together.
type Service struct {
	Name      string
	Functions []*Function

	byName map[string]*Function
}

// Function looks up a function by name.
func (s *Service) Function(name string) (*Function, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// FunctionNames returns function names in declaration order.
func (s *Service) FunctionNames() []string {
	names := make([]string, 0, len(s.Functions))
	for _, f := range s.Functions {
		names = append(names, f.Name)
	}
	return names
}

// Schema is a validated, immutable IDL contract.
type Schema struct {
	Name    string
	Version string

	structs  map[string]*StructType
	services map[string]*Service
}

// Struct looks up a struct or exception type.
func (s *Schema) Struct(name string) (*StructType, bool) {
	st, ok := s.structs[name]
	return st, ok
}

// FieldSpec returns the field spec of the named struct.
func (s *Schema) FieldSpec(structName string) (*StructType, error) {
	st, ok := s.structs[structName]
	if !ok {
		return nil, schemaErrorf(CodeNotFound, "struct %q is not declared", structName)
	}
	return st, nil
}

// Service looks up a service by name.
func (s *Schema) Service(name string) (*Service, error) {
	svc, ok := s.services[name]
	if !ok {
		return nil, schemaErrorf(CodeNotFound, "service %q is not declared", name)
	}
	return svc, nil
}

// Services returns every service sorted by name.
func (s *Schema) Services() []*Service {
	out := make([]*Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ArgSpec returns the argument spec of service.function.
func (s *Schema) ArgSpec(service, function string) (ArgSpec, error) {
	svc, err := s.Service(service)
	if err != nil {
		return nil, err
	}
	fn, ok := svc.Function(function)
	if !ok {
		return nil, schemaErrorf(CodeNotFound, "function %q is not declared by %s", function, service)
	}
	return fn.Args, nil
}

// NewStruct builds an instance of the named struct with the given field values.
func (s *Schema) NewStruct(name string, values map[string]any) (*Struct, error) {
	st, err := s.FieldSpec(name)
	if err != nil {
		return nil, err
	}
	inst := NewStruct(st)
	for k, v := range values {
		if err := inst.Set(k, v); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// MustStruct is NewStruct for values known to be valid; it panics otherwise.
func (s *Schema) MustStruct(name string, values map[string]any) *Struct {
	inst, err := s.NewStruct(name, values)
	if err != nil {
		panic(err)
	}
	return inst
}
