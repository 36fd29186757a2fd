package idl

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format is the encoding of a schema document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension. Unknown extensions are read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// DetectFormat guesses the format of raw document bytes.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// Document is the on-disk descriptor of an IDL contract.
type Document struct {
	Name       string       `json:"name" yaml:"name"`
	Version    string       `json:"version,omitempty" yaml:"version,omitempty"`
	Structs    []StructDoc  `json:"structs,omitempty" yaml:"structs,omitempty"`
	Exceptions []StructDoc  `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
	Services   []ServiceDoc `json:"services,omitempty" yaml:"services,omitempty"`
}

// StructDoc declares a struct or exception.
type StructDoc struct {
	Name   string     `json:"name" yaml:"name"`
	Fields []FieldDoc `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// FieldDoc declares a field, argument or throws slot. A zero ID means "index + 1".
type FieldDoc struct {
	ID       int16  `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// ServiceDoc declares a service.
type ServiceDoc struct {
	Name      string        `json:"name" yaml:"name"`
	Functions []FunctionDoc `json:"functions,omitempty" yaml:"functions,omitempty"`
}

// FunctionDoc declares a service function.
type FunctionDoc struct {
	Name    string     `json:"name" yaml:"name"`
	Doc     string     `json:"doc,omitempty" yaml:"doc,omitempty"`
	Args    []FieldDoc `json:"args,omitempty" yaml:"args,omitempty"`
	Returns string     `json:"returns,omitempty" yaml:"returns,omitempty"`
	Throws  []FieldDoc `json:"throws,omitempty" yaml:"throws,omitempty"`
	Oneway  bool       `json:"oneway,omitempty" yaml:"oneway,omitempty"`
}

// ParseDocument decodes a schema document.
func ParseDocument(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("idl:document - failed to parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("idl:document - failed to parse json: %w", err)
		}
	}
	return &doc, nil
}

// Build validates a document and produces a Schema.
func Build(doc *Document) (*Schema, error) {
	if doc == nil || doc.Name == "" {
		return nil, schemaErrorf(CodeInvalidDocument, "document has no name")
	}
	s := &Schema{
		Name:     doc.Name,
		Version:  doc.Version,
		structs:  make(map[string]*StructType),
		services: make(map[string]*Service),
	}

	// Declare every type first so fields can reference each other in any order.
	declare := func(d StructDoc, exception bool) error {
		if d.Name == "" {
			return schemaErrorf(CodeInvalidDocument, "struct without a name")
		}
		if _, dup := s.structs[d.Name]; dup {
			return schemaErrorf(CodeDuplicateType, "type %q declared twice", d.Name)
		}
		s.structs[d.Name] = &StructType{Name: d.Name, Exception: exception}
		return nil
	}
	for _, d := range doc.Structs {
		if err := declare(d, false); err != nil {
			return nil, err
		}
	}
	for _, d := range doc.Exceptions {
		if err := declare(d, true); err != nil {
			return nil, err
		}
	}

	fill := func(d StructDoc) error {
		st := s.structs[d.Name]
		for i, fd := range d.Fields {
			f, err := s.buildField(d.Name, i, fd)
			if err != nil {
				return err
			}
			st.Fields = append(st.Fields, f)
		}
		return st.index()
	}
	for _, d := range doc.Structs {
		if err := fill(d); err != nil {
			return nil, err
		}
	}
	for _, d := range doc.Exceptions {
		if err := fill(d); err != nil {
			return nil, err
		}
	}

	for _, sd := range doc.Services {
		svc, err := s.buildService(sd)
		if err != nil {
			return nil, err
		}
		s.services[svc.Name] = svc
	}
	return s, nil
}

func (s *Schema) buildField(owner string, index int, fd FieldDoc) (*Field, error) {
	t, err := s.resolveType(fd.Type)
	if err != nil {
		return nil, schemaErrorf(CodeUnknownType, "%s.%s: %v", owner, fd.Name, err)
	}
	if t.Kind == KindVoid {
		return nil, schemaErrorf(CodeInvalidField, "%s.%s cannot be void", owner, fd.Name)
	}
	id := fd.ID
	if id == 0 {
		id = int16(index + 1)
	}
	return &Field{ID: id, Name: fd.Name, Type: t, Required: fd.Required, Default: fd.Default}, nil
}

func (s *Schema) buildService(sd ServiceDoc) (*Service, error) {
	if sd.Name == "" {
		return nil, schemaErrorf(CodeInvalidDocument, "service without a name")
	}
	if _, dup := s.services[sd.Name]; dup {
		return nil, schemaErrorf(CodeDuplicateType, "service %q declared twice", sd.Name)
	}
	svc := &Service{Name: sd.Name, byName: make(map[string]*Function)}
	for _, fd := range sd.Functions {
		if fd.Name == "" {
			return nil, schemaErrorf(CodeInvalidDocument, "%s has a function without a name", sd.Name)
		}
		if _, dup := svc.byName[fd.Name]; dup {
			return nil, schemaErrorf(CodeDuplicateType, "%s declares %q twice", sd.Name, fd.Name)
		}
		fn, err := s.buildFunction(sd.Name, fd)
		if err != nil {
			return nil, err
		}
		svc.Functions = append(svc.Functions, fn)
		svc.byName[fn.Name] = fn
	}
	return svc, nil
}

func (s *Schema) buildFunction(service string, fd FunctionDoc) (*Function, error) {
	owner := service + "." + fd.Name
	fn := &Function{Name: fd.Name, Oneway: fd.Oneway, Doc: fd.Doc}

	fn.Returns = &Type{Kind: KindVoid}
	if fd.Returns != "" {
		t, err := s.resolveType(fd.Returns)
		if err != nil {
			return nil, schemaErrorf(CodeUnknownType, "%s returns: %v", owner, err)
		}
		fn.Returns = t
	}
	if fn.Oneway && (fn.Returns.Kind != KindVoid || len(fd.Throws) > 0) {
		return nil, schemaErrorf(CodeInvalidDocument, "%s is oneway and must return void without throws", owner)
	}

	fn.Args = make(ArgSpec, len(fd.Args))
	seen := make(map[string]bool, len(fd.Args))
	for i, ad := range fd.Args {
		f, err := s.buildField(owner, i, ad)
		if err != nil {
			return nil, err
		}
		pos := int(f.ID)
		if pos < 1 || pos > len(fd.Args) || fn.Args[pos-1] != nil {
			return nil, schemaErrorf(CodeInvalidArgs, "%s argument positions must be unique and contiguous from 1", owner)
		}
		if seen[f.Name] {
			return nil, schemaErrorf(CodeInvalidArgs, "%s declares argument %q twice", owner, f.Name)
		}
		seen[f.Name] = true
		fn.Args[pos-1] = &Arg{Position: pos, Name: f.Name, Type: f.Type}
	}

	ids := make(map[int16]bool, len(fd.Throws))
	for i, td := range fd.Throws {
		f, err := s.buildField(owner, i, td)
		if err != nil {
			return nil, err
		}
		if !f.Type.IsStruct() || !f.Type.Struct.Exception {
			return nil, schemaErrorf(CodeInvalidThrows, "%s throws %s which is not an exception", owner, f.Type)
		}
		if f.ID == 0 || ids[f.ID] {
			return nil, schemaErrorf(CodeInvalidThrows, "%s throws slot %d is invalid", owner, f.ID)
		}
		ids[f.ID] = true
		fn.Throws = append(fn.Throws, f)
	}
	return fn, nil
}

// resolveType parses a type expression and links struct references.
func (s *Schema) resolveType(expr string) (*Type, error) {
	t, err := ParseType(expr)
	if err != nil {
		return nil, err
	}
	if err := s.link(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Schema) link(t *Type) error {
	switch t.Kind {
	case KindStruct:
		st, ok := s.structs[t.Name]
		if !ok {
			return fmt.Errorf("unknown type %q", t.Name)
		}
		t.Struct = st
	case KindList, KindSet:
		return s.link(t.Elem)
	case KindMap:
		if err := s.link(t.Key); err != nil {
			return err
		}
		return s.link(t.Elem)
	}
	return nil
}
