package idl

import (
	"errors"
	"testing"
)

func loadExample(t *testing.T) *Schema {
	t.Helper()
	s, err := LoadFile("testdata/example.yaml")
	if err != nil {
		t.Fatalf("idl:document_test - failed to load example: %v", err)
	}
	return s
}

func TestBuild_Example(t *testing.T) {
	s := loadExample(t)

	if s.Name != "example" || s.Version != "1.2.0" {
		t.Errorf("idl:document_test - got %s %s, want example 1.2.0", s.Name, s.Version)
	}

	svc, err := s.Service("ExampleService")
	if err != nil {
		t.Fatalf("idl:document_test - unexpected error: %v", err)
	}
	names := svc.FunctionNames()
	want := []string{"pingPong", "pong", "complex", "multiVarArgument"}
	if len(names) != len(want) {
		t.Fatalf("idl:document_test - functions = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("idl:document_test - function[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	fn, _ := svc.Function("complex")
	arg, ok := fn.ArgSpec().At(1)
	if !ok || arg.Name != "val" || !arg.IsStruct() {
		t.Fatalf("idl:document_test - complex arg 1 = %+v", arg)
	}
	if arg.Type.Struct == nil || arg.Type.Struct.Name != "ContainedStruct" {
		t.Error("idl:document_test - struct reference was not linked")
	}
	if _, ok := fn.ArgSpec().At(2); ok {
		t.Error("idl:document_test - complex should have a single argument")
	}
	if thr, ok := fn.Throw("ExampleException"); !ok || thr.ID != 1 {
		t.Error("idl:document_test - expected ExampleException in slot 1")
	}

	pong, _ := svc.Function("pong")
	if len(pong.Args) != 0 || pong.Returns.Kind != KindVoid {
		t.Errorf("idl:document_test - pong args=%d returns=%s", len(pong.Args), pong.Returns)
	}

	spec, err := s.ArgSpec("ExampleService", "multiVarArgument")
	if err != nil {
		t.Fatalf("idl:document_test - unexpected error: %v", err)
	}
	if a, _ := spec.At(2); a.Name != "val2" {
		t.Errorf("idl:document_test - position 2 = %s, want val2", a.Name)
	}

	exc, err := s.FieldSpec("ExampleException")
	if err != nil || !exc.Exception {
		t.Error("idl:document_test - ExampleException should be an exception type")
	}
}

func TestBuild_Failures(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code string
	}{
		{"no name", `{"structs":[]}`, CodeInvalidDocument},
		{"duplicate type", `{"name":"x","structs":[{"name":"A"}],"exceptions":[{"name":"A"}]}`, CodeDuplicateType},
		{"unknown type", `{"name":"x","structs":[{"name":"A","fields":[{"name":"b","type":"Missing"}]}]}`, CodeUnknownType},
		{"duplicate field", `{"name":"x","structs":[{"name":"A","fields":[{"name":"b","type":"i32"},{"name":"b","type":"i64"}]}]}`, CodeInvalidField},
		{"void field", `{"name":"x","structs":[{"name":"A","fields":[{"name":"b","type":"void"}]}]}`, CodeInvalidField},
		{"gap in args", `{"name":"x","services":[{"name":"S","functions":[{"name":"f","args":[{"id":1,"name":"a","type":"i32"},{"id":3,"name":"b","type":"i32"}]}]}]}`, CodeInvalidArgs},
		{"repeated position", `{"name":"x","services":[{"name":"S","functions":[{"name":"f","args":[{"id":1,"name":"a","type":"i32"},{"id":1,"name":"b","type":"i32"}]}]}]}`, CodeInvalidArgs},
		{"throws non exception", `{"name":"x","structs":[{"name":"A"}],"services":[{"name":"S","functions":[{"name":"f","throws":[{"name":"e","type":"A"}]}]}]}`, CodeInvalidThrows},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.doc), FormatJSON)
			if err != nil {
				t.Fatalf("idl:document_test - parse: %v", err)
			}
			_, err = Build(doc)
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("idl:document_test - expected SchemaError, got %v", err)
			}
			if se.Code != tt.code {
				t.Errorf("idl:document_test - code = %s, want %s (%s)", se.Code, tt.code, se.Message)
			}
		})
	}
}

func TestBuild_ForwardReference(t *testing.T) {
	doc := `{"name":"x","structs":[
		{"name":"Outer","fields":[{"name":"inner","type":"Inner"},{"name":"many","type":"list<Inner>"}]},
		{"name":"Inner","fields":[{"name":"v","type":"i64"}]}
	]}`
	d, _ := ParseDocument([]byte(doc), FormatJSON)
	s, err := Build(d)
	if err != nil {
		t.Fatalf("idl:document_test - unexpected error: %v", err)
	}
	outer, _ := s.Struct("Outer")
	many, _ := outer.Field("many")
	if many.ID != 2 {
		t.Errorf("idl:document_test - implicit id = %d, want 2", many.ID)
	}
	if many.Type.Elem.Struct == nil {
		t.Error("idl:document_test - list element struct not linked")
	}
}

func TestDetectFormat(t *testing.T) {
	if DetectFormat([]byte("  {\"name\":1}")) != FormatJSON {
		t.Error("idl:document_test - expected json")
	}
	if DetectFormat([]byte("name: x")) != FormatYAML {
		t.Error("idl:document_test - expected yaml")
	}
	if FormatFromPath("a/b.YML") != FormatYAML || FormatFromPath("a.json") != FormatJSON {
		t.Error("idl:document_test - FormatFromPath mismatch")
	}
}
