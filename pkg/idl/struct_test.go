package idl

import (
	"errors"
	"testing"
)

func TestStruct_GetSet(t *testing.T) {
	s := loadExample(t)

	c, err := s.NewStruct("ContainedStruct", map[string]any{"tags": []any{"a"}})
	if err != nil {
		t.Fatalf("idl:struct_test - unexpected error: %v", err)
	}
	if c.IsSet("some_string") {
		t.Error("idl:struct_test - some_string should be unset")
	}
	if got := c.Get("some_string"); got != "" {
		t.Errorf("idl:struct_test - default = %v, want empty string", got)
	}
	if got := c.Get("innerStruct"); got != nil {
		t.Errorf("idl:struct_test - unset struct field = %v, want nil", got)
	}
	if err := c.Set("nope", 1); err == nil {
		t.Error("idl:struct_test - expected error for unknown field")
	}

	inner := s.MustStruct("InnerStruct", map[string]any{"val": int32(234)})
	if err := c.Set("innerStruct", inner); err != nil {
		t.Fatalf("idl:struct_test - unexpected error: %v", err)
	}
	if c.Get("innerStruct") != inner {
		t.Error("idl:struct_test - expected nested instance")
	}
	c.Unset("tags")
	if c.IsSet("tags") {
		t.Error("idl:struct_test - tags should be unset")
	}

	if got := inner.String(); got != "InnerStruct(val=234)" {
		t.Errorf("idl:struct_test - String() = %q", got)
	}
}

func TestRaise(t *testing.T) {
	s := loadExample(t)
	err := Raise(s.MustStruct("ExampleException", map[string]any{"error": "Woah"}))

	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("idl:struct_test - expected *Exception, got %T", err)
	}
	if exc.TypeName() != "ExampleException" {
		t.Errorf("idl:struct_test - TypeName = %s", exc.TypeName())
	}
	if err.Error() != "ExampleException(error=Woah)" {
		t.Errorf("idl:struct_test - Error() = %q", err.Error())
	}
}
