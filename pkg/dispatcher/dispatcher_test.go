package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/idl-bridge/pkg/handler"
	"github.com/morezero/idl-bridge/pkg/idl"
)

const testDoc = `{
	"name": "dispatch",
	"structs": [
		{"name": "InnerStruct", "fields": [{"id": 1, "name": "val", "type": "i32"}]},
		{"name": "ContainedStruct", "fields": [
			{"id": 1, "name": "innerStruct", "type": "InnerStruct"},
			{"id": 2, "name": "some_string", "type": "string"}
		]}
	],
	"exceptions": [{"name": "ExampleException", "fields": [{"id": 1, "name": "error", "type": "string"}]}],
	"services": [{"name": "ExampleService", "functions": [
		{"name": "pingPong", "args": [{"id": 1, "name": "val", "type": "i32"}], "returns": "bool"},
		{"name": "pong"},
		{"name": "complex", "args": [{"id": 1, "name": "val", "type": "ContainedStruct"}], "returns": "ContainedStruct",
		 "throws": [{"id": 1, "name": "exc", "type": "ExampleException"}]},
		{"name": "multiVarArgument", "args": [{"id": 1, "name": "val1", "type": "i32"}, {"id": 2, "name": "val2", "type": "i32"}], "returns": "bool"},
		{"name": "crash"},
		{"name": "fails"},
		{"name": "leaks"},
		{"name": "tooFew", "args": [{"id": 1, "name": "val1", "type": "i32"}], "returns": "bool"},
		{"name": "tooMany", "args": [{"id": 1, "name": "val1", "type": "i32"}, {"id": 2, "name": "val2", "type": "i32"}], "returns": "bool"},
		{"name": "unbound"}
	]}]
}`

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	doc, err := idl.ParseDocument([]byte(testDoc), idl.FormatJSON)
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - parse: %v", err)
	}
	schema, err := idl.Build(doc)
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - build: %v", err)
	}

	reg := handler.NewRegistry(handler.NewRegistryParams{})
	must := func(err error) {
		if err != nil {
			t.Fatalf("dispatcher:dispatcher_test - register: %v", err)
		}
	}
	must(reg.RegisterFunc("pingPong", func(val int32) bool { return val == 5 }))
	must(reg.RegisterFunc("pong", func() {}))
	must(reg.RegisterFunc("complex", func(val *idl.Struct) (*idl.Struct, error) {
		inner, _ := val.Get("innerStruct").(*idl.Struct)
		if inner == nil || inner.Get("val") != float64(1) {
			return nil, idl.Raise(schema.MustStruct("ExampleException", map[string]any{"error": "Woah"}))
		}
		return schema.MustStruct("ContainedStruct", map[string]any{
			"innerStruct": schema.MustStruct("InnerStruct", map[string]any{"val": 234}),
			"some_string": "Hello World",
		}), nil
	}))
	must(reg.RegisterFunc("multiVarArgument", func(a, b int32) bool { return a == b }))
	must(reg.RegisterFunc("crash", func() { panic("kaboom") }))
	must(reg.RegisterFunc("fails", func() error { return errors.New("db down") }))
	must(reg.RegisterFunc("leaks", func() error {
		return idl.Raise(schema.MustStruct("ExampleException", map[string]any{"error": "x"}))
	}))
	must(reg.RegisterFunc("tooFew", func(a, b int32) bool { return a == b }))
	must(reg.RegisterFunc("tooMany", func(a int32) bool { return a == 0 }))

	d, err := NewDispatcher(NewDispatcherParams{Schema: schema, Service: "ExampleService", Registry: reg})
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - NewDispatcher: %v", err)
	}
	return d
}

func TestDispatchJSON_Envelopes(t *testing.T) {
	d := newTestDispatcher(t)

	tests := []struct {
		name string
		fn   string
		body string
		want string
	}{
		{"ok true", "pingPong", `{"val": 5}`, `{"return":true,"response":"ok"}`},
		{"ok false", "pingPong", `{"val": 4}`, `{"return":false,"response":"ok"}`},
		{"void", "pong", ``, `{"return":null,"response":"ok"}`},
		{"void ignores body", "pong", `{"anything": [1, 2]}`, `{"return":null,"response":"ok"}`},
		{"multi", "multiVarArgument", `{"val2": 3, "val1": 3}`, `{"return":true,"response":"ok"}`},
		{"struct", "complex", `{"val": {"innerStruct": {"val": 1}, "some_string": "x"}}`,
			`{"return":{"innerStruct":{"val":234},"some_string":"Hello World"},"response":"ok"}`},
		{"exception", "complex", `{"val": {"innerStruct": {"val": 2}}}`,
			`{"response":"error","exception":{"error":"Woah"},"exceptionType":"ExampleException"}`},
		{"missing arg", "pingPong", `{"value": 5}`, `{"response":"error","error":"Expected 'val' argument."}`},
		{"missing body", "pingPong", ``, `{"response":"error","error":"Expected 'val' argument."}`},
		{"unparseable body", "pingPong", `{not json`, `{"response":"error","error":"Expected 'val' argument."}`},
		{"array body", "pingPong", `[5]`, `{"response":"error","error":"Expected 'val' argument."}`},
		{"second missing", "multiVarArgument", `{"val1": 3}`, `{"response":"error","error":"Expected 'val2' argument."}`},
		{"nested unexpected key", "complex", `{"val": {"innerStruct": {"val": 1, "unknown_field": 2}}}`,
			`{"response":"error","error":"Unexpected key 'unknown_field' for 'InnerStruct'."}`},
		{"struct arg not object", "complex", `{"val": 7}`, `{"response":"error","error":"Invalid Thrift request."}`},
		{"bad coercion", "pingPong", `{"val": "five"}`, `{"response":"error","error":"Invalid Thrift request."}`},
		{"overflow", "pingPong", `{"val": 3000000000}`, `{"response":"error","error":"Invalid Thrift request."}`},
		{"panic", "crash", ``, `{"response":"error","error":"Internal server error."}`},
		{"plain error", "fails", ``, `{"response":"error","error":"Internal server error."}`},
		{"exception not in throws", "leaks", ``, `{"response":"error","error":"Internal server error."}`},
		{"handler needs more args", "tooFew", `{"val1": 1}`, `{"response":"error","error":"Missing Thrift keys."}`},
		{"handler takes fewer args", "tooMany", `{"val1": 1, "val2": 2}`, `{"response":"error","error":"Unable to coerce keywords into handler."}`},
		{"undeclared", "nope", `{}`, `{"response":"error","error":"Unknown function 'nope'."}`},
		{"declared but unbound", "unbound", `{}`, `{"response":"error","error":"Unknown function 'unbound'."}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := d.DispatchJSON(context.Background(), tt.fn, []byte(tt.body))
			got := string(Encode(env))
			if got != tt.want {
				t.Errorf("dispatcher:dispatcher_test - got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDispatch_States(t *testing.T) {
	d := newTestDispatcher(t)

	res := d.Dispatch(context.Background(), "pingPong", []byte(`{"val": 5}`))
	if res.State != StateOK || res.Err != nil || res.Value != true {
		t.Errorf("dispatcher:dispatcher_test - ok result = %+v", res)
	}

	tests := []struct {
		fn   string
		body string
		kind Kind
	}{
		{"pingPong", `{}`, KindBadRequest},
		{"nope", `{}`, KindNameNotFound},
		{"complex", `{"val": {}}`, KindApplicationException},
		{"crash", ``, KindInternal},
		{"leaks", ``, KindInternal},
	}
	for _, tt := range tests {
		res := d.Dispatch(context.Background(), tt.fn, []byte(tt.body))
		if res.State != StateError {
			t.Errorf("dispatcher:dispatcher_test - %s state = %s, want ERROR", tt.fn, res.State)
			continue
		}
		if res.Err.Kind != tt.kind {
			t.Errorf("dispatcher:dispatcher_test - %s kind = %s, want %s", tt.fn, res.Err.Kind, tt.kind)
		}
	}
}

func TestExecute_Positional(t *testing.T) {
	d := newTestDispatcher(t)
	got, err := d.Execute(context.Background(), "multiVarArgument", []any{int32(2), int32(2)})
	if err != nil || got != true {
		t.Errorf("dispatcher:dispatcher_test - got %v, %v", got, err)
	}

	_, err = d.Execute(context.Background(), "crash", nil)
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Function != "crash" {
		t.Errorf("dispatcher:dispatcher_test - expected PanicError, got %v", err)
	}
}

func TestNewDispatcher_Validation(t *testing.T) {
	doc, _ := idl.ParseDocument([]byte(testDoc), idl.FormatJSON)
	schema, _ := idl.Build(doc)

	reg := handler.NewRegistry(handler.NewRegistryParams{})
	reg.RegisterFunc("notInService", func() {})
	if _, err := NewDispatcher(NewDispatcherParams{Schema: schema, Service: "ExampleService", Registry: reg}); err == nil {
		t.Error("dispatcher:dispatcher_test - expected error for undeclared binding")
	}
	if _, err := NewDispatcher(NewDispatcherParams{Schema: schema, Service: "Missing", Registry: handler.NewRegistry(handler.NewRegistryParams{})}); err == nil {
		t.Error("dispatcher:dispatcher_test - expected error for unknown service")
	}
	if _, err := NewDispatcher(NewDispatcherParams{Service: "ExampleService"}); err == nil {
		t.Error("dispatcher:dispatcher_test - expected error without schema")
	}
}

func TestRoutes(t *testing.T) {
	d := newTestDispatcher(t)
	routes := d.Routes()
	want := []string{"pingPong", "pong", "complex", "multiVarArgument", "crash", "fails", "leaks", "tooFew", "tooMany"}
	if len(routes) != len(want) {
		t.Fatalf("dispatcher:dispatcher_test - routes = %v", routes)
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("dispatcher:dispatcher_test - routes[%d] = %s, want %s", i, routes[i], want[i])
		}
	}
}

func TestDispatchJSON_HookFailureIsIsolated(t *testing.T) {
	tests := []struct {
		name string
		hook handler.Hook
	}{
		{"error", handler.HookFunc(func(context.Context, string) error { return errors.New("no active span") })},
		{"panic", handler.HookFunc(func(context.Context, string) error { panic("agent gone") })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(t)
			d.Registry().SetHook(tt.hook)
			got := string(Encode(d.DispatchJSON(context.Background(), "pingPong", []byte(`{"val": 5}`))))
			if got != `{"return":true,"response":"ok"}` {
				t.Errorf("dispatcher:dispatcher_test - got %s with failing hook", got)
			}
		})
	}
}
