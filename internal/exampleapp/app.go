// Package exampleapp is a small IDL service served by the bridge binary and used by the
// end-to-end tests.
package exampleapp

import (
	_ "embed"
	"fmt"

	"github.com/morezero/idl-bridge/pkg/handler"
	"github.com/morezero/idl-bridge/pkg/idl"
)

//go:embed example.json
var document []byte

const (
	// SchemaKey is the configuration key the embedded schema is served under.
	SchemaKey = "example"
	// DefaultSchemaKey is the key used when none is configured.
	DefaultSchemaKey = "default"
	// ServiceName is the service the handlers implement.
	ServiceName = "ExampleService"
)

// Source serves the embedded schema document under SchemaKey and DefaultSchemaKey.
func Source() idl.StaticSource {
	return idl.StaticSource{SchemaKey: document, DefaultSchemaKey: document}
}

// Document returns the raw embedded schema document.
func Document() []byte {
	return document
}

// Schema builds the embedded schema.
func Schema() (*idl.Schema, error) {
	doc, err := idl.ParseDocument(document, idl.FormatJSON)
	if err != nil {
		return nil, err
	}
	return idl.Build(doc)
}

// App implements ExampleService.
type App struct {
	schema *idl.Schema
}

// New creates an App building its results from schema.
func New(schema *idl.Schema) *App {
	return &App{schema: schema}
}

// Register binds every ExampleService function.
func (a *App) Register(reg *handler.Registry) error {
	bindings := []struct {
		name string
		fn   any
	}{
		{"pingPong", a.PingPong},
		{"pong", a.Pong},
		{"simple", a.Simple},
		{"complex", a.Complex},
		{"multiVarArgument", a.MultiVarArgument},
	}
	for _, b := range bindings {
		if err := reg.RegisterFunc(b.name, b.fn); err != nil {
			return fmt.Errorf("exampleapp:app - %w", err)
		}
	}
	return nil
}

// PingPong reports whether val is 5.
func (a *App) PingPong(val int32) bool {
	return val == 5
}

// Pong does nothing.
func (a *App) Pong() {}

// Simple validates an InnerStruct and answers with the canned ContainedStruct.
func (a *App) Simple(val *idl.Struct) (*idl.Struct, error) {
	if problems := validateInner(val); len(problems) > 0 {
		return nil, a.raise("Woah")
	}
	return a.contained()
}

// Complex validates a ContainedStruct and answers with the canned ContainedStruct.
func (a *App) Complex(val *idl.Struct) (*idl.Struct, error) {
	if problems := validateContained(val); len(problems) > 0 {
		return nil, a.raise(problems.String())
	}
	return a.contained()
}

// MultiVarArgument reports whether both arguments are equal.
func (a *App) MultiVarArgument(int1, int2 int32) bool {
	return int1 == int2
}

func (a *App) contained() (*idl.Struct, error) {
	inner, err := a.schema.NewStruct("InnerStruct", map[string]any{"val": int16(234)})
	if err != nil {
		return nil, err
	}
	return a.schema.NewStruct("ContainedStruct", map[string]any{
		"innerStruct": inner,
		"some_string": "Hello World",
	})
}

func (a *App) raise(msg string) error {
	exc, err := a.schema.NewStruct("ExampleException", map[string]any{"error": msg})
	if err != nil {
		return err
	}
	return idl.Raise(exc)
}
