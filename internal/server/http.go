package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/morezero/idl-bridge/pkg/dispatcher"
	"github.com/morezero/idl-bridge/pkg/httpbridge"
	"github.com/morezero/idl-bridge/pkg/idl"
)

const httpLogPrefix = "server:http"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const healthCheckTimeout = 5 * time.Second

// HealthOutput is the body of GET /health.
type HealthOutput struct {
	Status    string          `json:"status"`
	Service   string          `json:"service"`
	Schema    string          `json:"schema"`
	Version   string          `json:"version,omitempty"`
	Functions int             `json:"functions"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// Health reports whether handlers are bound and the schema store is reachable.
// Readiness is separate: /ready waits for the transports to print the mapping summary.
func (b *Bridge) Health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{
		Status:    "healthy",
		Service:   b.dispatcher.Service().Name,
		Schema:    b.schema.Name,
		Version:   b.schema.Version,
		Functions: len(b.dispatcher.Routes()),
		Checks:    map[string]bool{"handlers": len(b.registry.Bindings()) > 0},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if b.pool != nil {
		h.Checks["database"] = b.pool.Ping(ctx) == nil
	}
	for _, ok := range h.Checks {
		if !ok {
			h.Status = "unhealthy"
		}
	}
	return h
}

// Handler returns the HTTP surface: function routes plus health, readiness, the home page
// and the OpenAPI description.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	httpbridge.NewBridge(httpbridge.NewBridgeParams{Dispatcher: b.dispatcher, Telemetry: b.telemetry}).Register(mux)

	mux.HandleFunc("GET /{$}", b.handleHome())
	mux.HandleFunc("GET /describe", b.handleDescribe())
	mux.HandleFunc("GET /docs", b.handleDocs())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		h := b.Health(ctx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "ready"
		if !b.registry.Configured() {
			status = "starting"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	return mux
}

// homePageTemplate lists the bound functions.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Service}} – IDL Bridge</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    code { font-size: 0.9rem; }
  </style>
</head>
<body>
  <h1>{{.Service}}</h1>
  <p class="meta">Schema {{.Health.Schema}} {{.Health.Version}}. <a href="/docs">View API (Swagger)</a></p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Functions</h2>
    {{if not .Functions}}
    <p>No functions bound.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Function</th><th>Signature</th><th>Handler</th></tr>
      </thead>
      <tbody>
        {{range .Functions}}
        <tr>
          <td><code>POST /{{.Name}}</code></td>
          <td><code>{{.Signature}}</code></td>
          <td>{{.Handler}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

type homeFunction struct {
	Name      string
	Signature string
	Handler   string
}

type homeData struct {
	Service   string
	Health    *HealthOutput
	Functions []homeFunction
}

func (b *Bridge) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		origins := make(map[string]string)
		for _, binding := range b.registry.Bindings() {
			origins[binding.Name] = binding.Origin
		}
		data := homeData{Service: b.dispatcher.Service().Name, Health: b.Health(ctx)}
		for _, name := range b.dispatcher.Routes() {
			fn, _ := b.dispatcher.Function(name)
			data.Functions = append(data.Functions, homeFunction{
				Name:      name,
				Signature: signature(fn),
				Handler:   origins[name],
			})
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func signature(fn *idl.Function) string {
	s := fn.Returns.String() + " " + fn.Name + "("
	for i, a := range fn.Args {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d: %s %s", a.Position, a.Type, a.Name)
	}
	s += ")"
	if len(fn.Throws) > 0 {
		s += " throws ("
		for i, t := range fn.Throws {
			if i > 0 {
				s += ", "
			}
			s += fmt.Sprintf("%d: %s %s", t.ID, t.Type, t.Name)
		}
		s += ")"
	}
	if fn.Oneway {
		s = "oneway " + s
	}
	return s
}

func (b *Bridge) handleDescribe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := buildOpenAPISpec(b.dispatcher)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=60")
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			slog.Error(fmt.Sprintf("%s - openapi json encode: %v", httpLogPrefix, err))
		}
	}
}

// swaggerUIPage embeds Swagger UI from CDN and loads the OpenAPI description.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – {{.Service}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

func (b *Bridge) handleDocs() http.HandlerFunc {
	tmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		specURL := "http://" + r.Host + "/describe"
		if r.TLS != nil {
			specURL = "https://" + r.Host + "/describe"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, map[string]string{"Service": b.dispatcher.Service().Name, "SpecURL": specURL}); err != nil {
			slog.Error(fmt.Sprintf("%s - swagger template execute: %v", httpLogPrefix, err))
		}
	}
}

// openAPI3 types for describing the function routes.
type openAPI3Spec struct {
	OpenAPI    string                      `json:"openapi"`
	Info       openAPI3Info                `json:"info"`
	Paths      map[string]openAPI3PathItem `json:"paths"`
	Components *openAPI3Components         `json:"components,omitempty"`
}

type openAPI3Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type openAPI3PathItem struct {
	Post *openAPI3Operation `json:"post,omitempty"`
}

type openAPI3Operation struct {
	Summary     string                      `json:"summary"`
	Description string                      `json:"description,omitempty"`
	OperationID string                      `json:"operationId"`
	RequestBody *openAPI3RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]openAPI3Response `json:"responses"`
}

type openAPI3RequestBody struct {
	Content map[string]openAPI3MediaType `json:"content"`
}

type openAPI3Response struct {
	Description string                       `json:"description"`
	Content     map[string]openAPI3MediaType `json:"content,omitempty"`
}

type openAPI3MediaType struct {
	Schema map[string]any `json:"schema,omitempty"`
}

type openAPI3Components struct {
	Schemas map[string]map[string]any `json:"schemas"`
}

// buildOpenAPISpec describes one POST path per routed function. Struct types are emitted
// once under components and referenced from the operations.
func buildOpenAPISpec(d *dispatcher.Dispatcher) *openAPI3Spec {
	schema := d.Schema()
	service := d.Service()
	components := make(map[string]map[string]any)
	paths := make(map[string]openAPI3PathItem)

	for _, name := range d.Routes() {
		fn, _ := d.Function(name)

		props := make(map[string]any, len(fn.Args))
		required := make([]string, 0, len(fn.Args))
		for _, a := range fn.Args {
			props[a.Name] = jsonSchema(a.Type, components)
			required = append(required, a.Name)
		}
		input := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			input["required"] = required
		}

		success := map[string]any{
			"type": "object",
			"properties": map[string]any{
				"response": map[string]any{"type": "string", "enum": []string{dispatcher.ResponseOK}},
			},
		}
		if fn.Returns.Kind != idl.KindVoid {
			success["properties"].(map[string]any)["return"] = jsonSchema(fn.Returns, components)
		}
		failure := map[string]any{
			"type": "object",
			"properties": map[string]any{
				"response":      map[string]any{"type": "string", "enum": []string{dispatcher.ResponseError}},
				"error":         map[string]any{"type": "string"},
				"exception":     map[string]any{"type": "object"},
				"exceptionType": map[string]any{"type": "string"},
			},
		}

		paths["/"+name] = openAPI3PathItem{
			Post: &openAPI3Operation{
				Summary:     signature(fn),
				Description: fn.Doc,
				OperationID: name,
				RequestBody: &openAPI3RequestBody{
					Content: map[string]openAPI3MediaType{
						"application/json": {Schema: input},
					},
				},
				Responses: map[string]openAPI3Response{
					"200": {
						Description: "Result envelope",
						Content: map[string]openAPI3MediaType{
							"application/json": {Schema: map[string]any{"oneOf": []any{success, failure}}},
						},
					},
				},
			},
		}
	}

	spec := &openAPI3Spec{
		OpenAPI: "3.0.0",
		Info: openAPI3Info{
			Title:       service.Name,
			Description: "Service " + service.Name + " of " + schema.Name,
			Version:     schema.Version,
		},
		Paths: paths,
	}
	if spec.Info.Version == "" {
		spec.Info.Version = "0.0.0"
	}
	if len(components) > 0 {
		spec.Components = &openAPI3Components{Schemas: components}
	}
	return spec
}

// jsonSchema maps an IDL type to its JSON wire shape, registering struct types in
// components.
func jsonSchema(t *idl.Type, components map[string]map[string]any) map[string]any {
	switch t.Kind {
	case idl.KindBool:
		return map[string]any{"type": "boolean"}
	case idl.KindByte, idl.KindI16, idl.KindI32:
		return map[string]any{"type": "integer", "format": "int32"}
	case idl.KindI64:
		return map[string]any{"type": "integer", "format": "int64"}
	case idl.KindDouble:
		return map[string]any{"type": "number", "format": "double"}
	case idl.KindString:
		return map[string]any{"type": "string"}
	case idl.KindBinary:
		return map[string]any{"type": "string", "format": "byte"}
	case idl.KindList:
		return map[string]any{"type": "array", "items": jsonSchema(t.Elem, components)}
	case idl.KindSet:
		return map[string]any{"type": "array", "uniqueItems": true, "items": jsonSchema(t.Elem, components)}
	case idl.KindMap:
		return map[string]any{"type": "object", "additionalProperties": jsonSchema(t.Elem, components)}
	case idl.KindStruct:
		ref := map[string]any{"$ref": "#/components/schemas/" + t.Name}
		if _, seen := components[t.Name]; seen || t.Struct == nil {
			return ref
		}
		obj := map[string]any{"type": "object"}
		components[t.Name] = obj
		props := make(map[string]any, len(t.Struct.Fields))
		var required []string
		for _, f := range t.Struct.Fields {
			props[f.Name] = jsonSchema(f.Type, components)
			if f.Required {
				required = append(required, f.Name)
			}
		}
		obj["properties"] = props
		if len(required) > 0 {
			obj["required"] = required
		}
		return ref
	}
	return map[string]any{}
}
