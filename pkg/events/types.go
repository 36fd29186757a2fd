// Package events defines the events the bridge announces and the publishers that send them.
package events

import (
	"time"

	"github.com/morezero/idl-bridge/pkg/dispatcher"
)

// MappingsAnnouncedEvent is emitted once the bridge has bound its functions and started
// its transports.
type MappingsAnnouncedEvent struct {
	Service    string            `json:"service"`
	Schema     string            `json:"schema"`
	Version    string            `json:"version,omitempty"`
	Functions  []FunctionMapping `json:"functions"`
	Transports []string          `json:"transports"`
	Timestamp  string            `json:"timestamp"`
}

// FunctionMapping names the handler a function is bound to.
type FunctionMapping struct {
	Name    string `json:"name"`
	Handler string `json:"handler"`
	Oneway  bool   `json:"oneway,omitempty"`
}

// NewMappingsAnnouncedEvent describes the routes of d.
func NewMappingsAnnouncedEvent(d *dispatcher.Dispatcher, transports []string) *MappingsAnnouncedEvent {
	origins := make(map[string]string)
	for _, b := range d.Registry().Bindings() {
		origins[b.Name] = b.Origin
	}

	event := &MappingsAnnouncedEvent{
		Service:    d.Service().Name,
		Schema:     d.Schema().Name,
		Version:    d.Schema().Version,
		Functions:  []FunctionMapping{},
		Transports: transports,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for _, name := range d.Routes() {
		fn, _ := d.Function(name)
		event.Functions = append(event.Functions, FunctionMapping{
			Name:    name,
			Handler: origins[name],
			Oneway:  fn.Oneway,
		})
	}
	return event
}
