package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const publisherLogPrefix = "events:publisher"

// EventPublisher sends mappings announcements.
type EventPublisher interface {
	PublishMappings(ctx context.Context, event *MappingsAnnouncedEvent) error
}

// LogPublisher writes announcements to the default logger. The bridge uses it when NATS
// is not configured.
type LogPublisher struct{}

// PublishMappings logs one line per announcement and one debug line per function.
func (p *LogPublisher) PublishMappings(_ context.Context, event *MappingsAnnouncedEvent) error {
	slog.Info(fmt.Sprintf("%s - %s (%s %s) serving %d functions over %s", publisherLogPrefix,
		event.Service, event.Schema, event.Version, len(event.Functions), strings.Join(event.Transports, ", ")))
	for _, f := range event.Functions {
		slog.Debug(fmt.Sprintf("%s - %s -> %s", publisherLogPrefix, f.Name, f.Handler))
	}
	return nil
}

// CallbackPublisher hands each announcement to a function.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *MappingsAnnouncedEvent) error
}

// NewCallbackPublisher creates a CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *MappingsAnnouncedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishMappings calls the callback.
func (p *CallbackPublisher) PublishMappings(ctx context.Context, event *MappingsAnnouncedEvent) error {
	return p.callback(ctx, event)
}
