// Package commsutil provides NATS connection helpers, the JSON payload codec and the
// subjects the bridge publishes and serves on.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// ConnectParams configures Connect. Zero values use defaults.
type ConnectParams struct {
	URL           string
	Name          string
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

// Connect opens a NATS connection that logs disconnects and reconnects.
func Connect(p ConnectParams) (*comms.Conn, error) {
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	if p.ReconnectWait <= 0 {
		p.ReconnectWait = 2 * time.Second
	}
	if p.MaxReconnects == 0 {
		p.MaxReconnects = 60
	}
	slog.Info(fmt.Sprintf("%s - Connecting to NATS at %s as %s", logPrefix, p.URL, p.Name))

	nc, err := comms.Connect(p.URL,
		comms.Name(p.Name),
		comms.Timeout(p.Timeout),
		comms.ReconnectWait(p.ReconnectWait),
		comms.MaxReconnects(p.MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - NATS disconnected: %v", logPrefix, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - NATS reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(*comms.Conn) {
			slog.Info(fmt.Sprintf("%s - NATS connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to %s: %w", logPrefix, p.URL, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
