// Package commsbridge serves a dispatcher over NATS request/reply. Each bound function
// listens on "<prefix>.<function>"; the request payload is the JSON argument object and
// the reply is the response envelope.
package commsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/idl-bridge/pkg/commsutil"
	"github.com/morezero/idl-bridge/pkg/dispatcher"
	"github.com/morezero/idl-bridge/pkg/telemetry"
)

const logPrefix = "commsbridge:bridge"

// drainTimeout bounds how long Stop waits for pending messages to be delivered.
const drainTimeout = 30 * time.Second

// NewBridgeParams configures a Bridge. An empty QueueGroup gives every subscriber each
// request.
type NewBridgeParams struct {
	Conn       *comms.Conn
	Dispatcher *dispatcher.Dispatcher
	Telemetry  *telemetry.Instrumentation
	Prefix     string
	QueueGroup string
}

// Bridge subscribes the routed functions of a dispatcher.
type Bridge struct {
	nc     *comms.Conn
	d      *dispatcher.Dispatcher
	tel    *telemetry.Instrumentation
	prefix string
	queue  string

	mu       sync.Mutex
	subs     []*comms.Subscription
	inflight sync.WaitGroup
}

// NewBridge creates a Bridge.
func NewBridge(p NewBridgeParams) *Bridge {
	prefix := p.Prefix
	if prefix == "" {
		prefix = commsutil.DefaultFunctionPrefix
	}
	return &Bridge{nc: p.Conn, d: p.Dispatcher, tel: p.Telemetry, prefix: prefix, queue: p.QueueGroup}
}

// Subjects lists the subjects served, one per bound function.
func (b *Bridge) Subjects() []string {
	names := b.d.Routes()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = commsutil.FunctionSubject(b.prefix, n)
	}
	return out
}

// Start subscribes every function subject.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) > 0 {
		return errors.New("commsbridge:bridge - already started")
	}

	for _, name := range b.d.Routes() {
		subject := commsutil.FunctionSubject(b.prefix, name)
		var (
			sub *comms.Subscription
			err error
		)
		if b.queue != "" {
			sub, err = b.nc.QueueSubscribe(subject, b.queue, b.handle(name))
		} else {
			sub, err = b.nc.Subscribe(subject, b.handle(name))
		}
		if err != nil {
			b.unsubscribe()
			return fmt.Errorf("%s - failed to subscribe %s: %w", logPrefix, subject, err)
		}
		b.subs = append(b.subs, sub)
	}
	if err := b.nc.Flush(); err != nil {
		b.unsubscribe()
		return fmt.Errorf("%s - failed to flush subscriptions: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Serving %d functions on %s.*", logPrefix, len(b.subs), b.prefix))
	return nil
}

// Stop drains the subscriptions and waits for in-flight requests to be answered.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if err := sub.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to drain %s: %v", logPrefix, sub.Subject, err))
		}
	}

	deadline := time.Now().Add(drainTimeout)
	for _, sub := range b.subs {
		for sub.IsValid() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if sub.IsValid() {
			slog.Warn(fmt.Sprintf("%s - drain of %s timed out", logPrefix, sub.Subject))
			_ = sub.Unsubscribe()
		}
	}
	b.subs = nil
	b.inflight.Wait()
}

func (b *Bridge) unsubscribe() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

// handle returns the subscription callback. Each message is dispatched on its own goroutine.
func (b *Bridge) handle(name string) comms.MsgHandler {
	return func(msg *comms.Msg) {
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			b.serve(name, msg)
		}()
	}
}

func (b *Bridge) serve(name string, msg *comms.Msg) {
	ctx, end := b.tel.StartRequest(context.Background(), "nats", msg.Subject)

	res := b.d.Dispatch(ctx, name, msg.Data)
	if res.Err != nil {
		end(res.Err)
	} else {
		end(nil)
	}

	if msg.Reply == "" {
		slog.Debug(fmt.Sprintf("%s - %s -> %s (no reply subject)", logPrefix, name, res.State))
		return
	}
	if err := msg.Respond(dispatcher.Encode(res.Envelope())); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to reply for %s: %v", logPrefix, name, err))
	}
}

// Request sends data, JSON encoded, to subject and decodes the reply envelope.
func Request(ctx context.Context, nc *comms.Conn, subject string, data any) (*dispatcher.Envelope, error) {
	var payload []byte
	if data != nil {
		var err error
		if payload, err = commsutil.EncodePayload(data); err != nil {
			return nil, fmt.Errorf("%s - failed to encode request: %w", logPrefix, err)
		}
	}
	msg, err := nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("%s - request to %s failed: %w", logPrefix, subject, err)
	}
	return dispatcher.DecodeEnvelope(msg.Data)
}
