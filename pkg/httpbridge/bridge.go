// Package httpbridge exposes IDL functions as JSON-over-HTTP routes.
//
// Every bound function gets a "POST /<name>" route. Responses are always 200 with a
// JSON envelope; failures are reported inside the envelope.
package httpbridge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzhttp"

	"github.com/morezero/idl-bridge/pkg/dispatcher"
	"github.com/morezero/idl-bridge/pkg/telemetry"
)

const logPrefix = "httpbridge:bridge"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const (
	defaultMaxBodyBytes = 4 << 20
	defaultGzipMinSize  = 1024
)

// NewBridgeParams configures a Bridge.
type NewBridgeParams struct {
	Dispatcher *dispatcher.Dispatcher
	Telemetry  *telemetry.Instrumentation
	// MaxBodyBytes caps request bodies. Defaults to 4 MiB.
	MaxBodyBytes int64
	// GzipMinSize is the smallest response that gets compressed. Defaults to 1024.
	GzipMinSize int
}

// Bridge routes HTTP requests to the dispatcher.
type Bridge struct {
	d           *dispatcher.Dispatcher
	tel         *telemetry.Instrumentation
	maxBody     int64
	gzipMinSize int
}

// NewBridge creates a Bridge.
func NewBridge(p NewBridgeParams) *Bridge {
	b := &Bridge{
		d:           p.Dispatcher,
		tel:         p.Telemetry,
		maxBody:     p.MaxBodyBytes,
		gzipMinSize: p.GzipMinSize,
	}
	if b.maxBody <= 0 {
		b.maxBody = defaultMaxBodyBytes
	}
	if b.gzipMinSize <= 0 {
		b.gzipMinSize = defaultGzipMinSize
	}
	return b
}

// Routes lists the paths served, one per bound function.
func (b *Bridge) Routes() []string {
	names := b.d.Routes()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "/" + n
	}
	return out
}

// Register adds the function routes to mux. Paths that name no bound function still
// answer with an envelope.
func (b *Bridge) Register(mux *http.ServeMux) {
	for _, name := range b.d.Routes() {
		mux.Handle("POST /"+name, b.wrap(b.handleFunction(name)))
	}
	mux.Handle("POST /{function}", b.wrap(func(w http.ResponseWriter, r *http.Request) {
		b.handleFunction(r.PathValue("function"))(w, r)
	}))
	slog.Info(fmt.Sprintf("%s - Registered %d function routes", logPrefix, len(b.d.Routes())))
}

// Handler returns a standalone handler serving only the function routes.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	b.Register(mux)
	return mux
}

// wrap adds response compression.
func (b *Bridge) wrap(h http.HandlerFunc) http.Handler {
	gz, err := gzhttp.NewWrapper(gzhttp.MinSize(b.gzipMinSize))
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - gzip disabled: %v", logPrefix, err))
		return h
	}
	return gz(h)
}

func (b *Bridge) handleFunction(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)

		ctx, end := b.tel.StartRequest(r.Context(), "http", "POST /"+name)

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, b.maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				slog.Warn(fmt.Sprintf("%s - [%s] body for %s exceeds %d bytes", logPrefix, reqID, name, tooLarge.Limit))
				failure := &dispatcher.Error{Kind: dispatcher.KindBadRequest, Message: dispatcher.MsgBodyTooLarge, Err: err}
				end(failure)
				writeEnvelope(w, reqID, failure.Envelope())
				return
			}
			slog.Warn(fmt.Sprintf("%s - [%s] unreadable body for %s: %v", logPrefix, reqID, name, err))
			body = nil
		}

		res := b.d.Dispatch(ctx, name, body)
		if res.Err != nil {
			end(res.Err)
		} else {
			end(nil)
		}

		slog.Debug(fmt.Sprintf("%s - [%s] %s -> %s", logPrefix, reqID, name, res.State))
		writeEnvelope(w, reqID, res.Envelope())
	}
}

func writeEnvelope(w http.ResponseWriter, reqID string, env *dispatcher.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(dispatcher.Encode(env)); err != nil {
		slog.Warn(fmt.Sprintf("%s - [%s] failed to write response: %v", logPrefix, reqID, err))
	}
}
