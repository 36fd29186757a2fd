// Package server wires the bridge together: schema loading, handler registry, telemetry,
// and the HTTP, Thrift and NATS transports.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/idl-bridge/internal/config"
	"github.com/morezero/idl-bridge/internal/exampleapp"
	"github.com/morezero/idl-bridge/pkg/commsbridge"
	"github.com/morezero/idl-bridge/pkg/commsutil"
	"github.com/morezero/idl-bridge/pkg/db"
	"github.com/morezero/idl-bridge/pkg/dispatcher"
	"github.com/morezero/idl-bridge/pkg/events"
	"github.com/morezero/idl-bridge/pkg/handler"
	"github.com/morezero/idl-bridge/pkg/idl"
	"github.com/morezero/idl-bridge/pkg/telemetry"
	"github.com/morezero/idl-bridge/pkg/thriftrpc"
)

const logPrefix = "server:server"

// RegisterFunc binds the handlers implementing a service.
type RegisterFunc func(reg *handler.Registry, schema *idl.Schema) error

// Options customizes NewBridge. A nil Register binds the built-in example service.
type Options struct {
	Register RegisterFunc
}

// Bridge holds the components shared by every transport.
type Bridge struct {
	cfg        *config.Config
	pool       *pgxpool.Pool
	providers  *telemetry.Providers
	telemetry  *telemetry.Instrumentation
	schema     *idl.Schema
	registry   *handler.Registry
	dispatcher *dispatcher.Dispatcher
}

// NewBridge loads the schema, binds handlers and builds the dispatcher.
func NewBridge(ctx context.Context, cfg *config.Config, opts Options) (*Bridge, error) {
	b := &Bridge{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			b.Close(context.Background())
		}
	}()

	if cfg.TracingEnabled {
		providers, err := telemetry.Setup(telemetry.SetupParams{Exporter: strings.ToLower(cfg.TracingExporter)})
		if err != nil {
			return nil, fmt.Errorf("%s - failed to set up telemetry: %w", logPrefix, err)
		}
		b.providers = providers
		b.telemetry = telemetry.NewInstrumentation(telemetry.InstrumentationParams{ServiceName: cfg.ServiceName})
	}

	sources := []idl.Source{}
	if len(cfg.SchemaFiles) > 0 {
		sources = append(sources, idl.FileSource(cfg.SchemaFiles))
	}
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, db.PoolParams{URL: cfg.DatabaseURL, ApplicationName: cfg.ServiceName})
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		b.pool = pool
		if cfg.RunMigrations {
			if err := migrate(ctx, pool, cfg.MigrationPath); err != nil {
				return nil, err
			}
		}
		sources = append(sources, db.NewRepository(pool))
	}
	sources = append(sources, exampleapp.Source())

	loader := idl.NewLoader(idl.LoaderParams{Sources: sources, VersionConstraint: cfg.SchemaVersionConstraint})
	schema, err := loader.Load(ctx, cfg.SchemaKey)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load schema %q: %w", logPrefix, cfg.SchemaKey, err)
	}
	b.schema = schema

	var hook handler.Hook
	if b.telemetry != nil {
		hook = b.telemetry
	}
	b.registry = handler.NewRegistry(handler.NewRegistryParams{Hook: hook})

	register := opts.Register
	if register == nil {
		if cfg.SchemaService != exampleapp.ServiceName {
			return nil, fmt.Errorf("%s - no handlers for service %q", logPrefix, cfg.SchemaService)
		}
		register = func(reg *handler.Registry, schema *idl.Schema) error {
			return exampleapp.New(schema).Register(reg)
		}
	}
	if err := register(b.registry, schema); err != nil {
		return nil, fmt.Errorf("%s - failed to register handlers: %w", logPrefix, err)
	}

	b.dispatcher, err = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Schema:   schema,
		Service:  cfg.SchemaService,
		Registry: b.registry,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Loaded %s %s, %d functions bound", logPrefix, schema.Name, schema.Version, len(b.dispatcher.Routes())))
	ok = true
	return b, nil
}

// Dispatcher returns the shared dispatcher.
func (b *Bridge) Dispatcher() *dispatcher.Dispatcher {
	return b.dispatcher
}

// Registry returns the handler registry.
func (b *Bridge) Registry() *handler.Registry {
	return b.registry
}

// Close releases the database pool and flushes telemetry.
func (b *Bridge) Close(ctx context.Context) {
	if b.pool != nil {
		b.pool.Close()
	}
	if err := b.providers.Shutdown(ctx); err != nil {
		slog.Warn(fmt.Sprintf("%s - telemetry shutdown: %v", logPrefix, err))
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool, path string) error {
	migrations, err := db.LoadMigrationFiles(path)
	if err != nil {
		return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
	}
	if _, err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
	}
	return nil
}

// ConfigureLogging installs a text slog handler on stdout at the given level.
func ConfigureLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts every enabled transport, blocks until SIGINT or SIGTERM, then shuts down.
func Run(cfg *config.Config, opts Options) error {
	ConfigureLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting %s", logPrefix, cfg.ServiceName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := NewBridge(ctx, cfg, opts)
	if err != nil {
		return err
	}
	t, err := b.Start(ctx)
	if err != nil {
		b.Close(context.Background())
		return err
	}

	select {
	case <-ctx.Done():
		slog.Info(fmt.Sprintf("%s - Received shutdown signal", logPrefix))
	case err = <-t.errs:
		slog.Error(fmt.Sprintf("%s - Transport failed: %v", logPrefix, err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	t.Stop(shutdownCtx)
	b.Close(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

// Transports are the running servers of a Bridge.
type Transports struct {
	HTTP   *http.Server
	RPC    *thriftrpc.Server
	NATS   *commsbridge.Bridge
	nc     *comms.Conn
	errs   chan error
	active []string
}

// Start launches the enabled transports and announces the mappings.
func (b *Bridge) Start(ctx context.Context) (*Transports, error) {
	cfg := b.cfg
	t := &Transports{errs: make(chan error, 2)}
	b.registry.SummarizeOnce(os.Stdout)

	if cfg.RPCEnabled {
		rpc, err := thriftrpc.NewServer(thriftrpc.ServerParams{
			Processor:     thriftrpc.NewProcessor(thriftrpc.NewProcessorParams{Dispatcher: b.dispatcher, Telemetry: b.telemetry}),
			Host:          cfg.RPCHost,
			Port:          cfg.RPCPort,
			UnixSocket:    cfg.RPCUnixSocket,
			CertFile:      cfg.RPCCertFile,
			KeyFile:       cfg.RPCKeyFile,
			ClientTimeout: cfg.RPCClientTimeout,
		})
		if err != nil {
			return nil, err
		}
		if err := rpc.Listen(); err != nil {
			return nil, err
		}
		t.RPC = rpc
		t.active = append(t.active, "thrift")
		go func() {
			if err := rpc.AcceptLoop(); err != nil {
				t.errs <- fmt.Errorf("%s - thrift server: %w", logPrefix, err)
			}
		}()
	}

	if cfg.HTTPEnabled {
		t.HTTP = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           b.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		t.active = append(t.active, "http")
		go func() {
			slog.Info(fmt.Sprintf("%s - HTTP bridge listening on %s", logPrefix, cfg.HTTPAddr))
			if err := t.HTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				t.errs <- fmt.Errorf("%s - HTTP server: %w", logPrefix, err)
			}
		}()
	}

	var publisher events.EventPublisher = &events.LogPublisher{}
	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.ServiceName})
		if err != nil {
			t.Stop(ctx)
			return nil, err
		}
		t.nc = nc
		t.NATS = commsbridge.NewBridge(commsbridge.NewBridgeParams{
			Conn:       nc,
			Dispatcher: b.dispatcher,
			Telemetry:  b.telemetry,
			Prefix:     cfg.COMMSSubjectPrefix,
			QueueGroup: cfg.COMMSQueueGroup,
		})
		if err := t.NATS.Start(); err != nil {
			t.Stop(ctx)
			return nil, err
		}
		t.active = append(t.active, "nats")
		publisher = events.NewCommsPublisher(nc, nil)
	}

	if err := publisher.PublishMappings(ctx, events.NewMappingsAnnouncedEvent(b.dispatcher, t.active)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to announce mappings: %v", logPrefix, err))
	}
	slog.Info(fmt.Sprintf("%s - Bridge is ready (%s)", logPrefix, strings.Join(t.active, ", ")))
	return t, nil
}

// Stop shuts the transports down, letting in-flight requests finish.
func (t *Transports) Stop(ctx context.Context) {
	if t.NATS != nil {
		t.NATS.Stop()
	}
	if t.nc != nil {
		if err := t.nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - NATS drain: %v", logPrefix, err))
		}
	}
	if t.HTTP != nil {
		if err := t.HTTP.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if t.RPC != nil {
		if err := t.RPC.Stop(); err != nil {
			slog.Warn(fmt.Sprintf("%s - thrift shutdown: %v", logPrefix, err))
		}
	}
}
