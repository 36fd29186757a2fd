// Package main is the entrypoint for the IDL bridge (binary name "bridge").
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"

	"github.com/morezero/idl-bridge/internal/config"
	"github.com/morezero/idl-bridge/internal/exampleapp"
	"github.com/morezero/idl-bridge/internal/server"
	"github.com/morezero/idl-bridge/pkg/codec"
	"github.com/morezero/idl-bridge/pkg/db"
	"github.com/morezero/idl-bridge/pkg/dispatcher"
	"github.com/morezero/idl-bridge/pkg/idl"
	"github.com/morezero/idl-bridge/pkg/thriftrpc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const usage = `Usage: bridge [command]
       bridge serve                      Start every enabled transport (HTTP, Thrift RPC, NATS).
       bridge rpcserver [host] [port]    Serve Thrift RPC only.
       bridge http [addr]                Serve the HTTP JSON bridge only.
       bridge mappings                   Print the function to handler mappings.
       bridge call <function> [json]     Dispatch one call in-process and print the envelope.
       bridge rpccall <function> [json]  Call a running Thrift server at RPC_HOST:RPC_PORT.
       bridge schema push <key> <file>   Validate and store a schema document.
       bridge schema list                List stored schema documents.
       bridge schema delete <key>        Remove a stored schema document.
       bridge migrate up                 Run database migrations.
       bridge migrate status             Show migration status.
       bridge ensure-db [name]           Create database if missing (default name: idl_bridge_test).

Commands:
  serve       (default) Start the bridge.
  call        Body is a JSON object keyed by argument name, e.g. '{"val": 5}'.
  rpccall     Same body as call; arguments are sent positionally over the binary protocol.

Environment: SCHEMA_KEY, SCHEMA_FILES, SCHEMA_SERVICE, HTTP_ADDR, RPC_HOST, RPC_PORT,
RPC_UNIX_SOCKET, RPC_CERT_FILE, COMMS_URL, DATABASE_URL, MIGRATION_PATH, LOG_LEVEL. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "rpcserver":
		if err := runServe(func(cfg *config.Config) error { return rpcOnly(cfg, args[1:]) }); err != nil {
			log.Fatalf("bridge rpcserver: %v", err)
		}
		return
	case "http":
		if err := runServe(func(cfg *config.Config) error { return httpOnly(cfg, args[1:]) }); err != nil {
			log.Fatalf("bridge http: %v", err)
		}
		return
	case "mappings":
		if err := runMappings(); err != nil {
			log.Fatalf("bridge mappings: %v", err)
		}
		return
	case "call":
		if len(args) < 2 {
			log.Fatalf("bridge call: require a function name")
		}
		if err := runCall(args[1], optional(args, 2)); err != nil {
			log.Fatalf("bridge call: %v", err)
		}
		return
	case "rpccall":
		if len(args) < 2 {
			log.Fatalf("bridge rpccall: require a function name")
		}
		if err := runRPCCall(args[1], optional(args, 2)); err != nil {
			log.Fatalf("bridge rpccall: %v", err)
		}
		return
	case "schema":
		if err := runSchema(args[1:]); err != nil {
			log.Fatalf("bridge schema: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("bridge migrate: require subcommand (up, status)")
		}
		switch sub := args[1]; sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("bridge migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("bridge migrate status: %v", err)
			}
		default:
			log.Fatalf("bridge migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "ensure-db":
		dbName := "idl_bridge_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("bridge ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := runServe(nil); err != nil {
		log.Fatalf("bridge: %v", err)
	}
}

func optional(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runServe(adjust func(*config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if adjust != nil {
		if err := adjust(cfg); err != nil {
			return err
		}
	}
	return server.Run(cfg, server.Options{})
}

// rpcOnly narrows cfg to the Thrift transport, taking host and port from args when given.
func rpcOnly(cfg *config.Config, args []string) error {
	cfg.HTTPEnabled = false
	cfg.RPCEnabled = true
	cfg.COMMSURL = ""
	if host := optional(args, 0); host != "" {
		cfg.RPCHost = host
	}
	if port := optional(args, 1); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", port, err)
		}
		cfg.RPCPort = p
	}
	return nil
}

// httpOnly narrows cfg to the HTTP transport, taking the listen address from args when given.
func httpOnly(cfg *config.Config, args []string) error {
	cfg.HTTPEnabled = true
	cfg.RPCEnabled = false
	cfg.COMMSURL = ""
	if addr := optional(args, 0); addr != "" {
		cfg.HTTPAddr = addr
	}
	return nil
}

func newBridge(ctx context.Context) (*server.Bridge, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	server.ConfigureLogging(cfg.LogLevel)
	return server.NewBridge(ctx, cfg, server.Options{})
}

func runMappings() error {
	ctx := context.Background()
	b, err := newBridge(ctx)
	if err != nil {
		return err
	}
	defer b.Close(ctx)
	b.Registry().PrintMappings(os.Stdout)
	return nil
}

func runCall(function, body string) error {
	ctx := context.Background()
	b, err := newBridge(ctx)
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	env := b.Dispatcher().DispatchJSON(ctx, function, []byte(body))
	fmt.Println(string(dispatcher.Encode(env)))
	if !env.OK() {
		return errors.New("call failed")
	}
	return nil
}

func runRPCCall(function, body string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	loader := idl.NewLoader(idl.LoaderParams{
		Sources:           schemaSources(cfg),
		VersionConstraint: cfg.SchemaVersionConstraint,
	})
	schema, err := loader.Load(ctx, cfg.SchemaKey)
	if err != nil {
		return err
	}
	spec, err := schema.ArgSpec(cfg.SchemaService, function)
	if err != nil {
		return err
	}
	values := map[string]any{}
	if body != "" {
		if err := json.Unmarshal([]byte(body), &values); err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
	}
	args, err := codec.BuildArgs(spec, values)
	if err != nil {
		return err
	}

	c, err := thriftrpc.Dial(ctx, thriftrpc.ClientParams{
		Schema:     schema,
		Service:    cfg.SchemaService,
		Host:       cfg.RPCHost,
		Port:       cfg.RPCPort,
		UnixSocket: cfg.RPCUnixSocket,
		Timeout:    cfg.RPCClientTimeout,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Call(ctx, function, args...)
	var exc *idl.Exception
	switch {
	case errors.As(err, &exc):
		fmt.Println(string(dispatcher.Encode(dispatcher.ExceptionFailure(codec.Serialize(exc.Value), exc.TypeName()))))
		return errors.New("call raised " + exc.TypeName())
	case err != nil:
		return err
	}
	fmt.Println(string(dispatcher.Encode(dispatcher.Success(codec.Serialize(result)))))
	return nil
}

// schemaSources mirrors the lookup order of the server without the database.
func schemaSources(cfg *config.Config) []idl.Source {
	var sources []idl.Source
	if len(cfg.SchemaFiles) > 0 {
		sources = append(sources, idl.FileSource(cfg.SchemaFiles))
	}
	return append(sources, exampleapp.Source())
}

func withRepository(fn func(ctx context.Context, repo *db.Repository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolParams{URL: cfg.DatabaseURL, ApplicationName: cfg.ServiceName})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, db.NewRepository(pool))
}

func runSchema(args []string) error {
	sub := optional(args, 0)
	switch sub {
	case "push":
		key, path := optional(args, 1), optional(args, 2)
		if key == "" || path == "" {
			return errors.New("push requires <key> <file>")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		return withRepository(func(ctx context.Context, repo *db.Repository) error {
			rec, err := repo.UpsertSchema(ctx, db.UpsertSchemaParams{
				Key:      key,
				Document: data,
				Format:   string(idl.FormatFromPath(path)),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Stored %q: %s %s (revision %d)\n", rec.Key, rec.Name, rec.Version, rec.Revision)
			return nil
		})
	case "list":
		return withRepository(func(ctx context.Context, repo *db.Repository) error {
			records, err := repo.ListSchemas(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tVERSION\tFORMAT\tREVISION\tMODIFIED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.Key, r.Name, r.Version, r.Format, r.Revision, r.Modified.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		})
	case "delete":
		key := optional(args, 1)
		if key == "" {
			return errors.New("delete requires <key>")
		}
		return withRepository(func(ctx context.Context, repo *db.Repository) error {
			deleted, err := repo.DeleteSchema(ctx, key)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("no schema stored under %q", key)
			}
			fmt.Printf("Deleted %q\n", key)
			return nil
		})
	}
	return fmt.Errorf("unknown subcommand %q (use push, list, delete)", sub)
}

func runMigrateUp() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolParams{URL: cfg.DatabaseURL, ApplicationName: cfg.ServiceName})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	applied, err := db.RunMigrations(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	for _, name := range applied {
		fmt.Printf("Applied %s\n", name)
	}
	if len(applied) == 0 {
		fmt.Println("Database is up to date.")
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolParams{URL: cfg.DatabaseURL, ApplicationName: cfg.ServiceName})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	states, err := db.MigrationStatus(ctx, pool, migrations)
	if err != nil {
		return err
	}
	for _, s := range states {
		mark := "pending"
		if s.Applied {
			mark = "applied"
		}
		fmt.Printf("%-8s %s\n", mark, s.Name)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	target, err := db.WithDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	created, err := db.EnsureDatabase(context.Background(), target)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Database %q created.\n", dbName)
	} else {
		fmt.Printf("Database %q is ready.\n", dbName)
	}
	return nil
}
