package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsLogPrefix = "db:migrations"

// Migration is one forward-only SQL file.
type Migration struct {
	Name string
	SQL  string
}

// MigrationState reports whether a migration has been applied.
type MigrationState struct {
	Name    string
	Applied bool
}

// LoadMigrationFiles reads all .sql files from dir, sorted by name.
func LoadMigrationFiles(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []Migration
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, path, err)
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS idl_bridge_migrations (
	name    TEXT PRIMARY KEY,
	applied TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunMigrations applies the migrations not yet recorded, each in its own transaction.
// It returns the names applied.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) ([]string, error) {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("%s - failed to create migrations table: %w", migrationsLogPrefix, err)
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return ran, fmt.Errorf("%s - begin %s: %w", migrationsLogPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return ran, fmt.Errorf("%s - migration %s failed: %w", migrationsLogPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO idl_bridge_migrations (name) VALUES ($1)`, m.Name); err != nil {
			_ = tx.Rollback(ctx)
			return ran, fmt.Errorf("%s - record %s: %w", migrationsLogPrefix, m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return ran, fmt.Errorf("%s - commit %s: %w", migrationsLogPrefix, m.Name, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied %s", migrationsLogPrefix, m.Name))
		ran = append(ran, m.Name)
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete, %d applied", migrationsLogPrefix, len(ran)))
	return ran, nil
}

// MigrationStatus lists migrations with whether each has been applied.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) ([]MigrationState, error) {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'idl_bridge_migrations')`).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to check migrations table: %w", migrationsLogPrefix, err)
	}
	applied := map[string]bool{}
	if exists {
		if applied, err = appliedMigrations(ctx, pool); err != nil {
			return nil, err
		}
	}
	return migrationStates(migrations, applied), nil
}

func migrationStates(migrations []Migration, applied map[string]bool) []MigrationState {
	out := make([]MigrationState, len(migrations))
	for i, m := range migrations {
		out[i] = MigrationState{Name: m.Name, Applied: applied[m.Name]}
	}
	return out
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM idl_bridge_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to list applied migrations: %w", migrationsLogPrefix, err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s - scan migration name: %w", migrationsLogPrefix, err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
