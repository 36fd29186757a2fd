package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/idl-bridge/pkg/idl"
)

const repoLogPrefix = "db:repository"

const schemaColumns = `key, name, version, format, document, revision, created, modified`

// Repository stores schema documents. It is an idl.Source.
type Repository struct {
	pool *pgxpool.Pool
}

var _ idl.Source = (*Repository)(nil)

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertSchema validates a document and stores it under its key, bumping the revision
// when the key exists.
func (r *Repository) UpsertSchema(ctx context.Context, params UpsertSchemaParams) (*SchemaRecord, error) {
	if params.Key == "" {
		return nil, fmt.Errorf("%s - schema key is required", repoLogPrefix)
	}
	format := idl.Format(params.Format)
	if format == "" {
		format = idl.DetectFormat(params.Document)
	}
	doc, err := idl.ParseDocument(params.Document, format)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", repoLogPrefix, err)
	}
	if _, err := idl.Build(doc); err != nil {
		return nil, fmt.Errorf("%s - %w", repoLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - UpsertSchema key=%s name=%s version=%s", repoLogPrefix, params.Key, doc.Name, doc.Version))
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO idl_schemas (key, name, version, format, document, created, modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (key) DO UPDATE SET
		   name = $2,
		   version = $3,
		   format = $4,
		   document = $5,
		   revision = idl_schemas.revision + 1,
		   modified = $6
		 RETURNING `+schemaColumns,
		params.Key, doc.Name, doc.Version, string(format), params.Document, now)
	return scanSchema(row)
}

// GetSchema finds a schema by key. It returns nil, nil when the key is absent.
func (r *Repository) GetSchema(ctx context.Context, key string) (*SchemaRecord, error) {
	slog.Debug(fmt.Sprintf("%s - GetSchema key=%s", repoLogPrefix, key))

	row := r.pool.QueryRow(ctx,
		`SELECT `+schemaColumns+` FROM idl_schemas WHERE key = $1`, key)
	rec, err := scanSchema(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListSchemas lists every stored schema ordered by key.
func (r *Repository) ListSchemas(ctx context.Context) ([]SchemaRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+schemaColumns+` FROM idl_schemas ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("%s - ListSchemas query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []SchemaRecord
	for rows.Next() {
		rec, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - ListSchemas rows: %w", repoLogPrefix, err)
	}
	return out, nil
}

// DeleteSchema removes a schema. It reports whether a row was deleted.
func (r *Repository) DeleteSchema(ctx context.Context, key string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idl_schemas WHERE key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("%s - DeleteSchema failed: %w", repoLogPrefix, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Fetch returns the stored document for key, or idl.ErrDocumentNotFound.
func (r *Repository) Fetch(ctx context.Context, key string) (*idl.Document, error) {
	rec, err := r.GetSchema(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, idl.ErrDocumentNotFound
	}
	return idl.ParseDocument(rec.Document, idl.Format(rec.Format))
}

// scanSchema scans one row. pgx.ErrNoRows is returned unwrapped.
func scanSchema(row pgx.Row) (*SchemaRecord, error) {
	var s SchemaRecord
	err := row.Scan(&s.Key, &s.Name, &s.Version, &s.Format, &s.Document, &s.Revision, &s.Created, &s.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan schema failed: %w", repoLogPrefix, err)
	}
	return &s, nil
}
