package db

import "time"

// SchemaRecord represents a row in the idl_schemas table.
type SchemaRecord struct {
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Version  string    `json:"version"`
	Format   string    `json:"format"`
	Document []byte    `json:"-"`
	Revision int       `json:"revision"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// UpsertSchemaParams holds parameters for UpsertSchema.
type UpsertSchemaParams struct {
	Key      string
	Document []byte
	// Format defaults to the one detected from Document.
	Format string
}
