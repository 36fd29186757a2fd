package db

import (
	"os"
	"path/filepath"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("%s - failed to write %s: %v", migrationsTestPrefix, name, err)
		}
	}
}

func TestLoadMigrationFiles_SortOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"003_third.sql":  "THIRD",
		"001_first.sql":  "FIRST",
		"002_second.sql": "SECOND",
	})

	result, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	want := []Migration{
		{Name: "001_first.sql", SQL: "FIRST"},
		{Name: "002_second.sql", SQL: "SECOND"},
		{Name: "003_third.sql", SQL: "THIRD"},
	}
	if len(result) != len(want) {
		t.Fatalf("%s - expected %d migrations, got %d", migrationsTestPrefix, len(want), len(result))
	}
	for i := range want {
		if result[i] != want[i] {
			t.Errorf("%s - migration %d = %+v, want %+v", migrationsTestPrefix, i, result[i], want[i])
		}
	}
}

func TestLoadMigrationFiles_SkipsNonSQL(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"001_create.sql": "CREATE TABLE t1;",
		"README.md":      "# Migrations",
		"config.json":    "{}",
	})
	if err := os.Mkdir(filepath.Join(dir, "subdir.sql"), 0o755); err != nil {
		t.Fatalf("%s - failed to create subdir: %v", migrationsTestPrefix, err)
	}

	result, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(result) != 1 || result[0].Name != "001_create.sql" {
		t.Errorf("%s - expected only 001_create.sql, got %+v", migrationsTestPrefix, result)
	}
}

func TestLoadMigrationFiles_Errors(t *testing.T) {
	if _, err := LoadMigrationFiles(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Errorf("%s - expected error for non-existent directory", migrationsTestPrefix)
	}

	result, err := LoadMigrationFiles(t.TempDir())
	if err != nil || len(result) != 0 {
		t.Errorf("%s - empty dir: got %v, %v", migrationsTestPrefix, result, err)
	}
}

func TestLoadMigrationFiles_Repository(t *testing.T) {
	result, err := LoadMigrationFiles(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(result) == 0 || result[0].Name != "001_idl_schemas.sql" {
		t.Errorf("%s - expected 001_idl_schemas.sql first, got %+v", migrationsTestPrefix, result)
	}
}

func TestMigrationStates(t *testing.T) {
	migrations := []Migration{{Name: "001_a.sql"}, {Name: "002_b.sql"}}
	got := migrationStates(migrations, map[string]bool{"001_a.sql": true, "000_gone.sql": true})
	want := []MigrationState{{Name: "001_a.sql", Applied: true}, {Name: "002_b.sql", Applied: false}}
	if len(got) != len(want) {
		t.Fatalf("%s - got %+v", migrationsTestPrefix, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s - state %d = %+v, want %+v", migrationsTestPrefix, i, got[i], want[i])
		}
	}
}
