package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func TestRunMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecodash.db")

	version, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}

	again, err := RunMigrations(path)
	if err != nil || again != version {
		t.Fatalf("second run = %d, %v", again, err)
	}
}

func TestRunMigrationsRefusesDirtySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecodash.db")
	if _, err := RunMigrations(path); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	db.Close()

	if _, err := RunMigrations(path); !errors.Is(err, ErrDirtySchema) {
		t.Fatalf("err = %v, want ErrDirtySchema", err)
	}
}
