package coeffdb

import (
	"database/sql"
	"path/filepath"
	"testing"
)

const testMigrationsDir = "../../db/migrations"

func TestMigrateUpFromEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	db := &DB{raw}
	defer db.Close()

	if err := db.MigrateUp(testMigrationsDir); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(testMigrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("migration left the database dirty")
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}

	// Running up again is a no-op.
	if err := db.MigrateUp(testMigrationsDir); err != nil {
		t.Errorf("second MigrateUp failed: %v", err)
	}
}

func TestMigrateDownRollsBackOne(t *testing.T) {
	db := newTestDB(t)

	if err := db.MigrateUp(testMigrationsDir); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := db.MigrateDown(testMigrationsDir); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	version, _, err := db.MigrateVersion(testMigrationsDir)
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
}

func TestMigrationStatus(t *testing.T) {
	db := newTestDB(t)
	if err := db.MigrateUp(testMigrationsDir); err != nil {
		t.Fatal(err)
	}

	status, err := db.MigrationStatus(testMigrationsDir)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if status["dirty"] != false {
		t.Errorf("status = %v", status)
	}
	if status["migrations_table"] != true {
		t.Errorf("status = %v", status)
	}
}
