package main

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error loading embedded migrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != int64(i+1) {
			t.Fatalf("expected version %d at position %d, got %d", i+1, i, m.Version)
		}
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Fatalf("expected non-empty up/down sql for version %d", m.Version)
		}
	}
	if !strings.Contains(migrations[0].UpSQL, "demand_observations") {
		t.Fatal("first migration should create the feature store")
	}
	if !strings.Contains(migrations[2].UpSQL, "pricing_recommendations") {
		t.Fatal("third migration should create the recommendations table")
	}
}

func TestLoadMigrationsRejectsHalfPairs(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/001_only_up.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE t (id INT);")},
	}
	if _, err := loadMigrations(fsys); err == nil {
		t.Fatal("expected error for missing down migration")
	}
}

func TestLoadMigrationsRejectsBadNames(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/nonsense.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
	}
	if _, err := loadMigrations(fsys); err == nil {
		t.Fatal("expected error for invalid filename")
	}
}
