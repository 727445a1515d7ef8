package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, 1, "init_schema_migrations"},
		{"0042_create_user_metadata.sql", true, 42, "create_user_metadata"},
		{"001_invalid.sql", false, 0, ""},       // wrong number format
		{"0001_test", false, 0, ""},             // missing .sql
		{"0001.sql", false, 0, ""},              // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseFilename(tt.filename)
			if ok != tt.valid {
				t.Fatalf("parseFilename() ok = %v, want %v", ok, tt.valid)
			}
			if version != tt.version || name != tt.name {
				t.Errorf("parseFilename() = (%d, %q), want (%d, %q)", version, name, tt.version, tt.name)
			}
		})
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}
	return dir
}

func TestReadMigrations(t *testing.T) {
	raw := "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.expenses` (id STRING);"
	dir := writeFiles(t, map[string]string{
		"0002_create_transactions.sql": raw,
		"0001_init.sql":                "SELECT 1;",
		"README.md":                    "not a migration",
	})

	migrations, err := readMigrations(zerolog.Nop(), dir, "proj", "finance")
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("versions = %d, %d; want sorted 1, 2", migrations[0].Version, migrations[1].Version)
	}

	m := migrations[1]
	if want := "CREATE TABLE `proj.finance.expenses` (id STRING);"; m.SQL != want {
		t.Errorf("SQL = %q, want %q", m.SQL, want)
	}
	if want := fmt.Sprintf("%x", sha256.Sum256([]byte(raw))); m.Checksum != want {
		t.Errorf("checksum should cover the untemplated file")
	}
}

func TestReadMigrationsRejectsDuplicateVersions(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"0001_a.sql": "SELECT 1;",
		"0001_b.sql": "SELECT 2;",
	})

	_, err := readMigrations(zerolog.Nop(), dir, "proj", "finance")
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("readMigrations() error = %v, want duplicate version error", err)
	}
}

func TestPlanMigrations(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "init", Checksum: "aaa"},
		{Version: 2, Name: "transactions", Checksum: "bbb"},
		{Version: 3, Name: "metadata", Checksum: "ccc"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "changed"},
	}

	pending, drifted := planMigrations(all, applied)
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Errorf("pending = %+v, want only version 3", pending)
	}
	if len(drifted) != 1 || drifted[0].Version != 2 {
		t.Errorf("drifted = %+v, want only version 2", drifted)
	}
}

func TestRepositoryMigrationsParse(t *testing.T) {
	dir, err := locateDir("migrations/bigquery")
	if err != nil {
		t.Skip("migrations directory not reachable from test working directory")
	}

	migrations, err := readMigrations(zerolog.Nop(), dir, "proj", "finance")
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	for _, table := range []string{"schema_migrations", "expenses", "income", "user_metadata", "analysis_snapshots"} {
		found := false
		for _, m := range migrations {
			if strings.Contains(m.SQL, "`proj.finance."+table+"`") {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no migration creates %s", table)
		}
	}
}
