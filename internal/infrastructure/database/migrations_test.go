package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_create_cameras.up.sql": {
			Data: []byte("CREATE TABLE cameras (address TEXT PRIMARY KEY);"),
		},
		"20260101_000000_create_cameras.down.sql": {
			Data: []byte("DROP TABLE cameras;"),
		},
		"20260102_000000_add_label.up.sql": {
			Data: []byte("ALTER TABLE cameras ADD COLUMN label TEXT;"),
		},
		"README.md": {Data: []byte("ignored")},
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO cameras (address, label) VALUES ('10.0.0.5', 'door')"); err != nil {
		t.Errorf("migrated schema rejected insert: %v", err)
	}

	// Running again is a no-op.
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if got := countRows(t, db, "schema_migrations"); got != 2 {
		t.Errorf("schema_migrations rows = %d, want 2", got)
	}
}

func TestMigrate_FailureStopsAndResumes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := testMigrations()
	fsys["20260102_000000_add_label.up.sql"] = &fstest.MapFile{Data: []byte("ALTER TABLE missing ADD COLUMN x TEXT;")}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() error = nil, want failure")
	}
	applied, pending, err := db.GetMigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Fatalf("applied=%d pending=%d, want 1 and 1", len(applied), len(pending))
	}

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("resumed Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260101_000000_create_cameras.up.sql":   testMigrations()["20260101_000000_create_cameras.up.sql"],
		"20260101_000000_create_cameras.down.sql": testMigrations()["20260101_000000_create_cameras.down.sql"],
	}
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if _, err := db.ExecContext(ctx, "SELECT * FROM cameras"); err == nil {
		t.Error("cameras table still exists after MigrateDown")
	}
	if got := countRows(t, db, "schema_migrations"); got != 0 {
		t.Errorf("schema_migrations rows = %d, want 0", got)
	}

	// Nothing applied: no-op.
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations()); err == nil {
		t.Error("MigrateDown() error = nil for migration without down SQL")
	}
}

func TestMigrate_NilFS(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, nil); err != nil {
		t.Fatalf("Migrate(nil) error = %v", err)
	}
	applied, pending, err := db.GetMigrationStatus(ctx, nil)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want none", len(applied), len(pending))
	}
}

func TestGetMigrationStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.createMigrationsTable(ctx); err != nil {
		t.Fatalf("createMigrationsTable() error = %v", err)
	}
	_, pending, err := db.GetMigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Name != "create_cameras" || pending[1].Name != "add_label" {
		t.Errorf("pending names = %q, %q", pending[0].Name, pending[1].Name)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"up", "20260101_000000_session_history.up.sql", "20260101_000000", true, true},
		{"down", "20260101_000000_session_history.down.sql", "20260101_000000", false, true},
		{"no name", "20260101_000000.up.sql", "20260101_000000", true, true},
		{"no direction", "20260101_000000_session_history.sql", "", false, false},
		{"not sql", "20260101_000000_session_history.up.txt", "", false, false},
		{"single part", "schema.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if version != tt.wantVersion || isUp != tt.wantUp || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tt.filename, version, isUp, ok, tt.wantVersion, tt.wantUp, tt.wantOK)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := map[string]string{
		"20260101_000000_session_history.up.sql": "session_history",
		"20260101_000000_drop.down.sql":          "drop",
		"20260101_000000.up.sql":                 "20260101_000000",
	}
	for filename, want := range tests {
		if got := extractMigrationName(filename); got != want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", filename, got, want)
		}
	}
}

func TestGetMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	applied, pending, err := db.GetMigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("GetMigrationStatus() on a fresh database error = %v", err)
	}
	if len(applied) != 0 || len(pending) == 0 {
		t.Errorf("applied=%d pending=%d, want none applied and some pending", len(applied), len(pending))
	}

	if err := db.MigrateDown(ctx, testMigrations()); err != nil {
		t.Errorf("MigrateDown() on a fresh database error = %v", err)
	}
}
