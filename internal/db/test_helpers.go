package db

import (
	"path/filepath"
	"testing"
)

// setupTestDB opens a fresh migrated database in a test temp directory. The
// connection is closed automatically when the test finishes.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.MigrateUp(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return database
}
