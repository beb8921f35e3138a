// Package testhelpers provides shared fixtures for package tests.
package testhelpers

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/tokicard/waitlist/internal/db"
)

// OpenTestDB opens a migrated throwaway SQLite database scoped to the
// test's temp dir.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "waitlist-test.db")
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}
