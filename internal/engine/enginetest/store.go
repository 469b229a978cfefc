package enginetest

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	coredatabase "github.com/m3rciful/kaoribot/core/database"
	"github.com/m3rciful/kaoribot/internal/store"
)

// OpenDB opens a migrated SQLite database in a temporary directory with the
// pool settings production uses.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	cfg := coredatabase.Config{
		Driver: coredatabase.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "kaoribot.db"),
	}
	cfg.Normalize()
	db, err := coredatabase.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := coredatabase.RunMigrations(db, cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewStore opens a migrated SQLite store in a temporary directory.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(OpenDB(t))
}
