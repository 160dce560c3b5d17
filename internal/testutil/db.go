package testutil

import (
	"context"
	"path/filepath"
	"testing"

	schema "github.com/AtRiskMedia/threshold/internal/infrastructure/database"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/persistence/database"
)

// NewTestDB opens a pure-Go SQLite database in t.TempDir with the schema
// applied. It is closed when the test ends.
func NewTestDB(t testing.TB) *database.DB {
	t.Helper()

	dsn, err := database.ResolveDSN(database.DriverSQLite, filepath.Join(t.TempDir(), "threshold.db"), "")
	if err != nil {
		t.Fatalf("resolve dsn: %v", err)
	}
	db, err := database.NewConnectionWithLogger(context.Background(), database.DriverSQLite, dsn,
		database.PoolConfig{MaxOpenConns: 1}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := schema.NewTableCreator().CreateSchema(context.Background(), db.DB); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}
