package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/storage/database"
)

// PrepareDB opens a clean, migrated test database.
// Tests are skipped unless TEST_DBHOST points to a postgres server.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("TEST_DBHOST") == "" {
		t.Skip("TEST_DBHOST is not set")
	}
	t.Setenv("ENV", "TEST")
	conf := core.NewConfig()

	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if _, err = db.Exec("TRUNCATE pending_submission"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}
