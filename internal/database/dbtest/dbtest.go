// internal/database/dbtest/dbtest.go

// Package dbtest opens a throwaway Postgres connection for repository tests.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"librarium/internal/database"
)

// EnvURL names the variable holding the test database DSN.
const EnvURL = "TEST_DATABASE_URL"

// Open connects to TEST_DATABASE_URL, applies the schema and empties every table.
// The test is skipped when the variable is unset.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv(EnvURL)
	if dsn == "" {
		t.Skipf("%s not set", EnvURL)
	}

	driver := os.Getenv("TEST_DATABASE_DRIVER")
	if driver == "" {
		driver = "postgres"
	}

	ctx := context.Background()
	db, err := database.Open(ctx, driver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	_, err = db.ExecContext(ctx, "TRUNCATE TABLE book_checkouts, clients, books, users CASCADE")
	require.NoError(t, err)

	return db
}
