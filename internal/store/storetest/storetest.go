package storetest

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"qrface/internal/store"
)

// EnvURL names the database the integration tests run against.
const EnvURL = "TEST_DATABASE_URL"

// Open connects to the test database, applies migrations and empties the
// given tables. It skips the test when EnvURL is unset. Packages migrate the
// same database, so run them with go test -tags integration -p 1 ./...
func Open(t *testing.T, tables ...string) *sql.DB {
	t.Helper()
	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skipf("%s not set", EnvURL)
	}
	db, err := store.NewDB(url)
	require.NoError(t, err, "database open must succeed; check %s", EnvURL)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	if len(tables) > 0 {
		_, err = db.Client.ExecContext(context.Background(), "TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY")
		require.NoError(t, err)
	}
	return db.Client
}
