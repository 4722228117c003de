package store

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		b, err := fs.ReadFile(migrations, f)
		require.NoError(t, err)
		assert.Contains(t, string(b), "-- +goose Up", f)
		assert.Contains(t, string(b), "-- +goose Down", f)
	}

	b, err := fs.ReadFile(migrations, "migrations/00001_init.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "UNIQUE (student_id, session_id, meeting_number)"))
}

func TestNilHandlesAreSafe(t *testing.T) {
	var d *DB
	assert.NoError(t, d.Close())
	var r *Redis
	assert.False(t, r.Healthy(context.Background()))
	assert.NoError(t, r.Close())
}
