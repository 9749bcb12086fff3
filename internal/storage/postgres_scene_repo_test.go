package storage

import (
	"io/fs"
	"os"
	"testing"

	"github.com/annel0/spawnsvc/internal/storage/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	data, err := fs.ReadFile(migrations.FS, files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "-- +goose Down")
	assert.Contains(t, string(data), "spawn_scenes")
}

// Контрактные тесты на живой базе: SPAWN_TEST_POSTGRES_DSN=postgres://...
func TestPostgresSceneRepo_Contract(t *testing.T) {
	dsn := os.Getenv("SPAWN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPAWN_TEST_POSTGRES_DSN не задан")
	}
	repo, err := Open(Config{Backend: BackendPostgres, PostgresDSN: dsn})
	require.NoError(t, err)
	defer repo.Close()

	runSceneRepoContract(t, repo)
}
