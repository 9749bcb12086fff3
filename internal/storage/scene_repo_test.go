package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/annel0/spawnsvc/internal/spawn"
	"github.com/annel0/spawnsvc/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScene(id string) *scene.Scene {
	return &scene.Scene{
		ID:   id,
		Name: "Test " + id,
		SpawnPoints: []spawn.Point{
			{ID: id + "-a", Tag: "red", Position: vec.Vec3Float{X: 1, Y: 2, Z: 0}},
			{ID: id + "-b", Tag: "blue", Position: vec.Vec3Float{X: 5, Y: 5, Z: 0}, Rotation: vec.Rotator{Yaw: 90}},
			{ID: id + "-c", Preview: true},
		},
		Blockers: []physics.Box{
			{Min: vec.Vec3Float{X: 3, Y: 3, Z: 0}, Max: vec.Vec3Float{X: 4, Y: 4, Z: 2}},
		},
	}
}

// runSceneRepoContract проверяет общее поведение всех реализаций SceneRepo
func runSceneRepoContract(t *testing.T, repo SceneRepo) {
	ctx := context.Background()

	t.Run("Load Missing", func(t *testing.T) {
		_, err := repo.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrSceneNotFound)
	})

	t.Run("Delete Missing", func(t *testing.T) {
		assert.ErrorIs(t, repo.Delete(ctx, "missing"), ErrSceneNotFound)
	})

	t.Run("Save and Load", func(t *testing.T) {
		s := testScene("arena")
		version, err := repo.Save(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)

		loaded, err := repo.Load(ctx, "arena")
		require.NoError(t, err)
		assert.Equal(t, int64(1), loaded.Version)
		assert.Equal(t, s.Name, loaded.Name)
		assert.Equal(t, s.SpawnPoints, loaded.SpawnPoints)
		assert.Equal(t, s.Blockers, loaded.Blockers)
		assert.False(t, loaded.UpdatedAt.IsZero())

		// Исходная сцена не изменилась
		assert.Equal(t, int64(0), s.Version)
	})

	t.Run("Version Increments", func(t *testing.T) {
		s := testScene("arena")
		s.Name = "Renamed"
		version, err := repo.Save(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)

		loaded, err := repo.Load(ctx, "arena")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", loaded.Name)
		assert.Equal(t, int64(2), loaded.Version)
	})

	t.Run("Loaded Copy Is Isolated", func(t *testing.T) {
		loaded, err := repo.Load(ctx, "arena")
		require.NoError(t, err)
		loaded.SpawnPoints[0].Tag = "mutated"

		again, err := repo.Load(ctx, "arena")
		require.NoError(t, err)
		assert.Equal(t, "red", again.SpawnPoints[0].Tag)
	})

	t.Run("Invalid Scene", func(t *testing.T) {
		_, err := repo.Save(ctx, &scene.Scene{})
		assert.True(t, errors.Is(err, scene.ErrInvalidScene))

		_, err = repo.Save(ctx, nil)
		assert.ErrorIs(t, err, scene.ErrInvalidScene)
	})

	t.Run("List Sorted", func(t *testing.T) {
		_, err := repo.Save(ctx, testScene("zeta"))
		require.NoError(t, err)
		_, err = repo.Save(ctx, testScene("beta"))
		require.NoError(t, err)

		ids, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"arena", "beta", "zeta"}, ids)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "beta"))

		_, err := repo.Load(ctx, "beta")
		assert.ErrorIs(t, err, ErrSceneNotFound)

		ids, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"arena", "zeta"}, ids)
	})

	t.Run("Save After Delete Restarts Version", func(t *testing.T) {
		version, err := repo.Save(ctx, testScene("beta"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
	})
}

func TestMemorySceneRepo(t *testing.T) {
	repo := NewMemorySceneRepo()
	defer repo.Close()

	runSceneRepoContract(t, repo)
	assert.Equal(t, 3, repo.Count())
}

func TestMemorySceneRepoUpdatedAtGrows(t *testing.T) {
	repo := NewMemorySceneRepo()
	ctx := context.Background()

	var last scene.Scene
	for i := 0; i < 50; i++ {
		if i%2 == 1 {
			require.NoError(t, repo.Delete(ctx, "arena"))
		}
		_, err := repo.Save(ctx, testScene("arena"))
		require.NoError(t, err)

		loaded, err := repo.Load(ctx, "arena")
		require.NoError(t, err)
		assert.True(t, loaded.UpdatedAt.After(last.UpdatedAt), "save %d", i)
		last = *loaded
	}
}

func TestMemorySceneRepoCancelledContext(t *testing.T) {
	repo := NewMemorySceneRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Save(ctx, testScene("arena"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBadgerSceneRepo(t *testing.T) {
	repo, err := NewBadgerSceneRepo(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	runSceneRepoContract(t, repo)
}

func TestBadgerSceneRepoReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := NewBadgerSceneRepo(dir)
	require.NoError(t, err)
	_, err = repo.Save(ctx, testScene("persisted"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := NewBadgerSceneRepo(dir)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "Test persisted", loaded.Name)

	version, err := reopened.Save(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestOpenBackends(t *testing.T) {
	repo, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemorySceneRepo{}, repo)
	repo.Close()

	repo, err = Open(Config{Backend: BackendBadger, DataPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &BadgerSceneRepo{}, repo)
	repo.Close()

	_, err = Open(Config{Backend: "etcd"})
	assert.Error(t, err)
}

func TestSceneCodec(t *testing.T) {
	codec, err := NewSceneCodec()
	require.NoError(t, err)
	defer codec.Close()

	s := testScene("codec")
	s.Version = 7

	data, err := codec.Encode(s)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s.ID, decoded.ID)
	assert.Equal(t, s.SpawnPoints, decoded.SpawnPoints)
	assert.Equal(t, int64(7), decoded.Version)

	_, err = codec.Decode([]byte("not zstd"))
	assert.Error(t, err)
}
