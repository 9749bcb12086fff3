package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/annel0/spawnsvc/internal/spawn"
	"github.com/annel0/spawnsvc/internal/storage"
	"github.com/annel0/spawnsvc/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScene(id string, points ...string) *scene.Scene {
	sc := &scene.Scene{ID: id}
	for i, p := range points {
		sc.SpawnPoints = append(sc.SpawnPoints, spawn.Point{ID: p, Position: vec.Vec3Float{X: float64(i)}})
	}
	return sc
}

func TestSceneCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemorySceneRepo()
	_, err := repo.Save(ctx, testScene("arena", "a"))
	require.NoError(t, err)

	c, err := NewSceneCache(ctx, repo, nil, time.Minute)
	require.NoError(t, err)

	first, err := c.Load(ctx, "arena")
	require.NoError(t, err)
	first.SpawnPoints[0].ID = "mutated"

	second, err := c.Load(ctx, "arena")
	require.NoError(t, err)
	assert.Equal(t, "a", second.SpawnPoints[0].ID)

	m := c.Metrics()
	assert.Equal(t, int64(1), m.Hits)
	assert.Equal(t, int64(1), m.Misses)
	assert.Equal(t, 1, m.Entries)
	assert.InDelta(t, 0.5, m.HitRatio, 1e-9)
}

func TestSceneCache_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	c, err := NewSceneCache(ctx, storage.NewMemorySceneRepo(), nil, time.Minute)
	require.NoError(t, err)

	_, err = c.Load(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrSceneNotFound)
	assert.Equal(t, 0, c.Metrics().Entries)
}

func TestSceneCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemorySceneRepo()
	_, err := repo.Save(ctx, testScene("arena", "a"))
	require.NoError(t, err)

	c, err := NewSceneCache(ctx, repo, nil, time.Second)
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	_, err = c.Load(ctx, "arena")
	require.NoError(t, err)

	// изменение в обход кеша
	_, err = repo.Save(ctx, testScene("arena", "b"))
	require.NoError(t, err)

	sc, err := c.Load(ctx, "arena")
	require.NoError(t, err)
	assert.Equal(t, "a", sc.SpawnPoints[0].ID)

	now = now.Add(2 * time.Second)
	sc, err = c.Load(ctx, "arena")
	require.NoError(t, err)
	assert.Equal(t, "b", sc.SpawnPoints[0].ID)
	assert.Equal(t, int64(2), sc.Version)
}

func TestSceneCache_SaveAndDeleteInvalidate(t *testing.T) {
	ctx := context.Background()
	c, err := NewSceneCache(ctx, storage.NewMemorySceneRepo(), nil, time.Minute)
	require.NoError(t, err)

	v, err := c.Save(ctx, testScene("arena", "a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	_, err = c.Load(ctx, "arena")
	require.NoError(t, err)

	v, err = c.Save(ctx, testScene("arena", "b"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	sc, err := c.Load(ctx, "arena")
	require.NoError(t, err)
	assert.Equal(t, "b", sc.SpawnPoints[0].ID)

	require.NoError(t, c.Delete(ctx, "arena"))
	_, err = c.Load(ctx, "arena")
	assert.ErrorIs(t, err, storage.ErrSceneNotFound)

	ids, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSceneCache_PeerInvalidation(t *testing.T) {
	ctx := context.Background()
	shared := storage.NewMemorySceneRepo()
	hub := NewLocalInvalidator()

	nodeA, err := NewSceneCache(ctx, shared, hub.Node(), time.Hour)
	require.NoError(t, err)
	nodeB, err := NewSceneCache(ctx, shared, hub.Node(), time.Hour)
	require.NoError(t, err)

	_, err = nodeA.Save(ctx, testScene("arena", "a"))
	require.NoError(t, err)
	sc, err := nodeB.Load(ctx, "arena")
	require.NoError(t, err)
	assert.Equal(t, "a", sc.SpawnPoints[0].ID)

	_, err = nodeA.Save(ctx, testScene("arena", "b"))
	require.NoError(t, err)

	sc, err = nodeB.Load(ctx, "arena")
	require.NoError(t, err)
	assert.Equal(t, "b", sc.SpawnPoints[0].ID)
	assert.Equal(t, int64(2), nodeB.Metrics().Misses)
}

func TestLocalInvalidator_SkipsSender(t *testing.T) {
	ctx := context.Background()
	hub := NewLocalInvalidator()
	a, b := hub.Node(), hub.Node()

	var gotA, gotB []string
	require.NoError(t, a.SubscribeInvalidations(ctx, func(k string) error { gotA = append(gotA, k); return nil }))
	require.NoError(t, b.SubscribeInvalidations(ctx, func(k string) error { gotB = append(gotB, k); return nil }))

	require.NoError(t, a.PublishInvalidation(ctx, "arena"))
	assert.Empty(t, gotA)
	assert.Equal(t, []string{"arena"}, gotB)

	require.NoError(t, b.Close())
	require.NoError(t, a.PublishInvalidation(ctx, "lobby"))
	assert.Equal(t, []string{"arena"}, gotB)
}

func TestInvalidationMessageCodec(t *testing.T) {
	data, err := encodeInvalidation("arena", "node-1", time.Unix(0, 0))
	require.NoError(t, err)

	key, ok, err := decodeInvalidation(data, "node-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "arena", key)

	_, ok, err = decodeInvalidation(data, "node-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = decodeInvalidation([]byte("{"), "node-1")
	assert.Error(t, err)
}

type slowRepo struct {
	storage.SceneRepo
	loads   int64
	release chan struct{}
}

func (r *slowRepo) Load(ctx context.Context, id string) (*scene.Scene, error) {
	atomic.AddInt64(&r.loads, 1)
	<-r.release
	return r.SceneRepo.Load(ctx, id)
}

func TestSceneCache_ConcurrentMissesShareLoad(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewMemorySceneRepo()
	_, err := inner.Save(ctx, testScene("arena", "a"))
	require.NoError(t, err)

	repo := &slowRepo{SceneRepo: inner, release: make(chan struct{})}
	c, err := NewSceneCache(ctx, repo, nil, time.Minute)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*scene.Scene, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sc, err := c.Load(ctx, "arena")
			assert.NoError(t, err)
			results[i] = sc
		}(i)
	}

	// ждём, пока первый загрузчик войдёт в хранилище
	require.Eventually(t, func() bool { return atomic.LoadInt64(&repo.loads) > 0 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&repo.loads), int64(workers))
	for _, sc := range results {
		require.NotNil(t, sc)
		assert.Equal(t, "a", sc.SpawnPoints[0].ID)
	}
	// копии независимы
	results[0].SpawnPoints[0].ID = "changed"
	assert.Equal(t, "a", results[1].SpawnPoints[0].ID)
}
