package service

import (
	"context"
	"sync"
	"testing"

	"github.com/annel0/spawnsvc/internal/eventbus"
	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/annel0/spawnsvc/internal/session"
	"github.com/annel0/spawnsvc/internal/spawn"
	"github.com/annel0/spawnsvc/internal/storage"
	"github.com/annel0/spawnsvc/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstRandom всегда выбирает нижнюю границу
type firstRandom struct{}

func (firstRandom) IntRange(lo, _ int) int { return lo }

type fixture struct {
	svc    *SpawnService
	repo   *storage.MemorySceneRepo
	bus    eventbus.EventBus
	mu     sync.Mutex
	events []*eventbus.Envelope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: storage.NewMemorySceneRepo(),
		bus:  eventbus.NewMemoryBus(64),
	}
	_, err := f.bus.Subscribe(context.Background(), eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
	})
	require.NoError(t, err)

	f.svc, err = New(Options{
		Repo:       f.repo,
		Bus:        f.bus,
		Random:     firstRandom{},
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return f
}

// drain закрывает шину и возвращает доставленные события
func (f *fixture) drain(t *testing.T) []*eventbus.Envelope {
	t.Helper()
	require.NoError(t, f.bus.Close())
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events
}

// arena: red-1 занята препятствием без свободного места рядом, red-2 свободна
func arena() *scene.Scene {
	return &scene.Scene{
		ID: "arena",
		SpawnPoints: []spawn.Point{
			{ID: "red-1", Tag: "red", Position: vec.Vec3Float{X: 0, Y: 0, Z: 1}},
			{ID: "red-2", Tag: "red", Position: vec.Vec3Float{X: 20, Y: 0, Z: 1}},
			{ID: "blue-1", Tag: "blue", Position: vec.Vec3Float{X: 40, Y: 0, Z: 1}},
		},
		Blockers: []physics.Box{
			{Min: vec.Vec3Float{X: -50, Y: -50, Z: -50}, Max: vec.Vec3Float{X: 10, Y: 50, Z: 50}},
		},
	}
}

func TestNewRequiresRepo(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestFindPlayerStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PutScene(ctx, arena())
	require.NoError(t, err)
	_, err = f.svc.JoinPlayer(ctx, session.Controller{ID: "p1"})
	require.NoError(t, err)

	sel, err := f.svc.FindPlayerStart(ctx, "arena", "p1", "red", nil)
	require.NoError(t, err)
	require.True(t, sel.Found())
	assert.Equal(t, "red-2", sel.Point.ID)
	assert.Equal(t, spawn.OutcomeTagged, sel.Outcome)
	assert.Equal(t, 1, sel.Skipped)
	assert.Equal(t, int64(1), sel.SceneVersion)
	assert.Equal(t, "p1", sel.PlayerID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.selections.WithLabelValues("tagged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.skipped))

	events := f.drain(t)
	var selected []eventbus.SpawnSelected
	for _, ev := range events {
		if ev.EventType == eventbus.EventSpawnSelected {
			p, err := eventbus.DecodePayload[eventbus.SpawnSelected](ev)
			require.NoError(t, err)
			selected = append(selected, p)
		}
	}
	require.Len(t, selected, 1)
	assert.Equal(t, "red-2", selected[0].PointID)
	assert.Equal(t, "tagged", selected[0].Outcome)
	assert.Equal(t, "p1", selected[0].PlayerID)
}

func TestFindPlayerStartUnknownPlayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PutScene(ctx, arena())
	require.NoError(t, err)

	sel, err := f.svc.FindPlayerStart(ctx, "arena", "ghost", "", nil)
	require.NoError(t, err)
	assert.False(t, sel.Found())
	assert.Equal(t, spawn.OutcomeNone, sel.Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.selections.WithLabelValues("none")))
}

func TestSelectMissingScene(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Select(context.Background(), "nowhere", spawn.Request{})
	assert.ErrorIs(t, err, storage.ErrSceneNotFound)
	assert.True(t, IsNotFound(err))
}

func TestSelectFallbackAndPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PutScene(ctx, arena())
	require.NoError(t, err)

	sel, err := f.svc.Select(ctx, "arena", spawn.Request{Tag: "green"})
	require.NoError(t, err)
	assert.Equal(t, spawn.OutcomeUnoccupied, sel.Outcome)
	assert.Equal(t, "red-2", sel.Point.ID)

	// Preview-точка в начале перебора даёт пустой результат
	sc := arena()
	sc.SpawnPoints = append([]spawn.Point{{ID: "pie", Preview: true}}, sc.SpawnPoints...)
	_, err = f.svc.PutScene(ctx, sc)
	require.NoError(t, err)

	sel, err = f.svc.Select(ctx, "arena", spawn.Request{})
	require.NoError(t, err)
	assert.False(t, sel.Found())
	assert.Equal(t, spawn.OutcomePreviewShortCircuit, sel.Outcome)
	assert.Equal(t, int64(2), sel.SceneVersion)
}

func TestGeometryCachePerVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PutScene(ctx, arena())
	require.NoError(t, err)
	_, err = f.svc.Select(ctx, "arena", spawn.Request{})
	require.NoError(t, err)

	first := f.svc.geoms["arena"].geometry
	_, err = f.svc.Select(ctx, "arena", spawn.Request{})
	require.NoError(t, err)
	assert.Same(t, first, f.svc.geoms["arena"].geometry)

	// Убираем препятствие: новая версия перестраивает индекс
	sc := arena()
	sc.Blockers = nil
	_, err = f.svc.PutScene(ctx, sc)
	require.NoError(t, err)
	_, ok := f.svc.geoms["arena"]
	assert.False(t, ok)

	sel, err := f.svc.Select(ctx, "arena", spawn.Request{Tag: "red"})
	require.NoError(t, err)
	assert.Equal(t, "red-1", sel.Point.ID)
	assert.Equal(t, int64(2), f.svc.geoms["arena"].version)
}

func TestGeometryCacheSeesRecreatedScene(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemorySceneRepo()
	nodes := make([]*SpawnService, 2)
	for i := range nodes {
		svc, err := New(Options{Repo: repo, Random: firstRandom{}, Registerer: prometheus.NewRegistry()})
		require.NoError(t, err)
		nodes[i] = svc
	}
	nodeA, nodeB := nodes[0], nodes[1]

	open := arena()
	open.Blockers = nil
	_, err := nodeA.PutScene(ctx, open)
	require.NoError(t, err)

	sel, err := nodeB.Select(ctx, "arena", spawn.Request{Tag: "red"})
	require.NoError(t, err)
	require.Equal(t, "red-1", sel.Point.ID)

	// Пересоздание сцены на другом узле: версия снова 1, но препятствие уже есть
	require.NoError(t, nodeA.DeleteScene(ctx, "arena"))
	version, err := nodeA.PutScene(ctx, arena())
	require.NoError(t, err)
	require.Equal(t, int64(1), version)

	want, err := nodeA.Select(ctx, "arena", spawn.Request{Tag: "red"})
	require.NoError(t, err)
	got, err := nodeB.Select(ctx, "arena", spawn.Request{Tag: "red"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.SceneVersion)
	require.NotNil(t, got.Point)
	assert.Equal(t, "red-2", got.Point.ID)
	assert.Equal(t, want.Point.ID, got.Point.ID)
	assert.Equal(t, want.Outcome, got.Outcome)
	assert.Equal(t, 1, nodeB.geoms["arena"].geometry.BlockerCount())
}

func TestSceneAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PutScene(ctx, &scene.Scene{})
	assert.ErrorIs(t, err, scene.ErrInvalidScene)
	_, err = f.svc.PutScene(ctx, nil)
	assert.ErrorIs(t, err, scene.ErrInvalidScene)

	generated, err := f.svc.GenerateScene(ctx, "gen", GenerateParams{Seed: 5, Points: 4, Tags: []string{"a"}})
	require.NoError(t, err)
	assert.Len(t, generated.SpawnPoints, 4)
	assert.Equal(t, int64(1), generated.Version)

	_, err = f.svc.PutScene(ctx, arena())
	require.NoError(t, err)

	ids, err := f.svc.ListScenes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"arena", "gen"}, ids)

	loaded, err := f.svc.GetScene(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, generated.SpawnPoints, loaded.SpawnPoints)

	require.NoError(t, f.svc.DeleteScene(ctx, "gen"))
	assert.ErrorIs(t, f.svc.DeleteScene(ctx, "gen"), storage.ErrSceneNotFound)

	types := map[string]int{}
	for _, ev := range f.drain(t) {
		types[ev.EventType]++
	}
	assert.Equal(t, 2, types[eventbus.EventSceneUpdated])
	assert.Equal(t, 1, types[eventbus.EventSceneDeleted])
}

func TestPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.JoinPlayer(ctx, session.Controller{ID: "a", Local: true})
	require.NoError(t, err)
	_, err = f.svc.JoinPlayer(ctx, session.Controller{ID: "b"})
	require.NoError(t, err)
	_, err = f.svc.JoinPlayer(ctx, session.Controller{ID: "a"})
	assert.ErrorIs(t, err, session.ErrPlayerExists)

	assert.Len(t, f.svc.Players(false), 2)
	assert.Len(t, f.svc.Players(true), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.svc.metrics.players))

	require.NoError(t, f.svc.LeavePlayer(ctx, "a"))
	err = f.svc.LeavePlayer(ctx, "a")
	assert.ErrorIs(t, err, session.ErrPlayerNotFound)
	assert.True(t, IsNotFound(err))

	assert.Equal(t, 0, f.svc.Registry().ControllerIndex("b"))

	types := map[string]int{}
	for _, ev := range f.drain(t) {
		types[ev.EventType]++
	}
	assert.Equal(t, 2, types[eventbus.EventPlayerJoined])
	assert.Equal(t, 1, types[eventbus.EventPlayerLeft])
}

func TestLoadSceneDir(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	require.NoError(t, scene.SaveFile(dir+"/arena.yaml", arena()))

	n, err := f.svc.LoadSceneDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.repo.Count())
}
