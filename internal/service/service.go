// Package service связывает хранилище сцен, реестр игроков и селектор точек
// появления: загружает сцену, строит (и кеширует) индекс геометрии, выбирает
// точку, пишет метрики, трассировку и публикует событие SpawnSelected.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/spawnsvc/internal/eventbus"
	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/annel0/spawnsvc/internal/session"
	"github.com/annel0/spawnsvc/internal/spawn"
	"github.com/annel0/spawnsvc/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EventSource - значение Envelope.Source для событий сервиса
const EventSource = "spawnsvc"

// Options - зависимости SpawnService. Обязателен только Repo.
type Options struct {
	Repo     storage.SceneRepo
	Bus      eventbus.EventBus // nil - события не публикуются
	Registry *session.Registry // nil - пустой реестр
	Clock    *session.Clock    // nil - часы запускаются при создании
	Random   spawn.Random      // nil - генератор с сидом от времени
	// Registerer для метрик; nil - глобальный регистр Prometheus
	Registerer prometheus.Registerer
	Geometry   []physics.GeometryOption
}

// Selection - результат выбора точки для сцены
type Selection struct {
	SceneID      string `json:"scene_id"`
	SceneVersion int64  `json:"scene_version"`
	PlayerID     string `json:"player_id,omitempty"`
	Tag          string `json:"tag,omitempty"`
	spawn.Result
}

// cachedGeometry привязан к версии и времени сохранения сцены: после
// удаления версия начинается заново с 1, а UpdatedAt уже другой
type cachedGeometry struct {
	version   int64
	updatedAt time.Time
	geometry  *physics.Geometry
}

func (c cachedGeometry) matches(sc *scene.Scene) bool {
	return c.version == sc.Version && c.updatedAt.Equal(sc.UpdatedAt)
}

// SpawnService - точка входа для выбора точек появления и управления сценами
type SpawnService struct {
	repo     storage.SceneRepo
	bus      eventbus.EventBus
	registry *session.Registry
	clock    *session.Clock
	random   *spawn.LockedRandom
	geomOpts []physics.GeometryOption
	metrics  *Metrics
	tracer   trace.Tracer
	log      *logging.Logger

	geomMu sync.Mutex
	geoms  map[string]cachedGeometry
}

// New создаёт сервис
func New(opts Options) (*SpawnService, error) {
	if opts.Repo == nil {
		return nil, errors.New("service: scene repo is required")
	}
	if opts.Registry == nil {
		opts.Registry = session.NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = session.NewClock(nil)
		opts.Clock.Start()
	}
	if opts.Random == nil {
		opts.Random = spawn.NewRand(0)
	}

	return &SpawnService{
		repo:     opts.Repo,
		bus:      opts.Bus,
		registry: opts.Registry,
		clock:    opts.Clock,
		random:   spawn.NewLockedRandom(opts.Random),
		geomOpts: opts.Geometry,
		metrics:  NewMetrics(opts.Registerer),
		tracer:   otel.Tracer("github.com/annel0/spawnsvc/internal/service"),
		log:      logging.GetSpawnLogger(),
		geoms:    make(map[string]cachedGeometry),
	}, nil
}

// Registry возвращает реестр игроков
func (s *SpawnService) Registry() *session.Registry { return s.registry }

// Clock возвращает часы сцены
func (s *SpawnService) Clock() *session.Clock { return s.clock }

// FindPlayerStart выбирает точку появления для зарегистрированного игрока.
// Незарегистрированный игрок получает пустой результат без ошибки.
// Ошибка возвращается только при сбое хранилища или отсутствии сцены.
func (s *SpawnService) FindPlayerStart(ctx context.Context, sceneID, playerID, tag string, fp *physics.Footprint) (Selection, error) {
	if _, ok := s.registry.Controller(playerID); !ok {
		s.log.Debug("FindPlayerStart: игрок %q не зарегистрирован", playerID)
		sel := Selection{SceneID: sceneID, PlayerID: playerID, Tag: tag}
		s.metrics.selections.WithLabelValues(spawn.OutcomeNone.String()).Inc()
		return sel, nil
	}
	return s.selectFor(ctx, sceneID, playerID, spawn.Request{Tag: tag, Footprint: fp})
}

// Select выбирает точку появления без привязки к игроку
func (s *SpawnService) Select(ctx context.Context, sceneID string, req spawn.Request) (Selection, error) {
	return s.selectFor(ctx, sceneID, "", req)
}

func (s *SpawnService) selectFor(ctx context.Context, sceneID, playerID string, req spawn.Request) (Selection, error) {
	ctx, span := s.tracer.Start(ctx, "spawn.select", trace.WithAttributes(
		attribute.String("scene.id", sceneID),
		attribute.String("player.id", playerID),
		attribute.String("spawn.tag", req.Tag),
	))
	defer span.End()

	start := time.Now()

	sc, err := s.repo.Load(ctx, sceneID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load scene")
		return Selection{}, fmt.Errorf("load scene %s: %w", sceneID, err)
	}

	geometry := s.geometryFor(sc)
	result := spawn.NewSelector(sc.Provider(), geometry, s.random).Select(req)

	s.metrics.duration.Observe(time.Since(start).Seconds())
	s.metrics.selections.WithLabelValues(result.Outcome.String()).Inc()
	if result.Skipped > 0 {
		s.metrics.skipped.Add(float64(result.Skipped))
	}

	span.SetAttributes(
		attribute.String("spawn.outcome", result.Outcome.String()),
		attribute.Int("spawn.skipped", result.Skipped),
		attribute.Int64("scene.version", sc.Version),
	)
	if result.Point != nil {
		span.SetAttributes(attribute.String("spawn.point", result.Point.ID))
	}

	sel := Selection{
		SceneID:      sc.ID,
		SceneVersion: sc.Version,
		PlayerID:     playerID,
		Tag:          req.Tag,
		Result:       result,
	}
	s.publishSelection(ctx, sel)
	return sel, nil
}

// geometryFor возвращает индекс геометрии сцены, перестраивая его при смене
// версии или пересохранении сцены
func (s *SpawnService) geometryFor(sc *scene.Scene) *physics.Geometry {
	s.geomMu.Lock()
	defer s.geomMu.Unlock()

	if cached, ok := s.geoms[sc.ID]; ok && cached.matches(sc) {
		return cached.geometry
	}
	g := sc.Geometry(s.geomOpts...)
	s.geoms[sc.ID] = cachedGeometry{version: sc.Version, updatedAt: sc.UpdatedAt, geometry: g}
	s.metrics.scenes.Set(float64(len(s.geoms)))
	s.log.Debug("Построен индекс геометрии сцены %s v%d: %d препятствий", sc.ID, sc.Version, g.BlockerCount())
	return g
}

func (s *SpawnService) invalidateGeometry(sceneID string) {
	s.geomMu.Lock()
	delete(s.geoms, sceneID)
	s.metrics.scenes.Set(float64(len(s.geoms)))
	s.geomMu.Unlock()
}

func (s *SpawnService) publishSelection(ctx context.Context, sel Selection) {
	payload := eventbus.SpawnSelected{
		SceneID:      sel.SceneID,
		SceneVersion: sel.SceneVersion,
		PlayerID:     sel.PlayerID,
		Tag:          sel.Tag,
		Outcome:      sel.Outcome.String(),
		Skipped:      sel.Skipped,
	}
	if sel.Point != nil {
		pos := sel.Point.Position
		payload.PointID = sel.Point.ID
		payload.Position = &pos
	}

	s.publish(ctx, eventbus.EventSpawnSelected, payload)
}

// publish отправляет событие, если шина настроена. Ошибки только логируются.
// CorrelationID - trace id текущего span.
func (s *SpawnService) publish(ctx context.Context, eventType string, payload any) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewJSONEnvelope(EventSource, eventType, payload)
	if err != nil {
		s.log.Error("Ошибка сериализации события %s: %v", eventType, err)
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.CorrelationID = sc.TraceID().String()
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("Не удалось опубликовать событие %s: %v", eventType, err)
	}
}
