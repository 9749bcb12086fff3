package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/spawnsvc/internal/eventbus"
	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/annel0/spawnsvc/internal/session"
	"github.com/annel0/spawnsvc/internal/storage"
)

// PutScene проверяет и сохраняет сцену, возвращает новую версию
func (s *SpawnService) PutScene(ctx context.Context, sc *scene.Scene) (int64, error) {
	if sc == nil {
		return 0, fmt.Errorf("%w: nil scene", scene.ErrInvalidScene)
	}
	if err := sc.Validate(); err != nil {
		return 0, err
	}

	version, err := s.repo.Save(ctx, sc)
	if err != nil {
		return 0, err
	}
	s.invalidateGeometry(sc.ID)

	s.log.Info("🗺️ Сцена %s сохранена: версия %d, точек %d, препятствий %d",
		sc.ID, version, len(sc.SpawnPoints), len(sc.Blockers))
	s.publish(ctx, eventbus.EventSceneUpdated, eventbus.SceneChanged{SceneID: sc.ID, Version: version})
	return version, nil
}

// GetScene загружает сцену
func (s *SpawnService) GetScene(ctx context.Context, id string) (*scene.Scene, error) {
	return s.repo.Load(ctx, id)
}

// DeleteScene удаляет сцену
func (s *SpawnService) DeleteScene(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateGeometry(id)

	s.log.Info("🗑️ Сцена %s удалена", id)
	s.publish(ctx, eventbus.EventSceneDeleted, eventbus.SceneChanged{SceneID: id})
	return nil
}

// ListScenes возвращает отсортированные ID сцен
func (s *SpawnService) ListScenes(ctx context.Context) ([]string, error) {
	return s.repo.List(ctx)
}

// GenerateParams - параметры процедурной генерации сцены.
// Нулевые поля берутся из scene.NewGenerator.
type GenerateParams struct {
	Seed        int64    `json:"seed"`
	Width       int      `json:"width,omitempty"`
	Depth       int      `json:"depth,omitempty"`
	Points      int      `json:"points,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	WithPreview bool     `json:"with_preview,omitempty"`
}

// Generator возвращает генератор, настроенный по параметрам
func (p GenerateParams) Generator() *scene.Generator {
	g := scene.NewGenerator(p.Seed)
	if p.Width > 0 {
		g.Width = p.Width
	}
	if p.Depth > 0 {
		g.Depth = p.Depth
	}
	if p.Points > 0 {
		g.Points = p.Points
	}
	g.Tags = p.Tags
	g.WithPreview = p.WithPreview
	return g
}

// GenerateScene строит процедурную сцену и сохраняет её
func (s *SpawnService) GenerateScene(ctx context.Context, id string, p GenerateParams) (*scene.Scene, error) {
	sc, err := p.Generator().Generate(id)
	if err != nil {
		return nil, err
	}
	version, err := s.PutScene(ctx, sc)
	if err != nil {
		return nil, err
	}
	sc.Version = version
	return sc, nil
}

// LoadSceneDir сохраняет в хранилище все YAML сцены из каталога
func (s *SpawnService) LoadSceneDir(ctx context.Context, dir string) (int, error) {
	scenes, err := scene.LoadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, sc := range scenes {
		if _, err := s.PutScene(ctx, sc); err != nil {
			return 0, fmt.Errorf("scene %s: %w", sc.ID, err)
		}
	}
	return len(scenes), nil
}

// IsNotFound сообщает, что ошибка означает отсутствие сцены или игрока
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrSceneNotFound) || errors.Is(err, session.ErrPlayerNotFound)
}
